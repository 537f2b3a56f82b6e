package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/autopilot/pkg/task"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("session closed")

// ConnectionError means the server could not be reached or the handshake
// failed. It is fatal for a run.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error   { return e.Err }
func (e *ConnectionError) Retryable() bool { return false }

// ProtocolError means the server answered with something that is not a
// valid response to the request, or with a JSON-RPC error object.
type ProtocolError struct {
	Method string
	Code   int
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: protocol error (code %d): %v", e.Method, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: protocol error: %v", e.Method, e.Err)
}

func (e *ProtocolError) Unwrap() error   { return e.Err }
func (e *ProtocolError) Retryable() bool { return false }

// TimeoutError means no response arrived within the invoke timeout.
type TimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response within %s", e.Method, e.Timeout)
}

func (e *TimeoutError) Retryable() bool { return true }

// TransportError means the connection failed while sending or receiving.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Retryable() bool { return true }

// CircuitOpenError means the breaker rejected the call without touching
// the connection.
type CircuitOpenError struct {
	Err error
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("tool server circuit open: %v", e.Err)
}

func (e *CircuitOpenError) Unwrap() error   { return e.Err }
func (e *CircuitOpenError) Retryable() bool { return false }

// IsRetryable reports whether err is a transient session failure.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// ErrorKind classifies err for recording in a Step observation.
func ErrorKind(err error) task.ErrorKind {
	var (
		timeoutErr   *TimeoutError
		transportErr *TransportError
		circuitErr   *CircuitOpenError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return task.KindTimeout
	case errors.As(err, &circuitErr):
		return task.KindCircuitOpen
	case errors.As(err, &transportErr), errors.Is(err, ErrClosed):
		return task.KindTransport
	default:
		return task.KindProtocol
	}
}
