// Package session implements the client side of the tool-server protocol:
// one WebSocket connection, a handshake, tool discovery and serialized
// tool invocations with a per-call timeout.
//
// The client never retries. Every error it returns says whether it is worth
// retrying (see IsRetryable) and the caller decides.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/websocket"

	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/protocol"
	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/task"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("session")
	if err != nil {
		debugLog.Warnf("Failed to initialize session logger, using stderr fallback: %v", err)
	}
}

// State is the lifecycle of a client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	DefaultInvokeTimeout = 30 * time.Second
	DefaultDialTimeout   = 10 * time.Second

	clientName    = "autopilot"
	clientVersion = "0.1.0"
)

type options struct {
	invokeTimeout   time.Duration
	dialTimeout     time.Duration
	origin          string
	breakerFailures uint32
	breakerOpenFor  time.Duration
}

// Option configures Open.
type Option func(*options)

// WithInvokeTimeout bounds every request/response round trip.
func WithInvokeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.invokeTimeout = d
		}
	}
}

// WithDialTimeout bounds connection setup and the handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithOrigin sets the Origin header sent on the WebSocket upgrade.
func WithOrigin(origin string) Option {
	return func(o *options) {
		o.origin = origin
	}
}

// WithCircuitBreaker makes Invoke fail fast once failures consecutive
// transport or timeout failures have been seen. After openFor a single
// probe call is let through.
func WithCircuitBreaker(failures int, openFor time.Duration) Option {
	return func(o *options) {
		if failures > 0 {
			o.breakerFailures = uint32(failures)
			o.breakerOpenFor = openFor
		}
	}
}

// Client is one session with a tool server. Invoke calls are serialized;
// the client is safe for concurrent use but runs one round trip at a time.
type Client struct {
	endpoint string
	opts     options
	conn     *websocket.Conn
	breaker  *gobreaker.CircuitBreaker
	info     protocol.InitializeResult

	mu        sync.Mutex
	state     atomic.Int32
	nextID    atomic.Uint64
	closeOnce sync.Once
	closeErr  error
}

// Open dials endpoint and performs the initialize handshake. Any failure
// is returned as *ConnectionError.
func Open(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	o := options{
		invokeTimeout: DefaultInvokeTimeout,
		dialTimeout:   DefaultDialTimeout,
		origin:        "http://localhost/",
	}
	for _, opt := range opts {
		opt(&o)
	}

	wsURL, err := websocketURL(endpoint)
	if err != nil {
		return nil, &ConnectionError{Endpoint: endpoint, Err: err}
	}

	c := &Client{endpoint: wsURL, opts: o}
	c.state.Store(int32(StateConnecting))

	dialCtx, cancel := context.WithTimeout(ctx, o.dialTimeout)
	defer cancel()

	cfg, err := websocket.NewConfig(wsURL, o.origin)
	if err != nil {
		return nil, &ConnectionError{Endpoint: wsURL, Err: err}
	}
	conn, err := cfg.DialContext(dialCtx)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return nil, &ConnectionError{Endpoint: wsURL, Err: err}
	}
	c.conn = conn

	if o.breakerFailures > 0 {
		c.breaker = newBreaker(wsURL, o.breakerFailures, o.breakerOpenFor)
	}

	var info protocol.InitializeResult
	params := protocol.InitializeParams{ClientName: clientName, ClientVersion: clientVersion}
	if err := c.roundTrip(dialCtx, o.dialTimeout, protocol.MethodInitialize, params, &info); err != nil {
		_ = conn.Close()
		c.state.Store(int32(StateDisconnected))
		return nil, &ConnectionError{Endpoint: wsURL, Err: err}
	}
	c.info = info
	c.state.Store(int32(StateReady))

	debugLog.Infof("Session %s opened with %s %s at %s", info.SessionID, info.ServerName, info.ServerVersion, wsURL)
	return c, nil
}

func newBreaker(name string, failures uint32, openFor time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only connection trouble trips the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			debugLog.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

// websocketURL accepts ws(s) URLs and rewrites http(s) ones.
func websocketURL(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("endpoint has no host")
	}
	return u.String(), nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Endpoint returns the WebSocket URL the client dialed.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ServerInfo returns what the server reported in the handshake.
func (c *Client) ServerInfo() protocol.InitializeResult {
	return c.info
}

// ListTools fetches the server's advertised capabilities.
func (c *Client) ListTools(ctx context.Context) ([]registry.ToolDescriptor, error) {
	var result protocol.ListToolsResult
	if err := c.call(ctx, protocol.MethodListTools, nil, &result); err != nil {
		return nil, err
	}

	descs := make([]registry.ToolDescriptor, 0, len(result.Tools))
	for i, tool := range result.Tools {
		if tool.Name == "" {
			return nil, &ProtocolError{Method: protocol.MethodListTools, Err: fmt.Errorf("tool %d has no name", i)}
		}
		schema := tool.InputSchema
		if schema == nil {
			schema = registry.BaseToolSchema(map[string]any{}, nil)
		}
		if typ, ok := schema["type"]; ok && typ != "object" {
			return nil, &ProtocolError{Method: protocol.MethodListTools, Err: fmt.Errorf("tool %q schema type is %v, want object", tool.Name, typ)}
		}
		descs = append(descs, registry.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      schema,
		})
	}
	debugLog.Debugf("Server advertised %d tools", len(descs))
	return descs, nil
}

// Invoke runs one tool call. A failure reported by the tool itself comes
// back as a Result with IsError set and a nil error.
func (c *Client) Invoke(ctx context.Context, call task.ToolCall) (task.Result, error) {
	params := protocol.CallToolParams{Name: call.ToolName, Arguments: call.Arguments}

	run := func() (protocol.CallToolResult, error) {
		var result protocol.CallToolResult
		err := c.call(ctx, protocol.MethodCallTool, params, &result)
		return result, err
	}

	var (
		result protocol.CallToolResult
		err    error
	)
	if c.breaker == nil {
		result, err = run()
	} else {
		var out any
		out, err = c.breaker.Execute(func() (any, error) {
			return run()
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			debugLog.Warnf("Rejected %s: circuit open", call.ToolName)
			return task.Result{}, &CircuitOpenError{Err: err}
		}
		result, _ = out.(protocol.CallToolResult)
	}
	if err != nil {
		return task.Result{}, err
	}

	res := task.Result{Content: result.Text(), IsError: result.IsError}
	if result.IsError {
		res.Kind = task.KindTool
	}
	return res, nil
}

// Ping checks that the server still answers.
func (c *Client) Ping(ctx context.Context) error {
	var out struct{}
	return c.call(ctx, protocol.MethodPing, nil, &out)
}

// Close ends the session. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.state.Store(int32(StateClosed))
		if c.conn != nil {
			c.closeErr = c.conn.Close()
		}
		debugLog.Infof("Session %s closed", c.info.SessionID)
	})
	return c.closeErr
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateClosed:
		return ErrClosed
	case StateDisconnected:
		return &TransportError{Method: method, Err: errors.New("connection lost")}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.invokeTimeout)
	defer cancel()

	err := c.roundTrip(callCtx, c.opts.invokeTimeout, method, params, out)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
	return err
}

// roundTrip sends one request and reads frames until the matching response
// arrives. Frames answering earlier, abandoned requests are discarded.
// Callers hold c.mu (or own the client exclusively during Open).
func (c *Client) roundTrip(ctx context.Context, timeout time.Duration, method string, params, out any) error {
	id := c.nextID.Add(1)
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return &ProtocolError{Method: method, Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}
	defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := websocket.JSON.Send(c.conn, req); err != nil {
		return c.failure(ctx, method, timeout, err)
	}

	for {
		var frame []byte
		if err := websocket.Message.Receive(c.conn, &frame); err != nil {
			return c.failure(ctx, method, timeout, err)
		}

		var resp protocol.Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			return &ProtocolError{Method: method, Code: protocol.CodeParseError, Err: err}
		}
		if resp.ID != id {
			debugLog.Debugf("Discarding stale response %d while waiting for %d (%s)", resp.ID, id, method)
			continue
		}

		if err := resp.Decode(out); err != nil {
			var rpcErr *protocol.Error
			if errors.As(err, &rpcErr) {
				return &ProtocolError{Method: method, Code: rpcErr.Code, Err: errors.New(rpcErr.Message)}
			}
			return &ProtocolError{Method: method, Err: err}
		}
		return nil
	}
}

// failure maps a send/receive error to a timeout or a transport error. A
// transport error leaves the client disconnected.
func (c *Client) failure(ctx context.Context, method string, timeout time.Duration, err error) error {
	var netErr net.Error
	if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
		debugLog.Warnf("%s timed out after %s", method, timeout)
		return &TimeoutError{Method: method, Timeout: timeout}
	}
	if c.State() != StateClosed {
		c.state.Store(int32(StateDisconnected))
	}
	debugLog.Errorf("%s transport failure: %v", method, err)
	return &TransportError{Method: method, Err: err}
}
