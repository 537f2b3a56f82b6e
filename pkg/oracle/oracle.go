// Package oracle defines the contract between the control loop and whatever
// decides the next action: a language model, a scripted plan or a test
// double. An oracle is stateless; everything it may use is in the Request.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/task"
)

// Request is the read-only view an oracle decides from.
type Request struct {
	Objective string
	Steps     []task.Step
	Tools     []registry.ToolDescriptor
	// Hint is set when the loop noticed the run going in circles.
	Hint string
	// Remaining is how many Steps are left in the budget.
	Remaining int
}

// Decision is either a tool call or a completion signal.
type Decision struct {
	Call      *task.ToolCall
	Complete  bool
	Summary   string
	Reasoning string
}

// CallTool returns a decision to run name with args.
func CallTool(name string, args map[string]any) Decision {
	return Decision{Call: &task.ToolCall{ToolName: name, Arguments: args}}
}

// Finish returns a completion decision.
func Finish(summary string) Decision {
	return Decision{Complete: true, Summary: summary}
}

// ErrEmptyDecision is returned by Validate for a decision that neither
// calls a tool nor completes.
var ErrEmptyDecision = errors.New("decision has neither a tool call nor a completion")

// Validate checks that exactly one of Call and Complete is set.
func (d Decision) Validate() error {
	switch {
	case d.Call == nil && !d.Complete:
		return ErrEmptyDecision
	case d.Call != nil && d.Complete:
		return errors.New("decision has both a tool call and a completion")
	case d.Call != nil && d.Call.ToolName == "":
		return errors.New("decision calls a tool with no name")
	}
	return nil
}

// Oracle chooses the next action.
type Oracle interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, req Request) (Decision, error)

func (f Func) Decide(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// Error is a failure to obtain a decision.
type Error struct {
	Op         string
	StatusCode int
	Temporary  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("oracle %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("oracle %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error   { return e.Err }
func (e *Error) Retryable() bool { return e.Temporary }

// IsRetryable reports whether an oracle failure is transient. Errors that
// say so themselves win; otherwise network timeouts count as transient and
// everything else does not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// TemporaryStatus reports whether an HTTP status from a model API is worth
// retrying.
func TemporaryStatus(code int) bool {
	switch {
	case code == 408, code == 409, code == 429:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
