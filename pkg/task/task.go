// Package task holds the data model of a single task run: the immutable
// Task, the append-only Step log and the State that the control loop owns
// for the lifetime of one run.
package task

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Task describes what a run is trying to achieve. It never changes after New.
type Task struct {
	ID         string    `json:"id"`
	Objective  string    `json:"objective"`
	CreatedAt  time.Time `json:"created_at"`
	StepBudget int       `json:"step_budget"`
}

// New creates a Task with a sortable ID.
func New(objective string, stepBudget int) (Task, error) {
	if strings.TrimSpace(objective) == "" {
		return Task{}, errors.New("objective is required")
	}
	if stepBudget <= 0 {
		return Task{}, fmt.Errorf("step budget must be positive, got %d", stepBudget)
	}
	return Task{
		ID:         ulid.Make().String(),
		Objective:  objective,
		CreatedAt:  time.Now(),
		StepBudget: stepBudget,
	}, nil
}

// ToolCall is a request to run one named tool with arguments.
type ToolCall struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Clone returns a copy whose arguments, including nested objects and
// arrays, can be mutated independently.
func (c ToolCall) Clone() ToolCall {
	out := ToolCall{ToolName: c.ToolName}
	if c.Arguments != nil {
		out.Arguments = cloneArgument(c.Arguments).(map[string]any)
	}
	return out
}

func cloneArgument(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := maps.Clone(value)
		for k, inner := range out {
			out[k] = cloneArgument(inner)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, inner := range value {
			out[i] = cloneArgument(inner)
		}
		return out
	case []string:
		return slices.Clone(value)
	default:
		return v
	}
}

// ErrorKind classifies a failed observation.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindProtocol    ErrorKind = "protocol"
	KindTimeout     ErrorKind = "timeout"
	KindTransport   ErrorKind = "transport"
	KindTool        ErrorKind = "tool"
	KindCircuitOpen ErrorKind = "circuit_open"
)

// Result is what came back from one dispatch. Kind is empty on success.
type Result struct {
	Content   string    `json:"content"`
	IsError   bool      `json:"is_error"`
	Retryable bool      `json:"retryable"`
	Kind      ErrorKind `json:"kind,omitempty"`
}

// ErrorResult builds a failed observation from an error.
func ErrorResult(kind ErrorKind, err error, retryable bool) Result {
	content := string(kind)
	if err != nil {
		content = err.Error()
	}
	return Result{
		Content:   content,
		IsError:   true,
		Retryable: retryable,
		Kind:      kind,
	}
}

// Step is one recorded cycle of decision, dispatch and observation.
type Step struct {
	Index       int       `json:"index"`
	Action      ToolCall  `json:"action"`
	Observation Result    `json:"observation"`
	Attempts    int       `json:"attempts"`
	Timestamp   time.Time `json:"timestamp"`
}
