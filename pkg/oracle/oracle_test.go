package oracle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/task"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestDecision_Validate(t *testing.T) {
	assert.NoError(t, CallTool("navigate", nil).Validate())
	assert.NoError(t, Finish("done").Validate())
	assert.ErrorIs(t, Decision{}.Validate(), ErrEmptyDecision)
	assert.Error(t, Decision{Call: &task.ToolCall{ToolName: "x"}, Complete: true}.Validate())
	assert.Error(t, Decision{Call: &task.ToolCall{}}.Validate())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("bad request"), want: false},
		{name: "temporary", err: &Error{Op: "decide", Temporary: true, Err: errors.New("503")}, want: true},
		{name: "wrapped temporary", err: fmt.Errorf("turn 3: %w", &Error{Temporary: true}), want: true},
		{name: "permanent", err: &Error{Op: "decide", StatusCode: 401}, want: false},
		{name: "net timeout", err: timeoutErr{}, want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestTemporaryStatus(t *testing.T) {
	for _, code := range []int{408, 409, 429, 500, 503} {
		assert.True(t, TemporaryStatus(code), code)
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		assert.False(t, TemporaryStatus(code), code)
	}
}

func TestPromptBuilder(t *testing.T) {
	tools := []registry.ToolDescriptor{{
		Name:        "navigate",
		Description: "Open a URL",
		Schema: registry.BaseToolSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Absolute URL"},
		}, []string{"url"}),
	}}

	prompt := NewPromptBuilder().
		WithCustomInstructions("Stay on example.com").
		WithTools(tools).
		WithRemaining(4).
		WithHint("You repeated the same failing call.").
		Build()

	assert.Contains(t, prompt, "<custom_instructions>\nStay on example.com")
	assert.Contains(t, prompt, "- navigate: Open a URL")
	assert.Contains(t, prompt, "url (string, required) Absolute URL")
	assert.Contains(t, prompt, "You have 4 tool calls left.")
	assert.Contains(t, prompt, "<warning>\nYou repeated the same failing call.")

	bare := NewPromptBuilder().Build()
	assert.Equal(t, SystemPrompt, bare)
}

func TestFormatObservation(t *testing.T) {
	ok := task.Step{Action: task.ToolCall{ToolName: "read_page"}, Observation: task.Result{Content: "Hello"}}
	assert.Equal(t, "Tool 'read_page' result:\nHello", FormatObservation(ok))

	toolErr := task.Step{Action: task.ToolCall{ToolName: "click"}, Observation: task.Result{Content: "not found", IsError: true, Kind: task.KindTool}}
	assert.Equal(t, "Tool 'click' error:\nnot found", FormatObservation(toolErr))

	timeout := task.Step{Action: task.ToolCall{ToolName: "click"}, Observation: task.Result{Content: "no response", IsError: true, Kind: task.KindTimeout}}
	assert.Equal(t, "Tool 'click' timeout error:\nno response", FormatObservation(timeout))
}

func TestFormatCall(t *testing.T) {
	assert.Equal(t, `navigate({"url":"https://example.com"})`, FormatCall(task.ToolCall{ToolName: "navigate", Arguments: map[string]any{"url": "https://example.com"}}))
	assert.Equal(t, "read_page({})", FormatCall(task.ToolCall{ToolName: "read_page"}))
}
