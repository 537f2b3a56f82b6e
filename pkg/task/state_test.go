package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		objective string
		budget    int
		wantErr   bool
	}{
		{name: "valid", objective: "open example.com", budget: 5},
		{name: "empty objective", objective: "  ", budget: 5, wantErr: true},
		{name: "zero budget", objective: "x", budget: 0, wantErr: true},
		{name: "negative budget", objective: "x", budget: -3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.objective, tt.budget)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, tt.objective, got.Objective)
			assert.Equal(t, tt.budget, got.StepBudget)
			assert.False(t, got.CreatedAt.IsZero())
		})
	}
}

func TestState_AppendStepIndicesAreContiguous(t *testing.T) {
	tk, err := New("objective", 3)
	require.NoError(t, err)
	st := NewState(tk)

	for i := 0; i < 3; i++ {
		step, err := st.AppendStep(ToolCall{ToolName: "noop"}, Result{Content: "ok"}, 1)
		require.NoError(t, err)
		assert.Equal(t, i, step.Index)
	}
	assert.True(t, st.BudgetReached())
	assert.Equal(t, 0, st.Remaining())

	_, err = st.AppendStep(ToolCall{ToolName: "noop"}, Result{}, 1)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Len(t, st.Steps, 3)
}

func TestState_AppendStepCopiesArguments(t *testing.T) {
	tk, _ := New("objective", 2)
	st := NewState(tk)
	args := map[string]any{"url": "https://example.com"}

	_, err := st.AppendStep(ToolCall{ToolName: "navigate", Arguments: args}, Result{}, -1)
	require.NoError(t, err)
	args["url"] = "mutated"

	assert.Equal(t, "https://example.com", st.Steps[0].Action.Arguments["url"])
	assert.Equal(t, 0, st.Steps[0].Attempts, "negative attempts clamp to zero")
}

func TestToolCall_CloneIsDeep(t *testing.T) {
	call := ToolCall{ToolName: "fill_form", Arguments: map[string]any{
		"fields": map[string]any{"email": "a@example.com"},
		"steps":  []any{"open", map[string]any{"click": "#go"}},
		"tags":   []string{"login"},
	}}

	clone := call.Clone()
	call.Arguments["fields"].(map[string]any)["email"] = "mutated"
	call.Arguments["steps"].([]any)[0] = "mutated"
	call.Arguments["steps"].([]any)[1].(map[string]any)["click"] = "mutated"
	call.Arguments["tags"].([]string)[0] = "mutated"

	assert.Equal(t, map[string]any{
		"fields": map[string]any{"email": "a@example.com"},
		"steps":  []any{"open", map[string]any{"click": "#go"}},
		"tags":   []string{"login"},
	}, clone.Arguments)
	assert.Nil(t, ToolCall{ToolName: "read_page"}.Clone().Arguments)
}

func TestState_TerminalTransitions(t *testing.T) {
	tk, _ := New("objective", 2)

	st := NewState(tk)
	require.NoError(t, st.Complete("done"))
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, "done", st.Summary)
	assert.False(t, st.FinishedAt.IsZero())

	_, err := st.AppendStep(ToolCall{ToolName: "noop"}, Result{}, 1)
	assert.ErrorIs(t, err, ErrTerminal)
	assert.ErrorIs(t, st.Abort(AbortReasonBudgetExceeded), ErrTerminal)

	st = NewState(tk)
	require.NoError(t, st.Fail(errors.New("boom")))
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "boom", st.Error)

	st = NewState(tk)
	require.NoError(t, st.Abort(AbortReasonBudgetExceeded))
	assert.Equal(t, StatusAborted, st.Status)
	assert.Equal(t, AbortReasonBudgetExceeded, st.AbortReason)
}

func TestState_SnapshotIsIsolated(t *testing.T) {
	tk, _ := New("objective", 4)
	st := NewState(tk)
	_, err := st.AppendStep(ToolCall{ToolName: "click", Arguments: map[string]any{"selector": "#a"}}, Result{Content: "ok"}, 1)
	require.NoError(t, err)

	view := st.Snapshot()
	view.Steps[0].Action.Arguments["selector"] = "#b"
	view.Steps = append(view.Steps, Step{Index: 9})

	assert.Equal(t, "#a", st.Steps[0].Action.Arguments["selector"])
	assert.Len(t, st.Steps, 1)
	assert.Equal(t, "objective", view.Objective)
	assert.Equal(t, 4, view.StepBudget)
}

func TestErrorResult(t *testing.T) {
	r := ErrorResult(KindTimeout, errors.New("deadline"), true)
	assert.True(t, r.IsError)
	assert.True(t, r.Retryable)
	assert.Equal(t, KindTimeout, r.Kind)
	assert.Equal(t, "deadline", r.Content)

	r = ErrorResult(KindProtocol, nil, false)
	assert.Equal(t, "protocol", r.Content)
}
