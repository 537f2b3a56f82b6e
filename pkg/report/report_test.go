package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autopilot/pkg/agent"
	"github.com/entrhq/autopilot/pkg/oracle"
	"github.com/entrhq/autopilot/pkg/task"
)

func sampleState(t *testing.T) *task.State {
	t.Helper()
	tk, err := task.New("find the docs link", 5)
	require.NoError(t, err)
	st := task.NewState(tk)

	_, err = st.AppendStep(task.ToolCall{ToolName: "navigate", Arguments: map[string]any{"url": "https://example.com"}},
		task.Result{Content: "Navigated"}, 3)
	require.NoError(t, err)
	_, err = st.AppendStep(task.ToolCall{ToolName: "click"},
		task.ErrorResult(task.KindValidation, errors.New("missing selector"), false), 0)
	require.NoError(t, err)
	_, err = st.AppendStep(task.ToolCall{ToolName: "click", Arguments: map[string]any{"selector": "a|docs"}},
		task.Result{Content: "Clicked"}, 1)
	require.NoError(t, err)
	require.NoError(t, st.Complete("docs are at /docs"))
	return st
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleState(t), nil)

	assert.Equal(t, task.StatusCompleted, s.Status)
	assert.Equal(t, "docs are at /docs", s.Result)
	assert.Empty(t, s.ErrorKind)
	assert.Equal(t, 3, s.Metrics.Steps)
	assert.Equal(t, 5, s.Metrics.StepBudget)
	assert.Equal(t, 1, s.Metrics.FailedSteps)
	assert.Equal(t, 1, s.Metrics.ValidationErrors)
	assert.Equal(t, 2, s.Metrics.Retries)
	assert.Equal(t, map[string]int{"navigate": 1, "click": 2}, s.Metrics.ToolCalls)
	assert.GreaterOrEqual(t, s.Duration, time.Duration(0))
}

func TestSummarize_RunError(t *testing.T) {
	tk, err := task.New("x", 3)
	require.NoError(t, err)
	st := task.NewState(tk)
	runErr := errors.New("boom")

	s := Summarize(st, runErr)
	assert.Equal(t, "boom", s.Error)
	assert.Equal(t, "setup", s.ErrorKind)
	assert.False(t, s.EndTime.IsZero())
}

func TestArtifactWriter_WriteAll(t *testing.T) {
	s := Summarize(sampleState(t), nil)
	w := NewArtifactWriter(t.TempDir())

	dir, err := w.WriteAll(s)
	require.NoError(t, err)
	assert.Equal(t, w.RunDir(s.TaskID), dir)

	data, err := os.ReadFile(filepath.Join(dir, "execution.json"))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "completed", decoded["status"])
	assert.NotContains(t, decoded, "Steps")

	data, err = os.ReadFile(filepath.Join(dir, "steps.json"))
	require.NoError(t, err)
	var steps []task.Step
	require.NoError(t, json.Unmarshal(data, &steps))
	require.Len(t, steps, 3)
	assert.Equal(t, 3, steps[0].Attempts)
	assert.Equal(t, task.KindValidation, steps[1].Observation.Kind)

	md, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Autopilot Run Summary")
	assert.Contains(t, string(md), "| 1 | `click` | 0 | validation: missing selector |")
	assert.Contains(t, string(md), "- **Retries:** 2")
}

func TestMarkdown_Aborted(t *testing.T) {
	tk, err := task.New("loop forever", 1)
	require.NoError(t, err)
	st := task.NewState(tk)
	_, err = st.AppendStep(task.ToolCall{ToolName: "scroll_page"}, task.Result{Content: "ok"}, 1)
	require.NoError(t, err)
	require.NoError(t, st.Abort(task.AbortReasonBudgetExceeded))

	md := Markdown(Summarize(st, nil))
	assert.Contains(t, md, "**Status:** aborted (budget_exceeded)")
	assert.Contains(t, md, "**Aborted:** budget_exceeded")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelQuiet, ParseLevel("quiet"))
	assert.Equal(t, LevelNormal, ParseLevel("normal"))
	assert.Equal(t, LevelVerbose, ParseLevel("verbose"))
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelNormal, ParseLevel("unknown"))
}

func TestConsole_Levels(t *testing.T) {
	ok := task.Step{Index: 0, Action: task.ToolCall{ToolName: "navigate"}, Observation: task.Result{Content: "Navigated to page"}}
	bad := task.Step{Index: 1, Action: task.ToolCall{ToolName: "click"}, Observation: task.ErrorResult(task.KindTimeout, errors.New("timed out"), false)}

	tests := []struct {
		name    string
		level   Level
		want    []string
		notWant []string
	}{
		{name: "quiet", level: LevelQuiet, notWant: []string{"navigate", "click", "->"}},
		{name: "normal", level: LevelNormal, want: []string{"[0] ✓ navigate", "[1] ✗ click (timeout): timed out", "↻ click attempt 1"}, notWant: []string{"Navigated to page", "->"}},
		{name: "verbose", level: LevelVerbose, want: []string{"Navigated to page", "→ look first", "→ step 0: navigate"}, notWant: []string{"->"}},
		{name: "debug", level: LevelDebug, want: []string{"[DEBUG] running -> awaiting_decision"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c := NewConsoleWriter(tt.level, &buf, false)

			c.OnStateChange(agent.PhaseRunning, agent.PhaseAwaitingDecision)
			d := oracle.CallTool("navigate", map[string]any{"url": "https://example.com"})
			d.Reasoning = "look first"
			c.OnDecision(0, d)
			c.OnStep(ok)
			c.OnRetry(bad.Action, 1, 50*time.Millisecond, errors.New("timed out"))
			c.OnStep(bad)

			out := buf.String()
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out, w)
			}
		})
	}
}

func TestConsole_Summary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(LevelQuiet, &buf, false)

	c.Summary(Summarize(sampleState(t), nil))
	out := buf.String()
	assert.Contains(t, out, "RUN SUMMARY")
	assert.Contains(t, out, "Status: ✓ COMPLETED")
	assert.Contains(t, out, "Steps: 3/5 (failed 1, retries 2)")
	assert.Contains(t, out, "Result: docs are at /docs")
}
