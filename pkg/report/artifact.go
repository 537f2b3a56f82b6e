// Package report renders finished task runs: JSON and markdown artifacts on
// disk and live progress on the console.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/autopilot/pkg/agent"
	"github.com/entrhq/autopilot/pkg/task"
)

// Summary is the outcome of one run in reportable form.
type Summary struct {
	TaskID      string        `json:"task_id"`
	Task        string        `json:"task"`
	Status      task.Status   `json:"status"`
	AbortReason string        `json:"abort_reason,omitempty"`
	Result      string        `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Metrics     Metrics       `json:"metrics"`
	Steps       []task.Step   `json:"-"`
}

// Metrics counts what happened during a run.
type Metrics struct {
	StepBudget       int            `json:"step_budget"`
	Steps            int            `json:"steps"`
	FailedSteps      int            `json:"failed_steps"`
	ValidationErrors int            `json:"validation_errors"`
	Retries          int            `json:"retries"`
	ToolCalls        map[string]int `json:"tool_calls"`
}

// Summarize builds a Summary from a run's final state and error.
func Summarize(state *task.State, runErr error) *Summary {
	s := &Summary{
		TaskID:      state.Task.ID,
		Task:        state.Task.Objective,
		Status:      state.Status,
		AbortReason: state.AbortReason,
		Result:      state.Summary,
		Error:       state.Error,
		ErrorKind:   agent.ErrorKindOf(runErr),
		StartTime:   state.StartedAt,
		EndTime:     state.FinishedAt,
		Steps:       state.Steps,
		Metrics: Metrics{
			StepBudget: state.Task.StepBudget,
			Steps:      len(state.Steps),
			ToolCalls:  make(map[string]int),
		},
	}
	if s.EndTime.IsZero() {
		s.EndTime = time.Now()
	}
	s.Duration = s.EndTime.Sub(s.StartTime)
	if s.Error == "" && runErr != nil {
		s.Error = runErr.Error()
	}

	for _, step := range state.Steps {
		s.Metrics.ToolCalls[step.Action.ToolName]++
		if step.Attempts > 1 {
			s.Metrics.Retries += step.Attempts - 1
		}
		if step.Observation.IsError {
			s.Metrics.FailedSteps++
		}
		if step.Observation.Kind == task.KindValidation {
			s.Metrics.ValidationErrors++
		}
	}
	return s
}

// ArtifactWriter handles writing run artifacts
type ArtifactWriter struct {
	outputDir string
}

// NewArtifactWriter creates a writer rooted at outputDir.
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
	}
}

// RunDir is where artifacts for taskID are written.
func (w *ArtifactWriter) RunDir(taskID string) string {
	return filepath.Join(w.outputDir, taskID)
}

// WriteAll writes execution.json, steps.json and summary.md into the run
// directory and returns its path.
func (w *ArtifactWriter) WriteAll(summary *Summary) (string, error) {
	dir := w.RunDir(summary.TaskID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, "execution.json"), summary); err != nil {
		return "", fmt.Errorf("failed to write execution JSON: %w", err)
	}

	steps := summary.Steps
	if steps == nil {
		steps = []task.Step{}
	}
	if err := writeJSON(filepath.Join(dir, "steps.json"), steps); err != nil {
		return "", fmt.Errorf("failed to write steps JSON: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "summary.md"), []byte(Markdown(summary)), 0600); err != nil {
		return "", fmt.Errorf("failed to write summary markdown: %w", err)
	}

	return dir, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Markdown renders a human-readable summary.
func Markdown(summary *Summary) string {
	var md strings.Builder

	md.WriteString("# Autopilot Run Summary\n\n")
	fmt.Fprintf(&md, "**Task:** %s\n\n", summary.Task)
	fmt.Fprintf(&md, "**Run:** `%s`\n\n", summary.TaskID)
	fmt.Fprintf(&md, "**Status:** %s\n\n", statusLabel(summary))
	fmt.Fprintf(&md, "**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&md, "**Finished:** %s\n\n", summary.EndTime.Format(time.RFC3339))
	fmt.Fprintf(&md, "**Duration:** %s\n\n", summary.Duration.Round(time.Millisecond))

	md.WriteString("## Result\n\n")
	switch {
	case summary.Error != "":
		fmt.Fprintf(&md, "❌ **Error:** %s\n\n", summary.Error)
	case summary.Status == task.StatusAborted:
		fmt.Fprintf(&md, "⚠️ **Aborted:** %s\n\n", summary.AbortReason)
	default:
		fmt.Fprintf(&md, "✅ %s\n\n", orDash(summary.Result))
	}

	if len(summary.Steps) > 0 {
		md.WriteString("## Steps\n\n")
		md.WriteString("| # | Tool | Attempts | Outcome |\n")
		md.WriteString("|---|------|----------|---------|\n")
		for _, step := range summary.Steps {
			outcome := "ok"
			if step.Observation.IsError {
				outcome = fmt.Sprintf("%s: %s", step.Observation.Kind, oneLine(step.Observation.Content, 80))
			}
			fmt.Fprintf(&md, "| %d | `%s` | %d | %s |\n", step.Index, step.Action.ToolName, step.Attempts, outcome)
		}
		md.WriteString("\n")
	}

	md.WriteString("## Metrics\n\n")
	fmt.Fprintf(&md, "- **Steps:** %d / %d\n", summary.Metrics.Steps, summary.Metrics.StepBudget)
	fmt.Fprintf(&md, "- **Failed Steps:** %d\n", summary.Metrics.FailedSteps)
	fmt.Fprintf(&md, "- **Validation Errors:** %d\n", summary.Metrics.ValidationErrors)
	fmt.Fprintf(&md, "- **Retries:** %d\n", summary.Metrics.Retries)
	for _, name := range sortedKeys(summary.Metrics.ToolCalls) {
		fmt.Fprintf(&md, "- `%s`: %d\n", name, summary.Metrics.ToolCalls[name])
	}

	return md.String()
}

func statusLabel(s *Summary) string {
	if s.Status == task.StatusAborted && s.AbortReason != "" {
		return fmt.Sprintf("%s (%s)", s.Status, s.AbortReason)
	}
	return string(s.Status)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// oneLine flattens s for a table cell.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
