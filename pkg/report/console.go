package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/entrhq/autopilot/pkg/agent"
	"github.com/entrhq/autopilot/pkg/oracle"
	"github.com/entrhq/autopilot/pkg/task"
)

// Level represents console verbosity
type Level int

const (
	// LevelQuiet shows warnings, errors and the final summary
	LevelQuiet Level = iota
	// LevelNormal shows one line per step (default)
	LevelNormal
	// LevelVerbose adds oracle reasoning and call arguments
	LevelVerbose
	// LevelDebug adds state transitions
	LevelDebug
)

// ParseLevel converts a verbosity name to a Level. Unknown names map to
// LevelNormal.
func ParseLevel(level string) Level {
	switch level {
	case "quiet":
		return LevelQuiet
	case "verbose":
		return LevelVerbose
	case "debug":
		return LevelDebug
	default:
		return LevelNormal
	}
}

var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	amber      = lipgloss.Color("#FCD34D")
	errorRed   = lipgloss.Color("#F87171")
	mutedGray  = lipgloss.Color("#6B7280")
)

type styles struct {
	header  lipgloss.Style
	step    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{header: plain, step: plain, success: plain, warn: plain, err: plain, muted: plain}
	}
	return styles{
		header:  lipgloss.NewStyle().Bold(true),
		step:    lipgloss.NewStyle().Foreground(salmonPink),
		success: lipgloss.NewStyle().Foreground(mintGreen).Bold(true),
		warn:    lipgloss.NewStyle().Foreground(amber),
		err:     lipgloss.NewStyle().Foreground(errorRed).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(mutedGray),
	}
}

// Console prints run progress. It implements agent.Observer.
type Console struct {
	level  Level
	writer io.Writer
	style  styles
}

var _ agent.Observer = (*Console)(nil)

// NewConsole writes to stdout, with colour when stdout is a terminal.
func NewConsole(level Level) *Console {
	color := isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("NO_COLOR") == ""
	return NewConsoleWriter(level, os.Stdout, color)
}

// NewConsoleWriter writes to w.
func NewConsoleWriter(level Level, w io.Writer, color bool) *Console {
	return &Console{
		level:  level,
		writer: w,
		style:  newStyles(color),
	}
}

func (c *Console) printf(s lipgloss.Style, format string, args ...any) {
	fmt.Fprintln(c.writer, s.Render(fmt.Sprintf(format, args...)))
}

// Header prints a prominent header message
func (c *Console) Header(message string) {
	if c.level < LevelNormal {
		return
	}
	rule := strings.Repeat("=", 70)
	c.printf(c.style.header, "\n%s\n  %s\n%s", rule, message, rule)
}

// Infof prints an informational message
func (c *Console) Infof(format string, args ...any) {
	if c.level >= LevelNormal {
		c.printf(c.style.step, format, args...)
	}
}

// Warningf prints a warning message
func (c *Console) Warningf(format string, args ...any) {
	c.printf(c.style.warn, "⚠ Warning: "+format, args...)
}

// Errorf prints an error message
func (c *Console) Errorf(format string, args ...any) {
	c.printf(c.style.err, "✗ Error: "+format, args...)
}

func (c *Console) OnStateChange(from, to agent.Phase) {
	if c.level >= LevelDebug {
		c.printf(c.style.muted, "[DEBUG] %s -> %s", from, to)
	}
}

func (c *Console) OnDecision(index int, d oracle.Decision) {
	if c.level < LevelVerbose {
		return
	}
	if d.Reasoning != "" {
		c.printf(c.style.muted, "→ %s", oneLine(d.Reasoning, 200))
	}
	if d.Call != nil {
		args, _ := json.Marshal(d.Call.Arguments)
		c.printf(c.style.muted, "→ step %d: %s %s", index, d.Call.ToolName, oneLine(string(args), 200))
	}
}

func (c *Console) OnRetry(call task.ToolCall, attempt int, delay time.Duration, err error) {
	if c.level >= LevelNormal {
		c.printf(c.style.warn, "    ↻ %s attempt %d failed, retrying in %s: %v", call.ToolName, attempt, delay.Round(time.Millisecond), err)
	}
}

func (c *Console) OnStep(step task.Step) {
	if c.level < LevelNormal {
		return
	}
	if step.Observation.IsError {
		c.printf(c.style.err, "[%d] ✗ %s (%s): %s", step.Index, step.Action.ToolName, step.Observation.Kind, oneLine(step.Observation.Content, 160))
		return
	}
	c.printf(c.style.step, "[%d] ✓ %s", step.Index, step.Action.ToolName)
	if c.level >= LevelVerbose {
		c.printf(c.style.muted, "    %s", oneLine(step.Observation.Content, 200))
	}
}

// Summary prints the final run summary. It is shown at every level.
func (c *Console) Summary(s *Summary) {
	rule := strings.Repeat("=", 70)
	c.printf(c.style.header, "\n%s\n  RUN SUMMARY\n%s", rule, rule)

	switch s.Status {
	case task.StatusCompleted:
		c.printf(c.style.success, "  Status: ✓ COMPLETED")
	case task.StatusAborted:
		c.printf(c.style.warn, "  Status: ⚠ ABORTED (%s)", s.AbortReason)
	default:
		c.printf(c.style.err, "  Status: ✗ FAILED")
	}
	fmt.Fprintf(c.writer, "  Task: %s\n", s.Task)
	fmt.Fprintf(c.writer, "  Duration: %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(c.writer, "  Steps: %d/%d (failed %d, retries %d)\n",
		s.Metrics.Steps, s.Metrics.StepBudget, s.Metrics.FailedSteps, s.Metrics.Retries)
	if s.Result != "" {
		fmt.Fprintf(c.writer, "  Result: %s\n", s.Result)
	}
	if s.Error != "" {
		c.printf(c.style.err, "  Error (%s): %s", s.ErrorKind, s.Error)
	}
	c.printf(c.style.header, "%s", rule)
}
