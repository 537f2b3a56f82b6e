package agent

import (
	"time"

	"github.com/entrhq/autopilot/pkg/oracle"
	"github.com/entrhq/autopilot/pkg/task"
)

// Phase is where the loop is in its state machine.
type Phase string

const (
	PhaseRunning          Phase = "running"
	PhaseAwaitingDecision Phase = "awaiting_decision"
	PhaseDispatching      Phase = "dispatching"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
	PhaseAborted          Phase = "aborted"
)

// IsTerminal reports whether the loop has stopped.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseAborted
}

// Observer receives loop events. Callbacks run on the loop goroutine and
// must not block.
type Observer interface {
	OnStateChange(from, to Phase)
	OnDecision(index int, d oracle.Decision)
	OnRetry(call task.ToolCall, attempt int, delay time.Duration, err error)
	OnStep(step task.Step)
}

// NopObserver ignores every event. Embed it to implement only some hooks.
type NopObserver struct{}

func (NopObserver) OnStateChange(Phase, Phase) {}
func (NopObserver) OnDecision(int, oracle.Decision) {}
func (NopObserver) OnRetry(task.ToolCall, int, time.Duration, error) {}
func (NopObserver) OnStep(task.Step) {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnStateChange(from, to Phase) {
	for _, ob := range o {
		ob.OnStateChange(from, to)
	}
}

func (o Observers) OnDecision(index int, d oracle.Decision) {
	for _, ob := range o {
		ob.OnDecision(index, d)
	}
}

func (o Observers) OnRetry(call task.ToolCall, attempt int, delay time.Duration, err error) {
	for _, ob := range o {
		ob.OnRetry(call, attempt, delay, err)
	}
}

func (o Observers) OnStep(step task.Step) {
	for _, ob := range o {
		ob.OnStep(step)
	}
}
