package task

import (
	"errors"
	"fmt"
	"time"
)

// Status is the terminal or in-flight status of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// IsTerminal reports whether no further steps may be appended.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// AbortReasonBudgetExceeded is recorded when the step budget runs out.
const AbortReasonBudgetExceeded = "budget_exceeded"

var (
	// ErrBudgetExhausted is returned by AppendStep once StepBudget steps exist.
	ErrBudgetExhausted = errors.New("step budget exhausted")
	// ErrTerminal is returned when mutating a finished run.
	ErrTerminal = errors.New("task run already finished")
)

// State is the running history of one task. It is not safe for concurrent
// use; a single control loop owns it.
type State struct {
	Task        Task      `json:"task"`
	Status      Status    `json:"status"`
	AbortReason string    `json:"abort_reason,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Error       string    `json:"error,omitempty"`
	Steps       []Step    `json:"steps"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// NewState starts the history of t.
func NewState(t Task) *State {
	return &State{
		Task:      t,
		Status:    StatusRunning,
		Steps:     make([]Step, 0, min(t.StepBudget, 64)),
		StartedAt: time.Now(),
	}
}

// AppendStep records the next step. The index and timestamp are assigned
// here so callers cannot create gaps. attempts is the number of dispatches
// made; zero means the call was rejected before reaching the server.
func (s *State) AppendStep(action ToolCall, observation Result, attempts int) (Step, error) {
	if s.Status.IsTerminal() {
		return Step{}, ErrTerminal
	}
	if len(s.Steps) >= s.Task.StepBudget {
		return Step{}, ErrBudgetExhausted
	}
	if attempts < 0 {
		attempts = 0
	}
	step := Step{
		Index:       len(s.Steps),
		Action:      action.Clone(),
		Observation: observation,
		Attempts:    attempts,
		Timestamp:   time.Now(),
	}
	s.Steps = append(s.Steps, step)
	return step, nil
}

// BudgetReached reports whether the last appended step used the final slot.
func (s *State) BudgetReached() bool {
	n := len(s.Steps)
	return n > 0 && s.Steps[n-1].Index+1 >= s.Task.StepBudget
}

// Complete marks the run as finished by the oracle.
func (s *State) Complete(summary string) error {
	if err := s.finish(StatusCompleted); err != nil {
		return err
	}
	s.Summary = summary
	return nil
}

// Abort marks the run as stopped by policy.
func (s *State) Abort(reason string) error {
	if err := s.finish(StatusAborted); err != nil {
		return err
	}
	s.AbortReason = reason
	return nil
}

// Fail marks the run as failed with cause.
func (s *State) Fail(cause error) error {
	if err := s.finish(StatusFailed); err != nil {
		return err
	}
	if cause != nil {
		s.Error = cause.Error()
	}
	return nil
}

func (s *State) finish(status Status) error {
	if s.Status.IsTerminal() {
		return fmt.Errorf("%w: status %s", ErrTerminal, s.Status)
	}
	s.Status = status
	s.FinishedAt = time.Now()
	return nil
}

// View is the read-only projection handed to the decision oracle.
type View struct {
	Objective  string
	StepBudget int
	Steps      []Step
}

// Snapshot copies the history so the oracle cannot mutate the log.
func (s *State) Snapshot() View {
	steps := make([]Step, len(s.Steps))
	for i, step := range s.Steps {
		steps[i] = step
		steps[i].Action = step.Action.Clone()
	}
	return View{
		Objective:  s.Task.Objective,
		StepBudget: s.Task.StepBudget,
		Steps:      steps,
	}
}

// Remaining is the number of steps still available.
func (s *State) Remaining() int {
	return s.Task.StepBudget - len(s.Steps)
}
