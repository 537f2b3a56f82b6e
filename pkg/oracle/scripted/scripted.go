// Package scripted provides a deterministic oracle that replays a fixed
// plan of tool calls. It drives demos and smoke tests without a model.
package scripted

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/autopilot/pkg/oracle"
	"github.com/entrhq/autopilot/pkg/task"
)

// Action is one planned call.
type Action struct {
	Tool      string         `yaml:"tool" json:"tool"`
	Arguments map[string]any `yaml:"arguments,omitempty" json:"arguments,omitempty"`
}

// Plan is a sequence of calls followed by a completion.
type Plan struct {
	Actions []Action `yaml:"actions" json:"actions"`
	Summary string   `yaml:"summary,omitempty" json:"summary,omitempty"`
	// StopOnError completes early when the previous step failed.
	StopOnError bool `yaml:"stop_on_error,omitempty" json:"stop_on_error,omitempty"`
	// Cycle repeats the actions forever instead of completing.
	Cycle bool `yaml:"cycle,omitempty" json:"cycle,omitempty"`
}

// LoadPlan reads a YAML plan file.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan: %w", err)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Validate rejects plans that cannot run.
func (p Plan) Validate() error {
	if p.Cycle && len(p.Actions) == 0 {
		return errors.New("a cycling plan needs at least one action")
	}
	for i, a := range p.Actions {
		if strings.TrimSpace(a.Tool) == "" {
			return fmt.Errorf("action %d has no tool", i)
		}
	}
	return nil
}

// Oracle replays a Plan. The position in the plan is derived from the
// number of recorded steps, so the oracle itself holds no run state.
type Oracle struct {
	plan Plan
}

// New returns an oracle for plan.
func New(plan Plan) (*Oracle, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &Oracle{plan: plan}, nil
}

// Decide returns the next planned call, or a completion once the plan is
// exhausted.
func (o *Oracle) Decide(ctx context.Context, req oracle.Request) (oracle.Decision, error) {
	if err := ctx.Err(); err != nil {
		return oracle.Decision{}, err
	}

	n := len(req.Steps)
	if o.plan.StopOnError && n > 0 {
		last := req.Steps[n-1]
		if last.Observation.IsError {
			return oracle.Finish(fmt.Sprintf("stopped after %s failed: %s", last.Action.ToolName, last.Observation.Content)), nil
		}
	}

	if o.plan.Cycle {
		n %= len(o.plan.Actions)
	}
	if n >= len(o.plan.Actions) {
		return oracle.Finish(o.summary(req)), nil
	}

	a := o.plan.Actions[n]
	call := task.ToolCall{ToolName: a.Tool, Arguments: a.Arguments}.Clone()
	return oracle.Decision{
		Call:      &call,
		Reasoning: fmt.Sprintf("plan step %d of %d", n+1, len(o.plan.Actions)),
	}, nil
}

func (o *Oracle) summary(req oracle.Request) string {
	if o.plan.Summary != "" {
		return o.plan.Summary
	}
	if len(req.Steps) == 0 {
		return "plan had no actions"
	}
	last := req.Steps[len(req.Steps)-1]
	return fmt.Sprintf("completed %d planned actions; last result: %s", len(req.Steps), last.Observation.Content)
}
