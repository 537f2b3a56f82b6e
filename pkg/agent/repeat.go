package agent

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/entrhq/autopilot/pkg/task"
)

// DefaultRepeatWindow is how many identical failing steps trigger a hint.
const DefaultRepeatWindow = 3

const repeatHint = "Your last %d calls were the same %s call and every one failed. " +
	"Do not repeat it. Read the current state first, then try a different tool or different arguments."

// callSignature is the tool name plus a hash of its JSON arguments.
func callSignature(call task.ToolCall) string {
	raw, err := json.Marshal(call.Arguments)
	if err != nil {
		raw = []byte(fmt.Sprint(call.Arguments))
	}
	h := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%x", call.ToolName, h[:8])
}

// repeatedFailure reports whether the last window steps are the same call
// and all failed.
func repeatedFailure(steps []task.Step, window int) bool {
	if window < 2 || len(steps) < window {
		return false
	}
	recent := steps[len(steps)-window:]
	sig := callSignature(recent[0].Action)
	for _, s := range recent {
		if !s.Observation.IsError || callSignature(s.Action) != sig {
			return false
		}
	}
	return true
}

func repeatHintFor(steps []task.Step, window int) string {
	if !repeatedFailure(steps, window) {
		return ""
	}
	return fmt.Sprintf(repeatHint, window, steps[len(steps)-1].Action.ToolName)
}
