package oracle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/task"
)

// SystemPrompt is the base instruction set for model-backed oracles.
const SystemPrompt = `You are an automation agent. You complete the user's objective by calling the tools you are given, one call per turn.

After every call you will see the tool's result. Results marked as errors tell you the call did not work; read them and adjust.

<resilience>
- Before acting on a new page or screen, read it first (for example read_page or list_clickable_elements).
- If a call fails, try a different approach. Do not repeat the same failing call with the same arguments.
- If you cannot find what you need, scroll down and read again; details and logs are usually at the bottom.
- Prefer exact text taken from a previous result over guessed selectors.
</resilience>

<completion>
When the objective is met, stop calling tools and reply with a clear, detailed summary of what you found or did.
If the objective cannot be met, stop and explain why.
</completion>`

// PromptBuilder assembles the system prompt for one decision.
type PromptBuilder struct {
	tools              []registry.ToolDescriptor
	customInstructions string
	hint               string
	remaining          int
}

// NewPromptBuilder creates a builder with the base prompt only.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{remaining: -1}
}

// WithTools lists the tools in the prompt. Model APIs with native function
// calling also receive them out of band; listing them helps weaker models.
func (pb *PromptBuilder) WithTools(tools []registry.ToolDescriptor) *PromptBuilder {
	pb.tools = tools
	return pb
}

// WithCustomInstructions adds operator-provided instructions.
func (pb *PromptBuilder) WithCustomInstructions(instructions string) *PromptBuilder {
	pb.customInstructions = instructions
	return pb
}

// WithHint adds a corrective note from the control loop.
func (pb *PromptBuilder) WithHint(hint string) *PromptBuilder {
	pb.hint = hint
	return pb
}

// WithRemaining tells the model how many steps it has left.
func (pb *PromptBuilder) WithRemaining(n int) *PromptBuilder {
	pb.remaining = n
	return pb
}

// Build constructs the complete system prompt.
func (pb *PromptBuilder) Build() string {
	var b strings.Builder

	if pb.customInstructions != "" {
		b.WriteString("<custom_instructions>\n")
		b.WriteString(pb.customInstructions)
		b.WriteString("\n</custom_instructions>\n\n")
	}

	b.WriteString(SystemPrompt)
	b.WriteString("\n\n")

	if len(pb.tools) > 0 {
		b.WriteString("<available_tools>\n")
		b.WriteString(FormatTools(pb.tools))
		b.WriteString("</available_tools>\n\n")
	}

	if pb.remaining >= 0 {
		fmt.Fprintf(&b, "<budget>You have %d tool calls left.</budget>\n\n", pb.remaining)
	}

	if pb.hint != "" {
		b.WriteString("<warning>\n")
		b.WriteString(pb.hint)
		b.WriteString("\n</warning>\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatTools renders tool descriptors as a compact list.
func FormatTools(tools []registry.ToolDescriptor) string {
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		props, _ := t.Schema["properties"].(map[string]any)
		if len(props) == 0 {
			continue
		}
		required := map[string]bool{}
		switch req := t.Schema["required"].(type) {
		case []string:
			for _, r := range req {
				required[r] = true
			}
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					required[s] = true
				}
			}
		}
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			prop, _ := props[name].(map[string]any)
			typ, _ := prop["type"].(string)
			desc, _ := prop["description"].(string)
			marker := ""
			if required[name] {
				marker = ", required"
			}
			fmt.Fprintf(&b, "    %s (%s%s) %s\n", name, typ, marker, desc)
		}
	}
	return b.String()
}

// FormatCall renders a tool call as name(json-args).
func FormatCall(call task.ToolCall) string {
	args, err := json.Marshal(call.Arguments)
	if err != nil || call.Arguments == nil {
		args = []byte("{}")
	}
	return fmt.Sprintf("%s(%s)", call.ToolName, args)
}

// FormatObservation renders what a step observed, the way the model sees it.
func FormatObservation(step task.Step) string {
	if step.Observation.IsError {
		label := "error"
		if step.Observation.Kind != "" && step.Observation.Kind != task.KindTool {
			label = string(step.Observation.Kind) + " error"
		}
		return fmt.Sprintf("Tool '%s' %s:\n%s", step.Action.ToolName, label, step.Observation.Content)
	}
	return fmt.Sprintf("Tool '%s' result:\n%s", step.Action.ToolName, step.Observation.Content)
}

// ObjectiveMessage is the first user turn of every conversation.
func ObjectiveMessage(objective string) string {
	return "<objective>\n" + objective + "\n</objective>"
}
