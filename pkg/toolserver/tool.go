package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one capability a server exposes.
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "navigate")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's arguments
	Schema() map[string]any

	// Execute runs the tool with the raw JSON arguments object. A returned
	// error is reported to the client as a tool failure, not a protocol
	// error.
	Execute(ctx context.Context, arguments json.RawMessage) (string, error)
}

// Func adapts a function to the Tool interface.
type Func struct {
	ToolName        string
	ToolDescription string
	InputSchema     map[string]any
	Fn              func(ctx context.Context, arguments json.RawMessage) (string, error)
}

func (f *Func) Name() string           { return f.ToolName }
func (f *Func) Description() string    { return f.ToolDescription }
func (f *Func) Schema() map[string]any { return f.InputSchema }

func (f *Func) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	if f.Fn == nil {
		return "", fmt.Errorf("tool %s has no implementation", f.ToolName)
	}
	return f.Fn(ctx, arguments)
}

// DecodeArguments unmarshals raw into v, treating empty input as {}.
func DecodeArguments(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
