// Package registry exposes the tool server's advertised capabilities as an
// immutable, ordered lookup that the control loop validates calls against
// and the decision oracle chooses from.
package registry

import (
	"fmt"
	"maps"
	"slices"
)

// ToolDescriptor describes one tool the server can execute.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"inputSchema"`
}

// Clone deep-copies the descriptor so callers cannot reach into the registry.
func (d ToolDescriptor) Clone() ToolDescriptor {
	d.Schema = cloneValue(d.Schema).(map[string]any)
	return d
}

// Registry is a name to descriptor lookup that never changes after
// construction.
type Registry struct {
	order []string
	tools map[string]ToolDescriptor
}

// FromCapabilities builds a registry in the order the server advertised the
// tools. Two descriptors with the same name are rejected.
func FromCapabilities(descs []ToolDescriptor) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(descs)),
		tools: make(map[string]ToolDescriptor, len(descs)),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("tool descriptor at position %d has no name", len(r.order))
		}
		if _, exists := r.tools[d.Name]; exists {
			return nil, &DuplicateToolError{Name: d.Name}
		}
		r.order = append(r.order, d.Name)
		r.tools[d.Name] = d.Clone()
	}
	return r, nil
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (ToolDescriptor, error) {
	d, ok := r.tools[name]
	if !ok {
		return ToolDescriptor{}, &NotFoundError{Name: name, Available: slices.Clone(r.order)}
	}
	return d.Clone(), nil
}

// DescribeAll returns every descriptor in registration order.
func (r *Registry) DescribeAll() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Clone())
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// BaseToolSchema creates the JSON schema object for a tool with the given
// properties and required fields.
func BaseToolSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case nil:
		return map[string]any(nil)
	case map[string]any:
		if value == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(value))
		for k, inner := range value {
			out[k] = cloneNested(inner)
		}
		return out
	default:
		return v
	}
}

func cloneNested(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := maps.Clone(value)
		for k, inner := range out {
			out[k] = cloneNested(inner)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, inner := range value {
			out[i] = cloneNested(inner)
		}
		return out
	case []string:
		return slices.Clone(value)
	default:
		return v
	}
}
