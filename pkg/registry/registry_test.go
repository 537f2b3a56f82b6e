package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autopilot/pkg/task"
)

func browserTools() []ToolDescriptor {
	return []ToolDescriptor{
		{
			Name:        "navigate",
			Description: "Open a URL",
			Schema: BaseToolSchema(map[string]any{
				"url": map[string]any{"type": "string"},
			}, []string{"url"}),
		},
		{
			Name:        "read_page",
			Description: "Return the cleaned page content",
			Schema:      BaseToolSchema(map[string]any{}, nil),
		},
		{
			Name:        "scroll_page",
			Description: "Scroll the page",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"direction": map[string]any{"type": "string", "enum": []any{"up", "down"}},
					"amount":    map[string]any{"type": "integer"},
					"step":      map[string]any{"type": "integer", "enum": []any{float64(100), float64(500)}},
					"anchor":    map[string]any{"type": "array", "enum": []any{[]any{float64(0), float64(0)}, []any{float64(1), float64(1)}}},
					"margin":    map[string]any{"type": "object", "enum": []any{map[string]any{"top": float64(10)}}},
				},
				"required":             []any{"direction"},
				"additionalProperties": false,
			},
		},
	}
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := FromCapabilities(browserTools())
	require.NoError(t, err)
	return r
}

func TestFromCapabilities_Duplicate(t *testing.T) {
	descs := append(browserTools(), ToolDescriptor{Name: "navigate"})

	_, err := FromCapabilities(descs)

	var dup *DuplicateToolError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "navigate", dup.Name)
}

func TestFromCapabilities_EmptyName(t *testing.T) {
	_, err := FromCapabilities([]ToolDescriptor{{Description: "nameless"}})
	assert.Error(t, err)
}

func TestFromCapabilities_Empty(t *testing.T) {
	r, err := FromCapabilities(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.DescribeAll())
}

func TestResolve(t *testing.T) {
	r := newRegistry(t)

	d, err := r.Resolve("read_page")
	require.NoError(t, err)
	assert.Equal(t, "read_page", d.Name)

	_, err = r.Resolve("teleport")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "teleport", nf.Name)
	assert.Equal(t, []string{"navigate", "read_page", "scroll_page"}, nf.Available)
}

func TestDescribeAll_StableAndIdempotent(t *testing.T) {
	r := newRegistry(t)

	first := r.DescribeAll()
	second := r.DescribeAll()

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"navigate", "read_page", "scroll_page"}, r.Names())
}

func TestDescribeAll_ReturnsCopies(t *testing.T) {
	r := newRegistry(t)

	descs := r.DescribeAll()
	descs[0].Schema["properties"].(map[string]any)["url"] = "tampered"
	descs[0].Description = "tampered"

	fresh, err := r.Resolve("navigate")
	require.NoError(t, err)
	assert.Equal(t, "Open a URL", fresh.Description)
	assert.Equal(t, map[string]any{"type": "string"}, fresh.Schema["properties"].(map[string]any)["url"])
}

func TestValidate(t *testing.T) {
	r := newRegistry(t)

	tests := []struct {
		name     string
		call     task.ToolCall
		wantErr  bool
		argument string
	}{
		{
			name: "valid navigate",
			call: task.ToolCall{ToolName: "navigate", Arguments: map[string]any{"url": "https://example.com"}},
		},
		{
			name:     "missing required",
			call:     task.ToolCall{ToolName: "navigate", Arguments: map[string]any{}},
			wantErr:  true,
			argument: "url",
		},
		{
			name:     "wrong type",
			call:     task.ToolCall{ToolName: "navigate", Arguments: map[string]any{"url": 42}},
			wantErr:  true,
			argument: "url",
		},
		{
			name: "extra key allowed by default",
			call: task.ToolCall{ToolName: "navigate", Arguments: map[string]any{"url": "x", "wait": true}},
		},
		{
			name:     "extra key rejected",
			call:     task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "down", "speed": 3}},
			wantErr:  true,
			argument: "speed",
		},
		{
			name: "json integer",
			call: task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "down", "amount": float64(500)}},
		},
		{
			name:     "fractional integer",
			call:     task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "down", "amount": 1.5}},
			wantErr:  true,
			argument: "amount",
		},
		{
			name:     "enum mismatch",
			call:     task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "sideways"}},
			wantErr:  true,
			argument: "direction",
		},
		{
			name: "int matches float enum",
			call: task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "down", "step": 500}},
		},
		{
			name:     "int outside float enum",
			call:     task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "down", "step": 250}},
			wantErr:  true,
			argument: "step",
		},
		{
			name: "array enum",
			call: task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "down", "anchor": []any{1, 1}}},
		},
		{
			name:     "array enum mismatch",
			call:     task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "down", "anchor": []any{0, 1}}},
			wantErr:  true,
			argument: "anchor",
		},
		{
			name: "object enum",
			call: task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "down", "margin": map[string]any{"top": 10}}},
		},
		{
			name:     "object enum mismatch",
			call:     task.ToolCall{ToolName: "scroll_page", Arguments: map[string]any{"direction": "down", "margin": map[string]any{"top": 10, "left": 5}}},
			wantErr:  true,
			argument: "margin",
		},
		{
			name: "nil arguments for tool without required fields",
			call: task.ToolCall{ToolName: "read_page"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.call)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.call.ToolName, ve.Tool)
			assert.Equal(t, tt.argument, ve.Argument)
		})
	}
}

func TestValidate_UnknownTool(t *testing.T) {
	r := newRegistry(t)

	err := r.Validate(task.ToolCall{ToolName: "teleport"})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestFilter(t *testing.T) {
	descs := browserTools()

	all, err := Filter(descs, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyRead, err := Filter(descs, []string{"read_*", "navigate"}, []string{"navigate"})
	require.NoError(t, err)
	require.Len(t, onlyRead, 1)
	assert.Equal(t, "read_page", onlyRead[0].Name)

	_, err = Filter(descs, []string{"[unclosed"}, nil)
	assert.Error(t, err)
}
