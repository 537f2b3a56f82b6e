package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

// ListClickableTool lists visible clickable elements by text.
type ListClickableTool struct {
	browser *Browser
}

// NewListClickableTool creates a new list_clickable_elements tool.
func NewListClickableTool(b *Browser) *ListClickableTool {
	return &ListClickableTool{browser: b}
}

func (t *ListClickableTool) Name() string {
	return "list_clickable_elements"
}

func (t *ListClickableTool) Description() string {
	return fmt.Sprintf("List up to %d visible clickable elements (links, buttons, clickable cards) with their text. Optionally keep only elements near a section keyword. Click them with click_text.", MaxClickable)
}

func (t *ListClickableTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"section_keyword": map[string]any{
				"type":        "string",
				"description": "Only list elements whose text or parent text contains this keyword (case-insensitive)",
			},
		},
		nil,
	)
}

type listClickableInput struct {
	SectionKeyword string `json:"section_keyword"`
}

func (t *ListClickableTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input listClickableInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}

	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}
	elements := t.browser.listClickable(ctx, page, input.SectionKeyword)
	if len(elements) == 0 {
		return "No visible clickable elements found. Try scrolling, waiting for the page, or a different keyword.", nil
	}
	return jsonResult(fmt.Sprintf("Found %d clickable elements. Use click_text(text) to click one.", len(elements)), elements)
}
