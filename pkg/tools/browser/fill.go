package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

// FillTool fills form inputs.
type FillTool struct {
	browser *Browser
}

// NewFillTool creates a new fill tool.
func NewFillTool(b *Browser) *FillTool {
	return &FillTool{browser: b}
}

func (t *FillTool) Name() string {
	return "fill"
}

func (t *FillTool) Description() string {
	return "Fill a form input field. Works with text inputs, textareas, and other fillable elements. Existing content is replaced."
}

func (t *FillTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector for the input element to fill (e.g., 'input[name=\"email\"]', '#password', 'textarea.comment')",
			},
			"value": map[string]any{
				"type":        "string",
				"description": "Text value to fill into the input field",
			},
			"submit": map[string]any{
				"type":        "boolean",
				"description": "Press Enter after filling",
			},
		},
		[]string{"selector", "value"},
	)
}

type fillInput struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
	Submit   bool   `json:"submit"`
}

func (t *FillTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input fillInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	if input.Selector == "" {
		return "", fmt.Errorf("selector is required")
	}

	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}
	timeout := playwright.Float(ms(t.browser.opts.ActionTimeout))
	if err := page.Fill(input.Selector, input.Value, playwright.PageFillOptions{Timeout: timeout}); err != nil {
		return "", fmt.Errorf("fill failed: %w", err)
	}
	if input.Submit {
		if err := page.Press(input.Selector, "Enter", playwright.PagePressOptions{Timeout: timeout}); err != nil {
			return "", fmt.Errorf("submit failed: %w", err)
		}
		t.browser.settle(ctx)
	}

	// Never echo the value: it may be a password.
	result := fmt.Sprintf("Filled %s with %d characters", input.Selector, len(input.Value))
	if input.Submit {
		result += fmt.Sprintf(" and submitted\nCurrent URL: %s", page.URL())
	}
	return result, nil
}
