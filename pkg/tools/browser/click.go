package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

// ClickTool clicks an element by CSS selector.
type ClickTool struct {
	browser *Browser
}

// NewClickTool creates a new click tool.
func NewClickTool(b *Browser) *ClickTool {
	return &ClickTool{browser: b}
}

func (t *ClickTool) Name() string {
	return "click"
}

func (t *ClickTool) Description() string {
	return "Click an element using a CSS selector. Supports double clicks and different mouse buttons. Prefer click_text when you know the visible text."
}

func (t *ClickTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector for the element to click (e.g., 'button.submit', '#login-btn', 'a[href=\"/about\"]')",
			},
			"button": map[string]any{
				"type":        "string",
				"enum":        []any{"left", "right", "middle"},
				"description": "Mouse button to use (default left)",
			},
			"click_count": map[string]any{
				"type":        "integer",
				"description": "Number of clicks: 1 (default) for single click, 2 for double click",
			},
		},
		[]string{"selector"},
	)
}

type clickInput struct {
	Selector   string `json:"selector"`
	Button     string `json:"button"`
	ClickCount *int   `json:"click_count"`
}

func (t *ClickTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input clickInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	if input.Selector == "" {
		return "", fmt.Errorf("selector is required")
	}

	count := 1
	if input.ClickCount != nil {
		if *input.ClickCount < 1 || *input.ClickCount > 3 {
			return "", fmt.Errorf("click_count must be between 1 and 3")
		}
		count = *input.ClickCount
	}
	opts := playwright.PageClickOptions{
		ClickCount: playwright.Int(count),
		Timeout:    playwright.Float(ms(t.browser.opts.ActionTimeout)),
	}
	switch input.Button {
	case "":
	case "left", "right", "middle":
		button := playwright.MouseButton(input.Button)
		opts.Button = &button
	default:
		return "", fmt.Errorf("invalid button: %s (must be 'left', 'right', or 'middle')", input.Button)
	}

	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}
	if err := page.Click(input.Selector, opts); err != nil {
		return "", fmt.Errorf("click failed: %w", err)
	}
	t.browser.settle(ctx)

	return fmt.Sprintf(`Clicked %s (%d click)

Current URL: %s

If this caused navigation or page changes, read the page again before the next action.`,
		input.Selector, count, page.URL()), nil
}

// ClickTextTool clicks an element by its visible text.
type ClickTextTool struct {
	browser *Browser
}

// NewClickTextTool creates a new click_text tool.
func NewClickTextTool(b *Browser) *ClickTextTool {
	return &ClickTextTool{browser: b}
}

func (t *ClickTextTool) Name() string {
	return "click_text"
}

func (t *ClickTextTool) Description() string {
	return "Click an element by its visible text. Tries links, buttons and text matches, then the nearest clickable container. Use list_clickable_elements to find exact texts."
}

func (t *ClickTextTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Visible text of the element to click",
			},
			"exact": map[string]any{
				"type":        "boolean",
				"description": "Match the text exactly (default true)",
			},
		},
		[]string{"text"},
	)
}

type clickTextInput struct {
	Text  string `json:"text"`
	Exact *bool  `json:"exact"`
}

func (t *ClickTextTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input clickTextInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	if input.Text == "" {
		return "", fmt.Errorf("text is required")
	}
	exact := input.Exact == nil || *input.Exact

	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}
	strategy, err := t.browser.clickText(ctx, page, input.Text, exact)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Clicked %q using %s strategy\nCurrent URL: %s", input.Text, strategy, page.URL()), nil
}
