package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

const defaultMaxWait = 30

func maxWaitProperty() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": fmt.Sprintf("Maximum seconds to wait (default %d, max %d)", defaultMaxWait, MaxWait),
	}
}

// WaitForSelectorTool waits until a CSS selector is visible.
type WaitForSelectorTool struct {
	browser *Browser
}

// NewWaitForSelectorTool creates a new wait_for_selector tool.
func NewWaitForSelectorTool(b *Browser) *WaitForSelectorTool {
	return &WaitForSelectorTool{browser: b}
}

func (t *WaitForSelectorTool) Name() string {
	return "wait_for_selector"
}

func (t *WaitForSelectorTool) Description() string {
	return "Wait until an element matching a CSS selector is visible. Use it for panels or widgets that render late."
}

func (t *WaitForSelectorTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector to wait for (e.g. 'div.dashboard-panel')",
			},
			"max_wait": maxWaitProperty(),
		},
		[]string{"selector"},
	)
}

type waitSelectorInput struct {
	Selector string `json:"selector"`
	MaxWait  int    `json:"max_wait"`
}

func (t *WaitForSelectorTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input waitSelectorInput
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
	maxWait := clampSeconds(input.MaxWait, defaultMaxWait, MaxWait)
	locator := page.Locator(input.Selector).First()
	found, elapsed := pollUntil(ctx, t.browser.opts.PollInterval, maxWait, func() bool {
		visible, err := locator.IsVisible()
		return err == nil && visible
	})
	if !found {
		return "", fmt.Errorf("selector %q not visible after %s", input.Selector, elapsed.Round(time.Second))
	}
	return fmt.Sprintf("Selector %q visible after %s", input.Selector, elapsed.Round(time.Second)), nil
}

// WaitForTextTool waits until text appears in the page body.
type WaitForTextTool struct {
	browser *Browser
}

// NewWaitForTextTool creates a new wait_for_text tool.
func NewWaitForTextTool(b *Browser) *WaitForTextTool {
	return &WaitForTextTool{browser: b}
}

func (t *WaitForTextTool) Name() string {
	return "wait_for_text"
}

func (t *WaitForTextTool) Description() string {
	return "Wait until specific text appears on the page (case-insensitive substring). Use it for slow-loading content."
}

func (t *WaitForTextTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Text to wait for",
			},
			"max_wait": maxWaitProperty(),
		},
		[]string{"text"},
	)
}

type waitTextInput struct {
	Text    string `json:"text"`
	MaxWait int    `json:"max_wait"`
}

func (t *WaitForTextTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input waitTextInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	target := strings.ToLower(strings.TrimSpace(input.Text))
	if target == "" {
		return "", fmt.Errorf("text is required")
	}

	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}
	maxWait := clampSeconds(input.MaxWait, defaultMaxWait, MaxWait)
	probe := playwright.Float(3000)
	found, elapsed := pollUntil(ctx, t.browser.opts.PollInterval, maxWait, func() bool {
		body, err := page.InnerText("body", playwright.PageInnerTextOptions{Timeout: probe})
		return err == nil && strings.Contains(strings.ToLower(body), target)
	})
	if !found {
		return "", fmt.Errorf("text %q not found after %s", input.Text, elapsed.Round(time.Second))
	}
	return fmt.Sprintf("Found text %q after %s", input.Text, elapsed.Round(time.Second)), nil
}

// WaitSecondsTool sleeps.
type WaitSecondsTool struct{}

// NewWaitSecondsTool creates a new wait_seconds tool.
func NewWaitSecondsTool() *WaitSecondsTool {
	return &WaitSecondsTool{}
}

func (t *WaitSecondsTool) Name() string {
	return "wait_seconds"
}

func (t *WaitSecondsTool) Description() string {
	return fmt.Sprintf("Wait a fixed number of seconds (max %d). Prefer wait_for_text or wait_for_selector.", MaxWaitSeconds)
}

func (t *WaitSecondsTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"seconds": map[string]any{
				"type":        "integer",
				"description": "Seconds to wait (default 5)",
			},
		},
		nil,
	)
}

type waitSecondsInput struct {
	Seconds int `json:"seconds"`
}

func (t *WaitSecondsTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input waitSecondsInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	d := clampSeconds(input.Seconds, 5, MaxWaitSeconds)
	sleep(ctx, d)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Waited %s", d), nil
}
