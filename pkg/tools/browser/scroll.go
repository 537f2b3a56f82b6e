package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

// ScrollTool scrolls the page by one screen.
type ScrollTool struct {
	browser *Browser
}

// NewScrollTool creates a new scroll_page tool.
func NewScrollTool(b *Browser) *ScrollTool {
	return &ScrollTool{browser: b}
}

func (t *ScrollTool) Name() string {
	return "scroll_page"
}

func (t *ScrollTool) Description() string {
	return "Scroll the page up or down by one screen. Reports whether the page actually moved, so you can tell when the end is reached."
}

func (t *ScrollTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"direction": map[string]any{
				"type":        "string",
				"enum":        []any{"up", "down"},
				"description": "Scroll direction (default down)",
			},
		},
		nil,
	)
}

type scrollInput struct {
	Direction string `json:"direction"`
}

func (t *ScrollTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input scrollInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	if input.Direction == "" {
		input.Direction = "down"
	}

	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}
	res, err := t.browser.scroll(ctx, page, input.Direction)
	if err != nil {
		return "", err
	}

	msg := fmt.Sprintf("Scrolled %s %dpx", res.Direction, res.ScrolledPixels)
	if !res.DidScroll {
		msg = fmt.Sprintf("Scroll %s executed but the position did not change", res.Direction)
	}
	return jsonResult(msg, res)
}

// MetricsTool reports page and viewport size.
type MetricsTool struct {
	browser *Browser
}

// NewMetricsTool creates a new get_page_metrics tool.
func NewMetricsTool(b *Browser) *MetricsTool {
	return &MetricsTool{browser: b}
}

func (t *MetricsTool) Name() string {
	return "get_page_metrics"
}

func (t *MetricsTool) Description() string {
	return "Get the page scroll height, viewport height and scroll position to decide whether scrolling would reveal more."
}

func (t *MetricsTool) Schema() map[string]any {
	return registry.BaseToolSchema(map[string]any{}, nil)
}

func (t *MetricsTool) Execute(_ context.Context, _ json.RawMessage) (string, error) {
	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}
	m, err := metrics(page)
	if err != nil {
		return "", err
	}
	return jsonResult("Page metrics", m)
}

// jsonResult renders a headline followed by v as indented JSON.
func jsonResult(headline string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return headline + "\n" + string(data), nil
}
