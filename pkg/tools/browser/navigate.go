package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

// ConnectTool attaches to or launches the browser.
type ConnectTool struct {
	browser *Browser
}

// NewConnectTool creates a new connect_browser tool.
func NewConnectTool(b *Browser) *ConnectTool {
	return &ConnectTool{browser: b}
}

func (t *ConnectTool) Name() string {
	return "connect_browser"
}

func (t *ConnectTool) Description() string {
	return "Connect to the browser. Attaches to Chrome running with --remote-debugging-port, or launches Chromium. Safe to call when already connected."
}

func (t *ConnectTool) Schema() map[string]any {
	return registry.BaseToolSchema(map[string]any{}, nil)
}

func (t *ConnectTool) Execute(ctx context.Context, _ json.RawMessage) (string, error) {
	return t.browser.Connect(ctx)
}

// NavigateTool navigates the page to a URL.
type NavigateTool struct {
	browser *Browser
}

// NewNavigateTool creates a new navigate tool.
func NewNavigateTool(b *Browser) *NavigateTool {
	return &NavigateTool{browser: b}
}

func (t *NavigateTool) Name() string {
	return "navigate"
}

func (t *NavigateTool) Description() string {
	return "Navigate the browser to a URL and wait for the page to load. Connects to the browser first if needed."
}

func (t *NavigateTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to navigate to, including the scheme (e.g. https://example.com)",
			},
		},
		[]string{"url"},
	)
}

type navigateInput struct {
	URL string `json:"url"`
}

func (t *NavigateTool) Execute(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input navigateInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	if err := validateURL(input.URL); err != nil {
		return "", err
	}

	if !t.browser.Connected() {
		if _, err := t.browser.Connect(ctx); err != nil {
			return "", err
		}
	}
	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}

	title, err := t.browser.navigate(ctx, page, input.URL)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`Navigated to %s

Page Details:
- URL: %s
- Title: %s

Use read_page or extract_text to see the content, or list_clickable_elements to find what can be clicked.`,
		input.URL, page.URL(), title), nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme == "" || (u.Host == "" && u.Scheme != "about" && u.Scheme != "file" && u.Scheme != "data") {
		return fmt.Errorf("invalid url %q: must include a scheme and host", raw)
	}
	return nil
}
