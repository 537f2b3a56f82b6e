package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

// ExtractTextTool returns the visible text of the page.
type ExtractTextTool struct {
	browser *Browser
}

// NewExtractTextTool creates a new extract_text tool.
func NewExtractTextTool(b *Browser) *ExtractTextTool {
	return &ExtractTextTool{browser: b}
}

func (t *ExtractTextTool) Name() string {
	return "extract_text"
}

func (t *ExtractTextTool) Description() string {
	return fmt.Sprintf("Extract the visible text of the current page, or of one element, up to %d characters.", MaxTextLength)
}

func (t *ExtractTextTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"selector": map[string]any{
				"type":        "string",
				"description": "Optional CSS selector to limit extraction (default body)",
			},
		},
		nil,
	)
}

type extractInput struct {
	Selector string `json:"selector"`
}

func (t *ExtractTextTool) Execute(_ context.Context, arguments json.RawMessage) (string, error) {
	var input extractInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	if input.Selector == "" {
		input.Selector = "body"
	}

	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}
	text, err := page.InnerText(input.Selector, playwright.PageInnerTextOptions{
		Timeout: playwright.Float(ms(t.browser.opts.ActionTimeout)),
	})
	if err != nil {
		return "", fmt.Errorf("extract failed: %w", err)
	}
	return truncateContent(text, MaxTextLength), nil
}

// ReadPageTool returns cleaned HTML so the structure and selectors of the
// page are visible.
type ReadPageTool struct {
	browser *Browser
}

// NewReadPageTool creates a new read_page tool.
func NewReadPageTool(b *Browser) *ReadPageTool {
	return &ReadPageTool{browser: b}
}

func (t *ReadPageTool) Name() string {
	return "read_page"
}

func (t *ReadPageTool) Description() string {
	return "Read the current page as cleaned HTML: scripts and styles removed, ids, classes, roles, links and form attributes kept. Use it to find selectors."
}

func (t *ReadPageTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"max_length": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum characters of content to return (default and max %d)", MaxHTMLLength),
			},
		},
		nil,
	)
}

type readPageInput struct {
	MaxLength int `json:"max_length"`
}

func (t *ReadPageTool) Execute(_ context.Context, arguments json.RawMessage) (string, error) {
	var input readPageInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	limit := input.MaxLength
	if limit <= 0 || limit > MaxHTMLLength {
		limit = MaxHTMLLength
	}

	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}
	raw, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	cleaned, err := cleanHTML(raw, limit)
	if err != nil {
		return "", err
	}
	return formatCleaned(page.URL(), cleaned), nil
}

func formatCleaned(url string, c *CleanedHTML) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", url)
	if c.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", c.Title)
	}
	if c.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Description)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(c.HTML))
	if c.Truncated {
		b.WriteString("\n\n[Content truncated: scroll or use extract_text with a selector for more]")
	}
	return b.String()
}

// truncateContent cuts s to limit bytes without splitting a rune and says
// so.
func truncateContent(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n\n[Content truncated: %d of %d characters shown]", cut, len(s))
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
