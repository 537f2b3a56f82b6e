package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

// ScreenshotTool saves a PNG of the page to the screenshot directory.
type ScreenshotTool struct {
	browser *Browser
}

// NewScreenshotTool creates a new take_screenshot tool.
func NewScreenshotTool(b *Browser) *ScreenshotTool {
	return &ScreenshotTool{browser: b}
}

func (t *ScreenshotTool) Name() string {
	return "take_screenshot"
}

func (t *ScreenshotTool) Description() string {
	return "Save a screenshot of the current page and return its file path."
}

func (t *ScreenshotTool) Schema() map[string]any {
	return registry.BaseToolSchema(
		map[string]any{
			"description": map[string]any{
				"type":        "string",
				"description": "Short label used in the file name (default 'current page')",
			},
			"full_page": map[string]any{
				"type":        "boolean",
				"description": "Capture the whole scrollable page instead of the viewport",
			},
		},
		nil,
	)
}

type screenshotInput struct {
	Description string `json:"description"`
	FullPage    bool   `json:"full_page"`
}

func (t *ScreenshotTool) Execute(_ context.Context, arguments json.RawMessage) (string, error) {
	var input screenshotInput
	if err := toolserver.DecodeArguments(arguments, &input); err != nil {
		return "", err
	}
	if input.Description == "" {
		input.Description = "current page"
	}

	page, err := t.browser.Page()
	if err != nil {
		return "", err
	}

	dir := t.browser.opts.ScreenshotDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	path := filepath.Join(dir, screenshotName(input.Description))
	data, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(input.FullPage),
	})
	if err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}
	return fmt.Sprintf("Saved screenshot of %s to %s (%d bytes)", input.Description, path, len(data)), nil
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// screenshotName is a filesystem-safe, unique PNG name for label.
func screenshotName(label string) string {
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(label), "-"), "-")
	if slug == "" {
		slug = "page"
	}
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	return fmt.Sprintf("screenshot-%s-%s.png", slug, uuid.NewString()[:8])
}
