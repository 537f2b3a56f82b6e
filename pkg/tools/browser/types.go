package browser

import (
	"time"
)

// Options configures a Browser.
type Options struct {
	// CDPEndpoint attaches to a running Chrome (http://host:9222). Empty
	// launches Chromium through Playwright instead.
	CDPEndpoint string

	// Headless applies to launched browsers only
	Headless bool

	// Install downloads the Playwright driver and Chromium when missing
	Install bool

	// ActionTimeout bounds single page actions such as a click
	ActionTimeout time.Duration

	// NavigationTimeout bounds page loads
	NavigationTimeout time.Duration

	// Settle is how long to wait after navigation and clicks for
	// late-rendering content
	Settle time.Duration

	// PollInterval is how often wait_for_text and wait_for_selector check
	PollInterval time.Duration

	// ScreenshotDir receives take_screenshot output
	ScreenshotDir string

	// Viewport applies to launched browsers only
	Viewport Viewport
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for various operations
const (
	DefaultActionTimeout     = 5 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
	DefaultSettle            = 2 * time.Second
	DefaultPollInterval      = 2 * time.Second
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 720

	// MaxTextLength caps extract_text output
	MaxTextLength = 3000
	// MaxHTMLLength caps read_page output
	MaxHTMLLength = 20000
	// MaxWait caps wait_for_text and wait_for_selector
	MaxWait = 120
	// MaxWaitSeconds caps wait_seconds
	MaxWaitSeconds = 60
	// MaxClickable caps list_clickable_elements output
	MaxClickable = 30
)

// DefaultOptions attaches to Chrome on the standard debugging port.
func DefaultOptions() Options {
	return Options{
		CDPEndpoint:       "http://localhost:9222",
		Headless:          true,
		ActionTimeout:     DefaultActionTimeout,
		NavigationTimeout: DefaultNavigationTimeout,
		Settle:            DefaultSettle,
		PollInterval:      DefaultPollInterval,
		ScreenshotDir:     ".",
		Viewport:          Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = d.ActionTimeout
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = d.NavigationTimeout
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.ScreenshotDir == "" {
		o.ScreenshotDir = d.ScreenshotDir
	}
	if o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = d.Viewport
	}
	return o
}

// ms converts a duration to Playwright's float milliseconds.
func ms(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}

// Clickable is one entry of list_clickable_elements.
type Clickable struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// ScrollResult reports whether scroll_page moved the page.
type ScrollResult struct {
	Direction      string `json:"direction"`
	ScrolledPixels int    `json:"scrolled_pixels"`
	NewScrollTop   int    `json:"new_scroll_top"`
	TotalHeight    int    `json:"total_height"`
	DidScroll      bool   `json:"did_scroll"`
}

// PageMetrics is the output of get_page_metrics.
type PageMetrics struct {
	ScrollHeight   int `json:"scroll_height"`
	ViewportHeight int `json:"viewport_height"`
	ScrollTop      int `json:"scroll_top"`
}
