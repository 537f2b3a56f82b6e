package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrNotConnected is returned by page tools before connect_browser.
var ErrNotConnected = errors.New("browser not connected, call connect_browser first")

// Browser owns the Playwright driver, the browser connection and the page
// all tools act on.
type Browser struct {
	opts Options

	mu       sync.Mutex
	pw       *playwright.Playwright
	browser  playwright.Browser
	page     playwright.Page
	attached bool
}

// New creates an unconnected Browser.
func New(opts Options) *Browser {
	return &Browser{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (b *Browser) Options() Options {
	return b.opts
}

// Connected reports whether a page is available.
func (b *Browser) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page != nil && !b.page.IsClosed()
}

// Connect attaches to or launches the browser. It is a no-op when already
// connected and reports which of the two happened.
func (b *Browser) Connect(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page != nil && !b.page.IsClosed() {
		return "Already connected to browser", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if b.pw == nil {
		runOpts := &playwright.RunOptions{
			Browsers: []string{"chromium"},
			Verbose:  false,
			Stdout:   io.Discard,
			Stderr:   io.Discard,
		}
		if b.opts.Install {
			if err := playwright.Install(runOpts); err != nil {
				return "", fmt.Errorf("failed to install playwright: %w", err)
			}
		}
		pw, err := playwright.Run(runOpts)
		if err != nil {
			return "", fmt.Errorf("failed to start playwright: %w", err)
		}
		b.pw = pw
	}

	if b.opts.CDPEndpoint != "" {
		if err := b.attach(); err != nil {
			return "", err
		}
		return fmt.Sprintf("Connected to Chrome at %s", b.opts.CDPEndpoint), nil
	}
	if err := b.launch(); err != nil {
		return "", err
	}
	return "Launched Chromium", nil
}

// attach connects over CDP and reuses the first open tab.
func (b *Browser) attach() error {
	browser, err := b.pw.Chromium.ConnectOverCDP(b.opts.CDPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w (is Chrome running with --remote-debugging-port?)", b.opts.CDPEndpoint, err)
	}

	contexts := browser.Contexts()
	if len(contexts) == 0 {
		_ = browser.Close()
		return fmt.Errorf("no browser context found at %s", b.opts.CDPEndpoint)
	}
	var page playwright.Page
	if pages := contexts[0].Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = contexts[0].NewPage(); err != nil {
		_ = browser.Close()
		return fmt.Errorf("failed to create page: %w", err)
	}

	b.setPage(browser, page, true)
	return nil
}

func (b *Browser) launch() error {
	browser, err := b.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.opts.Headless),
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{
			Width:  b.opts.Viewport.Width,
			Height: b.opts.Viewport.Height,
		},
	})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("failed to create page: %w", err)
	}

	b.setPage(browser, page, false)
	return nil
}

func (b *Browser) setPage(browser playwright.Browser, page playwright.Page, attached bool) {
	page.SetDefaultTimeout(ms(b.opts.ActionTimeout))
	page.SetDefaultNavigationTimeout(ms(b.opts.NavigationTimeout))
	b.browser = browser
	b.page = page
	b.attached = attached
}

// Page returns the current page or ErrNotConnected.
func (b *Browser) Page() (playwright.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page == nil || b.page.IsClosed() {
		return nil, ErrNotConnected
	}
	return b.page, nil
}

// Close disconnects and stops the driver. An attached Chrome keeps running.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.browser != nil {
		// Close on a CDP connection only drops the connection.
		if err := b.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	b.pw = nil
	b.browser = nil
	b.page = nil
	b.attached = false
	return errors.Join(errs...)
}

// settle waits for late content, returning early if ctx ends.
func (b *Browser) settle(ctx context.Context) {
	sleep(ctx, b.opts.Settle)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
