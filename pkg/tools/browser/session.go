package browser

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// clickableSelectors are probed in order by list_clickable_elements.
var clickableSelectors = []string{
	"a[href]",
	"button",
	"[role='button']",
	"[onclick]",
	"[class*='clickable']",
	"[class*='card']",
	"[class*='panel']",
	"[class*='link']",
	"[class*='btn']",
	"[tabindex]",
}

// perSelectorLimit bounds how many matches of one selector are inspected.
const perSelectorLimit = 50

// containerClickJS clicks the nearest clickable ancestor of the first text
// node containing the search text.
const containerClickJS = `(searchText) => {
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT, null, false);
	let node;
	while ((node = walker.nextNode())) {
		if (!node.textContent.includes(searchText)) continue;
		let el = node.parentElement;
		for (let i = 0; i < 8 && el; i++) {
			const style = window.getComputedStyle(el);
			const tag = el.tagName.toLowerCase();
			const role = el.getAttribute('role');
			const clickable = tag === 'a' || tag === 'button' ||
				role === 'button' || role === 'link' || role === 'row' ||
				el.hasAttribute('onclick') || el.hasAttribute('ng-click') || el.hasAttribute('data-click') ||
				style.cursor === 'pointer' ||
				/click|card|panel|row|item|link|btn/.test(el.classList.toString());
			if (clickable) {
				el.click();
				return tag;
			}
			el = el.parentElement;
		}
	}
	return '';
}`

const scrollMetricsJS = `() => ({ y: window.scrollY, h: document.documentElement.scrollHeight })`

const pageMetricsJS = `() => ({
	scrollHeight: document.documentElement.scrollHeight,
	clientHeight: document.documentElement.clientHeight,
	scrollTop: document.documentElement.scrollTop || window.scrollY || 0
})`

// navigate loads url and waits for the DOM plus the settle delay.
func (b *Browser) navigate(ctx context.Context, page playwright.Page, url string) (string, error) {
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(ms(b.opts.NavigationTimeout)),
	}); err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}
	b.settle(ctx)

	title, err := page.Title()
	if err != nil {
		title = "Unknown"
	}
	return title, nil
}

// clickText tries role, text and locator strategies, then falls back to
// clicking a clickable ancestor. It returns the strategy that worked.
func (b *Browser) clickText(ctx context.Context, page playwright.Page, text string, exact bool) (string, error) {
	timeout := playwright.Float(ms(b.opts.ActionTimeout))
	strategies := []struct {
		name    string
		locator playwright.Locator
	}{
		{"link", page.GetByRole(*playwright.AriaRoleLink, playwright.PageGetByRoleOptions{Name: text}).First()},
		{"button", page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: text}).First()},
		{"exact text", page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)}).First()},
		{"partial text", page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(false)}).First()},
		{"locator", page.Locator("text=" + text).First()},
	}

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if exact && s.name == "partial text" {
			continue
		}
		if err := s.locator.Click(playwright.LocatorClickOptions{Timeout: timeout}); err != nil {
			continue
		}
		b.settle(ctx)
		return s.name, nil
	}

	tag, err := page.Evaluate(containerClickJS, text)
	if err != nil {
		return "", fmt.Errorf("could not click text %q: %w", text, err)
	}
	if t, ok := tag.(string); ok && t != "" {
		b.settle(ctx)
		return fmt.Sprintf("container (%s)", t), nil
	}
	return "", fmt.Errorf("could not click text %q: no matching clickable element", text)
}

// listClickable collects visible clickable elements, optionally near
// keyword, ranked by rankClickables.
func (b *Browser) listClickable(ctx context.Context, page playwright.Page, keyword string) []Clickable {
	probe := playwright.Float(500)
	keyword = strings.ToLower(keyword)
	seen := make(map[string]bool)
	var out []Clickable

	for _, selector := range clickableSelectors {
		if ctx.Err() != nil {
			break
		}
		locators := page.Locator(selector)
		count, err := locators.Count()
		if err != nil {
			continue
		}
		for i := 0; i < min(count, perSelectorLimit); i++ {
			elem := locators.Nth(i)
			visible, err := elem.IsVisible()
			if err != nil || !visible {
				continue
			}
			text, err := elem.InnerText(playwright.LocatorInnerTextOptions{Timeout: probe})
			text = strings.TrimSpace(text)
			if err != nil || text == "" || len(text) >= 200 || seen[text] {
				continue
			}
			if keyword != "" && !strings.Contains(strings.ToLower(text), keyword) {
				parent, perr := elem.Locator("xpath=..").InnerText(playwright.LocatorInnerTextOptions{Timeout: probe})
				if perr != nil || !strings.Contains(strings.ToLower(parent), keyword) {
					continue
				}
			}
			seen[text] = true
			out = append(out, Clickable{Text: truncate(text, 100), Type: selectorType(selector)})
		}
	}

	rankClickables(out)
	if len(out) > MaxClickable {
		out = out[:MaxClickable]
	}
	return out
}

func selectorType(selector string) string {
	if t, _, _ := strings.Cut(selector, "["); t != "" {
		return t
	}
	return "element"
}

// rankClickables moves status-like entries first: counters such as "0/1",
// then error words. The sort is stable so page order breaks ties.
func rankClickables(items []Clickable) {
	score := func(c Clickable) int {
		t := strings.ToLower(c.Text)
		s := 0
		if strings.Contains(t, "/") && strings.ContainsAny(t, "0123456789") {
			s -= 10
		}
		if strings.Contains(t, "critical") || strings.Contains(t, "error") || strings.Contains(t, "fail") {
			s -= 5
		}
		return s
	}
	sort.SliceStable(items, func(i, j int) bool {
		return score(items[i]) < score(items[j])
	})
}

// scroll pages up or down and measures whether the viewport moved.
func (b *Browser) scroll(ctx context.Context, page playwright.Page, direction string) (ScrollResult, error) {
	key, delta := "PageDown", 600
	switch direction {
	case "down":
	case "up":
		key, delta = "PageUp", -600
	default:
		return ScrollResult{}, fmt.Errorf("invalid direction %q (must be 'up' or 'down')", direction)
	}

	startY, _ := scrollPosition(page)
	if err := page.Keyboard().Press(key); err != nil {
		if _, err := page.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", delta)); err != nil {
			return ScrollResult{}, fmt.Errorf("scroll failed: %w", err)
		}
	}
	sleep(ctx, time.Second)

	endY, height := scrollPosition(page)
	if endY < 0 {
		endY = startY
	}
	moved := int(math.Abs(float64(endY - startY)))
	return ScrollResult{
		Direction:      direction,
		ScrolledPixels: moved,
		NewScrollTop:   endY,
		TotalHeight:    height,
		DidScroll:      moved > 0,
	}, nil
}

// scrollPosition returns (-1, 0) when the page cannot be measured.
func scrollPosition(page playwright.Page) (int, int) {
	v, err := page.Evaluate(scrollMetricsJS)
	if err != nil {
		return -1, 0
	}
	m, ok := v.(map[string]any)
	if !ok {
		return -1, 0
	}
	return toInt(m["y"]), toInt(m["h"])
}

func metrics(page playwright.Page) (PageMetrics, error) {
	v, err := page.Evaluate(pageMetricsJS)
	if err != nil {
		return PageMetrics{}, fmt.Errorf("failed to get metrics: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return PageMetrics{}, fmt.Errorf("unexpected metrics result %T", v)
	}
	return PageMetrics{
		ScrollHeight:   toInt(m["scrollHeight"]),
		ViewportHeight: toInt(m["clientHeight"]),
		ScrollTop:      toInt(m["scrollTop"]),
	}, nil
}

// pollUntil calls check every interval until it reports true, maxWait
// passes or ctx ends. It returns whether check succeeded and the time
// spent.
func pollUntil(ctx context.Context, interval, maxWait time.Duration, check func() bool) (bool, time.Duration) {
	start := time.Now()
	deadline := start.Add(maxWait)
	for {
		if check() {
			return true, time.Since(start)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			return false, time.Since(start)
		}
		sleep(ctx, min(interval, remaining))
	}
}

// clampSeconds bounds a user-supplied wait.
func clampSeconds(v, def, limit int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(min(v, limit)) * time.Second
}

// toInt converts a number decoded from a page evaluation.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
