// Package browser exposes a live Chromium page as tool-server tools through
// Playwright.
//
// # Architecture
//
// A Browser owns one Playwright driver, one browser connection and the page
// every tool operates on. It is created once per server process and shared
// by the tools returned from Tools; there is no package-level browser state.
//
// The browser is either attached to an already running Chrome over the
// DevTools protocol (Options.CDPEndpoint, e.g. http://localhost:9222) or
// launched by Playwright. connect_browser establishes the connection
// explicitly; navigate connects on demand.
//
// # Failure model
//
// Tools return an error for anything the page did not do: a selector that
// never became visible, text that could not be clicked, a navigation that
// timed out. The tool server reports those as tool results with isError
// set, so the caller's control loop sees them as observations and can try
// something else. Nothing here retries on the caller's behalf except the
// fallback strategies in click_text.
//
// # Tools
//
//   - connect_browser, navigate
//   - click, click_text, fill
//   - extract_text, read_page, list_clickable_elements
//   - scroll_page, get_page_metrics
//   - wait_for_selector, wait_for_text, wait_seconds
//   - take_screenshot
package browser
