package main

import (
	"fmt"
	"sort"
	"strings"
)

// SmokeTestPrompt checks that the browser tool server is reachable and
// usable end to end.
const SmokeTestPrompt = `
Simple browser test.

Steps:
1. Connect to the browser
2. Navigate to https://www.google.com
3. Wait for the page to load
4. Take a screenshot
5. Report the page title and what you see
`

// IssueTriagePrompt drills from a monitoring dashboard down to the root
// cause of its most severe issue. The dashboard URL is supplied by the
// operator in the task or the config's llm.instructions.
const IssueTriagePrompt = `
You are an SRE investigating an issue reported on a monitoring dashboard.

YOUR MISSION: Find the root cause of the most severe ("Critical") issue.

PHASE 1 - Connect and load the dashboard:
1. connect_browser()
2. navigate to the dashboard URL
3. wait_for_selector("body") or wait_seconds(5) until the page settles

PHASE 2 - Find the issue:
4. list_clickable_elements() to see what can be clicked
5. click_text() on the critical indicator (counters like "0 / 1" are listed first)

PHASE 3 - Drill into the detail page:
6. list_clickable_elements() and extract_text() to find device names and addresses
7. click_text() on the affected device or the Critical link

PHASE 4 - Find the root cause:
8. scroll_page(direction="down"); events and logs are at the bottom
9. extract_text() to read the events and error messages
10. Repeat scrolling and reading until you find the error

PHASE 5 - Report the device name, its address and the specific error message.

RULES:
- Use list_clickable_elements() before clicking on a new page
- Use click_text() with short text copied from the list
- If click_text fails, retry with exact=false, then re-read the page
- Do not navigate away from the detail page; drill deeper instead
`

var prompts = map[string]string{
	"test":   SmokeTestPrompt,
	"triage": IssueTriagePrompt,
}

func promptNames() []string {
	names := make([]string, 0, len(prompts))
	for name := range prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupPrompt(name string) (string, error) {
	p, ok := prompts[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q (available: %s)", name, strings.Join(promptNames(), ", "))
	}
	return strings.TrimSpace(p), nil
}
