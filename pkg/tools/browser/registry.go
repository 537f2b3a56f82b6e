package browser

import (
	"github.com/entrhq/autopilot/pkg/toolserver"
)

// Tools returns every browser tool bound to b, in the order they are
// advertised.
func Tools(b *Browser) []toolserver.Tool {
	return []toolserver.Tool{
		NewConnectTool(b),
		NewNavigateTool(b),
		NewReadPageTool(b),
		NewExtractTextTool(b),
		NewListClickableTool(b),
		NewClickTextTool(b),
		NewClickTool(b),
		NewFillTool(b),
		NewScrollTool(b),
		NewMetricsTool(b),
		NewWaitForSelectorTool(b),
		NewWaitForTextTool(b),
		NewWaitSecondsTool(),
		NewScreenshotTool(b),
	}
}
