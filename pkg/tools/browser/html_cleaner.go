package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// CleanedHTML represents cleaned HTML content with metadata
type CleanedHTML struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

var (
	skippedElements = set("script", "style", "noscript", "iframe", "embed", "object", "svg", "template")

	blockElements = set(
		"div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li",
		"table", "tr", "td", "th", "form", "fieldset", "blockquote", "pre", "dialog",
	)

	voidElements = set(
		"area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "param", "source", "track", "wbr",
	)

	globalAttributes = set("id", "class", "role", "name", "title", "aria-label", "aria-describedby", "aria-expanded", "tabindex")
)

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

func has(m map[string]struct{}, key string) bool {
	_, ok := m[key]
	return ok
}

// cleanHTML strips scripts, styles and presentation noise from rawHTML and
// keeps the structure and the attributes useful for building selectors.
// Content beyond maxLength characters is dropped and Truncated is set.
func cleanHTML(rawHTML string, maxLength int) (*CleanedHTML, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	c := &cleaner{max: maxLength}
	head, body := findHeadBody(doc)
	if head != nil {
		c.collectMeta(head)
	}
	root := body
	if root == nil {
		root = doc
	}
	truncated := c.node(root, 0)

	return &CleanedHTML{
		HTML:        c.out.String(),
		Title:       c.title,
		Description: c.description,
		Truncated:   truncated,
	}, nil
}

type cleaner struct {
	out         strings.Builder
	length      int
	max         int
	title       string
	description string
}

// node writes n and its children and reports whether output was cut.
func (c *cleaner) node(n *html.Node, depth int) bool {
	if c.length >= c.max {
		return true
	}
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return false
	case html.TextNode:
		return c.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if has(skippedElements, tag) || tag == "head" {
			return false
		}
		if hidden(n) {
			return false
		}
		return c.element(n, tag, depth)
	default:
		return c.children(n, depth)
	}
}

func (c *cleaner) text(data string) bool {
	text := strings.Join(strings.Fields(data), " ")
	if text == "" {
		return false
	}
	if c.length+len(text) > c.max {
		cut := c.max - c.length
		for cut > 0 && !isRuneStart(text[cut]) {
			cut--
		}
		c.out.WriteString(text[:cut])
		c.out.WriteString("...")
		c.length = c.max
		return true
	}
	c.out.WriteString(text)
	c.length += len(text)
	return false
}

func (c *cleaner) element(n *html.Node, tag string, depth int) bool {
	block := has(blockElements, tag)
	if depth > 0 && block {
		c.newline(depth)
	}

	c.out.WriteString("<")
	c.out.WriteString(tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, attr.Key) {
			fmt.Fprintf(&c.out, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	c.out.WriteString(">")
	c.length += len(tag) + 2

	if has(voidElements, tag) {
		return false
	}

	truncated := c.children(n, depth+1)

	if block {
		c.newline(depth)
	}
	c.out.WriteString("</")
	c.out.WriteString(tag)
	c.out.WriteString(">")
	c.length += len(tag) + 3
	return truncated
}

func (c *cleaner) children(n *html.Node, depth int) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if c.node(child, depth) {
			return true
		}
	}
	return false
}

func (c *cleaner) newline(depth int) {
	c.out.WriteString("\n")
	c.out.WriteString(strings.Repeat("  ", depth))
}

// collectMeta reads the title and meta description from head.
func (c *cleaner) collectMeta(head *html.Node) {
	for n := head.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.Data {
		case "title":
			if c.title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				c.title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "meta":
			if attr(n, "name") == "description" && c.description == "" {
				c.description = strings.TrimSpace(attr(n, "content"))
			}
		}
	}
}

// findHeadBody locates the head and body the HTML parser always creates.
func findHeadBody(doc *html.Node) (head, body *html.Node) {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != html.ElementNode || n.Data != "html" {
			continue
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			switch child.Data {
			case "head":
				head = child
			case "body":
				body = child
			}
		}
	}
	return head, body
}

// hidden reports elements the user cannot see.
func hidden(n *html.Node) bool {
	if _, ok := attrLookup(n, "hidden"); ok {
		return true
	}
	if attr(n, "aria-hidden") == "true" {
		return true
	}
	if strings.ToLower(n.Data) == "input" && strings.EqualFold(attr(n, "type"), "hidden") {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func attr(n *html.Node, key string) string {
	v, _ := attrLookup(n, key)
	return v
}

func attrLookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// keepAttribute reports whether an attribute helps target or understand
// the element.
func keepAttribute(tag, name string) bool {
	name = strings.ToLower(name)
	if has(globalAttributes, name) || strings.HasPrefix(name, "data-") {
		return true
	}
	switch tag {
	case "a":
		return name == "href" || name == "target"
	case "img":
		return name == "src" || name == "alt"
	case "input", "textarea", "select", "option":
		return name == "type" || name == "placeholder" || name == "value"
	case "button":
		return name == "type"
	case "form":
		return name == "action" || name == "method"
	case "label":
		return name == "for"
	case "table":
		return name == "summary"
	}
	return false
}
