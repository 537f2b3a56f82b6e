package registry

import (
	"fmt"

	"github.com/gobwas/glob"
)

// NameMatcher decides which advertised tools the loop may use.
type NameMatcher struct {
	allowed []glob.Glob
	denied  []glob.Glob
}

// NewNameMatcher compiles allow and deny glob patterns.
func NewNameMatcher(allow, deny []string) (*NameMatcher, error) {
	m := &NameMatcher{}

	for _, pattern := range allow {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allow pattern '%s': %w", pattern, err)
		}
		m.allowed = append(m.allowed, g)
	}

	for _, pattern := range deny {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern '%s': %w", pattern, err)
		}
		m.denied = append(m.denied, g)
	}

	return m, nil
}

// Allows reports whether name passes the rules. Deny wins over allow and an
// empty allow list admits everything not denied.
func (m *NameMatcher) Allows(name string) bool {
	for _, g := range m.denied {
		if g.Match(name) {
			return false
		}
	}
	if len(m.allowed) == 0 {
		return true
	}
	for _, g := range m.allowed {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Filter returns the descriptors whose names pass the allow and deny
// patterns, preserving order.
func Filter(descs []ToolDescriptor, allow, deny []string) ([]ToolDescriptor, error) {
	if len(allow) == 0 && len(deny) == 0 {
		return descs, nil
	}
	m, err := NewNameMatcher(allow, deny)
	if err != nil {
		return nil, err
	}
	out := make([]ToolDescriptor, 0, len(descs))
	for _, d := range descs {
		if m.Allows(d.Name) {
			out = append(out, d)
		}
	}
	return out, nil
}
