package registry

import (
	"fmt"
	"strings"
)

// DuplicateToolError is returned when two advertised tools share a name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("duplicate tool %q", e.Name)
}

// NotFoundError is returned when a name does not resolve to a tool.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown tool %q", e.Name)
	}
	return fmt.Sprintf("unknown tool %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// ValidationError is returned when a tool call does not satisfy the tool's
// argument schema. It is produced locally, before any network round trip.
type ValidationError struct {
	Tool     string
	Argument string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("invalid call to %q: %v", e.Tool, e.Err)
	case e.Argument != "":
		return fmt.Sprintf("invalid call to %q: argument %q %s", e.Tool, e.Argument, e.Reason)
	default:
		return fmt.Sprintf("invalid call to %q: %s", e.Tool, e.Reason)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
