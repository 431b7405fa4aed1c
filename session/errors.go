package session

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("session: not found")

// Lookup kinds reported by NotFoundError.
const (
	KindTool     = "tool"
	KindPrompt   = "prompt"
	KindResource = "resource"
)

// NotFoundError reports a tool, prompt or resource name that no connection serves.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("session: %s %q not found", e.Kind, e.Name)
}

// Is makes errors.Is(err, ErrNotFound) succeed.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Code labels the error for telemetry.
func (e *NotFoundError) Code() string {
	return "not_found"
}
