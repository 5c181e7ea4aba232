// internal/browser/session/errors.go
package session

import "fmt"

// NavigationError is returned when a top-level or frame load fails.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigating to %s: %v", e.URL, e.Err)
}

// Unwrap provides the underlying network or parse error.
func (e *NavigationError) Unwrap() error {
	return e.Err
}

// UnknownWindowError is raised into script when a window id no longer names a
// frame of the tab.
type UnknownWindowError struct {
	Window int32
}

func (e *UnknownWindowError) Error() string {
	return fmt.Sprintf("no window with id %d", e.Window)
}
