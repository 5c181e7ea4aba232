// internal/browser/script/errors.go
package script

import (
	"errors"
	"fmt"
)

// ErrTimeout is the interrupt value used when a script exceeds its budget.
var ErrTimeout = errors.New("script execution timed out")

// ScriptError is an uncaught exception raised by page script. It is logged at
// the dispatch boundary and never aborts the caller.
type ScriptError struct {
	// Source names what was running: a script URL, "listener:click",
	// "timeout", "raf" and so on.
	Source  string
	Message string
	Err     error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s: %s", e.Source, e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
