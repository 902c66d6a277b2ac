package dispatch

import (
	"fmt"

	"converge/internal/resource"
)

// TerminalError reports that a resource exhausted its retry budget.
type TerminalError struct {
	ID       resource.ID
	Attempts int
	Err      error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("reconciliation of %s failed after %d attempts: %v", e.ID, e.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}
