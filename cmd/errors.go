package cmd

import (
	"fmt"
)

// InvalidDefinitionsError reports controller definitions that failed to load or validate.
type InvalidDefinitionsError struct {
	Count int
}

func (e *InvalidDefinitionsError) Error() string {
	if e.Count == 1 {
		return "1 controller definition is invalid"
	}
	return fmt.Sprintf("%d controller definitions are invalid", e.Count)
}

// UnavailableError reports that the operator's status endpoint could not be reached.
type UnavailableError struct {
	Endpoint string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("converge is not reachable at %s: %v", e.Endpoint, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
