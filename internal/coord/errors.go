package coord

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRegistered is returned when an unregistered agent tries to send.
	ErrNotRegistered = errors.New("agent is not registered")

	// ErrOutOfScope is returned when a recipient is outside the sender's
	// workspace.
	ErrOutOfScope = errors.New("recipient is not in the sender's workspace")
)

// ValidationError reports a bad or missing input field. Field uses the
// argument names of the tool catalog.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func missing(field string) error {
	return &ValidationError{Field: field, Reason: field + " is required"}
}
