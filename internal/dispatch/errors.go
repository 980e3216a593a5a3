package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition signals an illegal status change, e.g.
	// resolving a pending incident or touching a solved one.
	ErrInvalidTransition = errors.New("invalid incident status transition")

	// ErrNoEligibleResponder signals that no available responder of
	// the required category exists, or that the named responder is not
	// currently eligible.
	ErrNoEligibleResponder = errors.New("no eligible responder")
)

// ValidationError rejects a request with a missing or unusable field.
// Unknown incident types are not validation errors; they degrade to
// defaults.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("missing required field %q", e.Field)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
