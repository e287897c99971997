package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrNoPending is returned by booking stores when no pending booking
	// matches the scope of a host decision.
	ErrNoPending = errors.New("no pending booking")
)

// ValidationError reports request input that can never produce a quote,
// such as zero nights or a past check-in date.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
