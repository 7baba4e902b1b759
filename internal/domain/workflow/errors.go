package workflow

import "errors"

var (
	// ErrStateConflict is returned when a trigger is not permitted from
	// the current state. Callers must surface it, never swallow it.
	ErrStateConflict = errors.New("state conflict: transition not permitted")

	// ErrGuardRejected is returned when every transition configured for
	// the trigger has a guard and all guards evaluated false
	ErrGuardRejected = errors.New("transition guard rejected")
)
