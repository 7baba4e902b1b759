package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrentModification is returned when an optimistic
	// concurrency version check fails; callers must reload and retry
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrRecognitionFailed signals a terminal failure of the recognition
	// attempt, driving the processing -> failed transition
	ErrRecognitionFailed = errors.New("recognition failed")

	// ErrRecognitionTimeout signals that the recognition collaborator
	// timed out; treated the same as ErrRecognitionFailed
	ErrRecognitionTimeout = errors.New("recognition timeout")

	// ErrDuplicateCheckUnavailable is returned when the owner's existing
	// record set cannot be read; the detector fails closed
	ErrDuplicateCheckUnavailable = errors.New("duplicate check unavailable")

	// ErrReceiptNotFound is returned when a receipt id resolves to nothing
	ErrReceiptNotFound = errors.New("receipt not found")
)

// FieldError describes a validation failure on a single extracted
// field. Field errors are expected outcomes, surfaced for correction,
// never propagated as hard errors.
type FieldError struct {
	Field  FieldID `json:"field"`
	Reason string  `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// FieldErrors is the per-field error list produced by a validation pass
type FieldErrors []FieldError

// Has returns true if any error concerns the given field
func (fe FieldErrors) Has(field FieldID) bool {
	for _, e := range fe {
		if e.Field == field {
			return true
		}
	}
	return false
}
