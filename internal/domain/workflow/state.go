package workflow

import "github.com/HadassahLevi/tiktax/internal/domain/entity"

// State aliases the receipt status so the machine and the entity share
// one vocabulary.
type State = entity.Status

var validStates = map[State]bool{
	entity.StatusProcessing: true,
	entity.StatusReview:     true,
	entity.StatusApproved:   true,
	entity.StatusFailed:     true,
	entity.StatusDuplicate:  true,
}

// approved and failed admit no further transitions. duplicate is a soft
// terminal: the only edge out of it is the explicit user override back
// to review, configured in Lifecycle.
var hardTerminalStates = map[State]bool{
	entity.StatusApproved: true,
	entity.StatusFailed:   true,
}

// IsValidState returns true if s is a known receipt status
func IsValidState(s State) bool {
	return validStates[s]
}

// IsHardTerminal returns true if no trigger may ever leave s
func IsHardTerminal(s State) bool {
	return hardTerminalStates[s]
}
