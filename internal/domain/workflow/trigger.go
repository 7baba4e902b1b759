package workflow

// Trigger represents an event that can cause a receipt state transition
type Trigger string

const (
	// TriggerRecognized fires when the recognition collaborator returns
	// a successful extraction
	TriggerRecognized Trigger = "RECOGNIZED"

	// TriggerRecognitionFailed fires on recognizer failure or timeout
	TriggerRecognitionFailed Trigger = "RECOGNITION_FAILED"

	// TriggerEdit fires when a reviewer corrects a field
	TriggerEdit Trigger = "EDIT"

	// TriggerConfirm fires when the user submits corrected/confirmed data
	TriggerConfirm Trigger = "CONFIRM"

	// TriggerDuplicateFound fires when the detector returns candidates
	TriggerDuplicateFound Trigger = "DUPLICATE_FOUND"

	// TriggerOverrideDuplicate fires on the explicit "not a duplicate"
	// user decision
	TriggerOverrideDuplicate Trigger = "OVERRIDE_DUPLICATE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
