package workflow

import (
	"context"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
)

// LifecycleGuards supplies the decision inputs the receipt transition
// table needs at fire time. The closures are evaluated lazily, once per
// Fire, against the outcome of the current validation/dedup pass.
type LifecycleGuards struct {
	// ValidationPassed reports whether the validator produced an empty
	// field-error list for the receipt's current data
	ValidationPassed GuardFunc

	// HasDuplicates reports whether the duplicate detector returned at
	// least one candidate
	HasDuplicates GuardFunc
}

// NewLifecycle builds the receipt lifecycle machine positioned at
// current:
//
//	processing -RECOGNIZED->          review
//	processing -RECOGNITION_FAILED->  failed
//	review     -EDIT->                review
//	review     -CONFIRM->             duplicate  (detector returned candidates)
//	review     -CONFIRM->             approved   (validation passed, no candidates)
//	duplicate  -OVERRIDE_DUPLICATE->  review
//
// approved and failed are terminal. A successful recognition always
// lands in review, including at high confidence: auto-progress only
// skips the correction step, the explicit user confirmation is still
// required before approval.
func NewLifecycle(current State, g LifecycleGuards) Machine {
	notDuplicate := func(ctx context.Context) bool { return !g.HasDuplicates(ctx) }

	b := NewBuilder()
	b.Permit(entity.StatusProcessing, TriggerRecognized, entity.StatusReview)
	b.Permit(entity.StatusProcessing, TriggerRecognitionFailed, entity.StatusFailed)
	b.Permit(entity.StatusReview, TriggerEdit, entity.StatusReview)
	b.PermitIf(entity.StatusReview, TriggerConfirm, entity.StatusDuplicate, g.HasDuplicates)
	b.PermitIf(entity.StatusReview, TriggerConfirm, entity.StatusApproved, andGuard(g.ValidationPassed, notDuplicate))
	b.Permit(entity.StatusDuplicate, TriggerOverrideDuplicate, entity.StatusReview)
	return b.Build(current)
}

func andGuard(guards ...GuardFunc) GuardFunc {
	return func(ctx context.Context) bool {
		for _, g := range guards {
			if !g(ctx) {
				return false
			}
		}
		return true
	}
}
