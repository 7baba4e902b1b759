package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HadassahLevi/tiktax/internal/application/port"
	"github.com/HadassahLevi/tiktax/internal/confidence"
	"github.com/HadassahLevi/tiktax/internal/dedup"
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/domain/workflow"
	"github.com/HadassahLevi/tiktax/internal/tax"
)

// Outcome is the structured result of a lifecycle operation. Field
// errors and duplicate findings are expected branches and travel here,
// not as errors.
type Outcome struct {
	Receipt     *entity.Receipt    `json:"receipt"`
	FieldErrors entity.FieldErrors `json:"field_errors,omitempty"`
	Duplicate   *dedup.Result      `json:"duplicate,omitempty"`
}

// ReceiptService orchestrates the receipt lifecycle: recognition
// intake, confidence routing, validation, duplicate detection and the
// guarded transitions between statuses.
type ReceiptService struct {
	repo       port.ReceiptRepository
	recognizer port.Recognizer
	detector   *dedup.Detector
	registry   *entity.CategoryRegistry
	archiver   port.Archiver // optional
	validation ValidationConfig
	statsCache *statsCache
	logger     *zap.Logger

	// ownerMu serializes duplicate checking per owner so two racing
	// uploads cannot both miss each other
	ownerMu sync.Mutex
	owners  map[string]*sync.Mutex
}

// NewReceiptService creates the lifecycle orchestrator. archiver may be
// nil; it is only consulted after approval.
func NewReceiptService(
	repo port.ReceiptRepository,
	recognizer port.Recognizer,
	detector *dedup.Detector,
	registry *entity.CategoryRegistry,
	archiver port.Archiver,
	validation ValidationConfig,
	logger *zap.Logger,
) *ReceiptService {
	return &ReceiptService{
		repo:       repo,
		recognizer: recognizer,
		detector:   detector,
		registry:   registry,
		archiver:   archiver,
		validation: validation,
		statsCache: newStatsCache(),
		logger:     logger,
		owners:     make(map[string]*sync.Mutex),
	}
}

func (s *ReceiptService) lockOwner(ownerID string) func() {
	s.ownerMu.Lock()
	mu, ok := s.owners[ownerID]
	if !ok {
		mu = &sync.Mutex{}
		s.owners[ownerID] = mu
	}
	s.ownerMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Submit creates a processing record for the uploaded image and runs
// the recognition pass. The returned receipt is in review or failed;
// recognition failure is terminal for this attempt, and the caller may
// re-submit a new image as a new logical receipt.
func (s *ReceiptService) Submit(ctx context.Context, ownerID, imageRef string) (*Outcome, error) {
	now := time.Now().UTC()
	rec := &entity.Receipt{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Status:    entity.StatusProcessing,
		ImageRef:  imageRef,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create receipt: %w", err)
	}

	s.logger.Info("Receipt submitted",
		zap.String("receipt_id", rec.ID),
		zap.String("owner_id", ownerID))

	return s.runRecognition(ctx, rec)
}

// runRecognition drives processing -> review|failed
func (s *ReceiptService) runRecognition(ctx context.Context, rec *entity.Receipt) (*Outcome, error) {
	machine := s.machineFor(rec, nil, dedup.Result{})

	result, err := s.recognizer.Recognize(ctx, rec.ImageRef)
	if err != nil {
		if !errors.Is(err, entity.ErrRecognitionFailed) && !errors.Is(err, entity.ErrRecognitionTimeout) {
			err = fmt.Errorf("%w: %v", entity.ErrRecognitionFailed, err)
		}
		s.logger.Warn("Recognition failed",
			zap.String("receipt_id", rec.ID),
			zap.Error(err))

		if ferr := machine.Fire(ctx, workflow.TriggerRecognitionFailed); ferr != nil {
			return nil, ferr
		}
		rec.Status = machine.State()
		if uerr := s.update(ctx, rec); uerr != nil {
			return nil, uerr
		}
		return &Outcome{Receipt: rec}, nil
	}

	s.applyRecognition(rec, result)
	fieldErrs := validateReceipt(rec, s.registry, s.validation)
	rec.VATValidated = !fieldErrs.Has(entity.FieldVATAmount) && !fieldErrs.Has(entity.FieldTotalAmount)

	if err := machine.Fire(ctx, workflow.TriggerRecognized); err != nil {
		return nil, err
	}
	rec.Status = machine.State()

	if err := s.update(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("Recognition completed",
		zap.String("receipt_id", rec.ID),
		zap.String("overall_band", string(rec.Confidence.Overall)),
		zap.Int("field_errors", len(fieldErrs)),
		zap.Bool("requires_review", confidence.RequiresReview(rec.Confidence.Overall)))

	return &Outcome{Receipt: rec, FieldErrors: fieldErrs}, nil
}

// applyRecognition copies extracted values onto the receipt and derives
// the confidence score set.
func (s *ReceiptService) applyRecognition(rec *entity.Receipt, result *port.RecognitionResult) {
	rec.VendorName = result.Value(entity.FieldVendorName)
	rec.InvoiceNumber = result.Value(entity.FieldInvoiceNumber)

	normalized, _ := tax.NormalizeBusinessID(result.Value(entity.FieldBusinessID))
	rec.BusinessID = normalized

	if t, err := tax.ParseDate(result.Value(entity.FieldDate)); err == nil {
		rec.Date = &t
	}
	if v, err := entity.ParseAmount(result.Value(entity.FieldTotalAmount)); err == nil {
		rec.TotalAmount = v
	}
	if v, err := entity.ParseAmount(result.Value(entity.FieldVATAmount)); err == nil {
		rec.VATAmount = v
	}

	if tax.ValidPositiveAmount(rec.TotalAmount) {
		rec.PreVATAmount = tax.DerivePreVAT(rec.TotalAmount, s.validation.VATRate)
	}

	// The suggested category is advisory; unknown ids are dropped.
	if suggested := result.Value(entity.FieldCategory); suggested != "" {
		if _, ok := s.registry.Get(suggested); ok {
			rec.CategoryID = suggested
		}
	}

	rec.Confidence = confidence.Evaluate(result.Bands())
}

// ApplyEdit applies one field correction during review. The edit is
// appended to history and validation re-runs on the updated data.
func (s *ReceiptService) ApplyEdit(ctx context.Context, receiptID string, field entity.FieldID, newValue, editedBy string) (*Outcome, error) {
	if !field.IsValid() {
		return nil, fmt.Errorf("unknown field identifier %q", field)
	}

	rec, err := s.get(ctx, receiptID)
	if err != nil {
		return nil, err
	}

	machine := s.machineFor(rec, nil, dedup.Result{})
	if err := machine.Fire(ctx, workflow.TriggerEdit); err != nil {
		return nil, err
	}

	oldValue := rec.FieldValue(field)
	if ferr := setField(rec, field, newValue); ferr != nil {
		return &Outcome{Receipt: rec, FieldErrors: entity.FieldErrors{*ferr}}, nil
	}

	edit := &entity.FieldEdit{
		ReceiptID: rec.ID,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  rec.FieldValue(field),
		EditedBy:  editedBy,
		EditedAt:  time.Now().UTC(),
	}
	if err := s.repo.AppendEdit(ctx, edit); err != nil {
		return nil, fmt.Errorf("failed to record edit: %w", err)
	}
	rec.Edits = append(rec.Edits, *edit)

	fieldErrs := validateReceipt(rec, s.registry, s.validation)
	rec.VATValidated = !fieldErrs.Has(entity.FieldVATAmount) && !fieldErrs.Has(entity.FieldTotalAmount)
	rec.Status = machine.State()

	if err := s.update(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("Receipt edited",
		zap.String("receipt_id", rec.ID),
		zap.String("field", string(field)),
		zap.String("edited_by", editedBy))

	return &Outcome{Receipt: rec, FieldErrors: fieldErrs}, nil
}

// Confirm is the user's submission of corrected/confirmed data. It
// re-validates, runs the duplicate detector over a consistent snapshot
// of the owner's records, and fires the guarded CONFIRM transition:
// approved when clean, duplicate when candidates exist, and unchanged
// (with field errors) when validation fails.
func (s *ReceiptService) Confirm(ctx context.Context, receiptID string) (*Outcome, error) {
	rec, err := s.get(ctx, receiptID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockOwner(rec.OwnerID)
	defer unlock()

	// reload under the owner lock so the dedup snapshot and the version
	// check see the latest state
	rec, err = s.get(ctx, receiptID)
	if err != nil {
		return nil, err
	}

	fieldErrs := validateReceipt(rec, s.registry, s.validation)

	existing, err := s.repo.ListByOwner(ctx, rec.OwnerID)
	if err != nil {
		// fail closed: without the existing set nothing may approach
		// approval
		return nil, fmt.Errorf("%w: %v", entity.ErrDuplicateCheckUnavailable, err)
	}
	dupResult := s.detector.FindDuplicates(rec, existing)

	machine := s.machineFor(rec, fieldErrs, dupResult)
	err = machine.Fire(ctx, workflow.TriggerConfirm)
	switch {
	case errors.Is(err, workflow.ErrGuardRejected):
		// validation failed and no duplicates: stay in review, surface
		// the field errors for correction
		return &Outcome{Receipt: rec, FieldErrors: fieldErrs}, nil
	case err != nil:
		return nil, err
	}

	rec.Status = machine.State()
	now := time.Now().UTC()

	switch rec.Status {
	case entity.StatusDuplicate:
		rec.IsDuplicate = true
		rec.DuplicateOfID = dupResult.Candidates[0].Receipt.ID
		s.logger.Info("Receipt flagged as duplicate",
			zap.String("receipt_id", rec.ID),
			zap.String("duplicate_of", rec.DuplicateOfID),
			zap.Float64("similarity", dupResult.SimilarityScore))

	case entity.StatusApproved:
		rec.ApprovedAt = &now
		rec.VATValidated = true
		s.logger.Info("Receipt approved", zap.String("receipt_id", rec.ID))
	}

	if err := s.update(ctx, rec); err != nil {
		return nil, err
	}

	if rec.Status == entity.StatusApproved {
		s.statsCache.invalidate(rec.OwnerID)
		if s.archiver != nil {
			if aerr := s.archiver.Archive(ctx, rec); aerr != nil {
				// archival is best-effort and never blocks approval
				s.logger.Warn("Archival failed",
					zap.String("receipt_id", rec.ID),
					zap.Error(aerr))
			}
		}
	}

	outcome := &Outcome{Receipt: rec, FieldErrors: fieldErrs}
	if dupResult.IsDuplicate {
		outcome.Duplicate = &dupResult
	}
	return outcome, nil
}

// OverrideDuplicate is the explicit "not a duplicate" user decision,
// reopening the record for review.
func (s *ReceiptService) OverrideDuplicate(ctx context.Context, receiptID string) (*Outcome, error) {
	rec, err := s.get(ctx, receiptID)
	if err != nil {
		return nil, err
	}

	machine := s.machineFor(rec, nil, dedup.Result{})
	if err := machine.Fire(ctx, workflow.TriggerOverrideDuplicate); err != nil {
		return nil, err
	}

	rec.Status = machine.State()
	rec.IsDuplicate = false
	rec.DuplicateOfID = ""

	if err := s.update(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("Duplicate verdict overridden", zap.String("receipt_id", rec.ID))
	return &Outcome{Receipt: rec}, nil
}

// Get returns a receipt with its edit history
func (s *ReceiptService) Get(ctx context.Context, receiptID string) (*entity.Receipt, error) {
	rec, err := s.get(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	edits, err := s.repo.ListEdits(ctx, receiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edit history: %w", err)
	}
	rec.Edits = edits
	return rec, nil
}

// ListByOwner returns all of an owner's receipts
func (s *ReceiptService) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Receipt, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// machineFor positions the lifecycle machine at the receipt's status
// with guards bound to this pass's validation and dedup outcomes.
func (s *ReceiptService) machineFor(rec *entity.Receipt, fieldErrs entity.FieldErrors, dup dedup.Result) workflow.Machine {
	return workflow.NewLifecycle(rec.Status, workflow.LifecycleGuards{
		ValidationPassed: func(context.Context) bool { return len(fieldErrs) == 0 },
		HasDuplicates:    func(context.Context) bool { return dup.IsDuplicate },
	})
}

func (s *ReceiptService) get(ctx context.Context, receiptID string) (*entity.Receipt, error) {
	rec, err := s.repo.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrReceiptNotFound, receiptID)
	}
	return rec, nil
}

func (s *ReceiptService) update(ctx context.Context, rec *entity.Receipt) error {
	rec.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, rec); err != nil {
		if errors.Is(err, entity.ErrConcurrentModification) {
			return err
		}
		return fmt.Errorf("failed to update receipt: %w", err)
	}
	return nil
}

// setField writes a user-supplied value onto the receipt. Parse
// failures are reported as field errors without mutating the record.
func setField(rec *entity.Receipt, field entity.FieldID, value string) *entity.FieldError {
	switch field {
	case entity.FieldVendorName:
		rec.VendorName = value
	case entity.FieldBusinessID:
		normalized, ok := tax.NormalizeBusinessID(value)
		if !ok {
			return &entity.FieldError{Field: field, Reason: "business id must contain exactly 9 digits"}
		}
		rec.BusinessID = normalized
	case entity.FieldDate:
		t, err := tax.ParseDate(value)
		if err != nil {
			return &entity.FieldError{Field: field, Reason: "date must be dd/mm/yyyy or yyyy-mm-dd"}
		}
		rec.Date = &t
	case entity.FieldTotalAmount, entity.FieldVATAmount, entity.FieldPreVATAmount:
		v, err := entity.ParseAmount(value)
		if err != nil {
			return &entity.FieldError{Field: field, Reason: "amount must be numeric"}
		}
		switch field {
		case entity.FieldTotalAmount:
			rec.TotalAmount = v
		case entity.FieldVATAmount:
			rec.VATAmount = v
		case entity.FieldPreVATAmount:
			rec.PreVATAmount = v
		}
	case entity.FieldInvoiceNumber:
		rec.InvoiceNumber = value
	case entity.FieldCategory:
		rec.CategoryID = value
	case entity.FieldNotes:
		rec.Notes = value
	}
	return nil
}
