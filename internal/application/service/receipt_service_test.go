package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HadassahLevi/tiktax/internal/application/port"
	"github.com/HadassahLevi/tiktax/internal/dedup"
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/domain/workflow"
	"github.com/HadassahLevi/tiktax/internal/stats"
)

func statsFilterApproved() stats.ExportFilter {
	return stats.ExportFilter{Statuses: []entity.Status{entity.StatusApproved}}
}

// in-memory repository with overridable behavior
type mockReceiptRepo struct {
	receipts map[string]*entity.Receipt
	edits    map[string][]entity.FieldEdit

	listByOwnerFunc func(ctx context.Context, ownerID string) ([]*entity.Receipt, error)
	updateFunc      func(ctx context.Context, rec *entity.Receipt) error

	listByOwnerAndStatusCalls int
}

func newMockRepo() *mockReceiptRepo {
	return &mockReceiptRepo{
		receipts: make(map[string]*entity.Receipt),
		edits:    make(map[string][]entity.FieldEdit),
	}
}

func (m *mockReceiptRepo) Create(_ context.Context, rec *entity.Receipt) error {
	cp := *rec
	m.receipts[rec.ID] = &cp
	return nil
}

func (m *mockReceiptRepo) GetByID(_ context.Context, id string) (*entity.Receipt, error) {
	rec, ok := m.receipts[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockReceiptRepo) Update(ctx context.Context, rec *entity.Receipt) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, rec)
	}
	stored, ok := m.receipts[rec.ID]
	if !ok {
		return entity.ErrReceiptNotFound
	}
	if stored.Version != rec.Version {
		return entity.ErrConcurrentModification
	}
	cp := *rec
	cp.Version++
	m.receipts[rec.ID] = &cp
	rec.Version = cp.Version
	return nil
}

func (m *mockReceiptRepo) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Receipt, error) {
	if m.listByOwnerFunc != nil {
		return m.listByOwnerFunc(ctx, ownerID)
	}
	var out []*entity.Receipt
	for _, rec := range m.receipts {
		if rec.OwnerID == ownerID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockReceiptRepo) ListByOwnerAndStatus(_ context.Context, ownerID string, status entity.Status) ([]*entity.Receipt, error) {
	m.listByOwnerAndStatusCalls++
	var out []*entity.Receipt
	for _, rec := range m.receipts {
		if rec.OwnerID == ownerID && rec.Status == status {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockReceiptRepo) AppendEdit(_ context.Context, edit *entity.FieldEdit) error {
	edit.ID = int64(len(m.edits[edit.ReceiptID]) + 1)
	m.edits[edit.ReceiptID] = append(m.edits[edit.ReceiptID], *edit)
	return nil
}

func (m *mockReceiptRepo) ListEdits(_ context.Context, receiptID string) ([]entity.FieldEdit, error) {
	return m.edits[receiptID], nil
}

type mockRecognizer struct {
	recognizeFunc func(ctx context.Context, imageRef string) (*port.RecognitionResult, error)
}

func (m *mockRecognizer) Recognize(ctx context.Context, imageRef string) (*port.RecognitionResult, error) {
	return m.recognizeFunc(ctx, imageRef)
}

type mockArchiver struct {
	archived []string
}

func (m *mockArchiver) Archive(_ context.Context, rec *entity.Receipt) error {
	m.archived = append(m.archived, rec.ID)
	return nil
}

func goodRecognition() *port.RecognitionResult {
	return &port.RecognitionResult{
		Fields: map[entity.FieldID]port.RecognizedField{
			entity.FieldVendorName:    {Value: "Office Depot", Band: entity.BandHigh},
			entity.FieldBusinessID:    {Value: "51-493-2221", Band: entity.BandHigh},
			entity.FieldDate:          {Value: "25/12/2024", Band: entity.BandHigh},
			entity.FieldTotalAmount:   {Value: "118.00", Band: entity.BandHigh},
			entity.FieldVATAmount:     {Value: "18.00", Band: entity.BandHigh},
			entity.FieldInvoiceNumber: {Value: "INV-1001", Band: entity.BandHigh},
		},
	}
}

func newTestService(repo *mockReceiptRepo, recognizer port.Recognizer, archiver port.Archiver) *ReceiptService {
	return NewReceiptService(
		repo,
		recognizer,
		dedup.MustDefault(),
		entity.NewCategoryRegistry(entity.SeedCategories()),
		archiver,
		DefaultValidationConfig(),
		zap.NewNop(),
	)
}

func TestSubmit_CleanRecognitionRoutesToReview(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	outcome, err := svc.Submit(context.Background(), "owner-1", "img-1")
	require.NoError(t, err)

	rec := outcome.Receipt
	assert.Equal(t, entity.StatusReview, rec.Status)
	assert.Equal(t, "514932221", rec.BusinessID)
	assert.InDelta(t, 118.00, rec.TotalAmount, 0.001)
	assert.InDelta(t, 100.00, rec.PreVATAmount, 0.001)
	assert.Equal(t, entity.BandHigh, rec.Confidence.Overall)
	assert.True(t, rec.VATValidated)
	assert.Empty(t, outcome.FieldErrors)
}

func TestSubmit_RecognitionFailureIsTerminal(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return nil, entity.ErrRecognitionTimeout
		},
	}, nil)

	outcome, err := svc.Submit(context.Background(), "owner-1", "img-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, outcome.Receipt.Status)
}

func TestSubmit_PartialExtractionGetsLowOverall(t *testing.T) {
	repo := newMockRepo()
	partial := goodRecognition()
	delete(partial.Fields, entity.FieldVATAmount)

	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return partial, nil
		},
	}, nil)

	outcome, err := svc.Submit(context.Background(), "owner-1", "img-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReview, outcome.Receipt.Status)
	assert.Equal(t, entity.BandLow, outcome.Receipt.Confidence.Overall)
	// VAT value missing entirely, so validation flags it
	assert.True(t, outcome.FieldErrors.Has(entity.FieldVATAmount))
}

func submitClean(t *testing.T, svc *ReceiptService, owner string) *entity.Receipt {
	t.Helper()
	outcome, err := svc.Submit(context.Background(), owner, "img")
	require.NoError(t, err)
	require.Equal(t, entity.StatusReview, outcome.Receipt.Status)
	return outcome.Receipt
}

func TestConfirm_CleanReceiptIsApproved(t *testing.T) {
	repo := newMockRepo()
	archiver := &mockArchiver{}
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, archiver)

	rec := submitClean(t, svc, "owner-1")

	outcome, err := svc.Confirm(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, outcome.Receipt.Status)
	require.NotNil(t, outcome.Receipt.ApprovedAt)
	assert.Equal(t, []string{rec.ID}, archiver.archived)
}

func TestConfirm_DuplicateSubmissionIsFlagged(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	first := submitClean(t, svc, "owner-1")
	_, err := svc.Confirm(context.Background(), first.ID)
	require.NoError(t, err)

	second := submitClean(t, svc, "owner-1")
	outcome, err := svc.Confirm(context.Background(), second.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusDuplicate, outcome.Receipt.Status)
	assert.True(t, outcome.Receipt.IsDuplicate)
	assert.Equal(t, first.ID, outcome.Receipt.DuplicateOfID)
	require.NotNil(t, outcome.Duplicate)
	assert.InDelta(t, 1.0, outcome.Duplicate.SimilarityScore, 1e-9)
}

func TestConfirm_ValidationErrorsKeepReview(t *testing.T) {
	repo := newMockRepo()
	bad := goodRecognition()
	bad.Fields[entity.FieldVATAmount] = port.RecognizedField{Value: "50.00", Band: entity.BandHigh}

	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return bad, nil
		},
	}, nil)

	outcome, err := svc.Submit(context.Background(), "owner-1", "img")
	require.NoError(t, err)
	rec := outcome.Receipt
	assert.False(t, rec.VATValidated)

	confirmed, err := svc.Confirm(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReview, confirmed.Receipt.Status)
	assert.True(t, confirmed.FieldErrors.Has(entity.FieldVATAmount))
}

func TestConfirm_FailsClosedWhenSnapshotUnavailable(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	rec := submitClean(t, svc, "owner-1")
	repo.listByOwnerFunc = func(context.Context, string) ([]*entity.Receipt, error) {
		return nil, errors.New("storage down")
	}

	_, err := svc.Confirm(context.Background(), rec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrDuplicateCheckUnavailable)

	// the receipt must not have moved
	repo.listByOwnerFunc = nil
	stored, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReview, stored.Status)
}

func TestOverrideDuplicate_ReopensReview(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	first := submitClean(t, svc, "owner-1")
	_, err := svc.Confirm(context.Background(), first.ID)
	require.NoError(t, err)

	second := submitClean(t, svc, "owner-1")
	_, err = svc.Confirm(context.Background(), second.ID)
	require.NoError(t, err)

	outcome, err := svc.OverrideDuplicate(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReview, outcome.Receipt.Status)
	assert.False(t, outcome.Receipt.IsDuplicate)
	assert.Empty(t, outcome.Receipt.DuplicateOfID)
}

func TestOverrideDuplicate_RejectedOutsideDuplicate(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	rec := submitClean(t, svc, "owner-1")
	_, err := svc.OverrideDuplicate(context.Background(), rec.ID)
	assert.ErrorIs(t, err, workflow.ErrStateConflict)
}

func TestApplyEdit_AppendsHistoryAndRevalidates(t *testing.T) {
	repo := newMockRepo()
	bad := goodRecognition()
	bad.Fields[entity.FieldVATAmount] = port.RecognizedField{Value: "50.00", Band: entity.BandMedium}

	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return bad, nil
		},
	}, nil)

	outcome, err := svc.Submit(context.Background(), "owner-1", "img")
	require.NoError(t, err)
	rec := outcome.Receipt

	edited, err := svc.ApplyEdit(context.Background(), rec.ID, entity.FieldVATAmount, "18.00", "user-7")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReview, edited.Receipt.Status)
	assert.Empty(t, edited.FieldErrors)
	assert.True(t, edited.Receipt.VATValidated)

	require.Len(t, edited.Receipt.Edits, 1)
	edit := edited.Receipt.Edits[0]
	assert.Equal(t, entity.FieldVATAmount, edit.Field)
	assert.Equal(t, "50.00", edit.OldValue)
	assert.Equal(t, "18.00", edit.NewValue)
	assert.Equal(t, "user-7", edit.EditedBy)
}

func TestApplyEdit_UnparseableValueIsFieldError(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	rec := submitClean(t, svc, "owner-1")

	outcome, err := svc.ApplyEdit(context.Background(), rec.ID, entity.FieldDate, "not a date", "user-7")
	require.NoError(t, err)
	assert.True(t, outcome.FieldErrors.Has(entity.FieldDate))
	// no history entry for a rejected edit
	edits, err := repo.ListEdits(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestApplyEdit_RejectedOnTerminalReceipt(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	rec := submitClean(t, svc, "owner-1")
	_, err := svc.Confirm(context.Background(), rec.ID)
	require.NoError(t, err)

	_, err = svc.ApplyEdit(context.Background(), rec.ID, entity.FieldNotes, "late note", "user-7")
	assert.ErrorIs(t, err, workflow.ErrStateConflict)
}

func TestApplyEdit_UnknownFieldRejected(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	rec := submitClean(t, svc, "owner-1")
	_, err := svc.ApplyEdit(context.Background(), rec.ID, entity.FieldID("totally_made_up"), "v", "user-7")
	assert.Error(t, err)
}

func TestUpdate_PropagatesConcurrentModification(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	rec := submitClean(t, svc, "owner-1")
	repo.updateFunc = func(context.Context, *entity.Receipt) error {
		return entity.ErrConcurrentModification
	}

	_, err := svc.ApplyEdit(context.Background(), rec.ID, entity.FieldNotes, "note", "user-7")
	assert.ErrorIs(t, err, entity.ErrConcurrentModification)
}

func TestStatistics_CachedUntilApproval(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	now := time.Now().UTC()

	_, err := svc.Statistics(context.Background(), "owner-1", now, 0)
	require.NoError(t, err)
	_, err = svc.Statistics(context.Background(), "owner-1", now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listByOwnerAndStatusCalls)

	rec := submitClean(t, svc, "owner-1")
	_, err = svc.Confirm(context.Background(), rec.ID)
	require.NoError(t, err)

	statistics, err := svc.Statistics(context.Background(), "owner-1", now, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listByOwnerAndStatusCalls)
	assert.Equal(t, 1, statistics.TotalCount)
}

func TestExport_FiltersOwnerRecords(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockRecognizer{
		recognizeFunc: func(context.Context, string) (*port.RecognitionResult, error) {
			return goodRecognition(), nil
		},
	}, nil)

	rec := submitClean(t, svc, "owner-1")
	_, err := svc.Confirm(context.Background(), rec.ID)
	require.NoError(t, err)

	result, err := svc.Export(context.Background(), "owner-1", statsFilterApproved())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.InDelta(t, 118.0, result.TotalAmount, 0.001)
}
