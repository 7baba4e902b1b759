package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HadassahLevi/tiktax/internal/application/port"
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/pkg/database"
)

func newTestRepo(t *testing.T) port.ReceiptRepository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         ":memory:",
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunMigrations())

	return NewReceiptRepository(db.DB, zap.NewNop())
}

func sampleReceipt(id, ownerID string) *entity.Receipt {
	now := time.Now().UTC().Truncate(time.Second)
	date := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	return &entity.Receipt{
		ID:            id,
		OwnerID:       ownerID,
		VendorName:    "Office Depot",
		BusinessID:    "514932221",
		Date:          &date,
		TotalAmount:   118.00,
		VATAmount:     18.00,
		PreVATAmount:  100.00,
		InvoiceNumber: "INV-1001",
		CategoryID:    "office",
		Status:        entity.StatusProcessing,
		Confidence: entity.ConfidenceScoreSet{
			Fields: map[entity.FieldID]entity.ConfidenceBand{
				entity.FieldVendorName: entity.BandHigh,
			},
			Overall: entity.BandHigh,
		},
		ImageRef:  "owner/img.jpg",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestReceiptRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := sampleReceipt("r-1", "owner-1")
	require.NoError(t, repo.Create(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	got, err := repo.GetByID(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Office Depot", got.VendorName)
	assert.Equal(t, "514932221", got.BusinessID)
	assert.Equal(t, entity.StatusProcessing, got.Status)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.Date)
	assert.True(t, got.Date.Equal(*rec.Date))
	assert.Equal(t, entity.BandHigh, got.Confidence.Overall)
	assert.Equal(t, entity.BandHigh, got.Confidence.Fields[entity.FieldVendorName])
}

func TestReceiptRepository_GetMissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReceiptRepository_UpdateIncrementsVersion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := sampleReceipt("r-1", "owner-1")
	require.NoError(t, repo.Create(ctx, rec))

	rec.Status = entity.StatusReview
	rec.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Update(ctx, rec))
	assert.Equal(t, int64(2), rec.Version)

	got, err := repo.GetByID(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReview, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestReceiptRepository_UpdateStaleVersionConflicts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := sampleReceipt("r-1", "owner-1")
	require.NoError(t, repo.Create(ctx, rec))

	stale := *rec
	require.NoError(t, repo.Update(ctx, rec))

	stale.Status = entity.StatusFailed
	err := repo.Update(ctx, &stale)
	assert.ErrorIs(t, err, entity.ErrConcurrentModification)
}

func TestReceiptRepository_UpdateMissingReceipt(t *testing.T) {
	repo := newTestRepo(t)

	rec := sampleReceipt("ghost", "owner-1")
	rec.Version = 1
	err := repo.Update(context.Background(), rec)
	assert.ErrorIs(t, err, entity.ErrReceiptNotFound)
}

func TestReceiptRepository_ListByOwnerIsScoped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := sampleReceipt("r-1", "owner-a")
	b := sampleReceipt("r-2", "owner-a")
	b.CreatedAt = a.CreatedAt.Add(time.Minute)
	other := sampleReceipt("r-3", "owner-b")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, other))

	list, err := repo.ListByOwner(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Newest first.
	assert.Equal(t, "r-2", list[0].ID)
	assert.Equal(t, "r-1", list[1].ID)
}

func TestReceiptRepository_ListByOwnerAndStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	approved := sampleReceipt("r-1", "owner-a")
	approved.Status = entity.StatusApproved
	pending := sampleReceipt("r-2", "owner-a")
	require.NoError(t, repo.Create(ctx, approved))
	require.NoError(t, repo.Create(ctx, pending))

	list, err := repo.ListByOwnerAndStatus(ctx, "owner-a", entity.StatusApproved)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r-1", list[0].ID)
}

func TestReceiptRepository_EditHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := sampleReceipt("r-1", "owner-a")
	require.NoError(t, repo.Create(ctx, rec))

	first := &entity.FieldEdit{
		ReceiptID: "r-1",
		Field:     entity.FieldTotalAmount,
		OldValue:  "118.00",
		NewValue:  "120.00",
		EditedBy:  "owner-a",
		EditedAt:  time.Now().UTC(),
	}
	second := &entity.FieldEdit{
		ReceiptID: "r-1",
		Field:     entity.FieldVendorName,
		OldValue:  "Office Depot",
		NewValue:  "Office Depot Ltd",
		EditedBy:  "owner-a",
		EditedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.AppendEdit(ctx, first))
	require.NoError(t, repo.AppendEdit(ctx, second))
	assert.NotZero(t, first.ID)

	edits, err := repo.ListEdits(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, edits, 2)
	// Oldest first.
	assert.Equal(t, entity.FieldTotalAmount, edits[0].Field)
	assert.Equal(t, entity.FieldVendorName, edits[1].Field)
}
