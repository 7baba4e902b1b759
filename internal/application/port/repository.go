package port

import (
	"context"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
)

// ReceiptRepository defines persistence operations for receipts.
//
// Update enforces optimistic concurrency: the write only succeeds when
// the stored version equals receipt.Version, and the stored version is
// incremented atomically. A mismatch yields
// entity.ErrConcurrentModification.
type ReceiptRepository interface {
	Create(ctx context.Context, receipt *entity.Receipt) error
	GetByID(ctx context.Context, id string) (*entity.Receipt, error)
	Update(ctx context.Context, receipt *entity.Receipt) error

	// ListByOwner returns all of an owner's records; the duplicate
	// detector relies on this being a consistent snapshot
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.Receipt, error)

	// ListByOwnerAndStatus restricts the listing to one status
	ListByOwnerAndStatus(ctx context.Context, ownerID string, status entity.Status) ([]*entity.Receipt, error)

	// AppendEdit persists one edit-history entry
	AppendEdit(ctx context.Context, edit *entity.FieldEdit) error

	// ListEdits returns a receipt's edit history, oldest first
	ListEdits(ctx context.Context, receiptID string) ([]entity.FieldEdit, error)
}
