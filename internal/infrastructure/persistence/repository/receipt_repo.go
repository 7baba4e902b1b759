package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/HadassahLevi/tiktax/internal/application/port"
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
)

// ReceiptRepository implements port.ReceiptRepository over sqlite
type ReceiptRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *sql.DB, logger *zap.Logger) port.ReceiptRepository {
	return &ReceiptRepository{db: db, logger: logger}
}

const receiptColumns = `
	id, owner_id, vendor_name, business_id, date, total_amount, vat_amount,
	pre_vat_amount, invoice_number, notes, category_id, status, is_duplicate,
	duplicate_of_id, confidence, vat_validated, image_ref, version,
	created_at, updated_at, approved_at
`

// Create inserts a new receipt at version 1
func (r *ReceiptRepository) Create(ctx context.Context, rec *entity.Receipt) error {
	confidence, err := json.Marshal(rec.Confidence)
	if err != nil {
		return fmt.Errorf("failed to encode confidence: %w", err)
	}

	query := `
		INSERT INTO receipts (` + receiptColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	rec.Version = 1
	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.OwnerID,
		rec.VendorName,
		rec.BusinessID,
		rec.Date,
		rec.TotalAmount,
		rec.VATAmount,
		rec.PreVATAmount,
		rec.InvoiceNumber,
		rec.Notes,
		rec.CategoryID,
		string(rec.Status),
		rec.IsDuplicate,
		nullString(rec.DuplicateOfID),
		string(confidence),
		rec.VATValidated,
		rec.ImageRef,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.ApprovedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create receipt", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to create receipt: %w", err)
	}

	return nil
}

// GetByID retrieves a receipt by id, nil when absent
func (r *ReceiptRepository) GetByID(ctx context.Context, id string) (*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = ?`

	rec, err := r.scanReceipt(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get receipt", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return rec, nil
}

// Update writes the receipt back, enforcing the optimistic version
// check. The stored version increments on success.
func (r *ReceiptRepository) Update(ctx context.Context, rec *entity.Receipt) error {
	confidence, err := json.Marshal(rec.Confidence)
	if err != nil {
		return fmt.Errorf("failed to encode confidence: %w", err)
	}

	query := `
		UPDATE receipts SET
			vendor_name = ?, business_id = ?, date = ?, total_amount = ?,
			vat_amount = ?, pre_vat_amount = ?, invoice_number = ?, notes = ?,
			category_id = ?, status = ?, is_duplicate = ?, duplicate_of_id = ?,
			confidence = ?, vat_validated = ?, image_ref = ?,
			version = version + 1, updated_at = ?, approved_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		rec.VendorName,
		rec.BusinessID,
		rec.Date,
		rec.TotalAmount,
		rec.VATAmount,
		rec.PreVATAmount,
		rec.InvoiceNumber,
		rec.Notes,
		rec.CategoryID,
		string(rec.Status),
		rec.IsDuplicate,
		nullString(rec.DuplicateOfID),
		string(confidence),
		rec.VATValidated,
		rec.ImageRef,
		rec.UpdatedAt,
		rec.ApprovedAt,
		rec.ID,
		rec.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update receipt", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update receipt: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		exists, eerr := r.exists(ctx, rec.ID)
		if eerr != nil {
			return eerr
		}
		if !exists {
			return fmt.Errorf("%w: %s", entity.ErrReceiptNotFound, rec.ID)
		}
		return fmt.Errorf("%w: receipt %s version %d", entity.ErrConcurrentModification, rec.ID, rec.Version)
	}

	rec.Version++
	return nil
}

// ListByOwner returns all of an owner's receipts, newest first
func (r *ReceiptRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE owner_id = ? ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID)
}

// ListByOwnerAndStatus restricts the listing to one status
func (r *ReceiptRepository) ListByOwnerAndStatus(ctx context.Context, ownerID string, status entity.Status) ([]*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE owner_id = ? AND status = ? ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID, string(status))
}

func (r *ReceiptRepository) list(ctx context.Context, query string, args ...any) ([]*entity.Receipt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list receipts", zap.Error(err))
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*entity.Receipt
	for rows.Next() {
		rec, err := r.scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	return receipts, nil
}

// AppendEdit persists one edit-history entry
func (r *ReceiptRepository) AppendEdit(ctx context.Context, edit *entity.FieldEdit) error {
	query := `
		INSERT INTO receipt_edits (receipt_id, field, old_value, new_value, edited_by, edited_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		edit.ReceiptID,
		string(edit.Field),
		edit.OldValue,
		edit.NewValue,
		edit.EditedBy,
		edit.EditedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append edit", zap.String("receipt_id", edit.ReceiptID), zap.Error(err))
		return fmt.Errorf("failed to append edit: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	edit.ID = id
	return nil
}

// ListEdits returns a receipt's edit history, oldest first
func (r *ReceiptRepository) ListEdits(ctx context.Context, receiptID string) ([]entity.FieldEdit, error) {
	query := `
		SELECT id, receipt_id, field, old_value, new_value, edited_by, edited_at
		FROM receipt_edits
		WHERE receipt_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, receiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
	}
	defer rows.Close()

	var edits []entity.FieldEdit
	for rows.Next() {
		var edit entity.FieldEdit
		var field string
		if err := rows.Scan(&edit.ID, &edit.ReceiptID, &field, &edit.OldValue, &edit.NewValue, &edit.EditedBy, &edit.EditedAt); err != nil {
			return nil, fmt.Errorf("failed to scan edit: %w", err)
		}
		edit.Field = entity.FieldID(field)
		edits = append(edits, edit)
	}
	return edits, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ReceiptRepository) scanReceipt(row rowScanner) (*entity.Receipt, error) {
	var rec entity.Receipt
	var (
		status      string
		date        sql.NullTime
		approvedAt  sql.NullTime
		duplicateOf sql.NullString
		confidence  string
	)

	err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.VendorName,
		&rec.BusinessID,
		&date,
		&rec.TotalAmount,
		&rec.VATAmount,
		&rec.PreVATAmount,
		&rec.InvoiceNumber,
		&rec.Notes,
		&rec.CategoryID,
		&status,
		&rec.IsDuplicate,
		&duplicateOf,
		&confidence,
		&rec.VATValidated,
		&rec.ImageRef,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&approvedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = entity.Status(status)
	if date.Valid {
		rec.Date = &date.Time
	}
	if approvedAt.Valid {
		rec.ApprovedAt = &approvedAt.Time
	}
	if duplicateOf.Valid {
		rec.DuplicateOfID = duplicateOf.String
	}
	if confidence != "" {
		if err := json.Unmarshal([]byte(confidence), &rec.Confidence); err != nil {
			return nil, fmt.Errorf("failed to decode confidence: %w", err)
		}
	}

	return &rec, nil
}

func (r *ReceiptRepository) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM receipts WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check receipt existence: %w", err)
	}
	return true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
