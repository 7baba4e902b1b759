package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"go.uber.org/zap"
)

// FileArchiver implements port.Archiver by writing approved receipts
// as JSON snapshots under baseDir/<owner>/<year>/. Snapshots are laid
// out per tax year so an accountant can pick up a whole year at once.
type FileArchiver struct {
	baseDir string
	logger  *zap.Logger
}

// NewFileArchiver creates a filesystem-backed archiver.
func NewFileArchiver(baseDir string, logger *zap.Logger) *FileArchiver {
	return &FileArchiver{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Archive persists a snapshot of an approved receipt.
func (a *FileArchiver) Archive(ctx context.Context, receipt *entity.Receipt) error {
	year := "undated"
	if receipt.Date != nil {
		year = fmt.Sprintf("%04d", receipt.Date.Year())
	}

	dir := filepath.Join(a.baseDir, sanitizeSegment(receipt.OwnerID), year)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	data, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}

	path := filepath.Join(dir, receipt.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write archive snapshot: %w", err)
	}

	a.logger.Info("Receipt archived",
		zap.String("receipt_id", receipt.ID),
		zap.String("path", path))
	return nil
}
