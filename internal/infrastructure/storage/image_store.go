package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// allowedExtensions are the upload formats the recognizer can consume.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// LocalImageStore implements port.ImageStore on the local filesystem.
// References are relative paths under baseDir; callers never see
// absolute paths.
type LocalImageStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalImageStore creates an image store rooted at baseDir.
func NewLocalImageStore(baseDir string, logger *zap.Logger) *LocalImageStore {
	return &LocalImageStore{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Store persists an uploaded image and returns its opaque reference.
func (s *LocalImageStore) Store(ctx context.Context, ownerID, filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("unsupported image format: %s", ext)
	}
	if len(content) == 0 {
		return "", fmt.Errorf("empty upload: %s", filename)
	}

	ref := filepath.Join(sanitizeSegment(ownerID), uuid.New().String()+ext)
	fullPath := filepath.Join(s.baseDir, ref)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create image directory",
			zap.String("path", filepath.Dir(fullPath)),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write image",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	s.logger.Debug("Image stored",
		zap.String("ref", ref),
		zap.Int("size", len(content)))
	return ref, nil
}

// Resolve returns the stored bytes and file extension for a reference.
func (s *LocalImageStore) Resolve(ctx context.Context, imageRef string) ([]byte, string, error) {
	fullPath := filepath.Join(s.baseDir, imageRef)
	if err := s.validatePath(fullPath); err != nil {
		return nil, "", err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image %s: %w", imageRef, err)
	}
	return content, strings.ToLower(filepath.Ext(imageRef)), nil
}

// validatePath rejects references that escape the base directory.
func (s *LocalImageStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}
	return nil
}

// sanitizeSegment strips characters that are unsafe in a path segment.
func sanitizeSegment(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if cleaned == "" {
		return "_"
	}
	return cleaned
}
