package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalImageStore_StoreAndResolve(t *testing.T) {
	store := NewLocalImageStore(t.TempDir(), zap.NewNop())

	content := []byte("fake-jpeg-bytes")
	ref, err := store.Store(context.Background(), "owner-1", "receipt.jpg", content)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	assert.Equal(t, ".jpg", filepath.Ext(ref))

	got, ext, err := store.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, ".jpg", ext)
}

func TestLocalImageStore_RejectsUnsupportedFormat(t *testing.T) {
	store := NewLocalImageStore(t.TempDir(), zap.NewNop())

	_, err := store.Store(context.Background(), "owner-1", "notes.txt", []byte("x"))
	assert.Error(t, err)
}

func TestLocalImageStore_RejectsEmptyUpload(t *testing.T) {
	store := NewLocalImageStore(t.TempDir(), zap.NewNop())

	_, err := store.Store(context.Background(), "owner-1", "receipt.png", nil)
	assert.Error(t, err)
}

func TestLocalImageStore_ResolveRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(filepath.Dir(base), "secret.jpg")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0644))
	defer os.Remove(outside)

	store := NewLocalImageStore(base, zap.NewNop())

	_, _, err := store.Resolve(context.Background(), filepath.Join("..", "secret.jpg"))
	assert.Error(t, err)
}

func TestLocalImageStore_SanitizesOwnerSegment(t *testing.T) {
	store := NewLocalImageStore(t.TempDir(), zap.NewNop())

	ref, err := store.Store(context.Background(), "../evil", "receipt.png", []byte("x"))
	require.NoError(t, err)
	assert.NotContains(t, ref, "..")
}
