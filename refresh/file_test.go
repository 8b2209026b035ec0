package refresh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "refresh.json")
	now := time.Now()

	fs, err := OpenFileStore(path)
	require.NoError(t, err)

	rec := newRecord("u-1", now)
	require.NoError(t, fs.Put(ctx, rec))
	next := newRecord("u-1", now)
	require.NoError(t, fs.Rotate(ctx, rec.JTI, next, now))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, rec.JTI)
	require.NoError(t, err)
	assert.True(t, got.Consumed(), "consumed state must survive a restart")
	assert.Equal(t, next.JTI, got.SupersededBy)

	assert.ErrorIs(t, reopened.MarkConsumed(ctx, rec.JTI, "", now), ErrAlreadyConsumed)
}

func TestFileStoreRejectsCorruptLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenFileStore(path)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFileStoreEmptyFileIsEmptyLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, fs.Path())

	_, err = fs.Get(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreFailedWriteLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "refresh.json")

	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	rec := newRecord("u-1", time.Now())
	require.NoError(t, fs.Put(ctx, rec))

	// Replacing the ledger path with a directory makes the rename fail.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(path, "block"), nil, 0o600))

	err = fs.MarkConsumed(ctx, rec.JTI, "", time.Now())
	require.ErrorIs(t, err, ErrUnavailable)

	got, err := fs.Get(ctx, rec.JTI)
	require.NoError(t, err)
	assert.False(t, got.Consumed())
}
