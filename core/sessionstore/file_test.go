package sessionstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/core/sessionstore"
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store, err := sessionstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	rec := validRecord()
	require.NoError(t, store.Save(ctx, rec))

	loaded, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, loaded)

	require.NoError(t, store.Clear(ctx))
	_, ok, err = store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_CorruptFilePurgedOnRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := sessionstore.NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	path := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "corrupt file must be removed")
}

func TestFileStore_ExpiredFilePurgedOnRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := sessionstore.NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	rec := validRecord()
	rec.TokenExpMs = time.Now().Add(-time.Minute).UnixMilli()
	require.NoError(t, store.Save(context.Background(), rec))

	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, statErr := os.Stat(filepath.Join(dir, "session.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStore_WatchSeesExternalWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := sessionstore.NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch, err := store.Watch(ctx)
	require.NoError(t, err)

	// A second store on the same directory plays the role of another
	// process mutating the record.
	other, err := sessionstore.NewFileStore(dir)
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.Save(context.Background(), validRecord()))

	select {
	case <-watch:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal for external write")
	}
}

func TestFileStore_PurgeRemovesAuxFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := sessionstore.NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	aux := filepath.Join(dir, "lastWorkflowAction")
	require.NoError(t, os.WriteFile(aux, []byte(`"validate"`), 0o600))

	require.NoError(t, store.Purge(context.Background(), "lastWorkflowAction"))

	_, statErr := os.Stat(aux)
	assert.True(t, os.IsNotExist(statErr))

	// Purging an absent key is not an error.
	require.NoError(t, store.Purge(context.Background(), "neverExisted"))
}
