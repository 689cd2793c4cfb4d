package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/minitools/internal/store"
)

func TestLocalArtifacts(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocalArtifacts(dir)
	require.NoError(t, err)
	ctx := context.Background()

	key := store.InputKey("j1", 0)
	require.NoError(t, l.Put(ctx, key, []byte("hello")))
	assert.FileExists(t, filepath.Join(dir, "jobs", "j1", "in", "0"))

	got, err := l.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, l.Put(ctx, key, []byte("again")))
	got, _ = l.Get(ctx, key)
	assert.Equal(t, "again", string(got))

	require.NoError(t, l.Delete(ctx, key))
	require.NoError(t, l.Delete(ctx, key))
	_, err = l.Get(ctx, key)
	assert.ErrorIs(t, err, store.ErrNotFound)

	for _, bad := range []string{"", "../escape", "/abs/path", ".."} {
		assert.Error(t, l.Put(ctx, bad, nil), bad)
	}
}

func TestCleanupArtifacts(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocalArtifacts(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, l.Put(ctx, "jobs/old/out", []byte("x")))
	require.NoError(t, l.Put(ctx, "jobs/new/out", []byte("y")))

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "jobs", "old", "out"), past, past))

	assert.Equal(t, 1, CleanupArtifacts(dir, time.Hour))
	assert.NoDirExists(t, filepath.Join(dir, "jobs", "old"))
	assert.FileExists(t, filepath.Join(dir, "jobs", "new", "out"))
	assert.DirExists(t, dir)
}

func TestStartJanitorStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	StartJanitor(ctx, t.TempDir(), time.Hour, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	cancel()
}
