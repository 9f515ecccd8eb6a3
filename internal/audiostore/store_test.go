package audiostore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), newLogger())
	require.NoError(t, err)
	return store
}

func TestSaveResolveRoundTrip(t *testing.T) {
	store := openStore(t)

	artifact, err := store.Save([]byte("ID3-audio"))
	require.NoError(t, err)
	assert.Equal(t, FormatMP3, artifact.Format)
	assert.Equal(t, filepath.Join(store.Dir(), "tts_"+artifact.ID+".mp3"), artifact.Path)

	path, err := store.Resolve(artifact.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(data))
}

func TestSaveNeverReusesIdentifiers(t *testing.T) {
	store := openStore(t)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		artifact, err := store.Save([]byte{byte(i)})
		require.NoError(t, err)
		_, dup := seen[artifact.ID]
		require.False(t, dup, "identifier reused: %s", artifact.ID)
		seen[artifact.ID] = struct{}{}
	}
}

func TestResolveRejectsNonIdentifiers(t *testing.T) {
	store := openStore(t)
	outside := filepath.Join(filepath.Dir(store.Dir()), "secret.mp3")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	for _, id := range []string{"", "../secret", "..%2Fsecret", "tts_x", "not-a-uuid", "{00000000-0000-0000-0000-000000000000}"} {
		_, err := store.Resolve(id)
		assert.ErrorIs(t, err, ErrNotFound, "id %q", id)
	}
}

func TestResolveMissing(t *testing.T) {
	store := openStore(t)
	_, err := store.Resolve("3f1c2a4e-8d2b-4c6e-9a7f-1b2c3d4e5f60")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := openStore(t)
	artifact, err := store.Save([]byte("audio"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(artifact.ID))
	assert.ErrorIs(t, store.Delete(artifact.ID), ErrNotFound)

	_, err = store.Resolve(artifact.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepBoundary(t *testing.T) {
	store := openStore(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	young, err := store.Save([]byte("young"))
	require.NoError(t, err)
	old, err := store.Save([]byte("old"))
	require.NoError(t, err)

	require.NoError(t, os.Chtimes(young.Path, now, now.Add(-3599*time.Second)))
	require.NoError(t, os.Chtimes(old.Path, now, now.Add(-3601*time.Second)))

	result, err := store.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, []string{old.ID}, result.Removed)

	_, err = store.Resolve(young.ID)
	assert.NoError(t, err)
	_, err = store.Resolve(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepIgnoresForeignFilesAndLegacyWav(t *testing.T) {
	store := openStore(t)
	now := time.Now()
	stale := now.Add(-2 * time.Hour)

	foreign := filepath.Join(store.Dir(), "other.mp3")
	unrelated := filepath.Join(store.Dir(), "tts_notes.txt")
	legacy := filepath.Join(store.Dir(), "tts_legacy.wav")
	for _, path := range []string{foreign, unrelated, legacy} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		require.NoError(t, os.Chtimes(path, stale, stale))
	}

	result, err := store.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy"}, result.Removed)

	assert.FileExists(t, foreign)
	assert.FileExists(t, unrelated)
	assert.NoFileExists(t, legacy)
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	store := openStore(t)
	artifact, err := store.Save([]byte("old"))
	require.NoError(t, err)
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(artifact.Path, stale, stale))

	ctx, cancel := context.WithCancel(context.Background())
	passes := make(chan SweepResult, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Run(ctx, 10*time.Millisecond, time.Hour, func(r SweepResult) { passes <- r })
	}()

	first := <-passes
	assert.Equal(t, []string{artifact.ID}, first.Removed)
	<-passes

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop after cancel")
	}
}
