package startup

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/hlsgate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSandbox(t *testing.T, name string) *storage.Sandbox {
	t.Helper()
	sb, err := storage.NewSandbox(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	return sb
}

func TestCleanupStreamDirs(t *testing.T) {
	streams := newSandbox(t, "streams")

	require.NoError(t, streams.MkdirAll("ch1"))
	require.NoError(t, streams.WriteFile("ch1/master.m3u8", []byte("#EXTM3U\n")))
	require.NoError(t, streams.WriteFile("ch1/seg_00001.ts", []byte("ts")))
	require.NoError(t, streams.MkdirAll("ch2"))
	require.NoError(t, streams.WriteFile("stray.tmp", []byte("x")))

	removed, err := CleanupStreamDirs(testLogger(), streams)
	require.NoError(t, err)
	assert.Equal(t, 3, removed, "ch1, ch2 and the stray file")

	entries, err := streams.List(".")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanupStreamDirs_Empty(t *testing.T) {
	streams := newSandbox(t, "streams")

	removed, err := CleanupStreamDirs(testLogger(), streams)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCleanupOrphanedScratchDirs(t *testing.T) {
	const prefix = "hlsgate-scratch-"

	t.Run("zero age removes every matching directory", func(t *testing.T) {
		scratch := newSandbox(t, "scratch")
		require.NoError(t, scratch.MkdirAll(prefix+"ch1"))
		require.NoError(t, scratch.MkdirAll(prefix+"ch2"))
		require.NoError(t, scratch.MkdirAll("unrelated"))
		require.NoError(t, scratch.WriteFile(prefix+"notadir", []byte("x")))

		removed, err := CleanupOrphanedScratchDirs(testLogger(), scratch, prefix, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		kept, err := scratch.Exists("unrelated")
		require.NoError(t, err)
		assert.True(t, kept, "directories without the prefix are not ours to remove")

		keptFile, err := scratch.Exists(prefix + "notadir")
		require.NoError(t, err)
		assert.True(t, keptFile, "plain files are skipped")
	})

	t.Run("age threshold preserves fresh directories", func(t *testing.T) {
		scratch := newSandbox(t, "scratch")
		require.NoError(t, scratch.MkdirAll(prefix+"old"))
		require.NoError(t, scratch.MkdirAll(prefix+"new"))

		oldPath, err := scratch.ResolvePath(prefix + "old")
		require.NoError(t, err)
		stale := time.Now().Add(-2 * time.Hour)
		require.NoError(t, os.Chtimes(oldPath, stale, stale))

		removed, err := CleanupOrphanedScratchDirs(testLogger(), scratch, prefix, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		staleGone, err := scratch.Exists(prefix + "old")
		require.NoError(t, err)
		assert.False(t, staleGone)

		freshKept, err := scratch.Exists(prefix + "new")
		require.NoError(t, err)
		assert.True(t, freshKept)
	})
}
