// Package startup provides boot-time cleanup of stream output left
// behind by a previous run. Published HLS files and scratch fragments
// are only meaningful while their pipeline is alive, so anything found
// on disk at boot is garbage.
package startup

import (
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/hlsgate/internal/storage"
)

// CleanupStreamDirs removes every entry in the streams sandbox. Streams
// do not survive a restart; their playlists and segments must not be
// served again.
//
// Returns the number of entries removed and any error encountered.
func CleanupStreamDirs(logger *slog.Logger, streams *storage.Sandbox) (int, error) {
	entries, err := streams.List(".")
	if err != nil {
		logger.Error("failed to read streams directory for cleanup",
			slog.String("path", streams.BaseDir()),
			slog.Any("error", err),
		)
		return 0, err
	}

	var removed int
	for _, entry := range entries {
		if err := streams.RemoveAll(entry.Name()); err != nil {
			logger.Warn("failed to remove stale stream output",
				slog.String("name", entry.Name()),
				slog.Any("error", err),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("removed stale stream output",
			slog.Int("count", removed),
			slog.String("path", streams.BaseDir()),
		)
	}
	return removed, nil
}

// CleanupOrphanedScratchDirs removes scratch directories with the given
// prefix whose modification time is older than maxAge. An active
// pipeline touches its scratch directory every iteration, so an old one
// belongs to a stream that died without cleanup. maxAge zero removes
// everything matching the prefix, which is the boot-time behavior.
//
// Returns the number of directories removed and any error encountered.
func CleanupOrphanedScratchDirs(logger *slog.Logger, scratch *storage.Sandbox, prefix string, maxAge time.Duration) (int, error) {
	entries, err := scratch.List(".")
	if err != nil {
		logger.Error("failed to read scratch directory for cleanup",
			slog.String("path", scratch.BaseDir()),
			slog.Any("error", err),
		)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		if maxAge > 0 {
			info, err := entry.Info()
			if err != nil {
				logger.Warn("failed to stat scratch directory",
					slog.String("name", entry.Name()),
					slog.Any("error", err),
				)
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
		}

		if err := scratch.RemoveAll(entry.Name()); err != nil {
			logger.Warn("failed to remove orphaned scratch directory",
				slog.String("name", entry.Name()),
				slog.Any("error", err),
			)
			continue
		}

		logger.Info("removed orphaned scratch directory",
			slog.String("name", entry.Name()),
		)
		removed++
	}

	return removed, nil
}
