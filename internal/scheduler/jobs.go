package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/hlsgate/internal/repository"
	"github.com/jmylchreest/hlsgate/internal/startup"
	"github.com/jmylchreest/hlsgate/internal/storage"
	"github.com/jmylchreest/hlsgate/internal/stream"
	"github.com/jmylchreest/hlsgate/pkg/format"
)

// DefaultScratchSweepAge is how old a scratch directory must be before
// the hourly sweep considers it orphaned. Active pipelines touch their
// scratch directory every segment, so an hour of silence means the
// owner is gone.
const DefaultScratchSweepAge = time.Hour

// EventPruneJob returns a job that deletes journal entries older than
// the retention window.
func EventPruneJob(events repository.StreamEventRepository, retention time.Duration, logger *slog.Logger) Job {
	return func(ctx context.Context) error {
		cutoff := time.Now().Add(-retention)
		removed, err := events.DeleteBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("pruned stream events",
				slog.String("removed", format.Number(removed)),
				slog.Time("cutoff", cutoff),
			)
		}
		return nil
	}
}

// ScratchSweepJob returns a job that removes scratch directories
// orphaned by pipelines that died without cleaning up.
func ScratchSweepJob(scratch *storage.Sandbox, logger *slog.Logger) Job {
	return func(ctx context.Context) error {
		_, err := startup.CleanupOrphanedScratchDirs(logger, scratch, stream.ScratchDirPrefix, DefaultScratchSweepAge)
		return err
	}
}
