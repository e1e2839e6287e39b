package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/hlsgate/internal/urlutil"
)

// lineupDebounce coalesces rapid editor write events into one reload.
const lineupDebounce = 500 * time.Millisecond

// LineupWatcher reloads the lineup when its files change on disk.
// Failed reloads keep the previous lineup active.
type LineupWatcher struct {
	cfg     LineupConfig
	store   *LineupStore
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewLineupWatcher creates a watcher for the configured lineup files.
func NewLineupWatcher(cfg LineupConfig, store *LineupStore, logger *slog.Logger) *LineupWatcher {
	return &LineupWatcher{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
}

// Start begins watching the lineup files. It returns immediately; reloads
// happen on a background goroutine until ctx is cancelled.
func (w *LineupWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	w.watcher = watcher

	paths := []string{w.cfg.ChannelsFile, w.cfg.UsersFile}
	// Remote playlist sources cannot be watched; they are refetched when
	// the TOML files change.
	if w.cfg.PlaylistFile != "" && !urlutil.IsSupportedURL(w.cfg.PlaylistFile) {
		paths = append(paths, w.cfg.PlaylistFile)
	}
	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}

	w.logger.Info("watching lineup files", slog.Any("paths", paths))

	go w.watchLoop(ctx)
	return nil
}

func (w *LineupWatcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("lineup watcher stopped")
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Editors replace files via rename; re-add the path so the
			// watch survives the new inode.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				_ = w.watcher.Add(event.Name)
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug("lineup file changed",
					slog.String("path", event.Name),
					slog.String("op", event.Op.String()))

				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(lineupDebounce, func() {
					w.reload()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("lineup watcher error", slog.String("error", err.Error()))
		}
	}
}

// reload loads the lineup files and swaps the result in on success.
func (w *LineupWatcher) reload() {
	lineup, err := LoadLineup(w.cfg)
	if err != nil {
		w.logger.Error("lineup reload failed, keeping previous lineup",
			slog.String("error", err.Error()))
		return
	}

	w.store.Replace(lineup)
	w.logger.Info("lineup reloaded",
		slog.Int("channels", len(lineup.order)),
		slog.Int("users", len(lineup.users)))
}

// Stop closes the underlying file watcher.
func (w *LineupWatcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}
