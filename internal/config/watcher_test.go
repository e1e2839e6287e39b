package config

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineupWatcher_ReloadsOnChange(t *testing.T) {
	cfg := writeLineupFiles(t, testChannelsTOML, testUsersTOML)

	lineup, err := LoadLineup(cfg)
	require.NoError(t, err)
	store := NewLineupStore(lineup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewLineupWatcher(cfg, store, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	updated := testChannelsTOML + `
[[channels]]
id = "extra"
name = "Extra"
url = "https://cdn.example.com/extra/manifest.mpd"
`
	require.NoError(t, os.WriteFile(cfg.ChannelsFile, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		_, ok := store.Current().Channel("extra")
		return ok
	}, 5*time.Second, 50*time.Millisecond, "expected lineup to pick up new channel")
}

func TestLineupWatcher_KeepsOldLineupOnBrokenFile(t *testing.T) {
	cfg := writeLineupFiles(t, testChannelsTOML, testUsersTOML)

	lineup, err := LoadLineup(cfg)
	require.NoError(t, err)
	store := NewLineupStore(lineup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewLineupWatcher(cfg, store, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(cfg.ChannelsFile, []byte("not [valid toml"), 0o600))

	// Give the debounced reload time to run, then confirm nothing was lost.
	time.Sleep(2 * lineupDebounce)
	_, ok := store.Current().Channel("sports-one")
	assert.True(t, ok, "previous lineup must survive a broken reload")
}

func TestLineupWatcher_MissingFile(t *testing.T) {
	store := NewLineupStore(&Lineup{})
	w := NewLineupWatcher(LineupConfig{
		ChannelsFile: "/nonexistent/channels.toml",
		UsersFile:    "/nonexistent/users.toml",
	}, store, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	err := w.Start(context.Background())
	assert.Error(t, err)
}
