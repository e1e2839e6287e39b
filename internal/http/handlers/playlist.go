package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/hlsgate/internal/config"
	"github.com/jmylchreest/hlsgate/pkg/m3u"
)

// PlaylistHandler exports the lineup as an M3U playlist. Entry URLs
// point at the init endpoint, which a caller hits to activate the
// stream before pulling its HLS playlist.
type PlaylistHandler struct {
	lineup *config.LineupStore
	logger *slog.Logger
}

// NewPlaylistHandler creates a new playlist export handler.
func NewPlaylistHandler(lineup *config.LineupStore) *PlaylistHandler {
	return &PlaylistHandler{
		lineup: lineup,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *PlaylistHandler) WithLogger(logger *slog.Logger) *PlaylistHandler {
	h.logger = logger
	return h
}

// RegisterChiRoutes registers the playlist route directly with Chi.
// The response is M3U text, not JSON, so it stays outside Huma.
// Optional middleware (typically the auth check) wraps just this route.
func (h *PlaylistHandler) RegisterChiRoutes(router chi.Router, mw ...func(http.Handler) http.Handler) {
	router.Group(func(r chi.Router) {
		for _, m := range mw {
			r.Use(m)
		}
		r.Get("/playlist.m3u", h.Export)
	})
}

// Export writes the lineup as M3U.
func (h *PlaylistHandler) Export(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	base := scheme + "://" + r.Host

	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", `attachment; filename="hlsgate.m3u"`)

	writer := m3u.NewWriter(w)
	if err := writer.WriteHeader(); err != nil {
		h.logger.Error("writing playlist header", slog.Any("error", err))
		return
	}
	for _, ch := range h.lineup.Current().Channels() {
		entry := &m3u.Entry{
			Duration:   -1,
			TvgID:      ch.ID,
			TvgName:    ch.Name,
			TvgLogo:    ch.Logo,
			GroupTitle: ch.Group,
			Title:      ch.Name,
			URL:        base + "/init/" + ch.ID,
		}
		if err := writer.WriteEntry(entry); err != nil {
			h.logger.Error("writing playlist entry",
				slog.String("stream_id", ch.ID),
				slog.Any("error", err),
			)
			return
		}
	}
}
