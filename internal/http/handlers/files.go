package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/hlsgate/internal/storage"
)

// Content types for the HLS outputs.
const (
	contentTypePlaylist = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/mp2t"
)

// FilesHandler serves the generated HLS playlists and segments. Every
// request refreshes the stream's idle timer, which is what keeps a
// watched stream alive.
type FilesHandler struct {
	controller StreamController
	streams    *storage.Sandbox
	logger     *slog.Logger
}

// NewFilesHandler creates a new stream file handler.
func NewFilesHandler(controller StreamController, streams *storage.Sandbox) *FilesHandler {
	return &FilesHandler{
		controller: controller,
		streams:    streams,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *FilesHandler) WithLogger(logger *slog.Logger) *FilesHandler {
	h.logger = logger
	return h
}

// RegisterChiRoutes registers the file route directly with Chi. The
// route serves raw media, not JSON, so it stays outside Huma. Optional
// middleware (typically the auth check) wraps just this route.
func (h *FilesHandler) RegisterChiRoutes(router chi.Router, mw ...func(http.Handler) http.Handler) {
	router.Group(func(r chi.Router) {
		for _, m := range mw {
			r.Use(m)
		}
		r.Get("/streams/{streamID}/*", h.Serve)
	})
}

// Serve returns one playlist or segment file for an active stream.
func (h *FilesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	filePath := chi.URLParam(r, "*")

	// Touch doubles as the existence check: only active streams have
	// files worth serving, and the access keeps the stream alive.
	if !h.controller.Touch(streamID) {
		http.Error(w, "Stream not active", http.StatusNotFound)
		return
	}

	var contentType string
	switch {
	case strings.HasSuffix(filePath, ".m3u8"):
		contentType = contentTypePlaylist
	case strings.HasSuffix(filePath, ".ts"), strings.HasSuffix(filePath, ".m4s"):
		contentType = contentTypeSegment
	default:
		http.Error(w, "Invalid file type", http.StatusBadRequest)
		return
	}

	rel := streamID + "/" + filePath
	if _, err := h.streams.ResolvePath(rel); err != nil {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	f, err := h.streams.OpenFile(rel, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if contentType == contentTypePlaylist {
				http.Error(w, "Playlist not found", http.StatusNotFound)
			} else {
				http.Error(w, "Segment not found", http.StatusNotFound)
			}
			return
		}
		h.logger.Error("opening stream file",
			slog.String("stream_id", streamID),
			slog.String("path", filePath),
			slog.Any("error", err),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "Segment not found", http.StatusNotFound)
		return
	}

	// Live playlists change every few seconds; segments are immutable
	// once written but evicted quickly, so neither caches for long.
	if contentType == contentTypePlaylist {
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=60")
	}
	w.Header().Set("Content-Type", contentType)

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
