package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/hlsgate/internal/config"
	"github.com/jmylchreest/hlsgate/internal/storage"
	"github.com/jmylchreest/hlsgate/internal/stream"
	"github.com/jmylchreest/hlsgate/pkg/format"
)

// StreamsHandler handles stream lifecycle and lineup browsing endpoints.
type StreamsHandler struct {
	controller StreamController
	lineup     *config.LineupStore
	streams    *storage.Sandbox
	logger     *slog.Logger
}

// NewStreamsHandler creates a new streams handler.
func NewStreamsHandler(controller StreamController, lineup *config.LineupStore) *StreamsHandler {
	return &StreamsHandler{
		controller: controller,
		lineup:     lineup,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *StreamsHandler) WithLogger(logger *slog.Logger) *StreamsHandler {
	h.logger = logger
	return h
}

// WithStreamsDir sets the sandbox holding stream output directories.
// When set, stream details include a summary of the on-disk playlist.
func (h *StreamsHandler) WithStreamsDir(streams *storage.Sandbox) *StreamsHandler {
	h.streams = streams
	return h
}

// Register registers the stream routes with the API.
func (h *StreamsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "initStream",
		Method:      "GET",
		Path:        "/init/{streamId}",
		Summary:     "Start a stream",
		Description: "Activates the republishing pipeline for a configured channel. Idempotent: a second call refreshes the idle timer of the running stream.",
		Tags:        []string{"Streams"},
	}, h.InitStream)

	huma.Register(api, huma.Operation{
		OperationID: "streamStatus",
		Method:      "GET",
		Path:        "/status",
		Summary:     "List active stream IDs",
		Description: "Returns the IDs of all currently active streams as a bare array.",
		Tags:        []string{"Streams"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "listChannels",
		Method:      "GET",
		Path:        "/channels",
		Summary:     "List configured channels",
		Description: "Returns every channel in the lineup, active or not.",
		Tags:        []string{"Channels"},
	}, h.ListChannels)

	huma.Register(api, huma.Operation{
		OperationID: "streamDetails",
		Method:      "GET",
		Path:        "/details/{streamId}",
		Summary:     "Get stream details",
		Description: "Returns the lineup entry plus, for active streams, the pipeline snapshot and on-disk playlist state.",
		Tags:        []string{"Streams"},
	}, h.StreamDetails)
}

// InitStreamInput is the input for starting a stream.
type InitStreamInput struct {
	StreamID string `path:"streamId" doc:"Channel identifier from the lineup"`
}

// InitStreamOutput is the output for starting a stream.
type InitStreamOutput struct {
	Body struct {
		StreamURL string `json:"stream_url" doc:"Client-facing HLS playlist path"`
	}
}

// InitStream activates the pipeline for a configured channel.
func (h *StreamsHandler) InitStream(ctx context.Context, input *InitStreamInput) (*InitStreamOutput, error) {
	ch, ok := h.lineup.Current().Channel(input.StreamID)
	if !ok {
		return nil, huma.Error404NotFound("Stream not found")
	}

	if err := h.controller.Activate(*ch); err != nil {
		h.logger.Error("activating stream",
			slog.String("stream_id", input.StreamID),
			slog.Any("error", err),
		)
		return nil, huma.Error500InternalServerError("Failed to start stream")
	}

	resp := &InitStreamOutput{}
	resp.Body.StreamURL = StreamURL(input.StreamID)
	return resp, nil
}

// StreamStatusOutput is the output for listing active streams.
type StreamStatusOutput struct {
	Body []string
}

// Status returns the IDs of all active streams.
func (h *StreamsHandler) Status(ctx context.Context, _ *struct{}) (*StreamStatusOutput, error) {
	ids := h.controller.ActiveIDs()
	if ids == nil {
		ids = []string{}
	}
	return &StreamStatusOutput{Body: ids}, nil
}

// ListChannelsOutput is the output for listing channels.
type ListChannelsOutput struct {
	Body []ChannelSummary
}

// ListChannels returns every configured channel.
func (h *StreamsHandler) ListChannels(ctx context.Context, _ *struct{}) (*ListChannelsOutput, error) {
	channels := h.lineup.Current().Channels()
	out := make([]ChannelSummary, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ChannelSummaryFromConfig(ch))
	}
	return &ListChannelsOutput{Body: out}, nil
}

// StreamDetailsInput is the input for fetching stream details.
type StreamDetailsInput struct {
	StreamID string `path:"streamId" doc:"Channel identifier from the lineup"`
}

// StreamDetailsOutput is the output for fetching stream details.
type StreamDetailsOutput struct {
	Body StreamDetailsResponse
}

// StreamDetails returns lineup and runtime state for one channel.
func (h *StreamsHandler) StreamDetails(ctx context.Context, input *StreamDetailsInput) (*StreamDetailsOutput, error) {
	ch, ok := h.lineup.Current().Channel(input.StreamID)
	if !ok {
		return nil, huma.Error404NotFound("Stream not found")
	}

	body := StreamDetailsResponse{
		ID:        ch.ID,
		Name:      ch.Name,
		URL:       StreamURL(ch.ID),
		Group:     ch.Group,
		Logo:      ch.Logo,
		Encrypted: ch.Encrypted(),
	}

	details, err := h.controller.Details(input.StreamID)
	switch {
	case err == nil:
		body.Active = details.Active
		body.Stream = details
		body.Playlist = h.playlistInfo(input.StreamID)
	case errors.Is(err, stream.ErrStreamNotFound):
		// Configured but not running.
	default:
		h.logger.Error("fetching stream details",
			slog.String("stream_id", input.StreamID),
			slog.Any("error", err),
		)
		return nil, huma.Error500InternalServerError("Failed to fetch stream details")
	}

	return &StreamDetailsOutput{Body: body}, nil
}

// playlistInfo parses the stream's on-disk playlist. Any failure just
// omits the summary; the playlist may not have been written yet.
func (h *StreamsHandler) playlistInfo(streamID string) *PlaylistInfo {
	if h.streams == nil {
		return nil
	}

	data, err := h.streams.ReadFile(streamID + "/master.m3u8")
	if err != nil {
		return nil
	}

	pl, err := playlist.Unmarshal(data)
	if err != nil {
		h.logger.Debug("parsing stream playlist",
			slog.String("stream_id", streamID),
			slog.Any("error", err),
		)
		return nil
	}

	media, ok := pl.(*playlist.Media)
	if !ok {
		return nil
	}

	info := &PlaylistInfo{
		TargetDuration: media.TargetDuration,
		MediaSequence:  media.MediaSequence,
		SegmentCount:   len(media.Segments),
		Ended:          media.Endlist,
	}
	if n := len(media.Segments); n > 0 {
		info.LastSegment = media.Segments[n-1].URI
	}
	if size, err := h.streams.DirSize(streamID); err == nil {
		info.DiskBytes = size
		info.DiskSize = format.Bytes(size)
	}
	return info
}
