package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/hlsgate/internal/models"
	"github.com/jmylchreest/hlsgate/internal/repository"
)

// EventsHandler exposes the stream event journal.
type EventsHandler struct {
	events repository.StreamEventRepository
	logger *slog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(events repository.StreamEventRepository) *EventsHandler {
	return &EventsHandler{
		events: events,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *EventsHandler) WithLogger(logger *slog.Logger) *EventsHandler {
	h.logger = logger
	return h
}

// Register registers the event routes with the API.
func (h *EventsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listEvents",
		Method:      "GET",
		Path:        "/api/v1/events",
		Summary:     "List stream events",
		Description: "Returns the most recent journal entries, newest first. Filter by stream_id to follow one channel.",
		Tags:        []string{"Events"},
	}, h.ListEvents)
}

// ListEventsInput is the input for listing events.
type ListEventsInput struct {
	StreamID string `query:"stream_id" doc:"Only events for this stream"`
	Limit    int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum entries returned"`
}

// ListEventsOutput is the output for listing events.
type ListEventsOutput struct {
	Body []*models.StreamEvent
}

// ListEvents returns recent journal entries.
func (h *EventsHandler) ListEvents(ctx context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
	events, err := h.events.List(ctx, input.StreamID, input.Limit)
	if err != nil {
		h.logger.Error("listing stream events", slog.Any("error", err))
		return nil, huma.Error500InternalServerError("Failed to list events")
	}
	if events == nil {
		events = []*models.StreamEvent{}
	}
	return &ListEventsOutput{Body: events}, nil
}
