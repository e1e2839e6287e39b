// Package repository defines data access interfaces for hlsgate entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/hlsgate/internal/models"
)

// StreamEventRepository defines operations for the stream event log.
type StreamEventRepository interface {
	// Create appends an event to the log.
	Create(ctx context.Context, event *models.StreamEvent) error
	// List retrieves recent events, newest first. An empty streamID matches
	// all streams; limit <= 0 falls back to a default page size.
	List(ctx context.Context, streamID string, limit int) ([]*models.StreamEvent, error)
	// DeleteBefore hard-deletes events created before the given time and
	// returns the number of rows removed.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	// Count returns the total number of events in the log.
	Count(ctx context.Context) (int64, error)
}
