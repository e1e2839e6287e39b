package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/hlsgate/internal/models"
	"gorm.io/gorm"
)

// defaultEventPageSize bounds List queries when the caller passes no limit.
const defaultEventPageSize = 100

// maxEventPageSize is the hard ceiling for a single List query.
const maxEventPageSize = 1000

// streamEventRepo implements StreamEventRepository using GORM.
type streamEventRepo struct {
	db *gorm.DB
}

// NewStreamEventRepository creates a new StreamEventRepository.
func NewStreamEventRepository(db *gorm.DB) *streamEventRepo {
	return &streamEventRepo{db: db}
}

// Create appends an event to the log.
func (r *streamEventRepo) Create(ctx context.Context, event *models.StreamEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("creating stream event: %w", err)
	}
	return nil
}

// List retrieves recent events, newest first. The id tiebreak keeps
// same-timestamp events in a stable order across queries.
func (r *streamEventRepo) List(ctx context.Context, streamID string, limit int) ([]*models.StreamEvent, error) {
	if limit <= 0 {
		limit = defaultEventPageSize
	}
	if limit > maxEventPageSize {
		limit = maxEventPageSize
	}

	query := r.db.WithContext(ctx).Model(&models.StreamEvent{}).Order("created_at DESC, id DESC").Limit(limit)
	if streamID != "" {
		query = query.Where("stream_id = ?", streamID)
	}

	var events []*models.StreamEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing stream events: %w", err)
	}
	return events, nil
}

// DeleteBefore hard-deletes events created before the given time.
func (r *streamEventRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.StreamEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("pruning stream events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Count returns the total number of events in the log.
func (r *streamEventRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.StreamEvent{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting stream events: %w", err)
	}
	return count, nil
}
