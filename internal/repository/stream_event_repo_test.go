package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/hlsgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupEventTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.StreamEvent{})
	require.NoError(t, err)

	return db
}

func TestStreamEventRepo_Create(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewStreamEventRepository(db)
	ctx := context.Background()

	event := &models.StreamEvent{
		StreamID: "sports1",
		Type:     models.EventActivated,
		Message:  "stream activated",
	}

	err := repo.Create(ctx, event)
	require.NoError(t, err)
	assert.False(t, event.ID.IsZero())
	assert.False(t, event.CreatedAt.IsZero())

	events, err := repo.List(ctx, "sports1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventActivated, events[0].Type)
}

func TestStreamEventRepo_Create_Invalid(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewStreamEventRepository(db)
	ctx := context.Background()

	err := repo.Create(ctx, &models.StreamEvent{StreamID: "sports1"})
	assert.ErrorIs(t, err, models.ErrEventTypeRequired)
}

func TestStreamEventRepo_List(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewStreamEventRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &models.StreamEvent{
			StreamID:  "sports1",
			Type:      models.EventPipelineError,
			Message:   fmt.Sprintf("failure %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.Create(ctx, &models.StreamEvent{
		StreamID:  "news2",
		Type:      models.EventActivated,
		CreatedAt: base.Add(time.Minute),
	}))

	t.Run("newest first", func(t *testing.T) {
		events, err := repo.List(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, events, 6)
		assert.Equal(t, models.EventActivated, events[0].Type)
		assert.Equal(t, "failure 4", events[1].Message)
	})

	t.Run("filter by stream", func(t *testing.T) {
		events, err := repo.List(ctx, "news2", 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "news2", events[0].StreamID)
	})

	t.Run("limit applies", func(t *testing.T) {
		events, err := repo.List(ctx, "sports1", 2)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("unknown stream is empty", func(t *testing.T) {
		events, err := repo.List(ctx, "nope", 0)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestStreamEventRepo_DeleteBefore(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewStreamEventRepository(db)
	ctx := context.Background()

	old := &models.StreamEvent{
		StreamID:  "sports1",
		Type:      models.EventEvicted,
		CreatedAt: time.Now().Add(-10 * 24 * time.Hour),
	}
	recent := &models.StreamEvent{
		StreamID: "sports1",
		Type:     models.EventActivated,
	}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, recent))

	removed, err := repo.DeleteBefore(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	events, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventActivated, events[0].Type)
}

func TestStreamEventRepo_Count(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewStreamEventRepository(db)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.Create(ctx, &models.StreamEvent{Type: models.EventLoginFailed}))

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
