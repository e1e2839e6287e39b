package models

import (
	"time"

	"gorm.io/gorm"
)

// EventType classifies entries in the stream event log.
type EventType string

const (
	// EventActivated records a stream pipeline starting for a channel.
	EventActivated EventType = "activated"
	// EventEvicted records a stream torn down by the idle evictor.
	EventEvicted EventType = "evicted"
	// EventWriterExit records the HLS writer process exiting while the
	// stream was still active.
	EventWriterExit EventType = "writer_exit"
	// EventPipelineError records a pipeline iteration failure. The loop
	// keeps running; the event captures what went wrong.
	EventPipelineError EventType = "pipeline_error"
	// EventDecryptFallback records segments passed through unmodified after
	// every decryption strategy failed.
	EventDecryptFallback EventType = "decrypt_fallback"
	// EventLoginFailed records a rejected login attempt.
	EventLoginFailed EventType = "login_failed"
)

// StreamEvent is one row in the append-only stream event log. Events are
// never updated; old rows are pruned by the retention job.
type StreamEvent struct {
	// ID is the ULID primary key.
	ID ULID `gorm:"primarykey;type:varchar(26)" json:"id"`

	// StreamID is the channel identifier the event belongs to. Empty for
	// events without a stream context, such as login failures.
	StreamID string `gorm:"index;size:255" json:"stream_id,omitempty"`

	// Type classifies the event.
	Type EventType `gorm:"index;not null;size:32" json:"type"`

	// Message carries human-readable detail, typically the error text.
	Message string `gorm:"size:4096" json:"message,omitempty"`

	// CreatedAt is when the event was recorded.
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName returns the table name for StreamEvent.
func (StreamEvent) TableName() string {
	return "stream_events"
}

// BeforeCreate generates a ULID if not already set.
func (e *StreamEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID.IsZero() {
		e.ID = NewULID()
	}
	return nil
}

// Validate checks required fields.
func (e *StreamEvent) Validate() error {
	if e.Type == "" {
		return ErrEventTypeRequired
	}
	return nil
}
