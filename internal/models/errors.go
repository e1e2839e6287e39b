package models

import "errors"

// Common validation errors for models.
var (
	// ErrEventTypeRequired indicates a stream event without a type.
	ErrEventTypeRequired = errors.New("event type is required")
)
