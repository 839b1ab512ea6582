package domain

import "errors"

// Validation errors returned by the ingest path.
var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrMissingSessionID = errors.New("session_id is required")
	ErrInvalidEventType = errors.New("invalid event_type")
	ErrInvalidPayload   = errors.New("invalid payload")
)
