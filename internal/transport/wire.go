// Package transport carries tracking calls from a tab to the ingest server.
//
// Delivery is best effort: Submit reports success as a bool and never
// returns an error, and callers do not retry.
package transport

import (
	"encoding/json"
	"time"

	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
)

// TrackPath is the ingest endpoint path.
const TrackPath = "/api/v1/track"

// Action names a tracking call.
type Action string

const (
	ActionCreateSession Action = "create_session"
	ActionUpdateSession Action = "update_session"
	ActionTrackEvent    Action = "track_event"
)

// Request is the ingest request body.
type Request struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Response is the ingest response body.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CreateSession opens a session.
type CreateSession struct {
	SessionID    string            `json:"session_id"`
	DeviceType   domain.DeviceType `json:"device_type"`
	Referrer     string            `json:"referrer"`
	UserAgent    string            `json:"user_agent"`
	ScreenWidth  int               `json:"screen_width"`
	ScreenHeight int               `json:"screen_height"`
	IsActive     bool              `json:"is_active"`
}

// UpdateSession is either a heartbeat (LastHeartbeat set, IsActive true) or
// a close (EndedAt and DurationSeconds set, IsActive false).
type UpdateSession struct {
	SessionID       string     `json:"session_id"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	IsActive        bool       `json:"is_active"`
}

// IsClose reports whether the update closes the session.
func (u *UpdateSession) IsClose() bool {
	return u.EndedAt != nil
}

// TrackEvent records one interaction. Timestamp is assigned by the server
// when omitted.
type TrackEvent struct {
	SessionID   string           `json:"session_id"`
	EventType   domain.EventType `json:"event_type"`
	EventName   string           `json:"event_name,omitempty"`
	PagePath    string           `json:"page_path,omitempty"`
	ElementID   string           `json:"element_id,omitempty"`
	ScrollDepth *int             `json:"scroll_depth,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Timestamp   *time.Time       `json:"timestamp,omitempty"`
}
