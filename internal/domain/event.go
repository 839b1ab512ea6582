package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType enumerates the tracked interactions.
type EventType string

const (
	EventPageView    EventType = "page_view"
	EventButtonClick EventType = "button_click"
	EventScrollDepth EventType = "scroll_depth"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t == EventPageView || t == EventButtonClick || t == EventScrollDepth
}

// Event is an append-only interaction record. Optional fields are empty or
// nil when the event type does not carry them.
type Event struct {
	ID          int64     `db:"id"           json:"id,omitempty"`
	SessionID   string    `db:"session_id"   json:"session_id"`
	EventType   EventType `db:"event_type"   json:"event_type"`
	EventName   string    `db:"event_name"   json:"event_name,omitempty"`
	PagePath    string    `db:"page_path"    json:"page_path,omitempty"`
	ElementID   string    `db:"element_id"   json:"element_id,omitempty"`
	ScrollDepth *int      `db:"scroll_depth" json:"scroll_depth,omitempty"`
	Metadata    Metadata  `db:"metadata"     json:"metadata,omitempty"`
	Timestamp   time.Time `db:"timestamp"    json:"timestamp"`
}

// Metadata is free-form event context stored as JSONB.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("scan metadata: unsupported type")
	}
	if len(raw) == 0 || string(raw) == "null" {
		*m = nil
		return nil
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("scan metadata: %w", err)
	}
	return nil
}
