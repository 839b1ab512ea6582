// Package domain holds the visitor-analytics data model shared by the
// tracking library, the ingest server and the dashboard.
package domain

import (
	"net/url"
	"strings"
	"time"
)

// DeviceType classifies the visitor's viewport at session start.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

// Viewport width breakpoints in CSS pixels.
const (
	tabletMinWidth  = 768
	desktopMinWidth = 1024
)

// DeviceTypeForWidth maps a viewport width to a device type.
func DeviceTypeForWidth(width int) DeviceType {
	switch {
	case width < tabletMinWidth:
		return DeviceMobile
	case width < desktopMinWidth:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// Valid reports whether d is one of the three known device types.
func (d DeviceType) Valid() bool {
	return d == DeviceMobile || d == DeviceTablet || d == DeviceDesktop
}

// Referrer sentinels.
const (
	ReferrerDirect  = "direct"
	ReferrerUnknown = "unknown"
)

// ReferrerSource reduces a referring URL to its hostname. An empty referrer
// is ReferrerDirect; one that is not an absolute URL is ReferrerUnknown.
func ReferrerSource(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ReferrerDirect
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ReferrerUnknown
	}
	return strings.ToLower(u.Hostname())
}

// Session is one browser tab's visit. EndedAt and DurationSeconds stay nil
// until the tab closes the session.
type Session struct {
	SessionID       string     `db:"session_id"       json:"session_id"`
	DeviceType      DeviceType `db:"device_type"      json:"device_type"`
	Referrer        string     `db:"referrer"         json:"referrer"`
	UserAgent       string     `db:"user_agent"       json:"user_agent"`
	ScreenWidth     int        `db:"screen_width"     json:"screen_width"`
	ScreenHeight    int        `db:"screen_height"    json:"screen_height"`
	StartedAt       time.Time  `db:"started_at"       json:"started_at"`
	LastHeartbeat   time.Time  `db:"last_heartbeat"   json:"last_heartbeat"`
	EndedAt         *time.Time `db:"ended_at"         json:"ended_at,omitempty"`
	DurationSeconds *int       `db:"duration_seconds" json:"duration_seconds,omitempty"`
	IsActive        bool       `db:"is_active"        json:"is_active"`
	PageCount       int        `db:"page_count"       json:"page_count"`
}

// Completed reports whether the session closed with a positive duration.
func (s *Session) Completed() bool {
	return s.DurationSeconds != nil && *s.DurationSeconds > 0
}

// DurationBetween is the whole seconds from start to end, floored.
func DurationBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / time.Second)
}
