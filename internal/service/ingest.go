// Package service implements the ingest and dashboard use cases behind the
// HTTP handlers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/telemetry"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/transport"
)

// maxScrollDepth is the largest valid scroll depth percentage.
const maxScrollDepth = 100

// SessionStore persists session lifecycle writes.
type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	Heartbeat(ctx context.Context, sessionID string, at time.Time) error
	CloseSession(ctx context.Context, sessionID string, endedAt time.Time, durationSeconds *int) error
}

// EventQueue accepts events for asynchronous storage.
type EventQueue interface {
	Send(event domain.Event) bool
}

// Ingest applies tracking calls from tabs.
type Ingest struct {
	sessions SessionStore
	events   EventQueue
	clock    clockwork.Clock
	log      logger.Logger
	metrics  *telemetry.Metrics
}

// NewIngest creates an Ingest. clk and metrics may be nil.
func NewIngest(
	sessions SessionStore,
	events EventQueue,
	clk clockwork.Clock,
	log logger.Logger,
	metrics *telemetry.Metrics,
) *Ingest {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Ingest{
		sessions: sessions,
		events:   events,
		clock:    clk,
		log:      log,
		metrics:  metrics,
	}
}

// IsValidationError reports whether err was caused by the request itself
// rather than by storage.
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrUnknownAction) ||
		errors.Is(err, domain.ErrMissingSessionID) ||
		errors.Is(err, domain.ErrInvalidEventType) ||
		errors.Is(err, domain.ErrInvalidPayload)
}

// Handle dispatches one tracking call. Calls from bots are acknowledged
// without being stored.
func (s *Ingest) Handle(ctx context.Context, req transport.Request, bot bool) error {
	action := string(req.Action)
	if bot {
		s.metrics.RecordIngest(action, telemetry.OutcomeBot)
		return nil
	}

	var err error
	outcome := telemetry.OutcomeAccepted
	switch req.Action {
	case transport.ActionCreateSession:
		err = s.createSession(ctx, req.Data)
	case transport.ActionUpdateSession:
		err = s.updateSession(ctx, req.Data)
	case transport.ActionTrackEvent:
		var queued bool
		queued, err = s.trackEvent(req.Data)
		if err == nil && !queued {
			outcome = telemetry.OutcomeDropped
		}
	default:
		action = "unknown"
		err = fmt.Errorf("%w: %q", domain.ErrUnknownAction, req.Action)
	}

	switch {
	case err == nil:
	case IsValidationError(err):
		outcome = telemetry.OutcomeInvalid
	default:
		outcome = telemetry.OutcomeFailed
	}
	s.metrics.RecordIngest(action, outcome)

	return err
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", domain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	return nil
}

func (s *Ingest) createSession(ctx context.Context, data json.RawMessage) error {
	var in transport.CreateSession
	if err := decode(data, &in); err != nil {
		return err
	}
	if in.SessionID == "" {
		return domain.ErrMissingSessionID
	}

	device := in.DeviceType
	if !device.Valid() {
		device = domain.DeviceTypeForWidth(in.ScreenWidth)
	}
	referrer := in.Referrer
	if referrer == "" {
		referrer = domain.ReferrerDirect
	}

	return s.sessions.CreateSession(ctx, &domain.Session{
		SessionID:    in.SessionID,
		DeviceType:   device,
		Referrer:     referrer,
		UserAgent:    in.UserAgent,
		ScreenWidth:  in.ScreenWidth,
		ScreenHeight: in.ScreenHeight,
		StartedAt:    s.clock.Now(),
		IsActive:     true,
	})
}

func (s *Ingest) updateSession(ctx context.Context, data json.RawMessage) error {
	var in transport.UpdateSession
	if err := decode(data, &in); err != nil {
		return err
	}
	if in.SessionID == "" {
		return domain.ErrMissingSessionID
	}

	if in.IsClose() {
		if in.DurationSeconds != nil && *in.DurationSeconds < 0 {
			return fmt.Errorf("%w: negative duration_seconds", domain.ErrInvalidPayload)
		}
		return s.sessions.CloseSession(ctx, in.SessionID, *in.EndedAt, in.DurationSeconds)
	}

	at := s.clock.Now()
	if in.LastHeartbeat != nil {
		at = *in.LastHeartbeat
	}
	return s.sessions.Heartbeat(ctx, in.SessionID, at)
}

// trackEvent validates and queues an event. A full queue drops the event;
// the caller still reports success.
func (s *Ingest) trackEvent(data json.RawMessage) (bool, error) {
	var in transport.TrackEvent
	if err := decode(data, &in); err != nil {
		return false, err
	}
	if in.SessionID == "" {
		return false, domain.ErrMissingSessionID
	}
	if !in.EventType.Valid() {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidEventType, in.EventType)
	}
	if in.ScrollDepth != nil && (*in.ScrollDepth < 0 || *in.ScrollDepth > maxScrollDepth) {
		return false, fmt.Errorf("%w: scroll_depth out of range", domain.ErrInvalidPayload)
	}

	ts := s.clock.Now()
	if in.Timestamp != nil {
		ts = *in.Timestamp
	}

	event := domain.Event{
		SessionID:   in.SessionID,
		EventType:   in.EventType,
		EventName:   in.EventName,
		PagePath:    in.PagePath,
		ElementID:   in.ElementID,
		ScrollDepth: in.ScrollDepth,
		Metadata:    in.Metadata,
		Timestamp:   ts,
	}

	if !s.events.Send(event) {
		s.metrics.RecordDropped()
		s.log.Warn("Event buffer full, dropping event",
			logger.String("session_id", in.SessionID),
			logger.String("event_type", string(in.EventType)),
		)
		return false, nil
	}
	return true, nil
}
