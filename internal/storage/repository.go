package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
)

// Repository is the sessions and events store. Sessions are mutated only
// through the create, heartbeat and close paths; events are insert-only.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a Repository over db.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateSession inserts a session. A second create for the same id (a
// reload in the same tab) keeps the earliest started_at and reopens the
// session. A row opened by an update that overtook its create has no
// device_type yet; for those the recorded close is kept.
func (r *Repository) CreateSession(ctx context.Context, s *domain.Session) error {
	const query = `
		INSERT INTO analytics_sessions
			(session_id, device_type, referrer, user_agent, screen_width, screen_height,
			 started_at, last_heartbeat, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, TRUE)
		ON CONFLICT (session_id) DO UPDATE SET
			device_type      = EXCLUDED.device_type,
			referrer         = EXCLUDED.referrer,
			user_agent       = EXCLUDED.user_agent,
			screen_width     = EXCLUDED.screen_width,
			screen_height    = EXCLUDED.screen_height,
			started_at       = LEAST(analytics_sessions.started_at, EXCLUDED.started_at),
			last_heartbeat   = GREATEST(analytics_sessions.last_heartbeat, EXCLUDED.last_heartbeat),
			is_active        = CASE WHEN analytics_sessions.device_type IS NULL
			                        THEN analytics_sessions.is_active ELSE TRUE END,
			ended_at         = CASE WHEN analytics_sessions.device_type IS NULL
			                        THEN analytics_sessions.ended_at END,
			duration_seconds = CASE WHEN analytics_sessions.device_type IS NULL
			                        THEN analytics_sessions.duration_seconds END`

	_, err := r.db.ExecContext(ctx, query,
		s.SessionID, s.DeviceType, s.Referrer, s.UserAgent, s.ScreenWidth, s.ScreenHeight, s.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Heartbeat advances last_heartbeat; it never moves backwards. A heartbeat
// newer than the recorded close marks the session active again. Calls are
// unordered, so a heartbeat for an unknown id opens the row.
func (r *Repository) Heartbeat(ctx context.Context, sessionID string, at time.Time) error {
	const query = `
		INSERT INTO analytics_sessions (session_id, started_at, last_heartbeat, is_active)
		VALUES ($1, $2, $2, TRUE)
		ON CONFLICT (session_id) DO UPDATE SET
			last_heartbeat = GREATEST(analytics_sessions.last_heartbeat, EXCLUDED.last_heartbeat),
			is_active      = CASE WHEN analytics_sessions.ended_at IS NULL
			                        OR EXCLUDED.last_heartbeat > analytics_sessions.ended_at
			                      THEN TRUE ELSE analytics_sessions.is_active END`

	if _, err := r.db.ExecContext(ctx, query, sessionID, at); err != nil {
		return fmt.Errorf("heartbeat session: %w", err)
	}
	return nil
}

// CloseSession records the end of a session. The last close written wins.
// A nil duration is derived from started_at. A close that arrives before
// its create opens the row with started_at backdated by the duration.
func (r *Repository) CloseSession(ctx context.Context, sessionID string, endedAt time.Time, durationSeconds *int) error {
	const query = `
		INSERT INTO analytics_sessions
			(session_id, started_at, last_heartbeat, ended_at, duration_seconds, is_active)
		VALUES ($1, $4, $4, $2, COALESCE($3, 0), FALSE)
		ON CONFLICT (session_id) DO UPDATE SET
			ended_at         = EXCLUDED.ended_at,
			duration_seconds = COALESCE($3, GREATEST(0, FLOOR(EXTRACT(EPOCH FROM
			                       (EXCLUDED.ended_at - analytics_sessions.started_at))))::int),
			is_active        = FALSE`

	var duration sql.NullInt64
	startedAt := endedAt
	if durationSeconds != nil {
		duration = sql.NullInt64{Int64: int64(*durationSeconds), Valid: true}
		startedAt = endedAt.Add(-time.Duration(*durationSeconds) * time.Second)
	}

	if _, err := r.db.ExecContext(ctx, query, sessionID, endedAt, duration, startedAt); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// eventColumns is the number of columns written per event row.
const eventColumns = 8

// InsertEvents writes events in one multi-row INSERT.
func (r *Repository) InsertEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO analytics_events (session_id, event_type, event_name, page_path, " +
		"element_id, scroll_depth, metadata, timestamp) VALUES ")

	args := make([]any, 0, len(events)*eventColumns)
	for i := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for col := 1; col <= eventColumns; col++ {
			if col > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*eventColumns+col)
		}
		sb.WriteByte(')')

		e := &events[i]
		args = append(args,
			e.SessionID, e.EventType, nullString(e.EventName), nullString(e.PagePath),
			nullString(e.ElementID), nullInt(e.ScrollDepth), e.Metadata, e.Timestamp,
		)
	}

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	return nil
}

// IncrementPageCounts adds page views to their sessions' page_count.
func (r *Repository) IncrementPageCounts(ctx context.Context, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	deltas := make([]int64, len(ids))
	for i, id := range ids {
		deltas[i] = int64(counts[id])
	}

	const query = `
		UPDATE analytics_sessions AS s
		SET page_count = s.page_count + v.delta
		FROM (SELECT unnest($1::text[]) AS session_id, unnest($2::int[]) AS delta) AS v
		WHERE s.session_id = v.session_id`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids), pq.Array(deltas)); err != nil {
		return fmt.Errorf("increment page counts: %w", err)
	}
	return nil
}

// ListSessions returns every session, oldest first.
func (r *Repository) ListSessions(ctx context.Context) ([]domain.Session, error) {
	const query = `
		SELECT session_id, COALESCE(device_type, '') AS device_type,
		       referrer, user_agent, screen_width, screen_height,
		       started_at, last_heartbeat, ended_at, duration_seconds, is_active, page_count
		FROM analytics_sessions
		ORDER BY started_at, session_id`

	sessions := []domain.Session{}
	if err := r.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ListEvents returns every event in insertion order.
func (r *Repository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const query = `
		SELECT id, session_id, event_type,
		       COALESCE(event_name, '') AS event_name,
		       COALESCE(page_path, '')  AS page_path,
		       COALESCE(element_id, '') AS element_id,
		       scroll_depth, metadata, timestamp
		FROM analytics_events
		ORDER BY id`

	events := []domain.Event{}
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
