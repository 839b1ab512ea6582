package storage_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/storage"
)

func newMockRepo(t *testing.T) (*storage.Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return storage.NewRepository(sqlx.NewDb(db, "postgres")), mock
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRepository_CreateSession(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analytics_sessions")).
		WithArgs("s1", "desktop", "direct", "Mozilla/5.0", 1440, 900, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateSession(context.Background(), &domain.Session{
		SessionID:    "s1",
		DeviceType:   domain.DeviceDesktop,
		Referrer:     "direct",
		UserAgent:    "Mozilla/5.0",
		ScreenWidth:  1440,
		ScreenHeight: 900,
		StartedAt:    t0,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateSessionUpsertKeepsStart(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("started_at       = LEAST(analytics_sessions.started_at, EXCLUDED.started_at)")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateSession(context.Background(), &domain.Session{SessionID: "s1", StartedAt: t0}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateSessionKeepsEarlierClose(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("ended_at         = CASE WHEN analytics_sessions.device_type IS NULL")).
		WithArgs("s1", "mobile", "direct", "", 390, 844, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateSession(context.Background(), &domain.Session{
		SessionID:    "s1",
		DeviceType:   domain.DeviceMobile,
		Referrer:     "direct",
		ScreenWidth:  390,
		ScreenHeight: 844,
		StartedAt:    t0,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Heartbeat(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("last_heartbeat = GREATEST(analytics_sessions.last_heartbeat, EXCLUDED.last_heartbeat)")).
		WithArgs("s1", t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Heartbeat(context.Background(), "s1", t0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_HeartbeatOpensUnknownSession(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analytics_sessions (session_id, started_at, last_heartbeat, is_active)")).
		WithArgs("early", t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Heartbeat(context.Background(), "early", t0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CloseSession(t *testing.T) {
	repo, mock := newMockRepo(t)
	ended := t0.Add(45 * time.Second)
	duration := 45

	mock.ExpectExec(regexp.QuoteMeta("duration_seconds = COALESCE($3,")).
		WithArgs("s1", ended, int64(45), t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CloseSession(context.Background(), "s1", ended, &duration))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CloseSessionBeforeCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	ended := t0.Add(45 * time.Second)
	duration := 45

	// The insert path backdates started_at so the duration survives.
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $4, $4, $2, COALESCE($3, 0), FALSE)")).
		WithArgs("early", ended, int64(45), t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CloseSession(context.Background(), "early", ended, &duration))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CloseSessionWithoutDuration(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO analytics_sessions").
		WithArgs("s1", t0, nil, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CloseSession(context.Background(), "s1", t0, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CloseSessionDatabaseError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO analytics_sessions").WillReturnError(errors.New("connection reset"))

	err := repo.CloseSession(context.Background(), "s1", t0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close session")
}

func TestRepository_InsertEvents(t *testing.T) {
	repo, mock := newMockRepo(t)
	depth := 50

	events := []domain.Event{
		{SessionID: "s1", EventType: domain.EventPageView, PagePath: "/", Timestamp: t0},
		{SessionID: "s1", EventType: domain.EventScrollDepth, EventName: "scroll_50%", PagePath: "/", ScrollDepth: &depth, Timestamp: t0},
	}

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8), ($9, $10, $11, $12, $13, $14, $15, $16)")).
		WithArgs(
			"s1", "page_view", nil, "/", nil, nil, nil, t0,
			"s1", "scroll_depth", "scroll_50%", "/", nil, int64(50), nil, t0,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.InsertEvents(context.Background(), events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertEventsEmpty(t *testing.T) {
	repo, mock := newMockRepo(t)

	require.NoError(t, repo.InsertEvents(context.Background(), nil))
	require.NoError(t, repo.IncrementPageCounts(context.Background(), map[string]int{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_IncrementPageCounts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("SET page_count = s.page_count + v.delta")).
		WithArgs(`{"a","b"}`, "{2,1}").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.IncrementPageCounts(context.Background(), map[string]int{"b": 1, "a": 2}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListSessions(t *testing.T) {
	repo, mock := newMockRepo(t)
	ended := t0.Add(90 * time.Second)

	rows := sqlmock.NewRows([]string{
		"session_id", "device_type", "referrer", "user_agent", "screen_width", "screen_height",
		"started_at", "last_heartbeat", "ended_at", "duration_seconds", "is_active", "page_count",
	}).
		AddRow("s1", "mobile", "direct", "ua", 390, 844, t0, t0, ended, int64(90), false, int64(3)).
		AddRow("s2", "desktop", "google.com", "ua", 1920, 1080, t0, t0, nil, nil, true, int64(1))

	mock.ExpectQuery("FROM analytics_sessions").WillReturnRows(rows)

	sessions, err := repo.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, domain.DeviceMobile, sessions[0].DeviceType)
	require.NotNil(t, sessions[0].DurationSeconds)
	assert.Equal(t, 90, *sessions[0].DurationSeconds)
	assert.True(t, sessions[0].Completed())
	assert.Equal(t, 3, sessions[0].PageCount)

	assert.Nil(t, sessions[1].EndedAt)
	assert.Nil(t, sessions[1].DurationSeconds)
	assert.True(t, sessions[1].IsActive)
}

func TestRepository_ListEvents(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{
		"id", "session_id", "event_type", "event_name", "page_path", "element_id",
		"scroll_depth", "metadata", "timestamp",
	}).
		AddRow(int64(1), "s1", "button_click", "Subscribe", "/", "subscribe-btn", nil, []byte(`{"button_text":"Subscribe"}`), t0).
		AddRow(int64(2), "s1", "scroll_depth", "scroll_75%", "/", "", int64(75), nil, t0)

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(element_id, '') AS element_id")).WillReturnRows(rows)

	events, err := repo.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventButtonClick, events[0].EventType)
	assert.Equal(t, "Subscribe", events[0].Metadata["button_text"])
	assert.Nil(t, events[0].ScrollDepth)

	require.NotNil(t, events[1].ScrollDepth)
	assert.Equal(t, 75, *events[1].ScrollDepth)
	assert.Nil(t, events[1].Metadata)
}

func TestRepository_ListEventsError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM analytics_events").WillReturnError(errors.New("timeout"))

	_, err := repo.ListEvents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list events")
}
