package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/api"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/config"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/handler"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/service"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/storage"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/telemetry"
)

const secret = "api-test-secret"

type sessionStub struct {
	created []string
}

func (s *sessionStub) CreateSession(_ context.Context, sess *domain.Session) error {
	s.created = append(s.created, sess.SessionID)
	return nil
}

func (s *sessionStub) Heartbeat(context.Context, string, time.Time) error { return nil }

func (s *sessionStub) CloseSession(context.Context, string, time.Time, *int) error { return nil }

func (s *sessionStub) ListSessions(context.Context) ([]domain.Session, error) {
	return []domain.Session{{SessionID: "s1", DeviceType: domain.DeviceDesktop, Referrer: "direct"}}, nil
}

func (s *sessionStub) ListEvents(context.Context) ([]domain.Event, error) { return nil, nil }

type fixture struct {
	router   http.Handler
	sessions *sessionStub
	buffer   *storage.EventBuffer
}

func newFixture(t *testing.T, dbPing func() error) fixture {
	t.Helper()

	cfg, err := config.Load("does-not-exist.yml")
	require.NoError(t, err)
	cfg.Auth.JWTSecret = secret

	log := logger.NewNop()
	metrics := telemetry.New(prometheus.NewRegistry())
	sessions := &sessionStub{}
	buffer := storage.NewEventBuffer(8)

	ingest := service.NewIngest(sessions, buffer, nil, log, metrics)
	dashboard := service.NewDashboard(sessions, nil, nil, log, metrics)

	srv := api.NewServer(cfg, api.Handlers{
		Track:       handler.NewTrackHandler(ingest, log),
		Dashboard:   handler.NewDashboardHandler(dashboard, service.NewAdmins(nil), log),
		Metrics:     metrics.Handler(),
		BufferDepth: buffer.Len,
	}, api.HealthChecks{Database: dbPing}, log)

	return fixture{router: srv.Router(), sessions: sessions, buffer: buffer}
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func trackRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/track", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Origin", "https://blog.example.com")
	return req
}

func TestServer_TrackFlow(t *testing.T) {
	f := newFixture(t, nil)

	w := do(f.router, trackRequest(`{"action":"create_session","data":{"session_id":"s1","screen_width":1280}}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, []string{"s1"}, f.sessions.created)

	w = do(f.router, trackRequest(`{"action":"track_event","data":{"session_id":"s1","event_type":"page_view","page_path":"/"}}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.buffer.Len())

	w = do(f.router, trackRequest(`{"action":"track_event","data":{"session_id":"s1","event_type":"hover"}}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	metrics := do(f.router, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(),
		`visitor_analytics_ingest_total{action="track_event",outcome="accepted"} 1`)
	assert.Contains(t, metrics.Body.String(),
		`visitor_analytics_ingest_total{action="track_event",outcome="invalid"} 1`)
}

func TestServer_DashboardRequiresToken(t *testing.T) {
	f := newFixture(t, nil)

	w := do(f.router, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/metrics", http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := jwt.Issue(secret, "ops", service.AdminRole, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/metrics", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)

	w = do(f.router, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalSessions":1`)
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, func() error { return nil })
	w := do(f.router, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)

	down := newFixture(t, func() error { return errors.New("connection refused") })
	w = do(down.router, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_MemoryHealthReportsBufferDepth(t *testing.T) {
	f := newFixture(t, func() error { return nil })
	require.True(t, f.buffer.Send(domain.Event{SessionID: "s1", EventType: domain.EventPageView}))

	w := do(f.router, httptest.NewRequest(http.MethodGet, "/health/memory", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"buffered_events":1`)
}
