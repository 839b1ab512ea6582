package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/errors"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/transport"
)

// ingestRecorder is a stand-in ingest server that accepts every call.
type ingestRecorder struct {
	mu       sync.Mutex
	requests []transport.Request
}

func (r *ingestRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body transport.Request
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.requests = append(r.requests, body)
	r.mu.Unlock()
	_ = json.NewEncoder(w).Encode(transport.Response{Success: true})
}

func (r *ingestRecorder) bySession(t *testing.T) map[string][]transport.Request {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]transport.Request)
	for _, req := range r.requests {
		var id struct {
			SessionID string `json:"session_id"`
		}
		require.NoError(t, json.Unmarshal(req.Data, &id))
		out[id.SessionID] = append(out[id.SessionID], req)
	}
	return out
}

func TestSimulate(t *testing.T) {
	rec := &ingestRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	client := transport.NewHTTPClient(srv.URL, logger.NewNop())
	opts := simulateOptions{tabs: 3, pages: 2, dwell: time.Millisecond, scrollPause: 120 * time.Millisecond, seed: 7}

	stats, err := simulate(context.Background(), opts, client, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, stats.calls.Load(), stats.accepted.Load())

	sessions := rec.bySession(t)
	require.Len(t, sessions, opts.tabs, "every tab gets its own session")

	for id, reqs := range sessions {
		var creates, closes, pageViews int
		for _, req := range reqs {
			switch req.Action {
			case transport.ActionCreateSession:
				creates++
			case transport.ActionUpdateSession:
				var u transport.UpdateSession
				require.NoError(t, json.Unmarshal(req.Data, &u))
				if u.IsClose() {
					closes++
					assert.False(t, u.IsActive)
				}
			case transport.ActionTrackEvent:
				var e transport.TrackEvent
				require.NoError(t, json.Unmarshal(req.Data, &e))
				if e.EventType == domain.EventPageView {
					pageViews++
				}
			}
		}
		assert.Equal(t, 1, creates, "session %s", id)
		assert.Equal(t, 2, closes, "hide and unload each close session %s", id)
		assert.GreaterOrEqual(t, pageViews, 1)
		assert.LessOrEqual(t, pageViews, opts.pages)
	}
}

func TestSimulate_RejectsBadOptions(t *testing.T) {
	_, err := simulate(context.Background(), simulateOptions{tabs: 0, pages: 1}, transport.NewRecorder(true), logger.NewNop())
	require.Error(t, err)
}

func TestSimulate_Cancelled(t *testing.T) {
	rec := transport.NewRecorder(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := simulate(ctx, simulateOptions{tabs: 2, pages: 3, dwell: time.Hour, scrollPause: time.Hour}, rec, logger.NewNop())
	require.ErrorIs(t, err, context.Canceled)
}

func dashboardServer(t *testing.T, isAdmin bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/admin/verify", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]bool{"isAdmin": isAdmin})
	})
	mux.HandleFunc("/api/v1/analytics/metrics", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))
		_ = json.NewEncoder(w).Encode(domain.Dashboard{
			Metrics: domain.Metrics{
				TotalSessions:       12,
				TotalPageViews:      40,
				AvgSessionDuration:  95,
				SessionDistribution: map[string]int{domain.Bucket1To5m: 7},
				ButtonClicks:        map[string]int{"subscribe-btn": 5, "contact-btn": 2},
				TopPages:            []domain.PageCount{{Path: "/writing", Count: 18}},
				AvgScrollDepth:      62.5,
				DeviceBreakdown:     map[domain.DeviceType]int{domain.DeviceMobile: 4},
			},
			TopTrafficSources: []domain.SourceCount{{Source: "news.ycombinator.com", Count: 6}},
			GeneratedAt:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestReport(t *testing.T) {
	srv := dashboardServer(t, true)

	d, err := newDashboardClient(srv.URL+"/", "tok").Fetch(context.Background(), true)
	require.NoError(t, err)

	var out bytes.Buffer
	renderDashboard(&out, d)
	report := out.String()

	for _, want := range []string{"Overview", "2m", "/writing", "subscribe-btn", "news.ycombinator.com", "5min+"} {
		assert.Contains(t, report, want)
	}
	assert.Less(t, strings.Index(report, "subscribe-btn"), strings.Index(report, "contact-btn"),
		"clicks are listed busiest first")
}

func TestReport_NotAdmin(t *testing.T) {
	srv := dashboardServer(t, false)

	_, err := newDashboardClient(srv.URL, "tok").Fetch(context.Background(), true)
	require.ErrorIs(t, err, errNotAdmin)
}

func TestReport_ServerErrorCarriesStatus(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		code     int
		body     string
		wantMsg  string
		wantWrap string
	}{
		{"expired token", "/api/v1/admin/verify", http.StatusUnauthorized, `{"error":"invalid token"}`, "invalid token", "verify admin"},
		{"metrics failure", "/api/v1/analytics/metrics", http.StatusInternalServerError, `{"error":"failed to compute metrics"}`, "failed to compute metrics", "fetch metrics"},
		{"proxy page", "/api/v1/analytics/metrics", http.StatusBadGateway, "<html>bad gateway</html>", "<html>bad gateway</html>", "fetch metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			if tt.path != "/api/v1/admin/verify" {
				mux.HandleFunc("/api/v1/admin/verify", func(w http.ResponseWriter, _ *http.Request) {
					_ = json.NewEncoder(w).Encode(map[string]bool{"isAdmin": true})
				})
			}
			mux.HandleFunc(tt.path, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			_, err := newDashboardClient(srv.URL, "tok").Fetch(context.Background(), false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantWrap)

			code, ok := infraerrors.GetHTTPStatusCode(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)

			var httpErr *infraerrors.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.wantMsg, httpErr.Message)
		})
	}
}

func TestTokenCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--secret", "s3cret", "--sub", "ops", "--ttl", "1h"})

	require.NoError(t, cmd.Execute())

	claims, err := jwt.Parse("s3cret", strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Sub)
	assert.Equal(t, "admin", claims.Role)
}

func TestTokenCommand_NeedsSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})

	require.ErrorIs(t, cmd.Execute(), errMissingSecret)
}
