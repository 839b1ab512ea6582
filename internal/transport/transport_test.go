package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/transport"
)

func TestHTTPClient_SubmitPostsActionAndData(t *testing.T) {
	var got transport.Request
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, transport.TrackPath, r.URL.Path)
		ua = r.UserAgent()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := transport.NewHTTPClient(srv.URL+"/", logger.NewNop(), transport.WithUserAgent("sim/1.0"))
	ok := client.Submit(context.Background(), transport.ActionCreateSession, transport.CreateSession{
		SessionID:   "1-abc",
		DeviceType:  domain.DeviceDesktop,
		Referrer:    domain.ReferrerDirect,
		ScreenWidth: 1440,
		IsActive:    true,
	})

	require.True(t, ok)
	assert.Equal(t, transport.ActionCreateSession, got.Action)
	assert.Equal(t, "sim/1.0", ua)

	var data transport.CreateSession
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, "1-abc", data.SessionID)
	assert.Equal(t, 1440, data.ScreenWidth)
	assert.True(t, data.IsActive)
}

func TestHTTPClient_SubmitReportsFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"rejected", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"error":"unknown action"}`))
		}},
		{"rejected with ok status", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"error":"missing session_id"}`))
		}},
		{"not json", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>bad gateway</html>`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := transport.NewHTTPClient(srv.URL, logger.NewNop())
			assert.False(t, client.Submit(context.Background(), transport.ActionTrackEvent, transport.TrackEvent{}))
		})
	}
}

func TestHTTPClient_SubmitUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := transport.NewHTTPClient(url, logger.NewNop())
	assert.False(t, client.Submit(context.Background(), transport.ActionTrackEvent, transport.TrackEvent{}))
}

func TestRecorder_FiltersByAction(t *testing.T) {
	rec := transport.NewRecorder(true)
	ctx := context.Background()

	rec.Submit(ctx, transport.ActionCreateSession, transport.CreateSession{SessionID: "s"})
	rec.Submit(ctx, transport.ActionTrackEvent, transport.TrackEvent{SessionID: "s", EventType: domain.EventPageView})
	rec.Submit(ctx, transport.ActionUpdateSession, transport.UpdateSession{SessionID: "s"})

	assert.Len(t, rec.Calls(), 3)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, domain.EventPageView, rec.Events()[0].EventType)
	assert.Len(t, rec.Updates(), 1)
}
