package monitoring_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/monitoring"
)

func TestMemoryHealthHandler(t *testing.T) {
	h := monitoring.MemoryHealthHandler(func() int { return 7 })

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/health/memory", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got monitoring.MemoryHealth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.BufferedEvents)
	assert.Equal(t, 7, *got.BufferedEvents)
	assert.Positive(t, got.NumGoroutine)
	assert.Positive(t, got.GOMaxProcs)
	assert.False(t, got.Timestamp.IsZero())
}

func TestSnapshot_WithoutBuffer(t *testing.T) {
	got := monitoring.Snapshot(nil)

	assert.Nil(t, got.BufferedEvents)
	assert.Positive(t, got.HeapAllocMB)
}
