// Package api wires the HTTP routes of the visitor-analytics service.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/monitoring"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/handler"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/middleware"
)

// Handlers groups the route handlers.
type Handlers struct {
	Track     *handler.TrackHandler
	Dashboard *handler.DashboardHandler
	// Metrics serves the Prometheus exposition; nil disables /metrics.
	Metrics http.Handler
	// BufferDepth reports queued events on /health/memory; may be nil.
	BufferDepth func() int
}

// SetupRoutes configures all API routes.
// Health routes are registered by the infrastructure gin builder.
func SetupRoutes(router *gin.Engine, h Handlers, jwtSecret string) {
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics))
	}

	router.GET("/health/memory", gin.WrapF(monitoring.MemoryHealthHandler(h.BufferDepth)))

	public, protected := infragin.SetupAPIRoutesWithPublic(router, jwtSecret)

	// Tracking calls from tabs: bots are acknowledged but not stored
	public.POST("/track", middleware.BotFilter(), h.Track.Track)

	protected.GET("/admin/verify", h.Dashboard.VerifyAdmin)
	protected.GET("/analytics/metrics", h.Dashboard.Metrics)
}
