// Package handler contains the HTTP handlers of the visitor-analytics API.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/middleware"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/service"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/transport"
)

// Ingester applies one tracking call.
type Ingester interface {
	Handle(ctx context.Context, req transport.Request, bot bool) error
}

// TrackHandler serves the public ingest endpoint.
type TrackHandler struct {
	ingest Ingester
	log    logger.Logger
}

// NewTrackHandler creates a TrackHandler.
func NewTrackHandler(ingest Ingester, log logger.Logger) *TrackHandler {
	return &TrackHandler{ingest: ingest, log: log}
}

// Track handles POST /api/v1/track. Internal errors are never echoed to
// the visitor.
func (h *TrackHandler) Track(c *gin.Context) {
	var req transport.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, transport.Response{Error: "invalid request body"})
		return
	}

	err := h.ingest.Handle(c.Request.Context(), req, middleware.IsBot(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, transport.Response{Success: true})
	case service.IsValidationError(err):
		c.JSON(http.StatusBadRequest, transport.Response{Error: err.Error()})
	default:
		h.log.Error("Failed to ingest tracking call",
			logger.String("action", string(req.Action)),
			logger.String(infragin.RequestIDKey, c.GetString(infragin.RequestIDKey)),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, transport.Response{Error: "internal error"})
	}
}
