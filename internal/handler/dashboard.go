package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
)

// MetricsProvider computes the dashboard document.
type MetricsProvider interface {
	Metrics(ctx context.Context, refresh bool) (*domain.Dashboard, error)
}

// AdminChecker decides whether a token holder is an operator.
type AdminChecker interface {
	IsAdmin(claims *jwt.Claims) bool
}

// DashboardHandler serves the operator endpoints. Both routes sit behind
// the JWT middleware.
type DashboardHandler struct {
	metrics MetricsProvider
	admins  AdminChecker
	log     logger.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(metrics MetricsProvider, admins AdminChecker, log logger.Logger) *DashboardHandler {
	return &DashboardHandler{metrics: metrics, admins: admins, log: log}
}

// VerifyAdmin handles GET /api/v1/admin/verify.
func (h *DashboardHandler) VerifyAdmin(c *gin.Context) {
	claims, ok := jwt.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"isAdmin": h.admins.IsAdmin(claims)})
}

// Metrics handles GET /api/v1/analytics/metrics. ?refresh=true bypasses
// the cache.
func (h *DashboardHandler) Metrics(c *gin.Context) {
	claims, ok := jwt.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !h.admins.IsAdmin(claims) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}

	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	dashboard, err := h.metrics.Metrics(c.Request.Context(), refresh)
	if err != nil {
		h.log.Error("Failed to compute metrics",
			logger.String("subject", claims.Sub),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute metrics"})
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
