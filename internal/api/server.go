package api

import (
	"time"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/config"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// HealthChecks are the dependency pings reported on /health. Nil entries
// are skipped.
type HealthChecks struct {
	Database func() error
	Redis    func() error
}

// NewServer creates the HTTP server.
func NewServer(
	cfg *config.Config,
	h Handlers,
	checks HealthChecks,
	log logger.Logger,
) *infragin.Server {
	b := infragin.NewServerBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithTimeouts(defaultReadTimeout, defaultWriteTimeout, defaultIdleTimeout)

	if len(cfg.Service.CORSOrigins) > 0 {
		b = b.WithCORSOrigins(cfg.Service.CORSOrigins)
	}
	if checks.Database != nil {
		b = b.WithDatabaseHealthCheck(checks.Database)
	}
	if checks.Redis != nil {
		b = b.WithRedisHealthCheck(checks.Redis)
	}

	return b.WithRoutes(func(router *gin.Engine) {
		SetupRoutes(router, h, cfg.Auth.JWTSecret)
	}).Build()
}
