package gin

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the status of a health check.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of one dependency check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthChecker performs a dependency check.
type HealthChecker func() CheckResult

// HealthOptions configures the health endpoints.
type HealthOptions struct {
	ServiceName    string
	ServiceVersion string
	// StartTime defaults to the registration time.
	StartTime time.Time
	Checks    map[string]HealthChecker
}

// RegisterHealthRoutes adds GET and HEAD /health to the router.
// The overall status is the worst of the individual checks; an unhealthy
// dependency answers 503 so load balancers take the instance out.
func RegisterHealthRoutes(router *gin.Engine, opts HealthOptions) {
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(healthStatusCode(evaluate(opts)))
	})
	router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
}

func evaluate(opts HealthOptions) HealthResponse {
	resp := HealthResponse{
		Status:  HealthStatusHealthy,
		Service: opts.ServiceName,
		Version: opts.ServiceVersion,
		Uptime:  time.Since(opts.StartTime).Truncate(time.Second).String(),
	}
	if len(opts.Checks) == 0 {
		return resp
	}

	names := make([]string, 0, len(opts.Checks))
	for name := range opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp.Checks = make(map[string]CheckResult, len(names))
	for _, name := range names {
		result := opts.Checks[name]()
		resp.Checks[name] = result
		switch {
		case result.Status == HealthStatusUnhealthy:
			resp.Status = HealthStatusUnhealthy
		case result.Status == HealthStatusDegraded && resp.Status == HealthStatusHealthy:
			resp.Status = HealthStatusDegraded
		}
	}
	return resp
}

func healthStatusCode(resp HealthResponse) (int, HealthResponse) {
	if resp.Status == HealthStatusUnhealthy {
		return http.StatusServiceUnavailable, resp
	}
	return http.StatusOK, resp
}

func pingChecker(name string, failStatus HealthStatus, pingFunc func() error) HealthChecker {
	return func() CheckResult {
		start := time.Now()
		err := pingFunc()
		latency := time.Since(start).String()
		if err != nil {
			return CheckResult{Status: failStatus, Message: name + " connection failed", Latency: latency}
		}
		return CheckResult{Status: HealthStatusHealthy, Message: name + " connection OK", Latency: latency}
	}
}

// DatabaseHealthChecker reports unhealthy when the database cannot be pinged.
func DatabaseHealthChecker(pingFunc func() error) HealthChecker {
	return pingChecker("Database", HealthStatusUnhealthy, pingFunc)
}

// RedisHealthChecker reports degraded when Redis cannot be pinged; the
// metrics cache is optional.
func RedisHealthChecker(pingFunc func() error) HealthChecker {
	return pingChecker("Redis", HealthStatusDegraded, pingFunc)
}
