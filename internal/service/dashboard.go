package service

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/aggregate"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/telemetry"
)

// TopTrafficSourcesLimit is the number of sources listed on the dashboard.
const TopTrafficSourcesLimit = 5

// Cache results reported to telemetry.
const (
	cacheHit    = "hit"
	cacheMiss   = "miss"
	cacheBypass = "bypass"
	cacheError  = "error"
)

// DataSource loads the full session and event history.
type DataSource interface {
	ListSessions(ctx context.Context) ([]domain.Session, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
}

// MetricsCache holds the last computed dashboard.
type MetricsCache interface {
	Get(ctx context.Context) (*domain.Dashboard, bool, error)
	Set(ctx context.Context, d *domain.Dashboard) error
}

// Dashboard computes operator metrics.
type Dashboard struct {
	source  DataSource
	cache   MetricsCache
	clock   clockwork.Clock
	log     logger.Logger
	metrics *telemetry.Metrics
}

// NewDashboard creates a Dashboard. cache, clk and metrics may be nil; with
// no cache every call recomputes.
func NewDashboard(
	source DataSource,
	cache MetricsCache,
	clk clockwork.Clock,
	log logger.Logger,
	metrics *telemetry.Metrics,
) *Dashboard {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Dashboard{
		source:  source,
		cache:   cache,
		clock:   clk,
		log:     log,
		metrics: metrics,
	}
}

// Metrics returns the dashboard document, from cache unless refresh is set.
// Cache failures are logged and never fail the call.
func (d *Dashboard) Metrics(ctx context.Context, refresh bool) (*domain.Dashboard, error) {
	if cached, ok := d.cached(ctx, refresh); ok {
		return cached, nil
	}

	result, err := d.compute(ctx)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if setErr := d.cache.Set(ctx, result); setErr != nil {
			d.log.Warn("Failed to cache metrics", logger.Error(setErr))
		}
	}
	return result, nil
}

func (d *Dashboard) cached(ctx context.Context, refresh bool) (*domain.Dashboard, bool) {
	if d.cache == nil || refresh {
		d.metrics.RecordCache(cacheBypass)
		return nil, false
	}

	cached, ok, err := d.cache.Get(ctx)
	switch {
	case err != nil:
		d.metrics.RecordCache(cacheError)
		d.log.Warn("Failed to read cached metrics", logger.Error(err))
		return nil, false
	case !ok:
		d.metrics.RecordCache(cacheMiss)
		return nil, false
	default:
		d.metrics.RecordCache(cacheHit)
		return cached, true
	}
}

// compute loads sessions and events concurrently and aggregates them.
func (d *Dashboard) compute(ctx context.Context) (*domain.Dashboard, error) {
	var (
		sessions []domain.Session
		events   []domain.Event
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = d.source.ListSessions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = d.source.ListEvents(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load analytics data: %w", err)
	}

	start := d.clock.Now()
	m := aggregate.Aggregate(sessions, events)
	d.metrics.ObserveAggregation(d.clock.Now().Sub(start))

	d.log.Debug("Computed metrics",
		logger.Int("sessions", len(sessions)),
		logger.Int("events", len(events)),
	)

	return &domain.Dashboard{
		Metrics:           m,
		TopTrafficSources: aggregate.TopTrafficSources(m, TopTrafficSourcesLimit),
		GeneratedAt:       d.clock.Now().UTC(),
	}, nil
}
