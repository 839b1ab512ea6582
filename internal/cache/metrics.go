// Package cache stores computed dashboard metrics in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
)

// MetricsKey is the Redis key holding the last computed dashboard.
const MetricsKey = "visitor_analytics:metrics"

// DefaultTTL is used when NewMetricsCache is given a non-positive ttl.
const DefaultTTL = 30 * time.Second

// MetricsCache is a read-through cache for the dashboard document.
type MetricsCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewMetricsCache creates a cache over client.
func NewMetricsCache(client redis.UniversalClient, ttl time.Duration) *MetricsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MetricsCache{client: client, ttl: ttl}
}

// Get returns the cached dashboard. ok is false on a miss.
func (c *MetricsCache) Get(ctx context.Context) (dashboard *domain.Dashboard, ok bool, err error) {
	raw, err := c.client.Get(ctx, MetricsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached metrics: %w", err)
	}

	var d domain.Dashboard
	if unmarshalErr := json.Unmarshal(raw, &d); unmarshalErr != nil {
		return nil, false, fmt.Errorf("decode cached metrics: %w", unmarshalErr)
	}
	return &d, true, nil
}

// Set stores the dashboard for the cache TTL.
func (c *MetricsCache) Set(ctx context.Context, d *domain.Dashboard) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	if setErr := c.client.Set(ctx, MetricsKey, raw, c.ttl).Err(); setErr != nil {
		return fmt.Errorf("set cached metrics: %w", setErr)
	}
	return nil
}
