// Package cache provides Redis-based caching for risk reports so
// repeated portfolio evaluations within the TTL skip recomputation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradequorum/internal/risk"
)

const opTimeout = 500 * time.Millisecond

// ReportCache caches risk reports keyed by portfolio identifier.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache creates a Redis-backed report cache.
// If client is nil, returns nil (optional Redis support).
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	if client == nil {
		return nil
	}
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &ReportCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cached report. Returns the report and true on a hit,
// or nil and false on a miss or error. Cache errors degrade to misses.
func (c *ReportCache) Get(ctx context.Context, portfolioID string) (*risk.Report, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	key := c.buildKey(portfolioID)

	cacheCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().
				Err(err).
				Str("key", key).
				Msg("Redis get error - treating as cache miss")
		}
		return nil, false
	}

	var report risk.Report
	if err := json.Unmarshal([]byte(cached), &report); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to unmarshal cached risk report")
		return nil, false
	}

	log.Debug().
		Str("portfolio_id", portfolioID).
		Float64("composite_score", report.CompositeScore).
		Msg("Cache hit for risk report")

	return &report, true
}

// Set stores a report in cache with the configured TTL.
func (c *ReportCache) Set(ctx context.Context, portfolioID string, report *risk.Report) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	key := c.buildKey(portfolioID)

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal risk report: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(cacheCtx, key, data, c.ttl).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to cache risk report")
		return err
	}
	return nil
}

// Invalidate drops the cached report for a portfolio, e.g. after a
// position change.
func (c *ReportCache) Invalidate(ctx context.Context, portfolioID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	cacheCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return c.client.Del(cacheCtx, c.buildKey(portfolioID)).Err()
}

func (c *ReportCache) buildKey(portfolioID string) string {
	return fmt.Sprintf("risk_report:%s", portfolioID)
}
