// Package rediscache memoises zonal means in Redis so repeated runs over the
// same scenes and plots skip the expensive aggregation.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/couchcryptid/plot-timeseries-etl/internal/observability"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "plot-timeseries:zonal:v2:"
	noData    = "nodata"
)

// store is the subset of *redis.Client used by the cache.
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedSampler wraps a Sampler with a Redis cache. Both values and "no valid
// pixel" results are cached; sampler errors are not.
type CachedSampler struct {
	inner   domain.Sampler
	store   store
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedSampler creates a cache decorator around a sampler. A zero ttl
// keeps entries until Redis evicts them.
func NewCachedSampler(inner domain.Sampler, client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedSampler {
	return newCachedSampler(inner, client, ttl, metrics, logger)
}

func newCachedSampler(inner domain.Sampler, s store, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedSampler {
	return &CachedSampler{inner: inner, store: s, ttl: ttl, metrics: metrics, logger: logger}
}

// NewClient builds a Redis client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (c *CachedSampler) Sample(ctx context.Context, req domain.SampleRequest) (float64, bool, error) {
	key := cacheKey(req)

	raw, err := c.store.Get(ctx, key).Result()
	switch {
	case err == nil:
		if v, ok, perr := decode(raw); perr == nil {
			c.metrics.SampleCache.WithLabelValues("hit").Inc()
			return v, ok, nil
		}
		c.logger.Warn("discarding malformed cache entry", "key", key)
		c.metrics.SampleCache.WithLabelValues("miss").Inc()
	case errors.Is(err, redis.Nil):
		c.metrics.SampleCache.WithLabelValues("miss").Inc()
	default:
		c.metrics.SampleCache.WithLabelValues("error").Inc()
		c.logger.Warn("sample cache read failed", "error", err)
	}

	v, ok, err := c.inner.Sample(ctx, req)
	if err != nil {
		return v, ok, err
	}
	if err := c.store.Set(ctx, key, encode(v, ok), c.ttl).Err(); err != nil {
		c.metrics.SampleCache.WithLabelValues("error").Inc()
		c.logger.Warn("sample cache write failed", "error", err)
	}
	return v, ok, nil
}

// cacheKey identifies a sample by everything that affects its value.
func cacheKey(req domain.SampleRequest) string {
	b := req.Region.Bound
	return fmt.Sprintf("%s%s|%s|%s|%g|%g|%s|%.7f,%.7f,%.7f,%.7f",
		keyPrefix, req.Collection, req.Scene.ID, req.Variable.Band,
		req.Variable.Factor(), req.Resolution, maskKey(req.Mask),
		b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat(),
	)
}

// maskKey names the mask policy together with a digest of its parameters, so
// changing a threshold or a rejected class never reuses old means.
func maskKey(m domain.MaskPolicy) string {
	if m == nil {
		m = domain.NoMask{}
	}
	params, err := json.Marshal(m)
	if err != nil {
		params = []byte(fmt.Sprintf("%#v", m))
	}
	return m.Kind() + ":" + strconv.FormatUint(xxhash.Sum64(params), 16)
}

func encode(v float64, ok bool) string {
	if !ok {
		return noData
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func decode(s string) (float64, bool, error) {
	if s == noData {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
