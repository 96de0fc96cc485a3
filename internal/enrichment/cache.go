package enrichment

import (
	"context"
	"fmt"
	"time"

	"rapidresponse/internal/common/database"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/common/metrics"
	"rapidresponse/internal/models"

	"github.com/redis/go-redis/v9"
)

// cache is a read-through Redis cache. Redis failures are logged and treated as misses.
type cache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	source string
	logger logger.Logger
}

func cacheKey(source string, loc models.Location, suffix string) string {
	key := fmt.Sprintf("enrich:%s:%.3f:%.3f", source, loc.Lat, loc.Lon)
	if suffix != "" {
		key += ":" + suffix
	}
	return key
}

func readThrough[T any](ctx context.Context, c *cache, key string, fetch func(context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := database.GetJSON(ctx, c.rdb, key, &cached)
	switch {
	case err != nil:
		c.logger.Warn("Enrichment cache read failed", map[string]interface{}{
			"source": c.source,
			"key":    key,
			"error":  err.Error(),
		})
		metrics.EnrichmentCache.WithLabelValues(c.source, "error").Inc()
	case hit:
		metrics.EnrichmentCache.WithLabelValues(c.source, "hit").Inc()
		return cached, nil
	default:
		metrics.EnrichmentCache.WithLabelValues(c.source, "miss").Inc()
	}

	fresh, err := fetch(ctx)
	if err != nil {
		return fresh, err
	}
	if err := database.SetJSON(ctx, c.rdb, key, fresh, c.ttl); err != nil {
		c.logger.Warn("Enrichment cache write failed", map[string]interface{}{
			"source": c.source,
			"key":    key,
			"error":  err.Error(),
		})
	}
	return fresh, nil
}

// CachedWeatherSource caches a WeatherSource in Redis.
type CachedWeatherSource struct {
	next  WeatherSource
	cache *cache
}

func NewCachedWeatherSource(next WeatherSource, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedWeatherSource {
	return &CachedWeatherSource{next: next, cache: &cache{rdb: rdb, ttl: ttl, source: "weather", logger: log}}
}

func (s *CachedWeatherSource) CurrentWeather(ctx context.Context, loc models.Location) (*models.Weather, error) {
	return readThrough(ctx, s.cache, cacheKey("weather", loc, ""), func(ctx context.Context) (*models.Weather, error) {
		return s.next.CurrentWeather(ctx, loc)
	})
}

// CachedTrafficSource caches a TrafficSource in Redis.
type CachedTrafficSource struct {
	next  TrafficSource
	cache *cache
}

func NewCachedTrafficSource(next TrafficSource, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedTrafficSource {
	return &CachedTrafficSource{next: next, cache: &cache{rdb: rdb, ttl: ttl, source: "traffic", logger: log}}
}

func (s *CachedTrafficSource) TrafficConditions(ctx context.Context, loc models.Location) (*models.Traffic, error) {
	return readThrough(ctx, s.cache, cacheKey("traffic", loc, ""), func(ctx context.Context) (*models.Traffic, error) {
		return s.next.TrafficConditions(ctx, loc)
	})
}

// CachedFacilitySource caches a FacilitySource in Redis, keyed by facility kind.
type CachedFacilitySource struct {
	next  FacilitySource
	cache *cache
}

func NewCachedFacilitySource(next FacilitySource, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedFacilitySource {
	return &CachedFacilitySource{next: next, cache: &cache{rdb: rdb, ttl: ttl, source: "facilities", logger: log}}
}

func (s *CachedFacilitySource) NearbyFacilities(ctx context.Context, loc models.Location, kind models.FacilityKind) ([]models.Facility, error) {
	return readThrough(ctx, s.cache, cacheKey("facilities", loc, string(kind)), func(ctx context.Context) ([]models.Facility, error) {
		return s.next.NearbyFacilities(ctx, loc, kind)
	})
}
