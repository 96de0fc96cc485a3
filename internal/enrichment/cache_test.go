package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "enrich:weather:40.713:-74.006", cacheKey("weather", testLocation, ""))
	assert.Equal(t, "enrich:facilities:40.713:-74.006:hospital", cacheKey("facilities", testLocation, "hospital"))
}

func TestCachedWeatherSource_ReadThrough(t *testing.T) {
	mr, rdb := setupMiniredis(t)

	calls := 0
	next := &mockWeather{CurrentWeatherFunc: func(ctx context.Context, loc models.Location) (*models.Weather, error) {
		calls++
		return &models.Weather{Conditions: "rain", Temperature: floatPtr(9)}, nil
	}}
	src := NewCachedWeatherSource(next, rdb, 600*time.Second, logger.NewTestLogger(t))

	first, err := src.CurrentWeather(context.Background(), testLocation)
	require.NoError(t, err)
	second, err := src.CurrentWeather(context.Background(), testLocation)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 600*time.Second, mr.TTL(cacheKey("weather", testLocation, "")))
}

func TestCachedTrafficSource_ExpiresAfterTTL(t *testing.T) {
	mr, rdb := setupMiniredis(t)

	calls := 0
	next := &mockTraffic{TrafficConditionsFunc: func(ctx context.Context, loc models.Location) (*models.Traffic, error) {
		calls++
		return &models.Traffic{CongestionLevel: "low", Incidents: []string{}}, nil
	}}
	src := NewCachedTrafficSource(next, rdb, 300*time.Second, logger.NewTestLogger(t))

	_, err := src.TrafficConditions(context.Background(), testLocation)
	require.NoError(t, err)
	mr.FastForward(301 * time.Second)
	_, err = src.TrafficConditions(context.Background(), testLocation)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestCachedSource_FetchErrorNotCached(t *testing.T) {
	mr, rdb := setupMiniredis(t)

	next := &mockFacilities{NearbyFacilitiesFunc: func(ctx context.Context, loc models.Location, kind models.FacilityKind) ([]models.Facility, error) {
		return nil, errors.New("es unavailable")
	}}
	src := NewCachedFacilitySource(next, rdb, time.Hour, logger.NewTestLogger(t))

	_, err := src.NearbyFacilities(context.Background(), testLocation, models.FacilityHospital)
	assert.Error(t, err)
	assert.False(t, mr.Exists(cacheKey("facilities", testLocation, "hospital")))
}

func TestCachedSource_RedisFailureFallsThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	key := cacheKey("weather", testLocation, "")
	want := &models.Weather{Conditions: "fog"}
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectGet(key).SetErr(errors.New("connection reset"))
	mock.ExpectSet(key, raw, 10*time.Minute).SetErr(errors.New("connection reset"))

	next := &mockWeather{CurrentWeatherFunc: func(ctx context.Context, loc models.Location) (*models.Weather, error) {
		return want, nil
	}}
	src := NewCachedWeatherSource(next, db, 10*time.Minute, logger.NewTestLogger(t))

	got, err := src.CurrentWeather(context.Background(), testLocation)
	require.NoError(t, err)
	assert.Equal(t, "fog", got.Conditions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
