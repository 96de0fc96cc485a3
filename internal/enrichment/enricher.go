// Package enrichment gathers weather, traffic and nearby facility context for a
// report location. Every lookup is optional: a failed or slow source falls back to
// its default value and is listed as degraded.
package enrichment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/common/metrics"
	"rapidresponse/internal/models"

	"golang.org/x/sync/errgroup"
)

// FacilityKindFor maps an emergency type to the facility kind worth looking up.
func FacilityKindFor(emergencyType string) models.FacilityKind {
	switch models.NormalizeType(emergencyType) {
	case models.TypeMedical, models.TypeTraffic, models.TypeNaturalDisaster:
		return models.FacilityHospital
	case models.TypeFire:
		return models.FacilityFireStation
	case models.TypeCrime:
		return models.FacilityPoliceStation
	default:
		return models.FacilityNone
	}
}

var (
	errSourceNotConfigured = errors.New("source not configured")
	errEmptyResult         = errors.New("source returned no data")
)

func orEmpty(err error) error {
	if err == nil {
		return errEmptyResult
	}
	return err
}

type Enricher struct {
	weather    WeatherSource
	traffic    TrafficSource
	facilities FacilitySource
	timeout    time.Duration
	logger     logger.Logger
}

// NewEnricher builds an Enricher. Nil sources are reported as degraded on every call.
func NewEnricher(weather WeatherSource, traffic TrafficSource, facilities FacilitySource, timeout time.Duration, log logger.Logger) *Enricher {
	return &Enricher{
		weather:    weather,
		traffic:    traffic,
		facilities: facilities,
		timeout:    timeout,
		logger:     log.WithFields(map[string]interface{}{"component": "enrichment"}),
	}
}

// Enrich never fails. The three lookups run concurrently and each is abandoned after
// the configured timeout even if the source ignores cancellation.
func (e *Enricher) Enrich(ctx context.Context, loc models.Location, emergencyType string) *models.EmergencyContext {
	out := &models.EmergencyContext{
		Weather:      models.DefaultWeather(),
		Traffic:      models.DefaultTraffic(),
		FacilityType: FacilityKindFor(emergencyType),
		Facilities:   []models.Facility{},
	}

	var (
		mu       sync.Mutex
		degraded []string
		g        errgroup.Group
	)
	degrade := func(source string, err error) {
		e.logger.Warn("Context lookup degraded to defaults", map[string]interface{}{
			"source": source,
			"lat":    loc.Lat,
			"lon":    loc.Lon,
			"error":  err.Error(),
		})
		metrics.EnrichmentDegraded.WithLabelValues(source).Inc()
		mu.Lock()
		degraded = append(degraded, source)
		mu.Unlock()
	}

	g.Go(func() error {
		if e.weather == nil {
			degrade("weather", errSourceNotConfigured)
			return nil
		}
		w, err := runWithTimeout(ctx, e.timeout, func(ctx context.Context) (*models.Weather, error) {
			return e.weather.CurrentWeather(ctx, loc)
		})
		if err != nil || w == nil {
			degrade("weather", orEmpty(err))
			return nil
		}
		mu.Lock()
		out.Weather = *w
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if e.traffic == nil {
			degrade("traffic", errSourceNotConfigured)
			return nil
		}
		t, err := runWithTimeout(ctx, e.timeout, func(ctx context.Context) (*models.Traffic, error) {
			return e.traffic.TrafficConditions(ctx, loc)
		})
		if err != nil || t == nil {
			degrade("traffic", orEmpty(err))
			return nil
		}
		mu.Lock()
		out.Traffic = *t
		mu.Unlock()
		return nil
	})

	if out.FacilityType != models.FacilityNone {
		g.Go(func() error {
			if e.facilities == nil {
				degrade("facilities", errSourceNotConfigured)
				return nil
			}
			fs, err := runWithTimeout(ctx, e.timeout, func(ctx context.Context) ([]models.Facility, error) {
				return e.facilities.NearbyFacilities(ctx, loc, out.FacilityType)
			})
			if err != nil {
				degrade("facilities", err)
				return nil
			}
			if fs != nil {
				mu.Lock()
				out.Facilities = fs
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()

	sort.Strings(degraded)
	out.Degraded = degraded
	return out
}

// runWithTimeout runs fn in its own goroutine and stops waiting once timeout elapses
// or ctx is done.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
