package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"rapidresponse/internal/common/config"
	httpclient "rapidresponse/internal/common/http"
	"rapidresponse/internal/common/validation"
	"rapidresponse/internal/models"
)

// WeatherSource reports current conditions at a location.
type WeatherSource interface {
	CurrentWeather(ctx context.Context, loc models.Location) (*models.Weather, error)
}

// TrafficSource reports traffic conditions around a location.
type TrafficSource interface {
	TrafficConditions(ctx context.Context, loc models.Location) (*models.Traffic, error)
}

// FacilitySource finds facilities of a kind near a location.
type FacilitySource interface {
	NearbyFacilities(ctx context.Context, loc models.Location, kind models.FacilityKind) ([]models.Facility, error)
}

var (
	weatherSchema = validation.MustCompile("weather", `{
		"type": "object",
		"required": ["conditions"],
		"properties": {
			"temperature": {"type": ["number", "null"]},
			"conditions": {"type": "string"},
			"wind_speed": {"type": ["number", "null"]},
			"visibility": {"type": ["number", "null"]}
		}
	}`)

	trafficSchema = validation.MustCompile("traffic", `{
		"type": "object",
		"required": ["congestion_level"],
		"properties": {
			"congestion_level": {"type": "string"},
			"average_speed": {"type": ["number", "null"]},
			"incidents": {"type": ["array", "null"], "items": {"type": "string"}}
		}
	}`)
)

func locationQuery(base, path string, loc models.Location, extra url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HTTPWeatherSource queries a weather API over HTTP.
type HTTPWeatherSource struct {
	baseURL string
	client  *httpclient.Client
}

func NewHTTPWeatherSource(cfg config.ProviderEndpoint) *HTTPWeatherSource {
	return &HTTPWeatherSource{
		baseURL: cfg.BaseURL,
		client:  httpclient.NewClient(config.GetDuration(cfg.Timeout)).WithAPIKey(cfg.APIKey),
	}
}

func (s *HTTPWeatherSource) CurrentWeather(ctx context.Context, loc models.Location) (*models.Weather, error) {
	u, err := locationQuery(s.baseURL, "/current", loc, nil)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("weather lookup: %w", err)
	}
	if err := weatherSchema.Check(raw); err != nil {
		return nil, err
	}
	var w models.Weather
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode weather: %w", err)
	}
	return &w, nil
}

// HTTPTrafficSource queries a traffic API over HTTP.
type HTTPTrafficSource struct {
	baseURL      string
	radiusMeters int
	client       *httpclient.Client
}

func NewHTTPTrafficSource(cfg config.ProviderEndpoint, radiusMeters int) *HTTPTrafficSource {
	return &HTTPTrafficSource{
		baseURL:      cfg.BaseURL,
		radiusMeters: radiusMeters,
		client:       httpclient.NewClient(config.GetDuration(cfg.Timeout)).WithAPIKey(cfg.APIKey),
	}
}

func (s *HTTPTrafficSource) TrafficConditions(ctx context.Context, loc models.Location) (*models.Traffic, error) {
	u, err := locationQuery(s.baseURL, "/traffic", loc, url.Values{"radius": {strconv.Itoa(s.radiusMeters)}})
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("traffic lookup: %w", err)
	}
	if err := trafficSchema.Check(raw); err != nil {
		return nil, err
	}
	var t models.Traffic
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode traffic: %w", err)
	}
	if t.Incidents == nil {
		t.Incidents = []string{}
	}
	return &t, nil
}
