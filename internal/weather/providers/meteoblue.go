package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-station-backend/internal/metrics"
	"github.com/i474232898/weather-station-backend/internal/weather"
)

const (
	DefaultForecastURL = "https://my.meteoblue.com/packages/basic-day"
	DefaultSearchURL   = "https://www.meteoblue.com/en/server/search/query3"

	modelRunLayout = "2006-01-02 15:04"
)

// MeteoblueConfig configures a MeteoblueProvider. Empty URLs and a zero
// Backoff select defaults.
type MeteoblueConfig struct {
	APIKey      string
	ForecastURL string
	SearchURL   string
	Backoff     BackoffConfig
}

// MeteoblueProvider implements weather.ForecastProvider and
// weather.PlaceSearcher against the meteoblue API.
type MeteoblueProvider struct {
	name        string
	apiKey      string
	forecastURL string
	searchURL   string
	httpCfg     HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
}

func NewMeteoblueProvider(client *http.Client, cfg MeteoblueConfig) *MeteoblueProvider {
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = BackoffConfig{
			MaxRetries:      2,
			InitialInterval: 300 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		}
	}

	return &MeteoblueProvider{
		name:        "meteoblue",
		apiKey:      cfg.APIKey,
		forecastURL: cfg.ForecastURL,
		searchURL:   cfg.SearchURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: cfg.Backoff,
		},
		circuit: newCircuitBreaker("meteoblue"),
	}
}

func (p *MeteoblueProvider) Name() string {
	return p.name
}

// FetchForecast requests the daily forecast package for c.
func (p *MeteoblueProvider) FetchForecast(ctx context.Context, c weather.Coordinates) (weather.ForecastSnapshot, error) {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(c.Latitude, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(c.Longitude, 'f', -1, 64))
	values.Set("format", "json")
	if p.apiKey != "" {
		values.Set("apikey", p.apiKey)
	}

	body, err := p.get(ctx, "forecast", p.forecastURL, values)
	if err != nil {
		return weather.ForecastSnapshot{}, err
	}

	snap, err := ParseForecast(body)
	if err != nil {
		return weather.ForecastSnapshot{}, &weather.UpstreamError{Provider: p.name, Endpoint: "forecast", Err: err}
	}
	return snap, nil
}

// SearchPlaces runs a place search with a free-text or coordinate query.
func (p *MeteoblueProvider) SearchPlaces(ctx context.Context, query string) ([]weather.Place, error) {
	values := url.Values{}
	values.Set("query", query)
	if p.apiKey != "" {
		values.Set("apikey", p.apiKey)
	}

	body, err := p.get(ctx, "search", p.searchURL, values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Results []weather.Place `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &weather.UpstreamError{Provider: p.name, Endpoint: "search", Err: fmt.Errorf("decode search results: %w", err)}
	}
	return payload.Results, nil
}

func (p *MeteoblueProvider) get(ctx context.Context, endpoint, baseURL string, values url.Values) ([]byte, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		u := fmt.Sprintf("%s?%s", baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	start := time.Now()
	body, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	metrics.UpstreamLatency.WithLabelValues(p.name, endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		code := statusCodeOf(err)
		status := "error"
		if code != 0 {
			status = strconv.Itoa(code)
		}
		metrics.UpstreamCallsTotal.WithLabelValues(p.name, endpoint, status).Inc()
		return nil, &weather.UpstreamError{Provider: p.name, Endpoint: endpoint, StatusCode: code, Err: err}
	}
	metrics.UpstreamCallsTotal.WithLabelValues(p.name, endpoint, "ok").Inc()
	return body, nil
}

type forecastPayload struct {
	Metadata struct {
		Name                  string  `json:"name"`
		Latitude              float64 `json:"latitude"`
		Longitude             float64 `json:"longitude"`
		Height                float64 `json:"height"`
		UTCTimeOffset         float64 `json:"utc_timeoffset"`
		ModelRunUTC           string  `json:"modelrun_utc"`
		ModelRunUpdateTimeUTC string  `json:"modelrun_updatetime_utc"`
		GenerationTimeMs      float64 `json:"generation_time_ms"`
	} `json:"metadata"`
	DataDay *weather.DailySeries `json:"data_day"`
}

var errMisaligned = errors.New("data_day arrays are not aligned")

// ParseForecast decodes a forecast package response. Every non-empty daily
// array must have one entry per forecast day.
func ParseForecast(body []byte) (weather.ForecastSnapshot, error) {
	var payload forecastPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return weather.ForecastSnapshot{}, fmt.Errorf("decode forecast: %w", err)
	}
	if payload.DataDay == nil || payload.DataDay.Len() == 0 {
		return weather.ForecastSnapshot{}, fmt.Errorf("decode forecast: payload has no data_day")
	}

	d := payload.DataDay
	n := d.Len()
	lengths := map[string]int{
		"temperature_mean":      len(d.TemperatureMean),
		"temperature_instant":   len(d.TemperatureInstant),
		"temperature_max":       len(d.TemperatureMax),
		"temperature_min":       len(d.TemperatureMin),
		"felttemperature_max":   len(d.FeltTemperatureMax),
		"felttemperature_min":   len(d.FeltTemperatureMin),
		"relativehumidity_mean": len(d.HumidityMean),
		"windspeed_mean":        len(d.WindSpeedMean),
		"sealevelpressure_mean": len(d.SeaLevelPressureMean),
		"precipitation":         len(d.Precipitation),
		"precipitation_hours":   len(d.PrecipitationHours),
		"predictability":        len(d.Predictability),
		"pictocode":             len(d.Pictocode),
		"winddirection":         len(d.WindDirection),
		"uvindex":               len(d.UVIndex),
	}
	for field, l := range lengths {
		if l != 0 && l != n {
			return weather.ForecastSnapshot{}, fmt.Errorf("%w: %s has %d entries, time has %d", errMisaligned, field, l, n)
		}
	}

	return weather.ForecastSnapshot{
		Latitude:         payload.Metadata.Latitude,
		Longitude:        payload.Metadata.Longitude,
		ModelRun:         parseModelRun(payload.Metadata.ModelRunUTC),
		ModelRunUpdated:  parseModelRun(payload.Metadata.ModelRunUpdateTimeUTC),
		UTCOffset:        payload.Metadata.UTCTimeOffset,
		GenerationTimeMs: payload.Metadata.GenerationTimeMs,
		Daily:            *d,
	}, nil
}

func parseModelRun(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.ParseInLocation(modelRunLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return ts
}
