package weather_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-station-backend/internal/store"
	"github.com/i474232898/weather-station-backend/internal/weather"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeProvider serves a one-day forecast at the requested position unless
// err or servedAt is set.
type fakeProvider struct {
	calls    int32
	err      error
	servedAt *weather.Coordinates
	gate     chan struct{}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchForecast(ctx context.Context, c weather.Coordinates) (weather.ForecastSnapshot, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return weather.ForecastSnapshot{}, ctx.Err()
		}
	}
	if p.err != nil {
		return weather.ForecastSnapshot{}, p.err
	}
	if p.servedAt != nil {
		c = *p.servedAt
	}
	return weather.ForecastSnapshot{
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		Daily: weather.DailySeries{
			Time:            []string{"2026-10-15"},
			TemperatureMean: []float64{14.5},
		},
	}, nil
}

func (p *fakeProvider) Calls() int {
	return int(atomic.LoadInt32(&p.calls))
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	places  []weather.Place
	err     error
}

func (s *fakeSearcher) SearchPlaces(_ context.Context, query string) ([]weather.Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.places, nil
}

func seedStation(t *testing.T, s *store.MemoryStore, id string, c weather.Coordinates) weather.Station {
	t.Helper()
	st := weather.Station{
		ID:        id,
		OwnerID:   "alice",
		Name:      "Garden",
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
	}
	require.NoError(t, s.CreateStation(context.Background(), st))
	return st
}

func addReading(t *testing.T, s *store.MemoryStore, stationID string, ts time.Time, temp, humidity float64) {
	t.Helper()
	require.NoError(t, s.AddMeasurement(context.Background(), weather.Measurement{
		StationID:   stationID,
		Timestamp:   ts,
		Temperature: temp,
		Humidity:    humidity,
	}))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(v float64) *float64 {
	return &v
}
