package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-station-backend/internal/cache"
	"github.com/i474232898/weather-station-backend/internal/store"
	"github.com/i474232898/weather-station-backend/internal/weather"
)

type stubProvider struct {
	err error
}

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) FetchForecast(_ context.Context, c weather.Coordinates) (weather.ForecastSnapshot, error) {
	if p.err != nil {
		return weather.ForecastSnapshot{}, p.err
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

type emptySearch struct{}

func (emptySearch) SearchPlaces(context.Context, string) ([]weather.Place, error) {
	return nil, nil
}

type testEnv struct {
	app   *fiber.App
	store *store.MemoryStore
	now   time.Time
}

func newTestEnv(t *testing.T, provider weather.ForecastProvider) *testEnv {
	t.Helper()

	env := &testEnv{
		store: store.NewMemoryStore(0),
		now:   time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }

	places := weather.NewPlaceResolver(emptySearch{}, nil)
	deps := Deps{
		Stations: weather.NewStationService(env.store, env.store, places, clock, nil),
		Stats:    weather.NewStatAggregator(env.store, env.store, env.store, time.UTC, clock, nil),
		Forecasts: weather.NewForecastCoordinator(env.store, env.store, cache.New[weather.ForecastSnapshot](clock), provider, places,
			weather.ForecastOptions{Location: time.UTC, Clock: clock}, nil),
		Location: time.UTC,
		Clock:    clock,
	}

	env.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(env.app, deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, user, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}

	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (e *testEnv) createStation(t *testing.T, user string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/stations", user, `{"name":"Garden","latitude":47.5584,"longitude":7.5733}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	return body["id"].(string)
}

func TestRequiresPrincipal(t *testing.T) {
	env := newTestEnv(t, stubProvider{})

	resp, _ := env.do(t, http.MethodPost, "/api/v1/stations", "", `{"name":"Garden","latitude":1,"longitude":2}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestCreateStationValidation(t *testing.T) {
	env := newTestEnv(t, stubProvider{})

	for _, body := range []string{
		`{"name":"Garden","latitude":95,"longitude":2}`,
		`{"name":"Garden","longitude":2}`,
		`{"latitude":1,"longitude":2}`,
		`not json`,
	} {
		resp, _ := env.do(t, http.MethodPost, "/api/v1/stations", "alice", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestStationIsScopedToOwner(t *testing.T) {
	env := newTestEnv(t, stubProvider{})
	id := env.createStation(t, "alice")

	resp, body := env.do(t, http.MethodGet, "/api/v1/stations/"+id, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Garden", body["name"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/stations", "mallory", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["stations"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/stations/"+id, "mallory", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, true, body["error"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/stations/"+id+"/stats", "mallory", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/stations/"+id+"/measurements", "mallory",
		`{"timestamp":"2026-10-15T08:00:00Z","temperature":20,"humidity":50}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDailyStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, stubProvider{})
	id := env.createStation(t, "alice")

	for _, m := range []string{
		`{"timestamp":"2026-10-14T06:00:00Z","temperature":20,"humidity":40}`,
		`{"timestamp":"2026-10-14T18:00:00Z","temperature":24,"humidity":60,"pressure":1012}`,
		`{"timestamp":"2026-10-15T08:00:00Z","temperature":10,"humidity":80}`,
	} {
		resp, _ := env.do(t, http.MethodPost, "/api/v1/stations/"+id+"/measurements", "alice", m)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodGet, "/api/v1/stations/"+id+"/stats", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2026-10-09", body["start"])
	assert.Equal(t, "2026-10-15", body["end"])

	stats := body["stats"].([]interface{})
	require.Len(t, stats, 2)
	today := stats[0].(map[string]interface{})
	yesterday := stats[1].(map[string]interface{})
	assert.Equal(t, "2026-10-15", today["day"])
	assert.Equal(t, false, today["final"])
	assert.Equal(t, "2026-10-14", yesterday["day"])
	assert.Equal(t, 22.0, yesterday["temperature"])
	assert.Equal(t, 50.0, yesterday["humidity"])
	assert.Equal(t, 1012.0, yesterday["pressure"])
	assert.Equal(t, true, yesterday["final"])
}

func TestDailyStatsRangeValidation(t *testing.T) {
	env := newTestEnv(t, stubProvider{})
	id := env.createStation(t, "alice")

	for _, q := range []string{
		"?start=2026-10-01&end=2026-10-09",
		"?start=2026-10-10&end=2026-10-09",
		"?start=yesterday",
		"?end=2026-13-01",
	} {
		resp, _ := env.do(t, http.MethodGet, "/api/v1/stations/"+id+"/stats"+q, "alice", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}

	resp, _ := env.do(t, http.MethodGet, "/api/v1/stations/"+id+"/stats?start=2026-10-01&end=2026-10-08", "alice", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForecastEndpoint(t *testing.T) {
	env := newTestEnv(t, stubProvider{})
	id := env.createStation(t, "alice")

	resp, body := env.do(t, http.MethodGet, "/api/v1/stations/"+id+"/forecast", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	days := body["days"].([]interface{})
	require.Len(t, days, 1)
	assert.Equal(t, "2026-10-15", days[0].(map[string]interface{})["date"])
}

func TestForecastUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, stubProvider{err: &weather.UpstreamError{
		Provider: "stub", Endpoint: "forecast", StatusCode: http.StatusServiceUnavailable, Err: errors.New("down"),
	}})
	id := env.createStation(t, "alice")

	resp, body := env.do(t, http.MethodGet, "/api/v1/stations/"+id+"/forecast", "alice", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body["message"], "503")
}

func TestUpdateCoordinates(t *testing.T) {
	env := newTestEnv(t, stubProvider{})
	id := env.createStation(t, "alice")

	resp, body := env.do(t, http.MethodPut, "/api/v1/stations/"+id+"/coordinates", "alice", `{"latitude":46.948,"longitude":7.4474}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 46.948, body["latitude"])

	st, err := env.store.GetStation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 7.4474, st.Longitude)
}
