package weather_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-station-backend/internal/store"
	"github.com/i474232898/weather-station-backend/internal/weather"
)

var basel = weather.Coordinates{Latitude: 47.5584, Longitude: 7.5733}

func newAggregator(t *testing.T, now time.Time, loc *time.Location) (*weather.StatAggregator, *store.MemoryStore, *fakeClock) {
	t.Helper()
	s := store.NewMemoryStore(0)
	seedStation(t, s, "st-1", basel)
	clock := newFakeClock(now)
	return weather.NewStatAggregator(s, s, s, loc, clock.Now, nil), s, clock
}

func TestComputeRangeAveragesClosedDay(t *testing.T) {
	agg, s, _ := newAggregator(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), time.UTC)
	addReading(t, s, "st-1", time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC), 20, 40)
	addReading(t, s, "st-1", time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC), 24, 60)

	stats, err := agg.ComputeRange(context.Background(), "st-1", day(2026, 10, 14), day(2026, 10, 14))
	require.NoError(t, err)
	require.Len(t, stats, 1)

	st := stats[0]
	assert.True(t, st.Day.Equal(day(2026, 10, 14)))
	assert.Equal(t, 22.0, *st.Temperature)
	assert.Equal(t, 50.0, *st.Humidity)
	assert.Equal(t, 2, st.Samples)
	assert.True(t, st.Final)
	assert.Nil(t, st.Pressure)
}

func TestComputeRangeSkipsSparseClosedDays(t *testing.T) {
	agg, s, _ := newAggregator(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), time.UTC)
	addReading(t, s, "st-1", time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC), 18, 70)

	stats, err := agg.ComputeRange(context.Background(), "st-1", day(2026, 10, 12), day(2026, 10, 14))
	require.NoError(t, err)
	assert.Empty(t, stats)

	// Nothing is persisted for skipped days.
	_, created, err := s.LookupOrInit(context.Background(), "st-1", day(2026, 10, 13))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestComputeRangeIncludesTodayWithOneReading(t *testing.T) {
	agg, s, _ := newAggregator(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), time.UTC)
	addReading(t, s, "st-1", time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC), 11, 85)

	stats, err := agg.ComputeRange(context.Background(), "st-1", day(2026, 10, 15), day(2026, 10, 15))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 11.0, *stats[0].Temperature)
	assert.False(t, stats[0].Final)
}

func TestComputeRangeKeepsFinalRows(t *testing.T) {
	ctx := context.Background()
	agg, s, _ := newAggregator(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), time.UTC)
	addReading(t, s, "st-1", time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC), 20, 40)
	addReading(t, s, "st-1", time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC), 24, 60)

	_, err := agg.ComputeRange(ctx, "st-1", day(2026, 10, 14), day(2026, 10, 14))
	require.NoError(t, err)

	// A late reading for a closed, computed day does not change its stat.
	addReading(t, s, "st-1", time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC), 2, 10)

	stats, err := agg.ComputeRange(ctx, "st-1", day(2026, 10, 14), day(2026, 10, 14))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 22.0, *stats[0].Temperature)
	assert.Equal(t, 2, stats[0].Samples)
}

func TestComputeRangeRefreshesToday(t *testing.T) {
	ctx := context.Background()
	agg, s, clock := newAggregator(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), time.UTC)
	addReading(t, s, "st-1", time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC), 10, 80)

	stats, err := agg.ComputeRange(ctx, "st-1", day(2026, 10, 15), day(2026, 10, 15))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 10.0, *stats[0].Temperature)

	clock.Advance(3 * time.Hour)
	addReading(t, s, "st-1", time.Date(2026, 10, 15, 11, 0, 0, 0, time.UTC), 16, 60)

	stats, err = agg.ComputeRange(ctx, "st-1", day(2026, 10, 15), day(2026, 10, 15))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 13.0, *stats[0].Temperature)
	assert.Equal(t, 2, stats[0].Samples)
	assert.False(t, stats[0].Final)
}

func TestComputeRangeFinalizesRowOpenedToday(t *testing.T) {
	ctx := context.Background()
	agg, s, clock := newAggregator(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), time.UTC)
	addReading(t, s, "st-1", time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC), 10, 80)

	_, err := agg.ComputeRange(ctx, "st-1", day(2026, 10, 15), day(2026, 10, 15))
	require.NoError(t, err)

	addReading(t, s, "st-1", time.Date(2026, 10, 15, 22, 0, 0, 0, time.UTC), 6, 90)
	clock.Set(time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC))

	stats, err := agg.ComputeRange(ctx, "st-1", day(2026, 10, 15), day(2026, 10, 15))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 8.0, *stats[0].Temperature)
	assert.True(t, stats[0].Final)

	addReading(t, s, "st-1", time.Date(2026, 10, 15, 23, 0, 0, 0, time.UTC), 100, 100)
	stats, err = agg.ComputeRange(ctx, "st-1", day(2026, 10, 15), day(2026, 10, 15))
	require.NoError(t, err)
	assert.Equal(t, 8.0, *stats[0].Temperature)
}

func TestComputeRangeSpanLimit(t *testing.T) {
	ctx := context.Background()
	agg, _, _ := newAggregator(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), time.UTC)

	_, err := agg.ComputeRange(ctx, "st-1", day(2026, 10, 1), day(2026, 10, 8))
	assert.NoError(t, err)

	_, err = agg.ComputeRange(ctx, "st-1", day(2026, 10, 1), day(2026, 10, 9))
	assert.True(t, errors.Is(err, weather.ErrInvalidRange))

	_, err = agg.ComputeRange(ctx, "st-1", day(2026, 10, 9), day(2026, 10, 8))
	assert.True(t, errors.Is(err, weather.ErrInvalidRange))
}

func TestComputeRangeValidatesBeforeLookup(t *testing.T) {
	agg, _, _ := newAggregator(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), time.UTC)

	_, err := agg.ComputeRange(context.Background(), "missing", day(2026, 10, 1), day(2026, 10, 20))
	assert.True(t, errors.Is(err, weather.ErrInvalidRange))
	assert.False(t, errors.Is(err, weather.ErrNotFound))
}

func TestComputeRangeUnknownStation(t *testing.T) {
	agg, _, _ := newAggregator(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), time.UTC)

	_, err := agg.ComputeRange(context.Background(), "missing", day(2026, 10, 14), day(2026, 10, 15))
	assert.True(t, errors.Is(err, weather.ErrNotFound))
}

func TestComputeRangeNewestFirst(t *testing.T) {
	agg, s, _ := newAggregator(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), time.UTC)
	for _, d := range []int{10, 12, 14} {
		addReading(t, s, "st-1", time.Date(2026, 10, d, 6, 0, 0, 0, time.UTC), float64(d), 50)
		addReading(t, s, "st-1", time.Date(2026, 10, d, 18, 0, 0, 0, time.UTC), float64(d), 50)
	}

	stats, err := agg.ComputeRange(context.Background(), "st-1", day(2026, 10, 9), day(2026, 10, 15))
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.True(t, stats[0].Day.Equal(day(2026, 10, 14)))
	assert.True(t, stats[1].Day.Equal(day(2026, 10, 12)))
	assert.True(t, stats[2].Day.Equal(day(2026, 10, 10)))
}

func TestComputeRangeUsesLocalDays(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	agg, s, _ := newAggregator(t, time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC), zurich)
	// 23:30 UTC on the 14th is 01:30 on the 15th in Zurich.
	addReading(t, s, "st-1", time.Date(2026, 10, 14, 23, 30, 0, 0, time.UTC), 10, 50)
	addReading(t, s, "st-1", time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), 20, 50)

	stats, err := agg.ComputeRange(context.Background(), "st-1", day(2026, 10, 14), day(2026, 10, 15))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.True(t, stats[0].Day.Equal(day(2026, 10, 15)))
	assert.Equal(t, 15.0, *stats[0].Temperature)
}

func TestAggregateMeasurements(t *testing.T) {
	var stat weather.DailyStat
	weather.AggregateMeasurements(&stat, []weather.Measurement{
		{Temperature: 10, Humidity: 40, Pressure: ptr(1000), WindDirection: ptr(350), WindSpeed: ptr(2)},
		{Temperature: 20, Humidity: 60, Pressure: ptr(1010), WindDirection: ptr(10)},
		{Temperature: 30, Humidity: 80, Rain: ptr(1.5)},
	})

	assert.Equal(t, 3, stat.Samples)
	assert.Equal(t, 20.0, *stat.Temperature)
	assert.Equal(t, 60.0, *stat.Humidity)
	assert.Equal(t, 1005.0, *stat.Pressure)
	assert.Equal(t, 1.5, *stat.Rain)
	assert.Equal(t, 2.0, *stat.WindSpeed)

	// 350° and 10° average to north, not 180°.
	require.NotNil(t, stat.WindDirection)
	dir := *stat.WindDirection
	assert.Less(t, math.Min(dir, 360-dir), 1e-9)

	weather.AggregateMeasurements(&stat, nil)
	assert.Equal(t, 0, stat.Samples)
	assert.Nil(t, stat.Temperature)
	assert.Nil(t, stat.WindDirection)
}

func TestDayBoundsAcrossDST(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	// Clocks go back on 2026-10-25 in Zurich.
	start, end := weather.DayBounds(day(2026, 10, 25), zurich)
	assert.Equal(t, 25*time.Hour, end.Sub(start))
}
