package weather

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-station-backend/internal/metrics"
)

// MaxRangeSpan is the widest allowed distance between the first and last day
// of a ComputeRange call.
const MaxRangeSpan = 7 * 24 * time.Hour

// StatAggregator computes per-day means from raw measurements and keeps them
// in a StatRepository. Reading a range may create or refresh rows.
type StatAggregator struct {
	stations     StationStore
	measurements MeasurementSource
	stats        StatRepository
	loc          *time.Location
	now          Clock
	log          *zap.SugaredLogger
}

// NewStatAggregator creates a StatAggregator. Calendar days are evaluated in loc.
func NewStatAggregator(stations StationStore, measurements MeasurementSource, stats StatRepository, loc *time.Location, now Clock, log *zap.SugaredLogger) *StatAggregator {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = SystemClock
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &StatAggregator{
		stations:     stations,
		measurements: measurements,
		stats:        stats,
		loc:          loc,
		now:          now,
		log:          log,
	}
}

// ComputeRange returns the daily stats of stationID for every qualifying day
// between startDay and endDay inclusive, newest day first.
//
// A day qualifies when it is today and has at least one measurement, or when
// it has more than one measurement. Rows for today, and rows not yet final,
// are recomputed; a row computed after its day ended is final and kept as is.
func (a *StatAggregator) ComputeRange(ctx context.Context, stationID string, startDay, endDay time.Time) ([]DailyStat, error) {
	start, end := CivilDay(startDay), CivilDay(endDay)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	if end.Sub(start) > MaxRangeSpan {
		return nil, fmt.Errorf("%w: %s to %s spans more than 7 days", ErrInvalidRange, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	if _, err := a.stations.GetStation(ctx, stationID); err != nil {
		return nil, err
	}

	today := CivilDay(a.now().In(a.loc))
	var result []DailyStat

	for d := end; !d.Before(start); d = d.AddDate(0, 0, -1) {
		stat, ok, err := a.computeDay(ctx, stationID, d, d.Equal(today))
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, stat)
		}
	}
	return result, nil
}

func (a *StatAggregator) computeDay(ctx context.Context, stationID string, day time.Time, isToday bool) (DailyStat, bool, error) {
	dayStart, dayEnd := DayBounds(day, a.loc)
	ms, err := a.measurements.MeasurementsFor(ctx, stationID, dayStart, dayEnd)
	if err != nil {
		return DailyStat{}, false, fmt.Errorf("measurements for %s on %s: %w", stationID, day.Format(time.DateOnly), err)
	}

	n := len(ms)
	if !(isToday && n > 0) && n <= 1 {
		metrics.DailyStatsTotal.WithLabelValues("skipped").Inc()
		return DailyStat{}, false, nil
	}

	stat, created, err := a.stats.LookupOrInit(ctx, stationID, day)
	if err != nil {
		return DailyStat{}, false, fmt.Errorf("lookup stat %s on %s: %w", stationID, day.Format(time.DateOnly), err)
	}

	// A fresh row is never final, so this also covers created rows.
	if !isToday && stat.Final {
		metrics.DailyStatsTotal.WithLabelValues("kept").Inc()
		return stat, true, nil
	}

	AggregateMeasurements(&stat, ms)
	stat.Final = !isToday
	stat.UpdatedAt = a.now().UTC()
	if err := a.stats.Commit(ctx, stat); err != nil {
		return DailyStat{}, false, fmt.Errorf("commit stat %s on %s: %w", stationID, day.Format(time.DateOnly), err)
	}

	outcome := "refreshed"
	if created {
		outcome = "created"
	}
	metrics.DailyStatsTotal.WithLabelValues(outcome).Inc()
	a.log.Debugw("daily stat computed", "station", stationID, "day", day.Format(time.DateOnly), "samples", n, "created", created, "final", stat.Final)

	return stat, true, nil
}

// AggregateMeasurements overwrites the aggregate fields of stat with means over
// ms. Optional channels without any reading are set to nil. Wind direction is
// averaged on the circle.
func AggregateMeasurements(stat *DailyStat, ms []Measurement) {
	stat.Samples = len(ms)
	stat.Temperature, stat.Humidity = nil, nil
	stat.Pressure, stat.Rain, stat.WindSpeed, stat.WindDirection = nil, nil, nil, nil
	if len(ms) == 0 {
		return
	}

	var (
		sumTemp, sumHumidity float64
		pressure, rain, wind mean
		sinSum, cosSum       float64
		dirCount             int
	)

	for _, m := range ms {
		sumTemp += m.Temperature
		sumHumidity += m.Humidity
		pressure.add(m.Pressure)
		rain.add(m.Rain)
		wind.add(m.WindSpeed)

		if m.WindDirection != nil {
			rad := *m.WindDirection * math.Pi / 180
			sinSum += math.Sin(rad)
			cosSum += math.Cos(rad)
			dirCount++
		}
	}

	n := float64(len(ms))
	temp := sumTemp / n
	humidity := sumHumidity / n
	stat.Temperature = &temp
	stat.Humidity = &humidity
	stat.Pressure = pressure.value()
	stat.Rain = rain.value()
	stat.WindSpeed = wind.value()

	if dirCount > 0 {
		deg := math.Atan2(sinSum, cosSum) * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		stat.WindDirection = &deg
	}
}

type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.count++
}

func (m *mean) value() *float64 {
	if m.count == 0 {
		return nil
	}
	v := m.sum / float64(m.count)
	return &v
}

// CivilDay truncates t to its calendar date in t's own location and returns
// that date at UTC midnight.
func CivilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayBounds returns the half-open instant interval covering the civil day in
// loc. It stays correct across DST transitions.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
