package weather

import (
	"context"
	"time"
)

// ForecastProvider abstracts the upstream forecast API.
type ForecastProvider interface {
	Name() string
	FetchForecast(ctx context.Context, c Coordinates) (ForecastSnapshot, error)
}

// PlaceSearcher abstracts the provider's place-search endpoint.
type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, query string) ([]Place, error)
}

// MeasurementSource is a read-only view over raw measurements. Results cover
// the half-open interval [start, end).
type MeasurementSource interface {
	MeasurementsFor(ctx context.Context, stationID string, start, end time.Time) ([]Measurement, error)
}

// MeasurementStore adds ingestion to MeasurementSource.
type MeasurementStore interface {
	MeasurementSource
	AddMeasurement(ctx context.Context, m Measurement) error
}

// StatRepository keeps one DailyStat per (station, day).
//
// LookupOrInit returns the existing row or inserts an empty one, reporting
// whether this call created it. Implementations must rely on a uniqueness
// constraint so that a concurrent loser sees created == false instead of an
// error. Commit overwrites the aggregate columns of an existing row.
type StatRepository interface {
	LookupOrInit(ctx context.Context, stationID string, day time.Time) (DailyStat, bool, error)
	Commit(ctx context.Context, stat DailyStat) error
}

// StationStore persists stations. GetStation returns ErrNotFound for unknown IDs.
type StationStore interface {
	GetStation(ctx context.Context, id string) (Station, error)
	ListStations(ctx context.Context) ([]Station, error)
	CreateStation(ctx context.Context, st Station) error
	UpdateStation(ctx context.Context, st Station) error
}

// SnapshotStore persists forecast snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap ForecastSnapshot) error
	// LatestSnapshot returns the newest snapshot for c created at or after
	// since, or ErrNotFound.
	LatestSnapshot(ctx context.Context, c Coordinates, since time.Time) (ForecastSnapshot, error)
}

// SnapshotCache is the fast, volatile tier in front of SnapshotStore.
type SnapshotCache interface {
	Get(key string) (ForecastSnapshot, bool)
	Set(key string, value ForecastSnapshot, ttl time.Duration)
}

// Clock returns the current time. Tests substitute a fixed or stepping clock.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now()
}
