package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/i474232898/weather-station-backend/internal/weather"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config holds database connection configuration.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the database described by cfg and verifies the connection.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// SQLStore implements the weather store contracts on PostgreSQL or SQLite.
// All instants are written and returned in UTC.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// HealthCheck pings the database.
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const stationColumns = `id, owner_id, name, latitude, longitude, place_name, created_at, updated_at`

// GetStation retrieves a station by ID.
func (s *SQLStore) GetStation(ctx context.Context, id string) (weather.Station, error) {
	var st weather.Station
	err := s.db.GetContext(ctx, &st, s.db.Rebind(`SELECT `+stationColumns+` FROM stations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Station{}, fmt.Errorf("station %s: %w", id, weather.ErrNotFound)
	}
	if err != nil {
		return weather.Station{}, fmt.Errorf("failed to get station: %w", err)
	}
	return normalizeStation(st), nil
}

// ListStations returns all stations ordered by ID.
func (s *SQLStore) ListStations(ctx context.Context) ([]weather.Station, error) {
	var stations []weather.Station
	if err := s.db.SelectContext(ctx, &stations, `SELECT `+stationColumns+` FROM stations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	for i := range stations {
		stations[i] = normalizeStation(stations[i])
	}
	return stations, nil
}

// CreateStation inserts a station.
func (s *SQLStore) CreateStation(ctx context.Context, st weather.Station) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO stations (`+stationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), st.ID, st.OwnerID, st.Name, st.Latitude, st.Longitude, st.PlaceName, st.CreatedAt.UTC(), st.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create station: %w", err)
	}
	return nil
}

// UpdateStation overwrites the mutable columns of a station.
func (s *SQLStore) UpdateStation(ctx context.Context, st weather.Station) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE stations
		SET name = ?, latitude = ?, longitude = ?, place_name = ?, updated_at = ?
		WHERE id = ?
	`), st.Name, st.Latitude, st.Longitude, st.PlaceName, st.UpdatedAt.UTC(), st.ID)
	if err != nil {
		return fmt.Errorf("failed to update station: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("station %s: %w", st.ID, weather.ErrNotFound)
	}
	return nil
}

const measurementColumns = `id, station_id, observed_at, temperature, humidity, pressure, rain, wind_speed, wind_direction, created_at`

// AddMeasurement inserts a measurement.
func (s *SQLStore) AddMeasurement(ctx context.Context, m weather.Measurement) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO measurements (`+measurementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), m.ID, m.StationID, m.Timestamp.UTC(), m.Temperature, m.Humidity, m.Pressure, m.Rain, m.WindSpeed, m.WindDirection, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}
	return nil
}

// MeasurementsFor returns a station's measurements in [start, end), oldest first.
func (s *SQLStore) MeasurementsFor(ctx context.Context, stationID string, start, end time.Time) ([]weather.Measurement, error) {
	var ms []weather.Measurement
	err := s.db.SelectContext(ctx, &ms, s.db.Rebind(`
		SELECT `+measurementColumns+`
		FROM measurements
		WHERE station_id = ? AND observed_at >= ? AND observed_at < ?
		ORDER BY observed_at ASC
	`), stationID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	for i := range ms {
		ms[i].Timestamp = ms[i].Timestamp.UTC()
		ms[i].CreatedAt = ms[i].CreatedAt.UTC()
	}
	return ms, nil
}

const statColumns = `station_id, stat_date, temperature, humidity, pressure, rain, wind_speed, wind_direction, samples, final, created_at, updated_at`

// LookupOrInit returns the (stationID, day) row, inserting an empty one first
// if none exists. The insert is a no-op on conflict, so a concurrent caller
// that loses the race reads the winner's row with created == false.
func (s *SQLStore) LookupOrInit(ctx context.Context, stationID string, day time.Time) (weather.DailyStat, bool, error) {
	day = weather.CivilDay(day)
	now := s.now().UTC()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO daily_stats (station_id, stat_date, samples, final, created_at, updated_at)
		VALUES (?, ?, 0, FALSE, ?, ?)
		ON CONFLICT (station_id, stat_date) DO NOTHING
	`), stationID, day, now, now)
	if err != nil {
		return weather.DailyStat{}, false, fmt.Errorf("failed to init daily stat: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return weather.DailyStat{}, false, fmt.Errorf("failed to init daily stat: %w", err)
	}

	var stat weather.DailyStat
	err = s.db.GetContext(ctx, &stat, s.db.Rebind(`
		SELECT `+statColumns+`
		FROM daily_stats
		WHERE station_id = ? AND stat_date = ?
	`), stationID, day)
	if err != nil {
		return weather.DailyStat{}, false, fmt.Errorf("failed to get daily stat: %w", err)
	}

	stat.Day = weather.CivilDay(stat.Day.UTC())
	stat.CreatedAt = stat.CreatedAt.UTC()
	stat.UpdatedAt = stat.UpdatedAt.UTC()
	return stat, inserted == 1, nil
}

// Commit overwrites the aggregate columns of an existing daily stat row.
func (s *SQLStore) Commit(ctx context.Context, stat weather.DailyStat) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE daily_stats
		SET temperature = ?, humidity = ?, pressure = ?, rain = ?, wind_speed = ?, wind_direction = ?,
			samples = ?, final = ?, updated_at = ?
		WHERE station_id = ? AND stat_date = ?
	`), stat.Temperature, stat.Humidity, stat.Pressure, stat.Rain, stat.WindSpeed, stat.WindDirection,
		stat.Samples, stat.Final, stat.UpdatedAt.UTC(), stat.StationID, weather.CivilDay(stat.Day))
	if err != nil {
		return fmt.Errorf("failed to commit daily stat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("daily stat %s %s: %w", stat.StationID, stat.Day.Format(time.DateOnly), weather.ErrNotFound)
	}
	return nil
}

type snapshotRow struct {
	ID               string    `db:"id"`
	Latitude         float64   `db:"latitude"`
	Longitude        float64   `db:"longitude"`
	ModelRun         time.Time `db:"model_run"`
	ModelRunUpdated  time.Time `db:"model_run_updated"`
	UTCOffset        float64   `db:"utc_offset"`
	GenerationTimeMs float64   `db:"generation_time_ms"`
	DataDay          string    `db:"data_day"`
	CreatedAt        time.Time `db:"created_at"`
}

// SaveSnapshot inserts a forecast snapshot. The daily arrays are stored as JSON.
func (s *SQLStore) SaveSnapshot(ctx context.Context, snap weather.ForecastSnapshot) error {
	data, err := json.Marshal(snap.Daily)
	if err != nil {
		return fmt.Errorf("failed to encode forecast days: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO forecast_snapshots (id, latitude, longitude, model_run, model_run_updated, utc_offset, generation_time_ms, data_day, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), snap.ID, snap.Latitude, snap.Longitude, snap.ModelRun.UTC(), snap.ModelRunUpdated.UTC(),
		snap.UTCOffset, snap.GenerationTimeMs, string(data), snap.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert forecast snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot for c created at or after since.
func (s *SQLStore) LatestSnapshot(ctx context.Context, c weather.Coordinates, since time.Time) (weather.ForecastSnapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, latitude, longitude, model_run, model_run_updated, utc_offset, generation_time_ms, data_day, created_at
		FROM forecast_snapshots
		WHERE latitude = ? AND longitude = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`), c.Latitude, c.Longitude, since.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return weather.ForecastSnapshot{}, weather.ErrNotFound
	}
	if err != nil {
		return weather.ForecastSnapshot{}, fmt.Errorf("failed to get forecast snapshot: %w", err)
	}

	snap := weather.ForecastSnapshot{
		ID:               row.ID,
		Latitude:         row.Latitude,
		Longitude:        row.Longitude,
		ModelRun:         row.ModelRun.UTC(),
		ModelRunUpdated:  row.ModelRunUpdated.UTC(),
		UTCOffset:        row.UTCOffset,
		GenerationTimeMs: row.GenerationTimeMs,
		CreatedAt:        row.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.DataDay), &snap.Daily); err != nil {
		return weather.ForecastSnapshot{}, fmt.Errorf("failed to decode forecast days: %w", err)
	}
	return snap, nil
}

func normalizeStation(st weather.Station) weather.Station {
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st
}
