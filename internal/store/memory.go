package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-station-backend/internal/weather"
)

// SnapshotHistory holds a time-ordered list of forecast snapshots for one position.
type SnapshotHistory struct {
	Snapshots []weather.ForecastSnapshot
}

// MemoryStore is a concurrency-safe in-memory implementation of every store
// contract the weather package consumes.
type MemoryStore struct {
	mu sync.RWMutex

	stations     map[string]weather.Station
	measurements map[string][]weather.Measurement // key: station ID
	stats        map[string]weather.DailyStat     // key: station ID + day
	snapshots    map[string]*SnapshotHistory      // key: coordinates key

	// retention configuration
	maxHistory int // max number of snapshots per position
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, snapshot history is unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		stations:     make(map[string]weather.Station),
		measurements: make(map[string][]weather.Measurement),
		stats:        make(map[string]weather.DailyStat),
		snapshots:    make(map[string]*SnapshotHistory),
		maxHistory:   maxHistory,
		now:          time.Now,
	}
}

// GetStation returns the station with the given ID.
func (s *MemoryStore) GetStation(_ context.Context, id string) (weather.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stations[id]
	if !ok {
		return weather.Station{}, fmt.Errorf("station %s: %w", id, weather.ErrNotFound)
	}
	return st, nil
}

// ListStations returns all stations ordered by ID.
func (s *MemoryStore) ListStations(_ context.Context) ([]weather.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateStation inserts st; the ID must be unused.
func (s *MemoryStore) CreateStation(_ context.Context, st weather.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[st.ID]; ok {
		return fmt.Errorf("station %s already exists", st.ID)
	}
	s.stations[st.ID] = st
	return nil
}

// UpdateStation replaces an existing station.
func (s *MemoryStore) UpdateStation(_ context.Context, st weather.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[st.ID]; !ok {
		return fmt.Errorf("station %s: %w", st.ID, weather.ErrNotFound)
	}
	s.stations[st.ID] = st
	return nil
}

// AddMeasurement appends a measurement.
func (s *MemoryStore) AddMeasurement(_ context.Context, m weather.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.measurements[m.StationID] = append(s.measurements[m.StationID], m)
	return nil
}

// MeasurementsFor returns the station's measurements in [start, end), oldest first.
func (s *MemoryStore) MeasurementsFor(_ context.Context, stationID string, start, end time.Time) ([]weather.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Measurement
	for _, m := range s.measurements[stationID] {
		if !m.Timestamp.Before(start) && m.Timestamp.Before(end) {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

// LookupOrInit returns the stat row for (stationID, day), creating an empty one if needed.
func (s *MemoryStore) LookupOrInit(_ context.Context, stationID string, day time.Time) (weather.DailyStat, bool, error) {
	day = weather.CivilDay(day)
	key := statKey(stationID, day)

	s.mu.Lock()
	defer s.mu.Unlock()

	if stat, ok := s.stats[key]; ok {
		return stat, false, nil
	}

	now := s.now().UTC()
	stat := weather.DailyStat{
		StationID: stationID,
		Day:       day,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.stats[key] = stat
	return stat, true, nil
}

// Commit overwrites the aggregate fields of an existing stat row.
func (s *MemoryStore) Commit(_ context.Context, stat weather.DailyStat) error {
	stat.Day = weather.CivilDay(stat.Day)
	key := statKey(stat.StationID, stat.Day)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.stats[key]
	if !ok {
		return fmt.Errorf("daily stat %s: %w", key, weather.ErrNotFound)
	}
	stat.CreatedAt = cur.CreatedAt
	s.stats[key] = stat
	return nil
}

// SaveSnapshot appends a snapshot for its position and enforces retention.
func (s *MemoryStore) SaveSnapshot(_ context.Context, snap weather.ForecastSnapshot) error {
	key := snap.Coordinates().Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.snapshots[key]
	if !ok {
		history = &SnapshotHistory{}
		s.snapshots[key] = history
	}

	history.Snapshots = append(history.Snapshots, snap)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Snapshots) > s.maxHistory {
		over := len(history.Snapshots) - s.maxHistory
		history.Snapshots = history.Snapshots[over:]
	}
	return nil
}

// LatestSnapshot returns the newest snapshot for c created at or after since.
func (s *MemoryStore) LatestSnapshot(_ context.Context, c weather.Coordinates, since time.Time) (weather.ForecastSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.snapshots[c.Key()]
	if !ok {
		return weather.ForecastSnapshot{}, weather.ErrNotFound
	}

	var (
		best  weather.ForecastSnapshot
		found bool
	)
	for _, snap := range history.Snapshots {
		if snap.CreatedAt.Before(since) {
			continue
		}
		if !found || snap.CreatedAt.After(best.CreatedAt) {
			best, found = snap, true
		}
	}
	if !found {
		return weather.ForecastSnapshot{}, weather.ErrNotFound
	}
	return best, nil
}

func statKey(stationID string, day time.Time) string {
	return stationID + "|" + day.Format(time.DateOnly)
}
