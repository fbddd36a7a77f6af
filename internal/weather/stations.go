package weather

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StationService owns station lifecycle and measurement ingestion. Callers
// pass the principal's ID; stations owned by someone else look absent.
type StationService struct {
	stations     StationStore
	measurements MeasurementStore
	places       *PlaceResolver
	now          Clock
	log          *zap.SugaredLogger
}

// NewStationService creates a StationService. places may be nil.
func NewStationService(stations StationStore, measurements MeasurementStore, places *PlaceResolver, now Clock, log *zap.SugaredLogger) *StationService {
	if now == nil {
		now = SystemClock
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &StationService{
		stations:     stations,
		measurements: measurements,
		places:       places,
		now:          now,
		log:          log,
	}
}

// CreateStation persists a new station and then tries to name its location.
// A failed lookup leaves PlaceName empty; the station is kept either way.
func (s *StationService) CreateStation(ctx context.Context, ownerID, name string, c Coordinates) (Station, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Station{}, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if err := validateCoordinates(c); err != nil {
		return Station{}, err
	}

	now := s.now().UTC()
	st := Station{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.stations.CreateStation(ctx, st); err != nil {
		return Station{}, fmt.Errorf("create station: %w", err)
	}
	s.log.Infow("station created", "station", st.ID, "owner", ownerID)

	return s.refreshPlaceName(ctx, st), nil
}

// UpdateCoordinates moves an owned station. The place name is looked up again
// only when the position actually changed.
func (s *StationService) UpdateCoordinates(ctx context.Context, ownerID, stationID string, c Coordinates) (Station, error) {
	if err := validateCoordinates(c); err != nil {
		return Station{}, err
	}
	st, err := s.OwnedStation(ctx, ownerID, stationID)
	if err != nil {
		return Station{}, err
	}
	if st.Coordinates() == c {
		return st, nil
	}

	st.Latitude, st.Longitude = c.Latitude, c.Longitude
	st.UpdatedAt = s.now().UTC()
	if err := s.stations.UpdateStation(ctx, st); err != nil {
		return Station{}, fmt.Errorf("update station: %w", err)
	}

	return s.refreshPlaceName(ctx, st), nil
}

// Station returns a station regardless of owner.
func (s *StationService) Station(ctx context.Context, id string) (Station, error) {
	return s.stations.GetStation(ctx, id)
}

// Stations lists the stations owned by ownerID.
func (s *StationService) Stations(ctx context.Context, ownerID string) ([]Station, error) {
	all, err := s.stations.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	owned := make([]Station, 0, len(all))
	for _, st := range all {
		if st.OwnerID == ownerID {
			owned = append(owned, st)
		}
	}
	return owned, nil
}

// OwnedStation returns the station if ownerID owns it, ErrNotFound otherwise.
func (s *StationService) OwnedStation(ctx context.Context, ownerID, stationID string) (Station, error) {
	st, err := s.stations.GetStation(ctx, stationID)
	if err != nil {
		return Station{}, err
	}
	if st.OwnerID != ownerID {
		return Station{}, fmt.Errorf("station %s: %w", stationID, ErrNotFound)
	}
	return st, nil
}

// RecordMeasurement stores a reading for a station owned by ownerID.
func (s *StationService) RecordMeasurement(ctx context.Context, ownerID string, m Measurement) (Measurement, error) {
	if m.Timestamp.IsZero() {
		return Measurement{}, fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	if _, err := s.OwnedStation(ctx, ownerID, m.StationID); err != nil {
		return Measurement{}, err
	}

	m.ID = uuid.NewString()
	m.Timestamp = m.Timestamp.UTC()
	m.CreatedAt = s.now().UTC()
	if err := s.measurements.AddMeasurement(ctx, m); err != nil {
		return Measurement{}, fmt.Errorf("add measurement: %w", err)
	}
	return m, nil
}

func (s *StationService) refreshPlaceName(ctx context.Context, st Station) Station {
	if s.places == nil {
		return st
	}
	name := s.places.PlaceNameOrEmpty(ctx, st.Coordinates())
	if name == st.PlaceName {
		return st
	}

	updated := st
	updated.PlaceName = name
	updated.UpdatedAt = s.now().UTC()
	if err := s.stations.UpdateStation(ctx, updated); err != nil {
		s.log.Warnw("store place name", "station", st.ID, "error", err)
		return st
	}
	return updated
}

func validateCoordinates(c Coordinates) error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrValidation, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrValidation, c.Longitude)
	}
	return nil
}
