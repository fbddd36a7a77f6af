package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weather-station-backend/internal/metrics"
)

// DefaultCacheTTL is how long a snapshot stays in the fast cache.
const DefaultCacheTTL = time.Hour

// ForecastOptions tunes a ForecastCoordinator. Zero values select defaults.
type ForecastOptions struct {
	CacheTTL time.Duration
	// FetchTimeout bounds a single upstream fetch. Zero leaves the caller's
	// context as the only bound.
	FetchTimeout time.Duration
	// Coalesce merges concurrent upstream fetches for the same station.
	Coalesce bool
	Location *time.Location
	Clock    Clock
}

// ForecastCoordinator resolves a station's forecast from the fast cache, then
// today's persisted snapshot, then the upstream provider.
type ForecastCoordinator struct {
	stations  StationStore
	snapshots SnapshotStore
	cache     SnapshotCache
	provider  ForecastProvider
	places    *PlaceResolver

	ttl      time.Duration
	timeout  time.Duration
	coalesce bool
	loc      *time.Location
	now      Clock
	group    singleflight.Group
	log      *zap.SugaredLogger
}

// NewForecastCoordinator creates a ForecastCoordinator. places may be nil, in
// which case corrected coordinates are stored without a new place name.
func NewForecastCoordinator(stations StationStore, snapshots SnapshotStore, cache SnapshotCache, provider ForecastProvider, places *PlaceResolver, opts ForecastOptions, log *zap.SugaredLogger) *ForecastCoordinator {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ForecastCoordinator{
		stations:  stations,
		snapshots: snapshots,
		cache:     cache,
		provider:  provider,
		places:    places,
		ttl:       opts.CacheTTL,
		timeout:   opts.FetchTimeout,
		coalesce:  opts.Coalesce,
		loc:       opts.Location,
		now:       opts.Clock,
		log:       log,
	}
}

// Fetch returns the current forecast for stationID.
func (c *ForecastCoordinator) Fetch(ctx context.Context, stationID string) (ForecastSnapshot, error) {
	if snap, ok := c.cache.Get(stationID); ok {
		metrics.ForecastRequestsTotal.WithLabelValues("cache").Inc()
		return snap, nil
	}

	station, err := c.stations.GetStation(ctx, stationID)
	if err != nil {
		return ForecastSnapshot{}, err
	}

	since := StartOfDay(c.now(), c.loc).UTC()
	snap, err := c.snapshots.LatestSnapshot(ctx, station.Coordinates(), since)
	switch {
	case err == nil:
		metrics.ForecastRequestsTotal.WithLabelValues("snapshot").Inc()
		c.cache.Set(stationID, snap, c.ttl)
		return snap, nil
	case !errors.Is(err, ErrNotFound):
		return ForecastSnapshot{}, fmt.Errorf("latest snapshot for %s: %w", stationID, err)
	}

	if !c.coalesce {
		return c.fetchUpstream(ctx, station)
	}
	v, err, shared := c.group.Do(stationID, func() (interface{}, error) {
		return c.fetchUpstream(ctx, station)
	})
	if err != nil {
		return ForecastSnapshot{}, err
	}
	if shared {
		c.log.Debugw("forecast fetch coalesced", "station", stationID)
	}
	return v.(ForecastSnapshot), nil
}

func (c *ForecastCoordinator) fetchUpstream(ctx context.Context, station Station) (ForecastSnapshot, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	snap, err := c.provider.FetchForecast(ctx, station.Coordinates())
	if err != nil {
		var upErr *UpstreamError
		if !errors.As(err, &upErr) {
			err = &UpstreamError{Provider: c.provider.Name(), Endpoint: "forecast", Err: err}
		}
		c.log.Warnw("forecast fetch failed", "station", station.ID, "error", err)
		return ForecastSnapshot{}, err
	}
	metrics.ForecastRequestsTotal.WithLabelValues("upstream").Inc()

	snap.ID = uuid.NewString()
	snap.CreatedAt = c.now().UTC()
	if err := c.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return ForecastSnapshot{}, fmt.Errorf("save snapshot for %s: %w", station.ID, err)
	}
	c.cache.Set(station.ID, snap, c.ttl)

	if snap.Coordinates() != station.Coordinates() {
		c.correctCoordinates(ctx, station, snap.Coordinates())
	}

	return snap, nil
}

// correctCoordinates moves the station to the position the provider served
// and refreshes its place name. Failures are logged, never returned: the
// forecast has already been stored.
func (c *ForecastCoordinator) correctCoordinates(ctx context.Context, station Station, to Coordinates) {
	c.log.Infow("station coordinates corrected by provider",
		"station", station.ID,
		"from", station.Coordinates().Key(),
		"to", to.Key(),
	)

	station.Latitude, station.Longitude = to.Latitude, to.Longitude
	station.UpdatedAt = c.now().UTC()
	if err := c.stations.UpdateStation(ctx, station); err != nil {
		c.log.Errorw("update corrected station coordinates", "station", station.ID, "error", err)
		return
	}

	if c.places == nil {
		return
	}
	station.PlaceName = c.places.PlaceNameOrEmpty(ctx, to)
	if err := c.stations.UpdateStation(ctx, station); err != nil {
		c.log.Errorw("update station place name", "station", station.ID, "error", err)
	}
}
