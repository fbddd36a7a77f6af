package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weather-station-backend/internal/weather"
)

// StationLister lists every known station.
type StationLister interface {
	ListStations(ctx context.Context) ([]weather.Station, error)
}

// RangeComputer computes daily stats for a station over a day range.
type RangeComputer interface {
	ComputeRange(ctx context.Context, stationID string, startDay, endDay time.Time) ([]weather.DailyStat, error)
}

// Purger drops expired cache entries.
type Purger interface {
	Purge() int
}

// Options configures the background jobs.
type Options struct {
	// BackfillAt is the local HH:MM at which the past week is finalized.
	BackfillAt    string
	PurgeInterval time.Duration
	Location      *time.Location
	Clock         weather.Clock
}

// Scheduler runs the background maintenance jobs: finalizing the daily stats
// of closed days and purging the forecast cache.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	stations   StationLister
	aggregator RangeComputer
	cache      Purger
	opts       Options
	log        *zap.SugaredLogger
}

// New creates a new Scheduler. cache may be nil.
func New(stations StationLister, aggregator RangeComputer, cache Purger, opts Options, log *zap.SugaredLogger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = weather.SystemClock
	}
	if opts.BackfillAt == "" {
		opts.BackfillAt = "00:15"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{
		scheduler:  gocron.NewScheduler(opts.Location),
		stations:   stations,
		aggregator: aggregator,
		cache:      cache,
		opts:       opts,
		log:        log,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Day().At(s.opts.BackfillAt).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.RunBackfill(ctx)
	})
	if err != nil {
		return err
	}

	if s.cache != nil && s.opts.PurgeInterval > 0 {
		_, err = s.scheduler.Every(s.opts.PurgeInterval).Do(s.RunPurge)
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// RunBackfill computes the seven days ending yesterday for every station, so
// that closed days become final without waiting for a reader.
func (s *Scheduler) RunBackfill(ctx context.Context) {
	stations, err := s.stations.ListStations(ctx)
	if err != nil {
		s.log.Errorw("scheduler: list stations", "error", err)
		return
	}
	if len(stations) == 0 {
		s.log.Debugw("scheduler: no stations; nothing to backfill")
		return
	}

	now := s.opts.Clock().In(s.opts.Location)
	end := weather.CivilDay(now).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -6)

	s.log.Infow("scheduler: running stats backfill", "stations", len(stations), "start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))

	var wg sync.WaitGroup
	for _, st := range stations {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.aggregator.ComputeRange(ctx, st.ID, start, end); err != nil && !errors.Is(err, weather.ErrNotFound) {
				s.log.Warnw("scheduler: backfill failed", "station", st.ID, "error", err)
			}
		}()
	}
	wg.Wait()
	s.log.Infow("scheduler: completed stats backfill")
}

// RunPurge drops expired forecast cache entries.
func (s *Scheduler) RunPurge() {
	if s.cache == nil {
		return
	}
	if n := s.cache.Purge(); n > 0 {
		s.log.Debugw("scheduler: purged forecast cache", "removed", n)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
