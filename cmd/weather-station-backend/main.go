package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-station-backend/internal/api/http"
	"github.com/i474232898/weather-station-backend/internal/cache"
	"github.com/i474232898/weather-station-backend/internal/config"
	"github.com/i474232898/weather-station-backend/internal/logging"
	"github.com/i474232898/weather-station-backend/internal/scheduler"
	"github.com/i474232898/weather-station-backend/internal/store"
	"github.com/i474232898/weather-station-backend/internal/weather"
	"github.com/i474232898/weather-station-backend/internal/weather/providers"
)

// backend is every store contract the services need.
type backend interface {
	weather.StationStore
	weather.MeasurementStore
	weather.StatRepository
	weather.SnapshotStore
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sugar, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer sugar.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, healthCheck, cleanup, err := openBackend(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("failed to open store", "driver", cfg.DatabaseDriver, "error", err)
	}
	defer cleanup()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	meteoblue := providers.NewMeteoblueProvider(httpClient, providers.MeteoblueConfig{
		APIKey:      cfg.MeteoblueAPIKey,
		ForecastURL: cfg.MeteoblueForecastURL,
		SearchURL:   cfg.MeteoblueSearchURL,
	})
	places := weather.NewPlaceResolver(meteoblue, sugar.Named("geocode"))

	forecastCache := cache.New[weather.ForecastSnapshot](nil)
	forecasts := weather.NewForecastCoordinator(db, db, forecastCache, meteoblue, places, weather.ForecastOptions{
		CacheTTL:     cfg.ForecastCacheTTL,
		FetchTimeout: cfg.HTTPTimeout,
		Coalesce:     cfg.CoalesceForecast,
		Location:     cfg.Location,
	}, sugar.Named("forecast"))

	stats := weather.NewStatAggregator(db, db, db, cfg.Location, nil, sugar.Named("stats"))
	stations := weather.NewStationService(db, db, places, nil, sugar.Named("stations"))

	// Scheduler that finalizes closed days and purges the forecast cache.
	sched := scheduler.New(db, stats, forecastCache, scheduler.Options{
		BackfillAt:    cfg.StatsBackfillAt,
		PurgeInterval: cfg.CachePurgeInterval,
		Location:      cfg.Location,
	}, sugar.Named("scheduler"))
	if err := sched.Start(); err != nil {
		sugar.Fatalw("failed to start scheduler", "error", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-station-backend",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2*cfg.HTTPTimeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := healthCheck(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "degraded",
				"service": "weather-station-backend",
			})
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-station-backend",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Stations:  stations,
		Stats:     stats,
		Forecasts: forecasts,
		Location:  cfg.Location,
	})

	// Start server with graceful shutdown
	go func() {
		sugar.Infow("listening", "port", cfg.Port, "driver", cfg.DatabaseDriver)
		if err := app.Listen(":" + cfg.Port); err != nil {
			sugar.Errorw("fiber server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		sugar.Errorw("error during shutdown", "error", err)
	}
}

// openBackend selects the store named by the configuration. SQL backends are
// migrated before use.
func openBackend(ctx context.Context, cfg *config.AppConfig, log *zap.SugaredLogger) (backend, func(context.Context) error, func(), error) {
	if cfg.DatabaseDriver == "memory" {
		log.Warnw("using in-memory store; data is lost on restart")
		mem := store.NewMemoryStore(cfg.SnapshotHistory)
		return mem, func(context.Context) error { return nil }, func() {}, nil
	}

	db, err := store.Open(ctx, store.Config{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxOpenConns / 2,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(db); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	sqlStore := store.NewSQLStore(db)
	return sqlStore, sqlStore.HealthCheck, func() { db.Close() }, nil
}
