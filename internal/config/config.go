package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string `validate:"required,numeric"`

	// Storage backend: memory, postgres or sqlite.
	DatabaseDriver  string `validate:"oneof=memory postgres sqlite"`
	DatabaseURL     string `validate:"required_unless=DatabaseDriver memory"`
	DBMaxOpenConns  int    `validate:"gte=0"`
	SnapshotHistory int    `validate:"gte=0"` // memory store only, 0 = unlimited

	MeteoblueAPIKey      string
	MeteoblueForecastURL string `validate:"omitempty,url"`
	MeteoblueSearchURL   string `validate:"omitempty,url"`

	// HTTPTimeout bounds each outbound provider request.
	HTTPTimeout      time.Duration `validate:"gt=0"`
	ForecastCacheTTL time.Duration `validate:"gt=0"`
	CoalesceForecast bool

	// Location defines local midnight for daily stats and forecast freshness.
	Location *time.Location `validate:"required"`

	LogLevel string `validate:"oneof=debug info warn error"`

	// StatsBackfillAt is the local HH:MM at which closed days are finalized.
	StatsBackfillAt    string        `validate:"required"`
	CachePurgeInterval time.Duration `validate:"gt=0"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.DatabaseDriver = strings.ToLower(getenvDefault("DATABASE_DRIVER", "memory"))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.DBMaxOpenConns = getenvInt("DB_MAX_OPEN_CONNS", 10)
	cfg.SnapshotHistory = getenvInt("SNAPSHOT_MAX_HISTORY", 30)

	cfg.MeteoblueAPIKey = os.Getenv("METEOBLUE_API_KEY")
	cfg.MeteoblueForecastURL = os.Getenv("METEOBLUE_FORECAST_URL")
	cfg.MeteoblueSearchURL = os.Getenv("METEOBLUE_SEARCH_URL")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ForecastCacheTTL, err = getenvDuration("FORECAST_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CachePurgeInterval, err = getenvDuration("CACHE_PURGE_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	cfg.CoalesceForecast = getenvBool("COALESCE_FORECASTS", true)

	tz := getenvDefault("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))

	cfg.StatsBackfillAt = getenvDefault("STATS_BACKFILL_AT", "00:15")
	if _, err := time.Parse("15:04", cfg.StatsBackfillAt); err != nil {
		return nil, fmt.Errorf("invalid STATS_BACKFILL_AT: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
