package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherstation_upstream_calls_total",
			Help: "Total calls to the forecast provider",
		},
		[]string{"provider", "endpoint", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherstation_upstream_latency_seconds",
			Help:    "Forecast provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "endpoint"},
	)

	ForecastRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherstation_forecast_requests_total",
			Help: "Forecast requests by the tier that satisfied them",
		},
		[]string{"tier"},
	)

	DailyStatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherstation_daily_stats_total",
			Help: "Daily stat rows visited by the aggregator, by outcome",
		},
		[]string{"outcome"},
	)

	GeocodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherstation_geocode_failures_total",
			Help: "Place-name lookups that failed and were skipped",
		},
	)
)
