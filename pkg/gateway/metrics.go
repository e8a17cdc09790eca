package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_decisions_total",
			Help: "Total number of gateway decisions by use case and source",
		},
		[]string{"use_case", "source"},
	)

	decisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agroguard_decision_duration_seconds",
			Help:    "Gateway decision latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"use_case", "source"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_fallbacks_total",
			Help: "Total number of fallback results by use case and failure reason",
		},
		[]string{"use_case", "reason"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_cache_lookups_total",
			Help: "Total number of decision cache lookups by result",
		},
		[]string{"result"},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agroguard_cache_entries",
			Help: "Current number of cached decision results",
		},
	)

	flightsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agroguard_live_flights_in_flight",
			Help: "Current number of live upstream flights",
		},
	)

	sharedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agroguard_shared_flight_results_total",
			Help: "Total number of results delivered from another caller's flight",
		},
	)
)
