package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agroguard_upstream_attempts_total",
			Help: "Total number of upstream provider attempts",
		},
		[]string{"provider", "outcome"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agroguard_upstream_attempt_duration_seconds",
			Help:    "Upstream provider attempt latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "outcome"},
	)
)
