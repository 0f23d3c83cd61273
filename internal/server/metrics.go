package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexmark_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hexmark_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Pipeline run metrics
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexmark_runs_total",
			Help: "Total number of pipeline runs by terminal status",
		},
		[]string{"status"}, // completed, halted
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hexmark_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"stage"},
	)

	markersValidated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hexmark_markers_validated",
			Help:    "Number of validated markers per run",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hexmark_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)
)
