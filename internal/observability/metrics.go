package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "track_n_ride", Name: "sessions_active", Help: "Number of live sessions"})
	RidesCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "track_n_ride", Name: "rides_created_total", Help: "Total rides created"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "track_n_ride", Name: "ws_connections_active", Help: "Number of attached websocket connections"})
	FramesIn          = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "track_n_ride", Name: "ws_frames_in_total", Help: "Inbound websocket frames by type"},
		[]string{"type"},
	)
	BroadcastsTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "track_n_ride", Name: "ws_broadcasts_total", Help: "Total ride-scoped broadcasts"})
	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "track_n_ride", Name: "ws_delivery_failures_total", Help: "Sends that failed and evicted a connection"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "track_n_ride", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "track_n_ride",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
