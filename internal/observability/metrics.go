package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "shuttle", Name: "bookings_created_total", Help: "Total bookings created"})
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "shuttle", Name: "booking_transitions_total", Help: "Applied booking status transitions"},
		[]string{"from", "to"},
	)

	LocationUpdates  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "shuttle", Name: "location_updates_total", Help: "Accepted driver GPS samples"})
	LocationRejected = promauto.NewCounter(prometheus.CounterOpts{Namespace: "shuttle", Name: "location_rejected_total", Help: "GPS samples rejected by validation"})

	TrackingSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "shuttle", Name: "tracking_sessions", Help: "Connected tracking websocket sessions"})
	PushDropped      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "shuttle", Name: "push_dropped_total", Help: "Push frames dropped on dead sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "shuttle", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shuttle",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
