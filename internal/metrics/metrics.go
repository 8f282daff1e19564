// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studytracker_sessions_started_total",
			Help: "Total study sessions opened",
		},
	)

	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studytracker_sessions_closed_total",
			Help: "Total study sessions closed, by how they were closed",
		},
		[]string{"reason"}, // stop | superseded
	)

	MinutesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studytracker_minutes_recorded_total",
			Help: "Study minutes recorded on closed sessions",
		},
	)

	NegativeDurationsClamped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studytracker_negative_durations_clamped_total",
			Help: "Sessions whose end preceded their start and were recorded as zero minutes",
		},
	)

	InvalidClientTimestamps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studytracker_invalid_client_timestamps_total",
			Help: "Client timestamps that could not be parsed and were replaced by server time",
		},
	)

	// Leaderboard metrics
	LeaderboardRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studytracker_leaderboard_requests_total",
			Help: "Leaderboard computations, by where the ranking came from",
		},
		[]string{"source"}, // cache | store
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studytracker_http_requests_total",
			Help: "Total HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studytracker_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "studytracker_websocket_connections",
			Help: "Currently connected websocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStarted,
		SessionsClosed,
		MinutesRecorded,
		NegativeDurationsClamped,
		InvalidClientTimestamps,
		LeaderboardRequests,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WebsocketConnections,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
