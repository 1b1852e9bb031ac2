package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistchat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistchat_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistchat_turns_total",
			Help: "Conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistchat_turn_duration_seconds",
			Help:    "Wall time of a full conversation turn",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		},
	)

	runPolls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistchat_run_status_observations",
			Help:    "Run statuses observed per turn, initial status included",
			Buckets: prometheus.LinearBuckets(1, 4, 10),
		},
	)

	activeTurns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "assistchat_active_turns",
			Help: "Turns currently waiting on the remote service",
		},
	)

	sessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assistchat_sessions_created_total",
			Help: "Browser sessions created",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		turnsTotal,
		turnDuration,
		runPolls,
		activeTurns,
		sessionsCreated,
	)
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTurn counts a finished turn; outcome is "ok" or the error kind.
func RecordTurn(outcome string, duration time.Duration, statuses int) {
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(duration.Seconds())
	if statuses > 0 {
		runPolls.Observe(float64(statuses))
	}
}

func TurnStarted()  { activeTurns.Inc() }
func TurnFinished() { activeTurns.Dec() }

func RecordSessionCreated() {
	sessionsCreated.Inc()
}
