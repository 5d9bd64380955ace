package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eth_terminal",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eth_terminal",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eth_terminal",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Polling / source metrics ───────────────────────────────────────────

var (
	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eth_terminal",
		Subsystem: "poll",
		Name:      "total",
		Help:      "Total number of poll attempts per source.",
	}, []string{"source", "status"})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eth_terminal",
		Subsystem: "poll",
		Name:      "duration_seconds",
		Help:      "Duration of poll fetch per source in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	PollLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "eth_terminal",
		Subsystem: "poll",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful poll per source.",
	}, []string{"source"})

	PollDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eth_terminal",
		Subsystem: "poll",
		Name:      "dropped_total",
		Help:      "Poll issuances dropped because the work queue was full.",
	}, []string{"source"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eth_terminal",
		Subsystem: "poll",
		Name:      "queue_depth",
		Help:      "Number of poll jobs waiting for a worker.",
	})

	RateLimitWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eth_terminal",
		Subsystem: "poll",
		Name:      "rate_limit_wait_seconds",
		Help:      "Time a poll job waited for its rate limiter token.",
		Buckets:   []float64{0, 0.05, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"group"})
)

// ── Rendering metrics ──────────────────────────────────────────────────

var (
	TilesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eth_terminal",
		Subsystem: "render",
		Name:      "tiles_applied_total",
		Help:      "Tile updates written to render targets.",
	}, []string{"metric"})

	TilesStale = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eth_terminal",
		Subsystem: "render",
		Name:      "tiles_stale_total",
		Help:      "Tile updates discarded because a newer issuance was already rendered.",
	}, []string{"metric"})

	TilesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eth_terminal",
		Subsystem: "render",
		Name:      "tiles_skipped_total",
		Help:      "Tile updates withheld because a referenced value was missing or not finite.",
	}, []string{"metric"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eth_terminal",
		Subsystem: "render",
		Name:      "websocket_clients",
		Help:      "Connected live tile subscribers.",
	})
)

// ── Business metrics ───────────────────────────────────────────────────

var (
	MetricValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "eth_terminal",
		Subsystem: "business",
		Name:      "metric_value",
		Help:      "Current value of a tracked metric.",
	}, []string{"source", "metric_name"})
)
