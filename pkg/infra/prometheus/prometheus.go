package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds, up to the print timeout.
	latencyBuckets = []float64{
		5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
		5000, 10000, 15000,
	}

	RequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "printgate_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"route", "method", "status"},
	)

	RequestLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "printgate_latency_ms",
			Help:    "Request latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"route"},
	)

	UpstreamLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "printgate_upstream_latency_ms",
			Help:    "Printer service latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"endpoint", "outcome"},
	)

	TurnstileVerifications = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "printgate_turnstile_verifications_total",
			Help: "Turnstile verification outcomes",
		},
		[]string{"outcome"},
	)

	RateLimited = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "printgate_rate_limited_total",
			Help: "Print requests rejected by the server-side rate limiter",
		},
	)
)

const (
	OutcomeSuccess     = "success"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"
	OutcomeRejected    = "rejected"
	OutcomeCircuitOpen = "circuit_open"
)

// Initialize registers the process collector. Call once at startup.
func Initialize() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the PrintGate registry only.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
