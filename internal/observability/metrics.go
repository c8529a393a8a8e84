package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for AuthEvents.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeReuse    = "reuse_detected"
)

// AuthEvents counts engine operations by outcome. Register it with
// RegisterMetrics before serving /metrics.
var AuthEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "publish_auth_events_total",
		Help: "Auth engine operations by outcome",
	},
	[]string{"operation", "outcome"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "publish_auth_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// RegisterMetrics panics if a collector is already registered with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthEvents)
	reg.MustRegister(HTTPRequestDuration)
}

func RecordAuthEvent(operation, outcome string) {
	AuthEvents.WithLabelValues(operation, outcome).Inc()
}

func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func observeRequest(r *http.Request, status int, elapsed time.Duration) {
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
