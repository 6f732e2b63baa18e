package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics bundles the Prometheus instruments for the service.
//
// All record methods tolerate a nil receiver so tests and partial wiring
// can skip instrumentation entirely.
type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpErrors     *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	ticketsCreated *prometheus.CounterVec
}

// NewMetrics registers the instruments on the default registry. Call it
// once at startup; repeated registration panics by Prometheus contract.
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devdesk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, labeled by method, route, and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "devdesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devdesk",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Error responses rendered, labeled by route, method, and error code",
		}, []string{"route", "method", "code"}),
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devdesk",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Ticket transition attempts, labeled by from/to status and outcome",
		}, []string{"from_status", "to_status", "outcome"}),
		ticketsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devdesk",
			Subsystem: "workflow",
			Name:      "tickets_created_total",
			Help:      "Tickets created, labeled by creation channel",
		}, []string{"channel"}),
	}
}

// RecordRequest observes one served HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError counts one rendered error response by taxonomy code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(route, method, code).Inc()
}

// RecordTransition counts one transition attempt and its outcome.
func (m *Metrics) RecordTransition(fromStatus, toStatus, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(fromStatus, toStatus, outcome).Inc()
}

// RecordTicketCreated counts one created ticket per channel.
func (m *Metrics) RecordTicketCreated(channel string) {
	if m == nil {
		return
	}
	m.ticketsCreated.WithLabelValues(channel).Inc()
}

// StartMetricsServer exposes /metrics on its own listener, keeping the
// scrape surface off the public API port. The caller owns shutdown.
func StartMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}
