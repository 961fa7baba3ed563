package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_http_requests_total",
		Help: "Total number of HTTP requests served",
	}, []string{"route", "method", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helpdesk_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	HTTPErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_http_errors_total",
		Help: "Total number of HTTP requests answered with a domain error",
	}, []string{"route", "method", "code"})

	// Sweep metrics
	SweepCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_sweep_cycles_total",
		Help: "Sweep cycles by outcome (completed, skipped, failed)",
	}, []string{"outcome"})
	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "helpdesk_sweep_duration_seconds",
		Help:    "Wall time of completed sweep cycles",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	SweepIssueFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_sweep_issue_failures_total",
		Help: "Issues whose sweep step failed, panicked or timed out",
	})
	Escalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_escalations_total",
		Help: "Tier changes by trigger (manual, automatic)",
	}, []string{"trigger"})
	SLABreaches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_sla_breaches_total",
		Help: "SLA breaches flagged by kind (RESPONSE, RESOLUTION)",
	}, []string{"kind"})

	// Notification metrics
	NotificationsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_notifications_delivered_total",
		Help: "Notifications handed to a channel successfully",
	}, []string{"channel"})
	NotificationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_notifications_failed_total",
		Help: "Notifications a channel failed to deliver",
	}, []string{"channel"})
	NotificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_notifications_dropped_total",
		Help: "Notifications dropped because the queue was full or closed",
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPErrors)
	prometheus.MustRegister(SweepCycles)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(SweepIssueFailures)
	prometheus.MustRegister(Escalations)
	prometheus.MustRegister(SLABreaches)
	prometheus.MustRegister(NotificationsDelivered)
	prometheus.MustRegister(NotificationsFailed)
	prometheus.MustRegister(NotificationsDropped)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics records HTTP level measurements. A nil *Metrics is a no-op.
type Metrics struct{}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	HTTPErrors.WithLabelValues(route, method, code).Inc()
}
