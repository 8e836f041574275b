// Package metrics exposes Prometheus collectors for coursebot.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	portalRequestsTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	enrollmentAttemptsTotal    *prometheus.CounterVec
	captchaSolvesTotal         *prometheus.CounterVec
	availabilityChecksTotal    *prometheus.CounterVec
	seatsRemaining             *prometheus.GaugeVec
	tasksTotal                 *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		portalRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursebot_portal_requests_total",
				Help: "Requests made to the registration portal, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		enrollmentAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursebot_enrollment_attempts_total",
				Help: "Selection attempts, labeled by action and outcome.",
			},
			[]string{"action", "outcome"},
		)

		captchaSolvesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursebot_captcha_solves_total",
				Help: "Captcha recognition attempts, labeled by engine and result.",
			},
			[]string{"engine", "result"},
		)

		availabilityChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursebot_availability_checks_total",
				Help: "Seat availability checks, labeled by result.",
			},
			[]string{"result"},
		)

		seatsRemaining = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coursebot_seats_remaining",
				Help: "Seats remaining at the last check, labeled by course id.",
			},
			[]string{"course"},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursebot_tasks_total",
				Help: "Tasks processed by workers, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursebot_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursebot_rate_limit_delays_seconds",
				Help:    "Histogram of portal rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePortalRequest counts a portal page load or JSON call.
func ObservePortalRequest(kind, result string) {
	if portalRequestsTotal == nil {
		return
	}
	portalRequestsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveEnrollment records a selection attempt.
func ObserveEnrollment(action, outcome string) {
	if enrollmentAttemptsTotal == nil {
		return
	}
	enrollmentAttemptsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveCaptcha records one recognition attempt.
func ObserveCaptcha(engine string, solved bool) {
	if captchaSolvesTotal == nil {
		return
	}
	result := "rejected"
	if solved {
		result = "accepted"
	}
	captchaSolvesTotal.WithLabelValues(engine, result).Inc()
}

// ObserveAvailability records a seat check and the seats it found.
func ObserveAvailability(courseID string, remaining int, err error) {
	if availabilityChecksTotal == nil {
		return
	}
	if err != nil {
		availabilityChecksTotal.WithLabelValues("error").Inc()
		return
	}
	result := "full"
	if remaining > 0 {
		result = "open"
	}
	availabilityChecksTotal.WithLabelValues(result).Inc()
	seatsRemaining.WithLabelValues(courseID).Set(float64(remaining))
}

// ObserveTask increments the task counter for the given kind and status.
func ObserveTask(kind, status string) {
	if tasksTotal == nil {
		return
	}
	tasksTotal.WithLabelValues(kind, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
