package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the cache and
// school domain events.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec

	transitions       *prometheus.CounterVec
	transitionSeconds prometheus.Observer
	promotions        *prometheus.CounterVec
	payments          *prometheus.CounterVec
	paymentAmount     prometheus.Counter
	attendanceChanges *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	coverage          *prometheus.CounterVec
	casConflicts      *prometheus.CounterVec
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "academic_year_transitions_total",
			Help: "Academic year transitions by outcome",
		}, []string{"outcome"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "student_promotions_total",
			Help: "Students processed by year transitions",
		}, []string{"outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fee_payments_total",
			Help: "Fee payments recorded by method",
		}, []string{"method"}),
		paymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fee_payments_amount_total",
			Help: "Sum of recorded fee payment amounts",
		}),
		attendanceChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_changes_total",
			Help: "Attendance entries changed by submissions",
		}, []string{"cohort"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification dispatch decisions",
		}, []string{"result"}),
		coverage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_resolutions_total",
			Help: "Coverage tasks resolved by resolution type",
		}, []string{"type"}),
		casConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cas_conflicts_total",
			Help: "Optimistic concurrency conflicts by resource",
		}, []string{"resource"}),
	}

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache reads",
		Buckets: prometheus.DefBuckets,
	})
	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})
	transitionSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "academic_year_transition_seconds",
		Help:    "Wall time of academic year transitions",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})
	m.cacheLatency = cacheLatency
	m.cacheWrite = cacheWrite
	m.transitionSeconds = transitionSeconds

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLookups, cacheLatency, cacheWrite,
		m.transitions, transitionSeconds, m.promotions, m.payments, m.paymentAmount,
		m.attendanceChanges, m.notifications, m.coverage, m.casConflicts, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry for tests and custom collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveTransition records a finished or aborted year transition.
func (m *MetricsService) ObserveTransition(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(outcome).Inc()
	m.transitionSeconds.Observe(duration.Seconds())
}

// RecordPromotion counts one student processed by a transition.
func (m *MetricsService) RecordPromotion(outcome string) {
	if m == nil {
		return
	}
	m.promotions.WithLabelValues(outcome).Inc()
}

// RecordPayment counts a recorded fee payment.
func (m *MetricsService) RecordPayment(method string, amount float64) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method).Inc()
	m.paymentAmount.Add(amount)
}

// RecordAttendance counts changed entries and notification decisions of a submission.
func (m *MetricsService) RecordAttendance(cohort string, changes, notified, skipped int) {
	if m == nil {
		return
	}
	m.attendanceChanges.WithLabelValues(cohort).Add(float64(changes))
	m.notifications.WithLabelValues("enqueued").Add(float64(notified))
	m.notifications.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordNotificationFailure counts notifications that could not be queued or delivered.
func (m *MetricsService) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues("failed").Inc()
}

// RecordCoverageResolution counts a resolved coverage task.
func (m *MetricsService) RecordCoverageResolution(resolution string) {
	if m == nil {
		return
	}
	m.coverage.WithLabelValues(resolution).Inc()
}

// RecordConflict counts a lost compare-and-swap on resource.
func (m *MetricsService) RecordConflict(resource string) {
	if m == nil {
		return
	}
	m.casConflicts.WithLabelValues(resource).Inc()
}
