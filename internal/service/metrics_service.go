package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/testmentor-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	bookingAttempts    *prometheus.CounterVec
	bookingTransitions *prometheus.CounterVec
	slotLocks          func() int

	requestCount         uint64
	requestDurationTotal uint64
	attemptCount         uint64
	createdCount         uint64
	fullCount            uint64
	transitionCount      uint64
}

// NewMetricsService registers core Prometheus collectors. slotLocks, when set,
// reports how many slot keys are currently held by this process.
func NewMetricsService(slotLocks func() int) *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	bookingAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_attempts_total",
		Help: "Booking create attempts by outcome",
	}, []string{"outcome"})

	bookingTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Booking lifecycle actions by outcome",
	}, []string{"action", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, bookingAttempts, bookingTransitions, goroutines)

	if slotLocks != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "booking_slot_locks_held",
			Help: "Slot keys currently serialized in this process",
		}, func() float64 {
			return float64(slotLocks())
		}))
	}

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		bookingAttempts:    bookingAttempts,
		bookingTransitions: bookingTransitions,
		slotLocks:          slotLocks,
	}
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveBookingAttempt counts one create attempt.
func (m *MetricsService) ObserveBookingAttempt(outcome string) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.attemptCount, 1)
	switch outcome {
	case OutcomeCreated:
		atomic.AddUint64(&m.createdCount, 1)
	case OutcomeCapacityFull:
		atomic.AddUint64(&m.fullCount, 1)
	}
}

// ObserveBookingTransition counts one lifecycle action.
func (m *MetricsService) ObserveBookingTransition(action models.BookingAction, outcome string) {
	if m == nil {
		return
	}
	m.bookingTransitions.WithLabelValues(string(action), outcome).Inc()
	if outcome == "ok" {
		atomic.AddUint64(&m.transitionCount, 1)
	}
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	snapshot := models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		BookingAttempts:          atomic.LoadUint64(&m.attemptCount),
		BookingsCreated:          atomic.LoadUint64(&m.createdCount),
		BookingsRejectedFull:     atomic.LoadUint64(&m.fullCount),
		Transitions:              atomic.LoadUint64(&m.transitionCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
	if m.slotLocks != nil {
		snapshot.SlotLocksHeld = m.slotLocks()
	}
	return snapshot
}
