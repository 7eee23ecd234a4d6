package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation job outcomes used as metric labels.
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeInfeasible = "infeasible"
	OutcomeCancelled  = "cancelled"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	generationTotal    *prometheus.CounterVec
	generationDuration prometheus.Observer
	generationFitness  prometheus.Observer
	generationCount    prometheus.Observer
	activeJobs         prometheus.Gauge
	editsTotal         *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	jobsStarted          uint64
	jobsCompleted        uint64
	jobsFailed           uint64
	active               int64
}

// MetricsSnapshot is a JSON-friendly summary of the counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	JobsStarted              uint64    `json:"jobs_started"`
	JobsCompleted            uint64    `json:"jobs_completed"`
	JobsFailed               uint64    `json:"jobs_failed"`
	ActiveJobs               int64     `json:"active_jobs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
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

	generationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_generation_jobs_total",
		Help: "Finished generation jobs by outcome",
	}, []string{"outcome"})

	generationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_generation_duration_seconds",
		Help:    "Wall time of generation jobs",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	generationFitness := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_generation_best_fitness",
		Help:    "Best fitness of completed generation jobs",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	generationCount := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_generation_generations",
		Help:    "Generations evolved per completed job",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	activeJobs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_generation_jobs_active",
		Help: "Generation jobs currently evolving",
	})

	editsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_schedule_edits_total",
		Help: "Schedule edits by kind and whether they left a conflict",
	}, []string{"kind", "conflict"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_schedule_cache_lookups_total",
		Help: "Schedule cache lookups by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, generationTotal, generationDuration, generationFitness, generationCount, activeJobs, editsTotal, cacheLookups, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		generationTotal:    generationTotal,
		generationDuration: generationDuration,
		generationFitness:  generationFitness,
		generationCount:    generationCount,
		activeJobs:         activeJobs,
		editsTotal:         editsTotal,
		cacheLookups:       cacheLookups,
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

// JobStarted marks a generation attempt as running.
func (m *MetricsService) JobStarted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.jobsStarted, 1)
	m.activeJobs.Set(float64(atomic.AddInt64(&m.active, 1)))
}

// JobFinished records the outcome of a job previously passed to JobStarted.
func (m *MetricsService) JobFinished(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.activeJobs.Set(float64(atomic.AddInt64(&m.active, -1)))
	m.generationTotal.WithLabelValues(outcome).Inc()
	m.generationDuration.Observe(duration.Seconds())
	if outcome == OutcomeCompleted {
		atomic.AddUint64(&m.jobsCompleted, 1)
	} else {
		atomic.AddUint64(&m.jobsFailed, 1)
	}
}

// JobRetrying releases an attempt that will be retried without recording an outcome.
func (m *MetricsService) JobRetrying() {
	if m == nil {
		return
	}
	m.activeJobs.Set(float64(atomic.AddInt64(&m.active, -1)))
}

// ObserveResult records the quality of a completed run.
func (m *MetricsService) ObserveResult(fitness float64, generations int) {
	if m == nil {
		return
	}
	m.generationFitness.Observe(fitness)
	m.generationCount.Observe(float64(generations))
}

// ObserveEdit counts a reposition or faculty refresh.
func (m *MetricsService) ObserveEdit(kind string, conflict bool) {
	if m == nil {
		return
	}
	m.editsTotal.WithLabelValues(kind, fmt.Sprintf("%t", conflict)).Inc()
}

// RecordCacheLookup counts a schedule cache lookup; result is hit, miss or error.
func (m *MetricsService) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		JobsStarted:              atomic.LoadUint64(&m.jobsStarted),
		JobsCompleted:            atomic.LoadUint64(&m.jobsCompleted),
		JobsFailed:               atomic.LoadUint64(&m.jobsFailed),
		ActiveJobs:               atomic.LoadInt64(&m.active),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
