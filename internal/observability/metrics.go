package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	examsGradedTotal     *prometheus.CounterVec
	examGradingSeconds   *prometheus.HistogramVec
	examListCacheLookups *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exams_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exams_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exams_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		examsGradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exams_graded_total",
			Help: "Exams graded, by operation and outcome (graded or degraded).",
		}, []string{"operation", "outcome"})

		examGradingSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exams_grading_duration_seconds",
			Help:    "Time spent grading a single exam including the remote call.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"operation"})

		examListCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exams_list_cache_lookups_total",
			Help: "Exam listing cache lookups by result (hit or miss).",
		}, []string{"result"})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, httpErrorsTotal, examsGradedTotal, examGradingSeconds, examListCacheLookups)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ExamsGraded exposes the grading outcome counter.
func ExamsGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return examsGradedTotal
}

// ExamGradingDuration exposes the per-exam grading latency histogram.
func ExamGradingDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return examGradingSeconds
}

// ExamListCacheLookups exposes the listing cache hit/miss counter.
func ExamListCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return examListCacheLookups
}
