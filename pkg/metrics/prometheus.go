package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	ingested   *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	errors     *prometheus.CounterVec
	rlDenied   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	cacheTotal *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ingested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stormflow_records_ingested_total",
				Help: "Normalized records written per source",
			},
			[]string{"source"},
		),
		dropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stormflow_records_dropped_total",
				Help: "Unparseable records skipped per source",
			},
			[]string{"source"},
		),
		errors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stormflow_errors_total",
				Help: "Errors by kind (fetch, store, publish, analysis)",
			},
			[]string{"type"},
		),
		rlDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stormflow_ratelimit_denied_total",
				Help: "Admission denials per endpoint policy",
			},
			[]string{"policy"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stormflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stormflow_result_cache_requests_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordIngested counts records written for a source.
func (r *Recorder) RecordIngested(source string, n int) {
	r.ingested.WithLabelValues(source).Add(float64(n))
}

// RecordDropped counts unparseable records skipped for a source.
func (r *Recorder) RecordDropped(source string, n int) {
	r.dropped.WithLabelValues(source).Add(float64(n))
}

// RecordError counts an error occurrence by kind.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordRateLimitDenied counts an admission denial for a policy.
func (r *Recorder) RecordRateLimitDenied(policy string) {
	r.rlDenied.WithLabelValues(policy).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordCacheHit counts a result cache lookup outcome.
func (r *Recorder) RecordCacheHit(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheTotal.WithLabelValues(outcome).Inc()
}
