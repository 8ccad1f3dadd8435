package metrics

import "github.com/prometheus/client_golang/prometheus"

// Analysis pipeline Prometheus metrics.
var (
	InferenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emsal",
			Name:      "inference_requests_total",
			Help:      "Total number of inference requests",
		},
		[]string{"provider", "capability", "status"},
	)

	InferenceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "emsal",
			Name:      "inference_request_duration_seconds",
			Help:      "Inference request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"provider", "capability"},
	)

	InferenceTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emsal",
			Name:      "inference_tokens_total",
			Help:      "Total inference tokens consumed",
		},
		[]string{"provider", "capability", "type"},
	)

	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emsal",
			Name:      "retrieval_requests_total",
			Help:      "Total number of decision retrieval requests",
		},
		[]string{"status"},
	)

	RetrievalRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "emsal",
			Name:      "retrieval_request_duration_seconds",
			Help:      "Decision retrieval request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emsal",
			Name:      "cache_total",
			Help:      "Fingerprint cache hits and misses",
		},
		[]string{"tier", "result"}, // "hit" / "miss"
	)

	CacheSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "emsal",
			Name:      "cache_swept_total",
			Help:      "Expired cache entries removed by the sweeper",
		},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emsal",
			Name:      "analysis_runs_total",
			Help:      "Analysis runs by outcome",
		},
		[]string{"status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "emsal",
			Name:      "analysis_stage_duration_seconds",
			Help:      "Analysis stage duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"stage"},
	)

	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emsal",
			Name:      "quota_decisions_total",
			Help:      "Quota gate decisions",
		},
		[]string{"plan", "decision"}, // "admitted" / "rejected" / "refunded"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers analysis pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(InferenceRequestsTotal)
	prometheus.MustRegister(InferenceRequestDuration)
	prometheus.MustRegister(InferenceTokensTotal)
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalRequestDuration)
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(CacheSweptTotal)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(QuotaDecisionsTotal)
	pipelineMetricsRegistered = true
}
