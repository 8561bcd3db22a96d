package metrics

import "github.com/prometheus/client_golang/prometheus"

// Encoder Prometheus metrics. Labels carry the provider and model so text
// and image encoders of one run stay apart.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "requests_total",
			Help:      "Embedding API requests by outcome",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "request_duration_seconds",
			Help:      "Embedding API request latency; image batches dominate the upper buckets",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	EmbeddingBatchInputs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "batch_inputs",
			Help:      "Inputs per embedding request",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"provider", "model"},
	)

	EmbeddingInputBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "input_bytes_total",
			Help:      "Bytes sent to the encoder (image data URLs included)",
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "tokens_total",
			Help:      "Tokens reported by the encoder",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "errors_total",
			Help:      "Embedding failures by kind",
		},
		[]string{"provider", "model", "error_type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "cache_total",
			Help:      "Embedding cache lookups",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var embMetricsRegistered bool

// RegisterEmbeddingMetrics registers the encoder metrics. Must be called once from main.
func RegisterEmbeddingMetrics() {
	if embMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingBatchInputs,
		EmbeddingInputBytesTotal,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingCacheTotal,
	)
	embMetricsRegistered = true
}
