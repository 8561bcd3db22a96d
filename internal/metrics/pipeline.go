package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "crossret"

// Pipeline Prometheus metrics.
var (
	RowsScannedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_scanned_total",
			Help:      "Total parquet rows read",
		},
		[]string{"dataset"},
	)

	DocumentsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_written_total",
			Help:      "Total flattened documents written to collections",
		},
		[]string{"collection"},
	)

	EmbeddingsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_written_total",
			Help:      "Total embedding rows written to shards",
		},
		[]string{"encode_type"},
	)

	IndexDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_documents_total",
			Help:      "Total documents ingested into external indexes",
		},
		[]string{"backend", "kind"},
	)

	SearchQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Total search queries issued",
		},
		[]string{"backend", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Per-query search latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"backend"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage wall time",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"stage"},
	)

	DownloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded from the dataset hub",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(RowsScannedTotal)
	prometheus.MustRegister(DocumentsWrittenTotal)
	prometheus.MustRegister(EmbeddingsWrittenTotal)
	prometheus.MustRegister(IndexDocumentsTotal)
	prometheus.MustRegister(SearchQueriesTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(DownloadBytesTotal)
	pipelineMetricsRegistered = true
}
