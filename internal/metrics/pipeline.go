package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingest and query Prometheus metrics. The ingestor exports the former, the
// query server the latter.
var (
	IngestLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "ingest_lines_total",
			Help:      "Log lines read by the ingestor",
		},
	)

	IngestDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "ingest_dropped_total",
			Help:      "Log lines dropped before indexing",
		},
		[]string{"reason"}, // blank / malformed / streaming / short_text / duplicate
	)

	IngestDocumentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "ingest_documents_total",
			Help:      "Documents upserted into the collection",
		},
	)

	IngestBatchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "ingest_batch_failures_total",
			Help:      "Upsert batches that failed",
		},
	)

	IngestFilesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "ingest_files_skipped_total",
			Help:      "Files skipped by the ingestor",
		},
		[]string{"reason"}, // unchanged / empty
	)

	QueryHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "query_hits_total",
			Help:      "Hits returned by similarity queries",
		},
	)

	QueryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "query_requests_total",
			Help:      "Similarity queries by outcome",
		},
		[]string{"status"}, // ok / invalid / error
	)
)

var (
	registerIngest sync.Once
	registerQuery  sync.Once
)

// RegisterIngestMetrics registers the ingestor's collectors with the default
// registry. Later calls are no-ops.
func RegisterIngestMetrics() {
	registerIngest.Do(func() {
		prometheus.MustRegister(
			IngestLinesTotal,
			IngestDroppedTotal,
			IngestDocumentsTotal,
			IngestBatchFailuresTotal,
			IngestFilesSkippedTotal,
		)
	})
}

// RegisterQueryMetrics registers the query collectors with the default
// registry. Later calls are no-ops.
func RegisterQueryMetrics() {
	registerQuery.Do(func() {
		prometheus.MustRegister(
			QueryHitsTotal,
			QueryRequestsTotal,
		)
	})
}
