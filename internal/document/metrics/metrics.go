// Package metrics provides observability for the document module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks document ingestion and search.
type Metrics struct {
	// Documents ingested, by type
	DocumentsCreated *prometheus.CounterVec

	// Raw text size of ingested documents
	IngestSize prometheus.Histogram

	// Creations rejected by the role checks
	IngestRejections *prometheus.CounterVec

	// Search latency
	SearchLatency prometheus.Histogram
}

// New creates a Metrics instance with all document module metrics registered.
func New() *Metrics {
	return &Metrics{
		DocumentsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ali_documents_created_total",
			Help: "Total documents ingested by type",
		}, []string{"type"}),

		IngestSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ali_document_ingest_size_bytes",
			Help:    "Raw text size of ingested documents",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),

		IngestRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ali_document_ingest_rejections_total",
			Help: "Document creations rejected by role checks",
		}, []string{"reason"}), // reason: "size", "type", "quota", "duplicate"

		SearchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ali_document_search_duration_seconds",
			Help:    "Duration of document searches",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveIngest records a successful document creation.
func (m *Metrics) ObserveIngest(docType string, sizeBytes int) {
	if m != nil {
		m.DocumentsCreated.WithLabelValues(docType).Inc()
		m.IngestSize.Observe(float64(sizeBytes))
	}
}

// IncrementIngestRejection records a creation rejected by a role check.
func (m *Metrics) IncrementIngestRejection(reason string) {
	if m != nil {
		m.IngestRejections.WithLabelValues(reason).Inc()
	}
}

// ObserveSearchLatency records the duration of one search.
func (m *Metrics) ObserveSearchLatency(d time.Duration) {
	if m != nil {
		m.SearchLatency.Observe(d.Seconds())
	}
}
