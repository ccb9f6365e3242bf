package rag

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the pipelines.
type Metrics struct {
	DocumentsIngested *prometheus.CounterVec
	ChunksIngested    prometheus.Counter
	QuestionsTotal    *prometheus.CounterVec
	RetrievedChunks   prometheus.Histogram
	ProbesTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics for the pipelines.
//
// Metrics are registered once per process, so every Service shares them.
//
// Metrics:
//   - raglab_documents_ingested_total{result} - ingest calls by outcome
//   - raglab_chunks_ingested_total - chunks written to the vector store
//   - raglab_questions_total{result} - ask calls by outcome
//   - raglab_retrieved_chunks - chunks retrieved per question
//   - raglab_probes_total{result} - liveness probes by outcome
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			DocumentsIngested: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "raglab_documents_ingested_total",
					Help: "Total number of ingest calls",
				},
				[]string{"result"}, // "success" or "error"
			),
			ChunksIngested: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "raglab_chunks_ingested_total",
					Help: "Total number of chunks written to the vector store",
				},
			),
			QuestionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "raglab_questions_total",
					Help: "Total number of ask calls",
				},
				[]string{"result"},
			),
			RetrievedChunks: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "raglab_retrieved_chunks",
					Help:    "Number of chunks retrieved per question",
					Buckets: []float64{0, 1, 2, 3, 4, 8},
				},
			),
			ProbesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "raglab_probes_total",
					Help: "Total number of generation service probes",
				},
				[]string{"result"},
			),
		}
	})
	return globalMetrics
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
