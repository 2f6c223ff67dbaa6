package summarizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Summary kinds and failure reasons used as metric label values
const (
	kindInitial = "initial"
	kindRolling = "rolling"

	reasonValidation = "validation"
	reasonProvider   = "provider"
	reasonStore      = "store"
)

// Metrics holds the engine's Prometheus metrics
type Metrics struct {
	SummariesCreated *prometheus.CounterVec
	SummaryFailures  *prometheus.CounterVec
	SummaryDuration  prometheus.Histogram
	TokensSummarized prometheus.Counter
	ContextTokens    prometheus.Histogram
}

// NewMetrics creates and registers the engine metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SummariesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kenchat_summaries_created_total",
				Help: "Total number of summaries committed",
			},
			[]string{"kind"},
		),
		SummaryFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kenchat_summary_failures_total",
				Help: "Total number of failed summarization attempts",
			},
			[]string{"reason"},
		),
		SummaryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kenchat_summary_duration_seconds",
				Help:    "Duration of summarization runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		TokensSummarized: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kenchat_summarized_tokens_total",
				Help: "Estimated tokens folded into summaries",
			},
		),
		ContextTokens: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kenchat_context_tokens",
				Help:    "Token size of assembled conversation contexts",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10),
			},
		),
	}
}
