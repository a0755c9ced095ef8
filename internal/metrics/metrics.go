// Package metrics exposes the Prometheus collectors for the triage
// pipeline. Collectors register on the default registry at init and
// are served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Notifications counts push deliveries by handling outcome
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_notifications_total",
		Help: "Push notifications received, by handling outcome",
	}, []string{"outcome"})

	// MessagesProcessed counts scored-and-labeled messages by tier
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_messages_processed_total",
		Help: "Messages scored and labeled, by tier",
	}, []string{"tier"})

	// MessagesMissing counts messages that vanished before fetch
	MessagesMissing = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_messages_missing_total",
		Help: "Messages referenced by history but no longer fetchable",
	})

	// ScoringFailures counts scoring calls that errored and defaulted to zero
	ScoringFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_scoring_failures_total",
		Help: "Scoring calls that failed and defaulted the score to zero",
	})

	// CheckpointResets counts stale-baseline recoveries
	CheckpointResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_checkpoint_resets_total",
		Help: "Times the history baseline was reset after the provider rejected it",
	})

	// ImportanceScore tracks the distribution of model scores
	ImportanceScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "triage_importance_score",
		Help:    "Distribution of model importance scores",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
)
