package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision metrics
var (
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_decisions_total",
			Help: "Total number of triage decisions by outcome and provenance",
		},
		[]string{"decision", "source"},
	)

	OverridesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_overrides_total",
			Help: "Total number of times an override rule changed a decision",
		},
		[]string{"rule"},
	)

	ScoreHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mail_triage_priority_score",
			Help:    "Distribution of final priority scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mail_triage_batch_duration_seconds",
			Help:    "Duration of triage batches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)

// Sender history metrics
var (
	ProfileStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_profile_store_operations_total",
			Help: "Total number of sender history store operations",
		},
		[]string{"store", "operation", "status"},
	)

	PendingObservations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mail_triage_pending_observations",
			Help: "Decisions buffered but not yet committed to sender history",
		},
	)
)

// Classifier metrics
var (
	ClassifierCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_classifier_calls_total",
			Help: "Total number of external classifier calls",
		},
		[]string{"model", "status"},
	)

	ClassifierSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_classifier_skips_total",
			Help: "Total number of messages not sent to the classifier",
		},
		[]string{"reason"},
	)

	VerdictCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_verdict_cache_lookups_total",
			Help: "Total number of verdict cache lookups by result",
		},
		[]string{"result"},
	)
)

// Filter metrics
var (
	FilteredMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_triage_filtered_messages_total",
			Help: "Total number of messages handled by the SMTP filter",
		},
		[]string{"status"},
	)
)

// RecordDecision counts a decision and the overrides that produced it
func RecordDecision(decision, source string, score int, overrides []string) {
	DecisionsTotal.WithLabelValues(decision, source).Inc()
	ScoreHistogram.Observe(float64(score))
	for _, rule := range overrides {
		OverridesTotal.WithLabelValues(rule).Inc()
	}
}

// StatusLabel maps an error onto the status label used across counters
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
