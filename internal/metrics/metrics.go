// Package metrics exposes the prometheus instruments for the scoring loop and
// the feedback cycle. Everything is registered on the default registry and
// served from the HTTP /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotIssues counts validation failures by issue code. This is the
	// aggregate data-quality signal; a spike on a single code usually means a
	// broken upstream feed rather than a market event.
	SnapshotIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "validator",
		Name:      "snapshot_issues_total",
		Help:      "Snapshot validation issues by code.",
	}, []string{"code"})

	SnapshotsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "validator",
		Name:      "snapshots_rejected_total",
		Help:      "Snapshots excluded from scoring, by kind.",
	}, []string{"kind"})

	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "classifier",
		Name:      "predictions_total",
		Help:      "Regime predictions by regime label and source path.",
	}, []string{"regime", "source"})

	ModelFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "classifier",
		Name:      "model_fallbacks_total",
		Help:      "Times the model path failed and the rule path served the cycle.",
	})

	AnomalousInputs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "classifier",
		Name:      "anomalous_inputs_total",
		Help:      "Feature values clipped for exceeding the anomaly magnitude bound.",
	})

	RegimeChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "smoother",
		Name:      "regime_changes_total",
		Help:      "Accepted regime transitions by reason.",
	}, []string{"reason"})

	ChangesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "smoother",
		Name:      "changes_rejected_total",
		Help:      "Rejected regime transitions by rejecting rule.",
	}, []string{"rule"})

	CurrentRegime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "regimed",
		Name:      "current_regime",
		Help:      "Currently held regime tier (0=strong_downtrend .. 5=strong_uptrend).",
	})

	CurrentConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "regimed",
		Name:      "current_confidence",
		Help:      "Confidence of the currently held regime.",
	})

	DivergenceChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "consistency",
		Name:      "divergence_total",
		Help:      "Consistency check outcomes by severity.",
	}, []string{"severity"})

	FeedbackProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "feedback",
		Name:      "outcomes_total",
		Help:      "Processed prediction outcomes, by accuracy flag.",
	}, []string{"accurate"})

	FeedbackPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "regimed",
		Subsystem: "feedback",
		Name:      "pending",
		Help:      "Predictions past the delay window still awaiting an outcome.",
	})

	OverallAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "regimed",
		Subsystem: "feedback",
		Name:      "overall_accuracy",
		Help:      "Overall prediction accuracy recomputed from the feedback store.",
	})

	Retrains = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "model",
		Name:      "retrains_total",
		Help:      "Retraining job runs by result.",
	}, []string{"result"})

	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regimed",
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Persistence failures by operation. Cycles continue in memory.",
	}, []string{"op"})
)
