// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IndexQueries counts dirtiness lookups by whether the near-sample
	// shortcut answered them.
	IndexQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cleancredit_index_queries_total",
		Help: "Dirtiness index queries by path",
	}, []string{"path"})

	// RewardScores counts reward computations by the source of the value.
	RewardScores = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cleancredit_reward_scores_total",
		Help: "Reward scores by value source",
	}, []string{"source"})

	// ModelFailures counts regressor failures that fell back to the rule.
	ModelFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cleancredit_model_failures_total",
		Help: "Reward model inference failures by reason",
	}, []string{"reason"})

	// ObservationCount reports the size of the active observation set.
	ObservationCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cleancredit_observations",
		Help: "Observations in the active dirtiness estimator",
	})

	// Reloads counts estimator reload attempts by result.
	Reloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cleancredit_estimator_reloads_total",
		Help: "Estimator reloads by result",
	}, []string{"result"})
)
