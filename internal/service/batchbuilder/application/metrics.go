// internal/service/batchbuilder/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	permutationsGenerated = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "batch_builder",
		Name:      "permutations_generated",
		Help:      "Number of permutations produced per intake.",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})

	stageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "batch_builder",
		Name:      "stage_transitions_total",
		Help:      "Stage transitions by source and target stage.",
	}, []string{"from", "to"})

	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "batch_builder",
		Name:      "submissions_total",
		Help:      "Batch submissions by outcome (succeeded, transient, rejected).",
	}, []string{"outcome"})

	submissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "batch_builder",
		Name:      "submission_duration_seconds",
		Help:      "Latency of the batch create call to the offer service.",
		Buckets:   prometheus.DefBuckets,
	})

	interruptedSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "batch_builder",
		Name:      "interrupted_submissions_total",
		Help:      "Submitting selections found without an in-flight holder.",
	})
)
