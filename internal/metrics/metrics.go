package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters shared across the processing pipeline. Labels stay low
// cardinality: strategy and provider names are from fixed sets.
var (
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linkbrief",
		Name:      "tasks_processed_total",
		Help:      "Completed tasks by result.",
	}, []string{"result"})

	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linkbrief",
		Name:      "fetch_attempts_total",
		Help:      "Fetch attempts by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linkbrief",
		Name:      "provider_calls_total",
		Help:      "LLM provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "linkbrief",
		Name:      "queue_depth",
		Help:      "Tasks waiting in the processing queue.",
	})
)
