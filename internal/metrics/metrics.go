// Package metrics exposes the validator's Prometheus gauges and counters:
// queue depth and in-flight work, and the block lifecycle events the state
// machine drives (proposed, voted, finalized) plus how far behind the chain
// head polling currently is.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueueParallel = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "validator",
		Name:      "queue_parallel_actions",
		Help:      "Number of queue actions currently executing, sequential and parallel combined.",
	})

	PollLagBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "validator",
		Name:      "poll_lag_blocks",
		Help:      "Difference between the chain head and the last block number this validator has polled through.",
	})

	RequestsValidatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "validator",
		Name:      "requests_validated_total",
		Help:      "Validation requests processed, labeled by outcome status.",
	}, []string{"status"})

	BlocksProposedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "validator",
		Name:      "blocks_proposed_total",
		Help:      "Validation blocks this validator has proposed.",
	})

	BlocksVotedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "validator",
		Name:      "blocks_voted_total",
		Help:      "Validation blocks this validator has voted on.",
	})

	BlocksFinalizedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "validator",
		Name:      "blocks_finalized_total",
		Help:      "Validation blocks this validator has finalized.",
	})

	RegisterRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "validator",
		Name:      "register_retries_total",
		Help:      "Times the registration handler has had to retry.",
	})
)

// MustRegister registers every collector above against reg. Call once at
// startup before serving /metrics.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		QueueParallel,
		PollLagBlocks,
		RequestsValidatedTotal,
		BlocksProposedTotal,
		BlocksVotedTotal,
		BlocksFinalizedTotal,
		RegisterRetriesTotal,
	)
}
