// Copyright 2025 Certen Protocol
package coordinator

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the coordinator's prometheus collectors. The teacher's
// go.mod carries client_golang as an indirect dependency but never
// instantiates it; the coordinator is where it earns its keep.
type Metrics struct {
	ReorgsTotal            prometheus.Counter
	DivergenceCycle        prometheus.Gauge
	SortitionsEvaluated    prometheus.Counter
	AnchorBlocksAffirmed   prometheus.Counter
	EventLoopIterationSecs prometheus.Histogram
	ReadyBlocksProcessed   prometheus.Counter
	AttachmentsDropped     prometheus.Counter
}

// NewMetrics constructs an unregistered set of collectors; the caller
// registers them with a *prometheus.Registry at wiring time.
func NewMetrics() *Metrics {
	return &Metrics{
		ReorgsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chain_coordinator",
			Name:      "reorgs_total",
			Help:      "Number of times the reorg engine began a rewind.",
		}),
		DivergenceCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chain_coordinator",
			Name:      "last_divergence_cycle",
			Help:      "Reward cycle of the most recently detected affirmation-map divergence.",
		}),
		SortitionsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chain_coordinator",
			Name:      "sortitions_evaluated_total",
			Help:      "Number of burnchain blocks that received a full sortition evaluation.",
		}),
		AnchorBlocksAffirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chain_coordinator",
			Name:      "anchor_blocks_affirmed_total",
			Help:      "Number of PoX anchor blocks the coordinator affirmed.",
		}),
		EventLoopIterationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chain_coordinator",
			Name:      "event_loop_iteration_seconds",
			Help:      "Wall time spent handling one event-loop wake.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReadyBlocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chain_coordinator",
			Name:      "ready_host_blocks_processed_total",
			Help:      "Number of staged host blocks drained by the ready-block loop.",
		}),
		AttachmentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chain_coordinator",
			Name:      "attachments_dropped_total",
			Help:      "Number of attachment events dropped due to a full bounded channel.",
		}),
	}
}

// Collectors returns every collector for bulk registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReorgsTotal, m.DivergenceCycle, m.SortitionsEvaluated,
		m.AnchorBlocksAffirmed, m.EventLoopIterationSecs,
		m.ReadyBlocksProcessed, m.AttachmentsDropped,
	}
}
