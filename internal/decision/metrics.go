package decision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// decisionsTotal counts completed cycles by selected tool and result
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npc_decisions_total",
		Help: "Total decision cycles by selected tool and result",
	}, []string{"tool", "result"})

	// decisionDuration tracks weigh-to-record latency
	decisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "npc_decision_duration_seconds",
		Help:    "Decision cycle duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
	})

	// decisionErrors counts cycle errors by type
	decisionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npc_decision_errors_total",
		Help: "Total decision cycle errors by type",
	}, []string{"error_type"})

	// invalidBaseWeights counts NaN, infinite or negative base weights that were zeroed
	invalidBaseWeights = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npc_invalid_base_weights_total",
		Help: "Base weights sanitised to zero, by tool",
	}, []string{"tool"})

	// fallbackSelections counts cycles that fell back to the default tool
	fallbackSelections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "npc_fallback_selections_total",
		Help: "Decision cycles where every weight was zero and the default tool was used",
	})
)
