// Package metrics exposes the Captain's Prometheus surface: crew size by
// derived status, chore counts by status, and a counter for assign RPC
// failures observed by the control loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CrewByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "captain",
		Name:      "crew_sailors",
		Help:      "Number of sailors currently in each derived status.",
	}, []string{"status"})

	ChoresByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "captain",
		Name:      "chores",
		Help:      "Number of chores currently in each status.",
	}, []string{"status"})

	AssignFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "captain",
		Name:      "assign_failures_total",
		Help:      "Total Sailor Client assign RPCs that failed (transport error or non-2xx).",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "captain",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one control-loop tick.",
	})
)
