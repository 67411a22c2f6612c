// Package metrics exposes Prometheus instrumentation for the poll pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CycleDuration observes how long each poll cycle takes end to end
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dcwatch_poll_cycle_duration_seconds",
		Help:    "Duration of complete poll cycles.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	// CyclesTotal counts completed poll cycles by result
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dcwatch_poll_cycles_total",
		Help: "Completed poll cycles by result.",
	}, []string{"result"})

	// SourceFetchFailures counts fetch failures per source
	SourceFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dcwatch_source_fetch_failures_total",
		Help: "Fetch failures per source.",
	}, []string{"source", "kind"})

	// AlertsByDC tracks the current alert counts of the published view
	AlertsByDC = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dcwatch_alerts",
		Help: "Alerts in the current aggregate view.",
	}, []string{"dc", "state"})

	// SnapshotWriteFailures counts dropped cycle snapshots
	SnapshotWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dcwatch_snapshot_write_failures_total",
		Help: "Poll cycle snapshots dropped after bounded write retries.",
	})
)
