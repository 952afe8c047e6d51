package spotsync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sources of a sync pass, used as the "source" metric label.
const (
	SourceStart        = "start"
	SourceSubscription = "subscription"
	SourceResync       = "resync"
	SourceWrite        = "write"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	SyncPasses       *prometheus.CounterVec
	InvalidDocuments prometheus.Counter
	WriteFailures    *prometheus.CounterVec
	SnapshotSpots    prometheus.Gauge
	SyncDuration     prometheus.Histogram
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SyncPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "findmyspot_sync_passes_total",
				Help: "Sync passes applied to the cache, by source",
			},
			[]string{"source"},
		),
		InvalidDocuments: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "findmyspot_invalid_documents_total",
				Help: "Remote documents dropped by validation",
			},
		),
		WriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "findmyspot_remote_write_failures_total",
				Help: "Remote writes that were not committed, by operation",
			},
			[]string{"op"},
		),
		SnapshotSpots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "findmyspot_snapshot_spots",
				Help: "Spots in the published snapshot",
			},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "findmyspot_sync_duration_seconds",
				Help:    "Time to validate, cache and publish one delivery",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.SyncPasses, m.InvalidDocuments, m.WriteFailures, m.SnapshotSpots, m.SyncDuration)
	}
	return m
}
