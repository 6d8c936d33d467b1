// Package metrics holds the Prometheus collectors for the Pulse core.
// Register must be called once before serving /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_events_received_total",
			Help: "Total number of events enqueued into the batcher",
		},
	)

	EventsPersistedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_events_persisted_total",
			Help: "Total number of events confirmed persisted by storage",
		},
	)

	BatchFlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_batch_flushes_total",
			Help: "Total number of flush attempts that persisted at least one event",
		},
	)

	BatchFlushFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_batch_flush_failures_total",
			Help: "Total number of flush attempts that persisted nothing",
		},
	)

	BatcherBufferSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_batcher_buffer_size",
			Help: "Events currently buffered awaiting a successful flush",
		},
	)

	IdentifiesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_identifies_total",
			Help: "Total number of identify upserts",
		},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_active_connections",
			Help: "Currently registered live connections",
		},
	)

	FlagBroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_flag_broadcasts_total",
			Help: "Total number of tenant-wide flag broadcasts",
		},
	)

	BroadcastPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_broadcast_pruned_total",
			Help: "Connections evicted because a broadcast send failed",
		},
	)
)

// Register registers all Pulse metrics with the default registry.
func Register() {
	prometheus.MustRegister(EventsReceivedTotal)
	prometheus.MustRegister(EventsPersistedTotal)
	prometheus.MustRegister(BatchFlushesTotal)
	prometheus.MustRegister(BatchFlushFailuresTotal)
	prometheus.MustRegister(BatcherBufferSize)
	prometheus.MustRegister(IdentifiesTotal)
	prometheus.MustRegister(ActiveConnections)
	prometheus.MustRegister(FlagBroadcastsTotal)
	prometheus.MustRegister(BroadcastPrunedTotal)
}
