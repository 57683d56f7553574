package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_events_total",
			Help: "Events fetched from stream partitions by binding",
		},
		[]string{"binding"},
	)

	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_invocations_total",
			Help: "Function invocations by binding and outcome",
		},
		[]string{"binding", "status"}, // succeeded|failed|skipped
	)

	OwnedPartitions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamgate_owned_partitions",
			Help: "Partitions currently leased by this host, by binding",
		},
		[]string{"binding"},
	)

	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamgate_dispatch_batch_size",
			Help:    "Events per dispatched batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"binding"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		InvocationsTotal,
		OwnedPartitions,
		BatchSize,
	)
}
