package tensor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mapOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensorcore_map_total",
			Help: "Number of store map operations",
		},
		[]string{"residency"},
	)

	unmapOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensorcore_unmap_total",
			Help: "Number of store unmap operations",
		},
		[]string{"residency"},
	)

	mapDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tensorcore_map_duration_seconds",
			Help:    "Time a store stays mapped",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)

	copiedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tensorcore_copied_bytes_total",
			Help: "Bytes copied between tensors",
		},
	)
)

func residency(onHost bool) string {
	if onHost {
		return "host"
	}
	return "device"
}
