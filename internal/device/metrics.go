package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tensorcore_pool_hits_total",
		Help: "Total number of buffers served from the buffer pool",
	})

	poolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tensorcore_pool_misses_total",
		Help: "Total number of buffer pool misses (allocations)",
	})

	poolSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tensorcore_pool_size_bytes",
		Help: "Current total size of buffers held by the pool in bytes",
	})

	poolBuffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tensorcore_pool_buffers_count",
		Help: "Current number of buffers held by the pool",
	})

	storeBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tensorcore_store_allocated_bytes",
		Help: "Bytes currently allocated by live stores",
	}, []string{"kind"})
)
