package device

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getMetricValue(m prometheus.Metric) float64 {
	var metric dto.Metric
	m.Write(&metric)
	if metric.Counter != nil {
		return *metric.Counter.Value
	}
	if metric.Gauge != nil {
		return *metric.Gauge.Value
	}
	return 0
}

func TestGetBucket(t *testing.T) {
	assert.Equal(t, 0, getBucket(0))
	assert.Equal(t, 0, getBucket(1))
	assert.Equal(t, 1, getBucket(2))
	assert.Equal(t, 2, getBucket(3))
	assert.Equal(t, 2, getBucket(4))
	assert.Equal(t, 3, getBucket(5))
	assert.Equal(t, 10, getBucket(1024))
	assert.Equal(t, 11, getBucket(1025))
}

func TestBufferPool_Metrics(t *testing.T) {
	pool := NewBufferPool(NewHostAllocator(nil), PoolConfig{})
	defer pool.Close()

	// metrics are global, so track deltas
	startHits := getMetricValue(poolHits)
	startMisses := getMetricValue(poolMisses)

	b1, err := pool.NewBuffer(40000)
	require.NoError(t, err)
	assert.Equal(t, 1.0, getMetricValue(poolMisses)-startMisses)
	copy(b1.MutableBytes(), []byte{7, 7, 7})

	require.NoError(t, b1.Release())
	assert.ErrorIs(t, b1.Release(), ErrReleased)
	assert.Equal(t, PoolStats{Misses: 1, PooledBuffers: 1, PooledBytes: 40000}, pool.Stats())

	b2, err := pool.NewBuffer(40000)
	require.NoError(t, err)
	assert.Equal(t, 1.0, getMetricValue(poolHits)-startHits)
	assert.Equal(t, []byte{0, 0, 0}, b2.Bytes()[:3], "reused buffers are zeroed")
	assert.Equal(t, 0, pool.Stats().PooledBuffers)
	require.NoError(t, b2.Release())
}

func TestBufferPool_BestFit(t *testing.T) {
	pool := NewBufferPool(NewHostAllocator(nil), PoolConfig{BucketReach: 1})
	defer pool.Close()

	small, err := pool.NewBuffer(100)
	require.NoError(t, err)
	large, err := pool.NewBuffer(250)
	require.NoError(t, err)
	require.NoError(t, small.Release())
	require.NoError(t, large.Release())

	// 90 maps to bucket 7 with 100; reach 1 also sees 250 in bucket 8.
	got, err := pool.NewBuffer(90)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Capacity())

	// 1000 is beyond reach of anything pooled.
	miss, err := pool.NewBuffer(1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, miss.Capacity())
	assert.Equal(t, uint64(1), pool.Stats().Hits)

	require.NoError(t, got.Release())
	require.NoError(t, miss.Release())
}

func TestBufferPool_Cap(t *testing.T) {
	inner := NewEmulator(EmulatorConfig{})
	pool := NewBufferPool(inner, PoolConfig{MaxPooledBytes: 128})

	a, err := pool.NewBuffer(100)
	require.NoError(t, err)
	b, err := pool.NewBuffer(100)
	require.NoError(t, err)
	require.NoError(t, a.Release())
	require.NoError(t, b.Release())

	assert.Equal(t, 1, pool.Stats().PooledBuffers)
	assert.Equal(t, int64(1), inner.Stats().Buffers, "buffer over the cap goes back to the device")

	require.NoError(t, pool.Close())
	assert.Equal(t, int64(0), inner.Stats().Buffers)

	c, err := pool.NewBuffer(10)
	require.NoError(t, err)
	require.NoError(t, c.Release())
	assert.Equal(t, int64(0), inner.Stats().Buffers, "closed pool releases immediately")
}

func TestBufferPool_ImagesPassThrough(t *testing.T) {
	pool := NewBufferPool(NewEmulator(EmulatorConfig{Name: "gpu"}), PoolConfig{})
	assert.Equal(t, "pool(gpu)", pool.Name())
	img, err := pool.NewImage(ImageShape{Width: 1, Height: 1}, Float16)
	require.NoError(t, err)
	require.NoError(t, img.Release())
}
