package device

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
)

var _ Allocator = (*BufferPool)(nil)

// Default pool limits.
const (
	DefaultBucketReach    = 2
	DefaultMaxPooledBytes = 256 << 20
)

// PoolConfig configures a BufferPool.
type PoolConfig struct {
	// BucketReach is how many buckets above the requested one a lookup may
	// search. Defaults to DefaultBucketReach.
	BucketReach int
	// MaxPooledBytes caps the bytes kept for reuse; buffers returned beyond the
	// cap are released to the inner allocator. Defaults to DefaultMaxPooledBytes.
	MaxPooledBytes int
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	Hits          uint64
	Misses        uint64
	PooledBuffers int
	PooledBytes   int
}

// BufferPool recycles linear stores from an inner allocator. Buffers are
// grouped in log2 size buckets; releasing a pooled buffer returns it to its
// bucket instead of freeing it. Images are not pooled.
//
// BufferPool is safe for concurrent use.
type BufferPool struct {
	inner Allocator
	cfg   PoolConfig

	mu          sync.Mutex
	buckets     map[int][]LinearStore
	pooledBytes int
	pooledCount int
	hits        uint64
	misses      uint64
	closed      bool
}

// NewBufferPool creates a pool over inner.
func NewBufferPool(inner Allocator, cfg PoolConfig) *BufferPool {
	if cfg.BucketReach <= 0 {
		cfg.BucketReach = DefaultBucketReach
	}
	if cfg.MaxPooledBytes <= 0 {
		cfg.MaxPooledBytes = DefaultMaxPooledBytes
	}
	return &BufferPool{
		inner:   inner,
		cfg:     cfg,
		buckets: make(map[int][]LinearStore),
	}
}

func getBucket(size int) int {
	if size <= 0 {
		return 0
	}
	// 2 bytes -> bucket 1, 3-4 bytes -> bucket 2, 5-8 bytes -> bucket 3, ...
	return int(math.Ceil(math.Log2(float64(size))))
}

func (p *BufferPool) Name() string {
	return fmt.Sprintf("pool(%s)", p.inner.Name())
}

// NewBuffer returns the smallest pooled buffer of at least size bytes, zeroed,
// or allocates a new one.
func (p *BufferPool) NewBuffer(size int) (LinearStore, error) {
	if buf := p.take(size); buf != nil {
		buf.Clear()
		return &pooledBuffer{LinearStore: buf, pool: p}, nil
	}
	buf, err := p.inner.NewBuffer(size)
	if err != nil {
		return nil, err
	}
	return &pooledBuffer{LinearStore: buf, pool: p}, nil
}

func (p *BufferPool) NewImage(shape ImageShape, dtype DataType) (ImageStore, error) {
	return p.inner.NewImage(shape, dtype)
}

func (p *BufferPool) take(size int) LinearStore {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := getBucket(size)
	for i := bucket; i <= bucket+p.cfg.BucketReach; i++ {
		list := p.buckets[i]
		bestIdx := -1
		for idx, entry := range list {
			if entry.Capacity() >= size {
				if bestIdx == -1 || entry.Capacity() < list[bestIdx].Capacity() {
					bestIdx = idx
				}
			}
		}
		if bestIdx != -1 {
			buf := list[bestIdx]
			p.buckets[i] = append(list[:bestIdx], list[bestIdx+1:]...)
			p.hits++
			p.pooledBytes -= buf.Capacity()
			p.pooledCount--

			poolHits.Inc()
			poolSizeBytes.Sub(float64(buf.Capacity()))
			poolBuffers.Dec()
			return buf
		}
	}

	p.misses++
	poolMisses.Inc()
	return nil
}

func (p *BufferPool) put(buf LinearStore) error {
	p.mu.Lock()
	size := buf.Capacity()
	if p.closed || p.pooledBytes+size > p.cfg.MaxPooledBytes {
		p.mu.Unlock()
		return buf.Release()
	}
	bucket := getBucket(size)
	p.buckets[bucket] = append(p.buckets[bucket], buf)
	p.pooledBytes += size
	p.pooledCount++
	p.mu.Unlock()

	poolSizeBytes.Add(float64(size))
	poolBuffers.Inc()
	return nil
}

// Stats returns pool statistics.
func (p *BufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Hits:          p.hits,
		Misses:        p.misses,
		PooledBuffers: p.pooledCount,
		PooledBytes:   p.pooledBytes,
	}
}

// Close releases every pooled buffer. Buffers released afterwards bypass the pool.
func (p *BufferPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for bucket, list := range p.buckets {
		for _, buf := range list {
			poolSizeBytes.Sub(float64(buf.Capacity()))
			poolBuffers.Dec()
			if err := buf.Release(); err != nil {
				log.Warn().Err(err).Int("bucket", bucket).Msg("Failed to release pooled buffer")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	p.buckets = make(map[int][]LinearStore)
	p.pooledBytes = 0
	p.pooledCount = 0
	p.closed = true
	return firstErr
}

// pooledBuffer hands its storage back to the pool on Release.
type pooledBuffer struct {
	LinearStore
	pool     *BufferPool
	released bool
}

func (b *pooledBuffer) Release() error {
	if b.released {
		return ErrReleased
	}
	b.released = true
	return b.pool.put(b.LinearStore)
}
