package device

import (
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ensure interface compliance
var _ Allocator = (*HostAllocator)(nil)
var _ LinearStore = (*HostBuffer)(nil)

// HostAllocator hands out host memory from an arrow allocator.
type HostAllocator struct {
	mem memory.Allocator
}

// NewHostAllocator wraps mem. A nil mem uses the Go allocator.
func NewHostAllocator(mem memory.Allocator) *HostAllocator {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &HostAllocator{mem: mem}
}

var (
	defaultHostOnce sync.Once
	defaultHost     *HostAllocator
)

// DefaultAllocator returns the process-wide host allocator.
func DefaultAllocator() *HostAllocator {
	defaultHostOnce.Do(func() {
		defaultHost = NewHostAllocator(memory.DefaultAllocator)
	})
	return defaultHost
}

func (a *HostAllocator) Name() string {
	return "host"
}

func (a *HostAllocator) NewBuffer(size int) (LinearStore, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	b := &HostBuffer{mem: a.mem, data: a.mem.Allocate(size)}
	storeBytes.WithLabelValues(KindLinear.String()).Add(float64(size))
	return b, nil
}

// NewImage always fails: images only exist on a device.
func (a *HostAllocator) NewImage(shape ImageShape, dtype DataType) (ImageStore, error) {
	return nil, fmt.Errorf("%w: %s", ErrImageUnsupported, a.Name())
}

// HostBuffer is a linear store in host memory. Map and Unmap are no-ops.
type HostBuffer struct {
	mem      memory.Allocator
	data     []byte
	released bool
}

func (b *HostBuffer) Kind() Kind    { return KindLinear }
func (b *HostBuffer) Capacity() int { return len(b.data) }
func (b *HostBuffer) OnHost() bool  { return true }
func (b *HostBuffer) Offset() int   { return 0 }

func (b *HostBuffer) Bytes() []byte        { return b.data }
func (b *HostBuffer) MutableBytes() []byte { return b.data }

// Resize grows the buffer, keeping its contents. Shrinking is a no-op.
func (b *HostBuffer) Resize(size int) error {
	if b.released {
		return ErrReleased
	}
	if size <= len(b.data) {
		return nil
	}
	old := len(b.data)
	b.data = b.mem.Reallocate(size, b.data)
	storeBytes.WithLabelValues(KindLinear.String()).Add(float64(size - old))
	return nil
}

func (b *HostBuffer) Map() (Pitch, error) {
	if b.released {
		return nil, ErrReleased
	}
	return nil, nil
}

func (b *HostBuffer) Unmap() error {
	return nil
}

func (b *HostBuffer) Clear() {
	clear(b.data)
}

func (b *HostBuffer) Release() error {
	if b.released {
		return ErrReleased
	}
	b.released = true
	storeBytes.WithLabelValues(KindLinear.String()).Sub(float64(len(b.data)))
	b.mem.Free(b.data)
	b.data = nil
	return nil
}
