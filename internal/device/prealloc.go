package device

import (
	"errors"
	"fmt"
	"sync"
)

// PreallocatedPool holds buffers planned ahead of execution, keyed by memory
// id. Tensors alias sub-ranges of them through Slices and never own them; the
// pool releases everything on Close.
//
// PreallocatedPool is safe for concurrent use.
type PreallocatedPool struct {
	mu      sync.RWMutex
	buffers map[int]LinearStore
}

func NewPreallocatedPool() *PreallocatedPool {
	return &PreallocatedPool{
		buffers: make(map[int]LinearStore),
	}
}

// SetBuffer hands buf to the pool under memID. A buffer already registered
// under memID is released.
func (p *PreallocatedPool) SetBuffer(memID int, buf LinearStore) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.buffers[memID]; ok && old != buf {
		if err := old.Release(); err != nil {
			return fmt.Errorf("release buffer %d: %w", memID, err)
		}
	}
	p.buffers[memID] = buf
	return nil
}

// Buffer returns the buffer registered under memID.
func (p *PreallocatedPool) Buffer(memID int) (LinearStore, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	buf, ok := p.buffers[memID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMemID, memID)
	}
	return buf, nil
}

func (p *PreallocatedPool) HasBuffer(memID int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.buffers[memID]
	return ok
}

// Slice returns a window over the buffer registered under memID.
func (p *PreallocatedPool) Slice(memID, offset, length int) (*Slice, error) {
	buf, err := p.Buffer(memID)
	if err != nil {
		return nil, err
	}
	return NewSlice(buf, offset, length)
}

// Size returns the number of registered buffers.
func (p *PreallocatedPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.buffers)
}

// Close releases all registered buffers.
func (p *PreallocatedPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for id, buf := range p.buffers {
		if err := buf.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release buffer %d: %w", id, err))
		}
	}
	p.buffers = make(map[int]LinearStore)
	return errors.Join(errs...)
}
