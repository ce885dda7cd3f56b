// Package tensor provides a typed, shape-aware view over a host buffer, a
// slice of a pooled allocation, or a device image.
//
// A Tensor owns or borrows exactly one store at a time. Operations that would
// leave it inconsistent (reading past capacity, growing a borrowed store,
// shrinking a device image, an unset dtype) panic with an *InvariantError.
// Tensors hold no lock; callers serialize access to a shared Tensor.
package tensor

import (
	"github.com/23skdu/longbow-tensor/internal/device"
)

// ExtraBufferPadSize is reserved past the end of every linear allocation so
// vectorized kernels may over-read the tail.
const ExtraBufferPadSize = 64

// Tensor is a shape and dtype over a single backing store.
type Tensor struct {
	alloc      device.Allocator
	dtype      device.DataType
	shape      Shape
	imageShape device.ImageShape
	handle     storeHandle
	label      string
}

// New creates a tensor whose store is allocated from alloc on first resize.
func New(alloc device.Allocator, dtype device.DataType) *Tensor {
	return &Tensor{
		alloc:  alloc,
		dtype:  dtype,
		handle: storeHandle{own: Owned},
	}
}

// NewHost creates a float32 tensor on the default host allocator.
func NewHost() *Tensor {
	return New(device.DefaultAllocator(), device.Float32)
}

// NewWithStore creates a tensor over an existing store it will never free.
func NewWithStore(store device.Store, dtype device.DataType) *Tensor {
	t := &Tensor{dtype: dtype}
	t.bind(store, Borrowed)
	return t
}

// NewFromSlice creates a tensor aliasing a slice of a larger allocation.
func NewFromSlice(slice *device.Slice, dtype device.DataType) *Tensor {
	if slice == nil {
		return NewWithStore(nil, dtype)
	}
	return NewWithStore(slice, dtype)
}

// Release frees the store if the tensor owns it and detaches it either way.
// Calling Release more than once is safe.
func (t *Tensor) Release() {
	t.dropStore()
}

func (t *Tensor) DType() device.DataType { return t.dtype }

// SetDtype changes the element type. Resident bytes are not reinterpreted;
// the new type only affects later sizing.
func (t *Tensor) SetDtype(dtype device.DataType) { t.dtype = dtype }

// Shape returns a copy of the logical shape.
func (t *Tensor) Shape() Shape { return t.shape.Clone() }

// DimSize returns the rank.
func (t *Tensor) DimSize() int { return len(t.shape) }

// Dim returns the extent of dimension index.
func (t *Tensor) Dim(index int) int {
	t.check(index >= 0 && index < len(t.shape), ErrDimOutOfRange,
		"dim out of range: %d >= %d", index, len(t.shape))
	return t.shape[index]
}

// Size returns the number of elements.
func (t *Tensor) Size() int { return t.shape.NumElements() }

// RawSize returns the number of bytes the logical shape occupies.
func (t *Tensor) RawSize() int { return t.Size() * t.SizeOfType() }

// SizeOfType returns the element size of the current dtype.
func (t *Tensor) SizeOfType() int {
	switch {
	case t.dtype == device.Invalid:
		t.fatal(ErrTypeNotSet, "type not set")
	case !t.dtype.Valid():
		t.fatal(ErrUnexpectedType, "unexpected type: %d", int(t.dtype))
	}
	return t.dtype.Size()
}

// Ownership reports whether the tensor frees its store.
func (t *Tensor) Ownership() Ownership { return t.handle.own }

// HasStore reports whether a store is attached.
func (t *Tensor) HasStore() bool { return !t.handle.empty() }

// HasImage reports whether the tensor is backed by a device image.
func (t *Tensor) HasImage() bool { return t.handle.image != nil }

// HasDeviceBuffer reports whether the tensor is backed by linear device memory.
func (t *Tensor) HasDeviceBuffer() bool {
	return t.handle.linear != nil && !t.handle.linear.OnHost()
}

// OnHost reports whether the store is host resident. False without a store.
func (t *Tensor) OnHost() bool {
	s := t.handle.store()
	return s != nil && s.OnHost()
}

// ImageShape returns the logical image extents requested by ResizeImage.
func (t *Tensor) ImageShape() device.ImageShape { return t.imageShape }

// PhysicalImageShape returns the extents of the allocated image, or the zero
// shape when the tensor is not image backed.
func (t *Tensor) PhysicalImageShape() device.ImageShape {
	if t.handle.image == nil {
		return device.ImageShape{}
	}
	return t.handle.image.ImageShape()
}

// Capacity returns the store capacity in bytes, zero without a store.
func (t *Tensor) Capacity() int {
	s := t.handle.store()
	if s == nil {
		return 0
	}
	return s.Capacity()
}

// BufferOffset returns the offset of the store within its root allocation.
func (t *Tensor) BufferOffset() int {
	t.check(t.handle.linear != nil, ErrNoStore, "buffer offset needs a linear store")
	return t.handle.linear.Offset()
}

// UnderlyingStore exposes the store for device-specific access.
func (t *Tensor) UnderlyingStore() device.Store { return t.handle.store() }

// Allocator returns the allocator the tensor creates stores from, if any.
func (t *Tensor) Allocator() device.Allocator { return t.alloc }

func (t *Tensor) Label() string { return t.label }

// SetLabel names the stage that produced the tensor, for diagnostics.
func (t *Tensor) SetLabel(label string) { t.label = label }

// RawData returns the store bytes. Device stores must be mapped first.
func (t *Tensor) RawData() []byte {
	s := t.handle.store()
	t.check(s != nil, ErrNoStore, "buffer is null")
	return s.Bytes()
}

// RawMutableData returns the writable store bytes. Device stores must be mapped first.
func (t *Tensor) RawMutableData() []byte {
	s := t.handle.store()
	t.check(s != nil, ErrNoStore, "buffer is null")
	return s.MutableBytes()
}
