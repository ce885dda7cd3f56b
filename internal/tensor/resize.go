package tensor

import (
	"math"

	"github.com/23skdu/longbow-tensor/internal/device"
)

// rawSizeOf validates shape and returns its size in bytes under the current dtype.
func (t *Tensor) rawSizeOf(shape Shape) int {
	if err := shape.Validate(); err != nil {
		t.fatal(ErrInvalidShape, "%v", err)
	}
	raw, err := shape.ByteSize(t.SizeOfType())
	if err != nil {
		t.fatal(ErrInvalidShape, "%v", err)
	}
	return raw
}

// Reshape reinterprets the store with a new logical shape. The store is
// untouched; the shape must fit in its capacity.
func (t *Tensor) Reshape(shape Shape) {
	raw := t.rawSizeOf(shape)
	s := t.handle.store()
	t.check(s != nil, ErrNoStore, "reshape to %v without a store", shape)
	t.check(raw <= s.Capacity(), ErrCapacityExceeded,
		"reshape to %v needs %d bytes, store capacity is %d", shape, raw, s.Capacity())
	t.shape = shape.Clone()
}

// Resize sets the logical shape of a linear tensor. An owned store too small
// for the shape plus ExtraBufferPadSize is grown in place; without a store a
// new one is allocated. Borrowed stores are never grown.
func (t *Tensor) Resize(shape Shape) {
	raw := t.rawSizeOf(shape)
	t.check(raw <= math.MaxInt-ExtraBufferPadSize, ErrInvalidShape,
		"shape %v with padding overflows the byte size", shape)
	need := raw + ExtraBufferPadSize

	switch {
	case t.handle.image != nil:
		t.fatal(ErrImageBacked, "resize to %v", shape)
	case t.handle.linear != nil:
		buf := t.handle.linear
		if t.handle.own == Borrowed {
			t.check(raw <= buf.Capacity(), ErrNotOwner,
				"borrowed store holds %d bytes, %v needs %d", buf.Capacity(), shape, raw)
			break
		}
		if need > buf.Capacity() {
			if err := buf.Resize(need); err != nil {
				t.fatal(ErrStore, "grow store to %d bytes: %v", need, err)
			}
		}
	default:
		t.check(t.handle.own == Owned, ErrNotOwner, "no store to resize to %v", shape)
		t.check(t.alloc != nil, ErrNoAllocator, "no allocator to resize to %v", shape)
		buf, err := t.alloc.NewBuffer(need)
		if err != nil {
			t.fatal(ErrStore, "allocate %d bytes from %s: %v", need, t.alloc.Name(), err)
		}
		t.handle.linear = buf
	}

	t.shape = shape.Clone()
	t.imageShape = device.ImageShape{}
}

// ResizeWithBuffer makes the tensor a non-owning view of store with the given
// shape, releasing any store it owned before.
func (t *Tensor) ResizeWithBuffer(shape Shape, store device.LinearStore) {
	raw := t.rawSizeOf(shape)
	t.check(t.handle.image == nil, ErrImageBacked, "resize to %v with buffer", shape)
	t.check(store != nil, ErrNoStore, "resize to %v with a nil buffer", shape)
	t.check(raw <= store.Capacity(), ErrCapacityExceeded,
		"buffer holds %d bytes, %v needs %d", store.Capacity(), shape, raw)

	// Rebinding to the current store keeps its ownership.
	if store != t.handle.linear {
		t.dropStore()
		t.handle = storeHandle{linear: store, own: Borrowed}
	}
	t.shape = shape.Clone()
	t.imageShape = device.ImageShape{}
}

// ResizeImage sets the logical shape of an image-backed tensor. The first call
// allocates an owned image with extents imageShape. Later calls only succeed
// when imageShape fits inside the allocated image: device images are never
// grown implicitly.
func (t *Tensor) ResizeImage(shape Shape, imageShape device.ImageShape) {
	t.rawSizeOf(shape)

	switch {
	case t.handle.linear != nil:
		t.fatal(ErrNotImage, "resize image to %v", shape)
	case t.handle.image != nil:
		phys := t.handle.image.ImageShape()
		t.check(imageShape.Fits(phys), ErrImageTooSmall,
			"current physical image shape: %d, %d < logical image shape: %d, %d",
			phys.Width, phys.Height, imageShape.Width, imageShape.Height)
	default:
		t.check(t.handle.own == Owned, ErrNotOwner, "no image to resize to %v", shape)
		t.check(t.alloc != nil, ErrNoAllocator, "no allocator to resize image to %v", shape)
		img, err := t.alloc.NewImage(imageShape, t.dtype)
		if err != nil {
			t.fatal(ErrStore, "allocate image %s from %s: %v", imageShape, t.alloc.Name(), err)
		}
		t.handle.image = img
	}

	t.shape = shape.Clone()
	t.imageShape = imageShape
}

// ResizeLike copies other's shape and representation. An owned store of the
// other representation is released first.
func (t *Tensor) ResizeLike(other *Tensor) {
	t.check(other != nil, ErrNoStore, "resize like a nil tensor")
	if other.HasImage() {
		if t.handle.linear != nil && t.handle.own == Owned {
			t.dropStore()
		}
		t.ResizeImage(other.shape, other.imageShape)
		return
	}
	if t.handle.image != nil && t.handle.own == Owned {
		t.dropStore()
	}
	t.Resize(other.shape)
}

// Clear zero-fills the store.
func (t *Tensor) Clear() {
	s := t.handle.store()
	t.check(s != nil, ErrNoStore, "clear without a store")
	s.Clear()
}
