package tensor

import (
	"unsafe"

	"github.com/x448/float16"

	"github.com/23skdu/longbow-tensor/internal/device"
)

// Copy makes t a byte-for-byte copy of other: same dtype, same shape and the
// same representation. Both stores are mapped for the duration of the copy.
func (t *Tensor) Copy(other *Tensor) {
	t.check(other != nil, ErrNoStore, "copy from a nil tensor")
	t.check(other.HasStore(), ErrNoStore, "copy from a tensor without a store")
	t.SetDtype(other.dtype)
	t.ResizeLike(other)

	src := NewMappingGuard(other)
	defer t.unmap(src)
	dst := NewMappingGuard(t)
	defer t.unmap(dst)

	if other.HasImage() {
		t.copyImage(other, dst, src)
		return
	}
	n := other.RawSize()
	from := src.Bytes()
	to := dst.Bytes()
	t.check(len(from) >= n && len(to) >= n, ErrSizeMismatch,
		"copy %d bytes: src holds %d, dst holds %d", n, len(from), len(to))
	copy(to[:n], from[:n])
	copiedBytesTotal.Add(float64(n))
}

// copyImage copies the logical image rows, honoring each side's row pitch.
func (t *Tensor) copyImage(other *Tensor, dst, src *MappingGuard) {
	shape := other.imageShape
	rowBytes := shape.Width * device.TexelChannels * t.SizeOfType()
	srcPitch := rowPitch(src.Pitch(), rowBytes)
	dstPitch := rowPitch(dst.Pitch(), rowBytes)

	from := src.Bytes()
	to := dst.Bytes()
	need := func(pitch int) int {
		if shape.Height == 0 {
			return 0
		}
		return (shape.Height-1)*pitch + rowBytes
	}
	t.check(len(from) >= need(srcPitch) && len(to) >= need(dstPitch), ErrSizeMismatch,
		"copy image %s: src holds %d bytes, dst holds %d", shape, len(from), len(to))

	for y := 0; y < shape.Height; y++ {
		copy(to[y*dstPitch:y*dstPitch+rowBytes], from[y*srcPitch:y*srcPitch+rowBytes])
	}
	copiedBytesTotal.Add(float64(rowBytes * shape.Height))
}

func rowPitch(p device.Pitch, fallback int) int {
	if len(p) > 0 && p[0] > 0 {
		return p[0]
	}
	return fallback
}

// CopyBytes copies src into the start of the store. len(src) must not exceed
// RawSize.
func (t *Tensor) CopyBytes(src []byte) {
	t.check(t.HasStore(), ErrNoStore, "copy %d bytes without a store", len(src))
	t.check(len(src) <= t.RawSize(), ErrCapacityExceeded,
		"copy %d bytes into a tensor of %d bytes", len(src), t.RawSize())
	g := NewMappingGuard(t)
	defer t.unmap(g)
	dst := g.Bytes()
	t.check(len(src) <= len(dst), ErrCapacityExceeded,
		"copy %d bytes into a store of %d bytes", len(src), len(dst))
	copy(dst, src)
	copiedBytesTotal.Add(float64(len(src)))
}

// Element is the set of Go types with a fixed-width DataType counterpart.
type Element interface {
	float16.Float16 | float32 | float64 | int8 | int16 | int32 | int64 | uint8 | uint16 | bool
}

// DataTypeOf returns the DataType matching T.
func DataTypeOf[T Element]() device.DataType {
	var zero T
	switch any(zero).(type) {
	case float16.Float16:
		return device.Float16
	case float32:
		return device.Float32
	case float64:
		return device.Float64
	case int8:
		return device.Int8
	case int16:
		return device.Int16
	case int32:
		return device.Int32
	case int64:
		return device.Int64
	case uint8:
		return device.Uint8
	case uint16:
		return device.Uint16
	case bool:
		return device.Bool
	}
	return device.Invalid
}

// CopyFrom writes src into t. T must match t's dtype and src must hold
// exactly Size elements.
func CopyFrom[T Element](t *Tensor, src []T) {
	want := DataTypeOf[T]()
	t.check(want == t.dtype, ErrTypeMismatch, "copy %s elements into %s tensor", want, t.dtype)
	t.check(len(src) == t.Size(), ErrSizeMismatch,
		"copy %d elements into a tensor of %d", len(src), t.Size())
	if len(src) == 0 {
		return
	}
	t.CopyBytes(asBytes(src))
}

// View reinterprets the region mapped by g as elements of T. For linear
// tensors the view covers Size elements; for images it covers the whole
// mapped region including row padding. The view is valid until g is closed.
func View[T Element](t *Tensor, g *MappingGuard) []T {
	want := DataTypeOf[T]()
	t.check(want == t.dtype, ErrTypeMismatch, "view %s tensor as %s", t.dtype, want)
	raw := g.Bytes()
	if len(raw) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(*new(T)))
	n := len(raw) / size
	if !t.HasImage() {
		t.check(t.Size() <= n, ErrCapacityExceeded,
			"view of %d elements over %d mapped bytes", t.Size(), len(raw))
		n = t.Size()
	}
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), n)
}

func asBytes[T Element](s []T) []byte {
	size := int(unsafe.Sizeof(s[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*size)
}
