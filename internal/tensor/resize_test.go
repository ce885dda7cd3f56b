package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-tensor/internal/device"
)

func TestResize_OwnedGrowsInPlace(t *testing.T) {
	emu := device.NewEmulator(device.EmulatorConfig{})
	tt := New(emu, device.Float32)
	defer tt.Release()

	tt.Resize(Shape{4})
	assert.True(t, tt.HasDeviceBuffer())
	store := tt.UnderlyingStore()
	CopyFrom(tt, []float32{1, 2, 3, 4})

	tt.Resize(Shape{2})
	assert.Equal(t, 16+ExtraBufferPadSize, tt.Capacity(), "shrinking keeps the store")

	tt.Resize(Shape{64})
	assert.Same(t, store, tt.UnderlyingStore())
	assert.Equal(t, 256+ExtraBufferPadSize, tt.Capacity())

	g := NewMappingGuard(tt)
	assert.Equal(t, []float32{1, 2, 3, 4}, View[float32](tt, g)[:4], "growth keeps contents")
	require.NoError(t, g.Close())
	assert.Equal(t, int64(1), emu.Stats().Buffers)
}

func TestResize_Fatal(t *testing.T) {
	requireFatal(t, ErrNoAllocator, func() { New(nil, device.Float32).Resize(Shape{1}) })
	requireFatal(t, ErrNotOwner, func() { NewWithStore(nil, device.Float32).Resize(Shape{1}) })
	requireFatal(t, ErrInvalidShape, func() { NewHost().Resize(Shape{2, -1}) })
	requireFatal(t, ErrTypeNotSet, func() { New(device.NewHostAllocator(nil), device.Invalid).Resize(Shape{1}) })
}

func TestResize_ImageBackedIsFatal(t *testing.T) {
	tt := New(device.NewEmulator(device.EmulatorConfig{}), device.Float32)
	defer tt.Release()
	tt.ResizeImage(Shape{1, 2, 2, 4}, device.ChannelImageShape([]int{1, 2, 2, 4}))

	requireFatal(t, ErrImageBacked, func() { tt.Resize(Shape{16}) })
	assert.True(t, tt.HasImage())
}

func TestResizeWithBuffer(t *testing.T) {
	alloc := device.NewHostAllocator(nil)
	tt := New(alloc, device.Float32)
	tt.Resize(Shape{8})
	owned := tt.UnderlyingStore()

	ext, err := alloc.NewBuffer(32)
	require.NoError(t, err)
	defer ext.Release()

	tt.ResizeWithBuffer(Shape{2, 4}, ext)
	assert.Same(t, ext, tt.UnderlyingStore())
	assert.Equal(t, Borrowed, tt.Ownership())
	assert.ErrorIs(t, owned.Release(), device.ErrReleased, "previous owned store was freed")

	tt.ResizeWithBuffer(Shape{8}, ext)
	assert.Equal(t, Shape{8}, tt.Shape())

	requireFatal(t, ErrCapacityExceeded, func() { tt.ResizeWithBuffer(Shape{9}, ext) })
	requireFatal(t, ErrNoStore, func() { tt.ResizeWithBuffer(Shape{1}, nil) })

	tt.Release()
	assert.Equal(t, 32, ext.Capacity(), "borrowed store survives release")
}

func TestResizeWithBuffer_ImageBackedIsFatal(t *testing.T) {
	tt := New(device.NewEmulator(device.EmulatorConfig{}), device.Float16)
	defer tt.Release()
	tt.ResizeImage(Shape{1, 1, 1, 4}, device.ImageShape{Width: 1, Height: 1})

	buf, err := device.NewHostAllocator(nil).NewBuffer(64)
	require.NoError(t, err)
	defer buf.Release()
	requireFatal(t, ErrImageBacked, func() { tt.ResizeWithBuffer(Shape{4}, buf) })
}

func TestResizeImage_ShrinkOnly(t *testing.T) {
	emu := device.NewEmulator(device.EmulatorConfig{})
	tt := New(emu, device.Float32)
	defer tt.Release()

	tt.ResizeImage(Shape{1, 4, 4, 8}, device.ImageShape{Width: 8, Height: 4})
	img := tt.UnderlyingStore()
	assert.Equal(t, device.ImageShape{Width: 8, Height: 4}, tt.PhysicalImageShape())

	tt.ResizeImage(Shape{1, 2, 2, 8}, device.ImageShape{Width: 4, Height: 2})
	assert.Same(t, img, tt.UnderlyingStore())
	assert.Equal(t, device.ImageShape{Width: 4, Height: 2}, tt.ImageShape())
	assert.Equal(t, device.ImageShape{Width: 8, Height: 4}, tt.PhysicalImageShape())

	ie := requireFatal(t, ErrImageTooSmall, func() {
		tt.ResizeImage(Shape{1, 4, 5, 8}, device.ImageShape{Width: 10, Height: 4})
	})
	assert.Equal(t, "current physical image shape: 8, 4 < logical image shape: 10, 4", ie.Detail)
	assert.Equal(t, int64(1), emu.Stats().Images)
}

func TestResizeImage_Fatal(t *testing.T) {
	linear := NewHost()
	defer linear.Release()
	linear.Resize(Shape{4})
	requireFatal(t, ErrNotImage, func() {
		linear.ResizeImage(Shape{1, 1, 1, 4}, device.ImageShape{Width: 1, Height: 1})
	})

	host := NewHost()
	requireFatal(t, ErrStore, func() {
		host.ResizeImage(Shape{1, 1, 1, 4}, device.ImageShape{Width: 1, Height: 1})
	})
}

func TestResizeLike(t *testing.T) {
	emu := device.NewEmulator(device.EmulatorConfig{})

	img := New(emu, device.Float32)
	defer img.Release()
	img.ResizeImage(Shape{1, 2, 3, 4}, device.ImageShape{Width: 3, Height: 2})

	lin := New(emu, device.Float32)
	defer lin.Release()
	lin.Resize(Shape{5})

	tt := New(emu, device.Float32)
	defer tt.Release()

	tt.ResizeLike(lin)
	assert.Equal(t, Shape{5}, tt.Shape())
	assert.True(t, tt.HasDeviceBuffer())

	tt.ResizeLike(img)
	assert.True(t, tt.HasImage())
	assert.Equal(t, Shape{1, 2, 3, 4}, tt.Shape())
	assert.Equal(t, device.ImageShape{Width: 3, Height: 2}, tt.ImageShape())

	tt.ResizeLike(lin)
	assert.False(t, tt.HasImage())
	assert.Equal(t, Shape{5}, tt.Shape())
	assert.Equal(t, int64(1), emu.Stats().Images, "owned image was freed when switching back")
}

func TestClear(t *testing.T) {
	tt := New(device.NewEmulator(device.EmulatorConfig{}), device.Int8)
	defer tt.Release()
	tt.Resize(Shape{3})
	CopyFrom(tt, []int8{1, -2, 3})

	tt.Clear()
	g := NewMappingGuard(tt)
	defer g.Close()
	assert.Equal(t, []int8{0, 0, 0}, View[int8](tt, g))

	requireFatal(t, ErrNoStore, func() { NewHost().Clear() })
}

func TestResize_SameShapeKeepsStore(t *testing.T) {
	tt := New(device.NewEmulator(device.EmulatorConfig{}), device.Float32)
	defer tt.Release()

	tt.Resize(Shape{3, 5})
	store := tt.UnderlyingStore()
	capacity := tt.Capacity()

	tt.Resize(Shape{3, 5})
	assert.Same(t, store, tt.UnderlyingStore())
	assert.Equal(t, capacity, tt.Capacity())
	assert.Equal(t, Shape{3, 5}, tt.Shape())
}

func TestResize_OverflowingShapes(t *testing.T) {
	tt := New(device.NewHostAllocator(nil), device.Float32)
	defer tt.Release()
	tt.Resize(Shape{2, 3})

	for _, s := range []Shape{{1 << 32, 1 << 32}, {1 << 62, 3}, {1 << 62}} {
		requireFatal(t, ErrInvalidShape, func() { tt.Reshape(s) })
		requireFatal(t, ErrInvalidShape, func() { tt.Resize(s) })
	}
	assert.Equal(t, Shape{2, 3}, tt.Shape())
	assert.Equal(t, 24, tt.RawSize())

	buf, err := device.NewHostAllocator(nil).NewBuffer(64)
	require.NoError(t, err)
	defer buf.Release()
	requireFatal(t, ErrInvalidShape, func() { NewHost().ResizeWithBuffer(Shape{1 << 62, 4}, buf) })

	// A zero extent makes the product zero whatever the other extents are.
	tt.Reshape(Shape{1 << 62, 1 << 62, 0})
	assert.Equal(t, 0, tt.Size())
}

func TestResizeImage_UnsetType(t *testing.T) {
	tt := New(device.NewEmulator(device.EmulatorConfig{}), device.Invalid)
	requireFatal(t, ErrTypeNotSet, func() {
		tt.ResizeImage(Shape{1, 1, 1, 4}, device.ImageShape{Width: 1, Height: 1})
	})
	assert.False(t, tt.HasStore())
}
