package device

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostBuffer_Lifecycle(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	alloc := NewHostAllocator(mem)
	buf, err := alloc.NewBuffer(16)
	require.NoError(t, err)
	assert.Equal(t, KindLinear, buf.Kind())
	assert.True(t, buf.OnHost())
	assert.Equal(t, 16, buf.Capacity())

	pitch, err := buf.Map()
	require.NoError(t, err)
	assert.Nil(t, pitch)
	copy(buf.MutableBytes(), []byte{1, 2, 3})
	require.NoError(t, buf.Unmap())

	require.NoError(t, buf.Resize(128))
	assert.Equal(t, 128, buf.Capacity())
	assert.Equal(t, []byte{1, 2, 3}, buf.Bytes()[:3])

	require.NoError(t, buf.Resize(8))
	assert.Equal(t, 128, buf.Capacity(), "shrinking keeps the allocation")

	buf.Clear()
	assert.Equal(t, make([]byte, 128), buf.Bytes())

	require.NoError(t, buf.Release())
	assert.ErrorIs(t, buf.Release(), ErrReleased)
	_, err = buf.Map()
	assert.ErrorIs(t, err, ErrReleased)
}

func TestHostAllocator_Images(t *testing.T) {
	_, err := NewHostAllocator(nil).NewImage(ImageShape{Width: 1, Height: 1}, Float32)
	assert.ErrorIs(t, err, ErrImageUnsupported)

	_, err = DefaultAllocator().NewBuffer(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
	assert.Same(t, DefaultAllocator(), DefaultAllocator())
}
