package device

import "errors"

// Kind distinguishes the two mutually exclusive store representations.
type Kind int

const (
	KindLinear Kind = iota
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Store errors.
var (
	ErrReleased         = errors.New("device: store has been released")
	ErrMapped           = errors.New("device: store is mapped")
	ErrNotMapped        = errors.New("device: store is not mapped")
	ErrImageResize      = errors.New("device: image stores cannot be resized")
	ErrSliceResize      = errors.New("device: slice cannot grow beyond its window")
	ErrSliceBounds      = errors.New("device: slice window out of parent bounds")
	ErrImageUnsupported = errors.New("device: allocator cannot create images")
	ErrInvalidSize      = errors.New("device: invalid size")
	ErrUnknownMemID     = errors.New("device: unknown memory id")
	ErrInvalidDataType  = errors.New("device: invalid data type")
	ErrImageTooLarge    = errors.New("device: image extent exceeds device limit")
)

// Pitch is the layout information returned by Map. Linear stores return nil;
// images return {rowPitch} in bytes.
type Pitch []int

// Store is a physical memory region a tensor reads and writes through.
//
// Bytes and MutableBytes are only valid between Map and Unmap for stores that
// are not host resident. Map and Unmap block until the backing device has
// made the region consistent.
type Store interface {
	Kind() Kind
	// Capacity returns the usable size in bytes.
	Capacity() int
	OnHost() bool
	Bytes() []byte
	MutableBytes() []byte
	// Resize grows the store to at least size bytes.
	Resize(size int) error
	Map() (Pitch, error)
	Unmap() error
	// Clear zero-fills the whole store.
	Clear()
	// Release frees the store. Only the owner may call it.
	Release() error
}

// LinearStore is contiguous byte-addressable memory.
type LinearStore interface {
	Store
	// Offset is the start of this store within its parent allocation.
	Offset() int
}

// ImageStore is an opaque 2-D device object. Its physical extents may exceed
// what the tensor logically uses.
type ImageStore interface {
	Store
	ImageShape() ImageShape
	DataType() DataType
	RowPitch() int
}

// Allocator creates owned stores.
type Allocator interface {
	Name() string
	NewBuffer(size int) (LinearStore, error)
	NewImage(shape ImageShape, dtype DataType) (ImageStore, error)
}
