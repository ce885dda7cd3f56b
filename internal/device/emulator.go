package device

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ensure interface compliance
var _ Allocator = (*Emulator)(nil)
var _ LinearStore = (*DeviceBuffer)(nil)
var _ ImageStore = (*Image)(nil)

const (
	// DefaultRowPitchAlign is the image row alignment in bytes.
	DefaultRowPitchAlign = 64
	// DefaultMaxImageExtent bounds image width and height in texels.
	DefaultMaxImageExtent = 16384
)

// EmulatorConfig configures an Emulator.
type EmulatorConfig struct {
	// Name is reported by Allocator.Name. Defaults to "emulator".
	Name string
	// RowPitchAlign is the byte alignment of image rows. Defaults to DefaultRowPitchAlign.
	RowPitchAlign int
	// MaxImageExtent limits image width and height. Defaults to DefaultMaxImageExtent.
	MaxImageExtent int
}

// EmulatorStats is a point-in-time view of emulator activity.
type EmulatorStats struct {
	AllocatedBytes int64
	Buffers        int64
	Images         int64
	Syncs          int64
}

// Emulator is an in-process device runtime. Its stores keep their contents
// in device memory that host code can only reach through Map, which copies
// device memory into a host staging area; Unmap writes it back.
//
// Emulator is safe for concurrent use.
type Emulator struct {
	cfg EmulatorConfig

	allocated atomic.Int64
	buffers   atomic.Int64
	images    atomic.Int64
	syncs     atomic.Int64
}

// NewEmulator creates an emulated device.
func NewEmulator(cfg EmulatorConfig) *Emulator {
	if cfg.Name == "" {
		cfg.Name = "emulator"
	}
	if cfg.RowPitchAlign <= 0 {
		cfg.RowPitchAlign = DefaultRowPitchAlign
	}
	if cfg.MaxImageExtent <= 0 {
		cfg.MaxImageExtent = DefaultMaxImageExtent
	}
	return &Emulator{cfg: cfg}
}

func (e *Emulator) Name() string {
	return e.cfg.Name
}

// Synchronize blocks until all queued device work is complete.
// The emulator executes nothing asynchronously, so it only records the barrier.
func (e *Emulator) Synchronize() {
	e.syncs.Add(1)
}

// Stats returns current counters.
func (e *Emulator) Stats() EmulatorStats {
	return EmulatorStats{
		AllocatedBytes: e.allocated.Load(),
		Buffers:        e.buffers.Load(),
		Images:         e.images.Load(),
		Syncs:          e.syncs.Load(),
	}
}

func (e *Emulator) NewBuffer(size int) (LinearStore, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	b := &DeviceBuffer{}
	b.init(e, KindLinear, size)
	e.buffers.Add(1)
	return b, nil
}

func (e *Emulator) NewImage(shape ImageShape, dtype DataType) (ImageStore, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDataType, dtype)
	}
	if shape.Empty() {
		return nil, fmt.Errorf("%w: image %s", ErrInvalidSize, shape)
	}
	if shape.Width > e.cfg.MaxImageExtent || shape.Height > e.cfg.MaxImageExtent {
		return nil, fmt.Errorf("%w: %s > %d", ErrImageTooLarge, shape, e.cfg.MaxImageExtent)
	}
	rowBytes := shape.Width * TexelChannels * dtype.Size()
	pitch := alignUp(rowBytes, e.cfg.RowPitchAlign)
	img := &Image{shape: shape, dtype: dtype, rowPitch: pitch}
	img.init(e, KindImage, pitch*shape.Height)
	e.images.Add(1)
	return img, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

// deviceMemory is the shared map/unmap machinery of emulated stores.
// Mapping is reference counted: the first Map stages device memory to host,
// the last Unmap writes the staging area back.
type deviceMemory struct {
	emu  *Emulator
	kind Kind

	mu       sync.Mutex
	mem      []byte
	staging  []byte
	depth    int
	released bool
}

func (m *deviceMemory) init(e *Emulator, kind Kind, size int) {
	m.emu = e
	m.kind = kind
	m.mem = make([]byte, size)
	e.allocated.Add(int64(size))
	storeBytes.WithLabelValues(kind.String()).Add(float64(size))
}

func (m *deviceMemory) OnHost() bool { return false }

func (m *deviceMemory) Capacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mem)
}

func (m *deviceMemory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staging
}

func (m *deviceMemory) MutableBytes() []byte {
	return m.Bytes()
}

// MapDepth returns the number of outstanding mappings.
func (m *deviceMemory) MapDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth
}

func (m *deviceMemory) mapIn() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return ErrReleased
	}
	if m.depth == 0 {
		m.emu.Synchronize()
		m.staging = make([]byte, len(m.mem))
		copy(m.staging, m.mem)
	}
	m.depth++
	return nil
}

func (m *deviceMemory) Unmap() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.depth == 0 {
		return ErrNotMapped
	}
	m.depth--
	if m.depth == 0 {
		if !m.released {
			copy(m.mem, m.staging)
			m.emu.Synchronize()
		}
		m.staging = nil
	}
	return nil
}

func (m *deviceMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.mem)
	clear(m.staging)
}

func (m *deviceMemory) grow(size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return ErrReleased
	}
	if size <= len(m.mem) {
		return nil
	}
	if m.depth > 0 {
		return ErrMapped
	}
	mem := make([]byte, size)
	copy(mem, m.mem)
	delta := size - len(m.mem)
	m.mem = mem
	m.emu.allocated.Add(int64(delta))
	storeBytes.WithLabelValues(m.kind.String()).Add(float64(delta))
	return nil
}

func (m *deviceMemory) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return ErrReleased
	}
	m.released = true
	n := len(m.mem)
	m.emu.allocated.Add(-int64(n))
	storeBytes.WithLabelValues(m.kind.String()).Sub(float64(n))
	switch m.kind {
	case KindImage:
		m.emu.images.Add(-1)
	default:
		m.emu.buffers.Add(-1)
	}
	m.mem = nil
	return nil
}

// DeviceBuffer is a linear store resident in emulated device memory.
type DeviceBuffer struct {
	deviceMemory
}

func (b *DeviceBuffer) Kind() Kind  { return KindLinear }
func (b *DeviceBuffer) Offset() int { return 0 }

// Resize grows the buffer keeping its contents. It fails while mapped.
func (b *DeviceBuffer) Resize(size int) error {
	return b.grow(size)
}

func (b *DeviceBuffer) Map() (Pitch, error) {
	if err := b.mapIn(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Image is a 2-D store in emulated device memory. Rows are padded to the
// emulator's pitch alignment, so Capacity is RowPitch*Height.
type Image struct {
	deviceMemory
	shape    ImageShape
	dtype    DataType
	rowPitch int
}

func (i *Image) Kind() Kind             { return KindImage }
func (i *Image) ImageShape() ImageShape { return i.shape }
func (i *Image) DataType() DataType     { return i.dtype }
func (i *Image) RowPitch() int          { return i.rowPitch }

// Resize succeeds only when size fits the existing allocation; images are
// recreated, never grown in place.
func (i *Image) Resize(size int) error {
	if size <= i.Capacity() {
		return nil
	}
	return fmt.Errorf("%w: %d > %d", ErrImageResize, size, i.Capacity())
}

func (i *Image) Map() (Pitch, error) {
	if err := i.mapIn(); err != nil {
		return nil, err
	}
	return Pitch{i.rowPitch}, nil
}
