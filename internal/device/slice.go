package device

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

var _ LinearStore = (*Slice)(nil)

// Slice is a non-owning window [offset, offset+length) over a parent linear
// store. Mapping a slice maps its parent; releasing a slice is a no-op.
type Slice struct {
	parent LinearStore
	offset int
	length int
}

// NewSlice creates a window over parent. The window must lie within the
// parent's current capacity.
func NewSlice(parent LinearStore, offset, length int) (*Slice, error) {
	if parent == nil {
		return nil, fmt.Errorf("%w: nil parent", ErrSliceBounds)
	}
	if offset < 0 || length < 0 || offset+length > parent.Capacity() {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrSliceBounds, offset, offset+length, parent.Capacity())
	}
	return &Slice{parent: parent, offset: offset, length: length}, nil
}

func (s *Slice) Kind() Kind    { return KindLinear }
func (s *Slice) Capacity() int { return s.length }
func (s *Slice) OnHost() bool  { return s.parent.OnHost() }

// Offset is the absolute offset within the root allocation.
func (s *Slice) Offset() int { return s.parent.Offset() + s.offset }

// Parent returns the store the slice aliases.
func (s *Slice) Parent() LinearStore { return s.parent }

func (s *Slice) Bytes() []byte {
	return s.window(s.parent.Bytes())
}

func (s *Slice) MutableBytes() []byte {
	return s.window(s.parent.MutableBytes())
}

func (s *Slice) window(b []byte) []byte {
	if b == nil {
		return nil
	}
	return b[s.offset : s.offset+s.length : s.offset+s.length]
}

// Resize succeeds only when size fits in the existing window.
func (s *Slice) Resize(size int) error {
	if size > s.length {
		return fmt.Errorf("%w: %d > %d", ErrSliceResize, size, s.length)
	}
	return nil
}

func (s *Slice) Map() (Pitch, error) { return s.parent.Map() }
func (s *Slice) Unmap() error        { return s.parent.Unmap() }

// Clear zero-fills the window only, mapping the parent when it lives off host.
func (s *Slice) Clear() {
	if s.parent.OnHost() {
		clear(s.MutableBytes())
		return
	}
	if _, err := s.parent.Map(); err != nil {
		log.Error().Err(err).Int("offset", s.Offset()).Int("length", s.length).Msg("Failed to map slice parent for clear")
		return
	}
	clear(s.MutableBytes())
	if err := s.parent.Unmap(); err != nil {
		log.Error().Err(err).Int("offset", s.Offset()).Int("length", s.length).Msg("Failed to unmap slice parent after clear")
	}
}

// Release never frees the parent.
func (s *Slice) Release() error {
	return nil
}
