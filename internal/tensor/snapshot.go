package tensor

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/23skdu/longbow-tensor/internal/device"
)

// Snapshot is a self-contained diagnostic record of a tensor's content.
// Image data is stored densely, without row padding.
type Snapshot struct {
	Label      string            `cbor:"1,keyasint"`
	DType      device.DataType   `cbor:"2,keyasint"`
	Shape      []int             `cbor:"3,keyasint"`
	ImageShape device.ImageShape `cbor:"4,keyasint"`
	Data       []byte            `cbor:"5,keyasint"`
}

// Snapshot copies the tensor's logical content out of its store.
func (t *Tensor) Snapshot() Snapshot {
	s := Snapshot{
		Label: t.label,
		DType: t.dtype,
		Shape: t.shape.Clone(),
	}
	if !t.HasStore() {
		return s
	}

	g := NewMappingGuard(t)
	defer t.unmap(g)
	raw := g.Bytes()

	if !t.HasImage() {
		n := t.RawSize()
		t.check(len(raw) >= n, ErrCapacityExceeded, "snapshot %d bytes of %d mapped", n, len(raw))
		s.Data = append([]byte(nil), raw[:n]...)
		return s
	}

	s.ImageShape = t.imageShape
	rowBytes := t.imageShape.Width * device.TexelChannels * t.SizeOfType()
	pitch := rowPitch(g.Pitch(), rowBytes)
	s.Data = make([]byte, 0, rowBytes*t.imageShape.Height)
	for y := 0; y < t.imageShape.Height; y++ {
		s.Data = append(s.Data, raw[y*pitch:y*pitch+rowBytes]...)
	}
	return s
}

// Restore builds an owned tensor from alloc holding the snapshot's content.
func (s Snapshot) Restore(alloc device.Allocator) (*Tensor, error) {
	if !s.DType.Valid() {
		return nil, fmt.Errorf("restore snapshot %q: %w", s.Label, ErrUnexpectedType)
	}
	raw, err := Shape(s.Shape).ByteSize(s.DType.Size())
	if err != nil {
		return nil, fmt.Errorf("restore snapshot %q: %w: %v", s.Label, ErrInvalidShape, err)
	}

	t := New(alloc, s.DType)
	t.SetLabel(s.Label)
	if s.ImageShape.Empty() {
		if len(s.Data) != raw {
			return nil, fmt.Errorf("restore snapshot %q: %w", s.Label, ErrSizeMismatch)
		}
		t.Resize(s.Shape)
		t.CopyBytes(s.Data)
		return t, nil
	}

	rowBytes := s.ImageShape.Width * device.TexelChannels * s.DType.Size()
	if len(s.Data) != rowBytes*s.ImageShape.Height {
		return nil, fmt.Errorf("restore snapshot %q: %w", s.Label, ErrSizeMismatch)
	}
	t.ResizeImage(s.Shape, s.ImageShape)
	g := NewMappingGuard(t)
	defer t.unmap(g)
	mem := g.Bytes()
	pitch := rowPitch(g.Pitch(), rowBytes)
	for y := 0; y < s.ImageShape.Height; y++ {
		copy(mem[y*pitch:y*pitch+rowBytes], s.Data[y*rowBytes:(y+1)*rowBytes])
	}
	return t, nil
}

// EncodeSnapshot writes t's snapshot to w as CBOR.
func (t *Tensor) EncodeSnapshot(w io.Writer) error {
	if err := cbor.NewEncoder(w).Encode(t.Snapshot()); err != nil {
		return fmt.Errorf("encode snapshot %q: %w", t.label, err)
	}
	return nil
}

// DecodeSnapshot reads one CBOR snapshot from r.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := cbor.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}
