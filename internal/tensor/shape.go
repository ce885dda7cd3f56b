package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the product of the extents. A scalar (empty shape) has one element.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that no extent is negative and that the element count
// fits in an int.
func (s Shape) Validate() error {
	zero := false
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
		if dim == 0 {
			zero = true
		}
	}
	if zero {
		return nil
	}
	n := 1
	for _, dim := range s {
		if n > math.MaxInt/dim {
			return fmt.Errorf("shape %v overflows the element count", s)
		}
		n *= dim
	}
	return nil
}

// ByteSize returns the bytes needed for elemSize-byte elements of this shape.
func (s Shape) ByteSize(elemSize int) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	n := s.NumElements()
	if elemSize > 0 && n > math.MaxInt/elemSize {
		return 0, fmt.Errorf("shape %v of %d-byte elements overflows the byte size", s, elemSize)
	}
	return n * elemSize, nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
