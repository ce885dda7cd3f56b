package tensor

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-tensor/internal/device"
)

// Invariant violation classes. A violation is a bug in whatever built the
// request, so tensors panic with an *InvariantError wrapping one of these
// instead of returning an error.
var (
	ErrDimOutOfRange    = errors.New("dim out of range")
	ErrNoStore          = errors.New("store is nil")
	ErrNoAllocator      = errors.New("no allocator")
	ErrNotOwner         = errors.New("store is borrowed")
	ErrCapacityExceeded = errors.New("raw size exceeds store capacity")
	ErrImageBacked      = errors.New("cannot resize image, use ResizeImage")
	ErrNotImage         = errors.New("cannot ResizeImage buffer, use Resize")
	ErrImageTooSmall    = errors.New("physical image smaller than logical image")
	ErrSizeMismatch     = errors.New("copy src and dst with different size")
	ErrTypeMismatch     = errors.New("element type does not match dtype")
	ErrTypeNotSet       = errors.New("type not set")
	ErrUnexpectedType   = errors.New("unexpected type")
	ErrInvalidShape     = errors.New("invalid shape")
	ErrStore            = errors.New("store operation failed")
)

// InvariantError is the panic value of every fatal tensor violation.
type InvariantError struct {
	Label  string
	Shape  Shape
	DType  device.DataType
	Err    error
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("tensor (source op %q, shape %v, dtype %s): %v: %s",
		e.Label, e.Shape, e.DType, e.Err, e.Detail)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// fatal logs the violation and aborts the calling operation.
func (t *Tensor) fatal(err error, format string, args ...any) {
	ie := &InvariantError{
		Label:  t.label,
		Shape:  t.shape.Clone(),
		DType:  t.dtype,
		Err:    err,
		Detail: fmt.Sprintf(format, args...),
	}
	log.Error().
		Str("label", t.label).
		Ints("shape", []int(t.shape)).
		Str("dtype", t.dtype.String()).
		Err(err).
		Msg(ie.Detail)
	panic(ie)
}

func (t *Tensor) check(cond bool, err error, format string, args ...any) {
	if !cond {
		t.fatal(err, format, args...)
	}
}
