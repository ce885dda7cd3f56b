package tensor

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/23skdu/longbow-tensor/internal/device"
)

// DebugString renders the label, shape and every element. A newline
// separates each run of shape[last] elements. The store is mapped for the
// duration of the dump.
func (t *Tensor) DebugString() string {
	var sb strings.Builder
	sb.WriteString("Tensor ")
	sb.WriteString(t.label)
	sb.WriteString(" size: [")
	for _, d := range t.shape {
		fmt.Fprintf(&sb, "%d, ", d)
	}
	sb.WriteString("], content:\n")

	if !t.HasStore() || t.Size() == 0 {
		return sb.String()
	}
	t.SizeOfType()

	g := NewMappingGuard(t)
	defer t.unmap(g)
	raw := g.Bytes()

	row := 0
	if len(t.shape) > 0 {
		row = t.shape[len(t.shape)-1]
	}
	for i := 0; i < t.Size(); i++ {
		if i != 0 && row > 0 && i%row == 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t.dtype.FormatElement(raw, t.elementIndex(g, i)))
		sb.WriteString(", ")
	}
	return sb.String()
}

// elementIndex maps logical element i to its index in the mapped region.
// Images are laid out in texel order with padded rows.
func (t *Tensor) elementIndex(g *MappingGuard, i int) int {
	if !t.HasImage() {
		return i
	}
	size := t.SizeOfType()
	perRow := t.imageShape.Width * device.TexelChannels
	if perRow == 0 {
		return i
	}
	pitch := rowPitch(g.Pitch(), perRow*size)
	return (i/perRow)*(pitch/size) + i%perRow
}

// DebugPrint logs DebugString at info level.
func (t *Tensor) DebugPrint() {
	log.Info().Str("label", t.label).Msg(t.DebugString())
}

// Stats summarizes the numeric content of a tensor.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

func (s Stats) String() string {
	return fmt.Sprintf("count=%d min=%g max=%g mean=%g stddev=%g",
		s.Count, s.Min, s.Max, s.Mean, s.StdDev)
}

// Summary computes element statistics. String tensors and empty tensors
// report only a count; NaN fields mean no numeric data was available.
func (t *Tensor) Summary() Stats {
	s := Stats{Count: t.Size(), Min: math.NaN(), Max: math.NaN(), Mean: math.NaN(), StdDev: math.NaN()}
	if !t.HasStore() || s.Count == 0 {
		return s
	}
	t.SizeOfType()

	g := NewMappingGuard(t)
	defer t.unmap(g)
	raw := g.Bytes()

	vals := make([]float64, 0, s.Count)
	for i := 0; i < s.Count; i++ {
		v, ok := t.dtype.ElementFloat64(raw, t.elementIndex(g, i))
		if !ok {
			return s
		}
		vals = append(vals, v)
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	return s
}
