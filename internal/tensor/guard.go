package tensor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-tensor/internal/device"
)

const tracerName = "github.com/23skdu/longbow-tensor/internal/tensor"

// noCopy trips go vet's copylocks check for guards copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// MappingGuard keeps a tensor's store mapped for its lifetime. The store is
// mapped when the guard is created and unmapped exactly once by Close.
// Guards must not be copied; use Move to hand the obligation to another.
//
//	g := tensor.NewMappingGuard(t)
//	defer g.Close()
type MappingGuard struct {
	_ noCopy

	store device.Store
	pitch device.Pitch
	start time.Time
	span  trace.Span
}

// NewMappingGuard maps t's store. A nil tensor yields an inert guard; a
// tensor without a store is fatal.
func NewMappingGuard(t *Tensor) *MappingGuard {
	return MapContext(context.Background(), t)
}

// MapContext is NewMappingGuard with a parent context for the mapping span.
// Mapping failures are fatal on t.
func MapContext(ctx context.Context, t *Tensor) *MappingGuard {
	g := &MappingGuard{}
	if t == nil {
		return g
	}
	s := t.handle.store()
	t.check(s != nil, ErrNoStore, "buffer is null")

	onHost := s.OnHost()
	if !onHost {
		_, g.span = otel.GetTracerProvider().Tracer(tracerName).Start(ctx, "tensor.map",
			trace.WithAttributes(
				attribute.String("tensor.label", t.label),
				attribute.String("tensor.dtype", t.dtype.String()),
				attribute.String("store.kind", s.Kind().String()),
				attribute.Int("store.capacity", s.Capacity()),
			))
	}

	pitch, err := s.Map()
	if err != nil {
		if g.span != nil {
			g.span.RecordError(err)
			g.span.SetStatus(codes.Error, "map failed")
			g.span.End()
		}
		t.fatal(ErrStore, "map %s store: %v", s.Kind(), err)
	}
	mapOpsTotal.WithLabelValues(residency(onHost)).Inc()

	g.store = s
	g.pitch = pitch
	g.start = time.Now()
	return g
}

// unmap closes g from a deferred call, turning an unmap failure into a fatal
// violation on t. A panic already unwinding takes precedence.
func (t *Tensor) unmap(g *MappingGuard) {
	if r := recover(); r != nil {
		if err := g.Close(); err != nil {
			log.Warn().Err(err).Str("label", t.label).Msg("Failed to unmap store while aborting")
		}
		panic(r)
	}
	if err := g.Close(); err != nil {
		t.fatal(ErrStore, "unmap store: %v", err)
	}
}

// Pitch returns the layout reported by Map: nil for linear stores and
// {rowPitch} for images.
func (g *MappingGuard) Pitch() device.Pitch { return g.pitch }

// Active reports whether the guard still holds a mapping.
func (g *MappingGuard) Active() bool { return g.store != nil }

// Bytes returns the mapped region, nil once the guard is inactive.
func (g *MappingGuard) Bytes() []byte {
	if g.store == nil {
		return nil
	}
	return g.store.MutableBytes()
}

// Move transfers the unmap obligation to a new guard, leaving g inert.
func (g *MappingGuard) Move() *MappingGuard {
	moved := &MappingGuard{
		store: g.store,
		pitch: g.pitch,
		start: g.start,
		span:  g.span,
	}
	g.store = nil
	g.pitch = nil
	g.span = nil
	return moved
}

// Close unmaps the store. Only the first call on an active guard unmaps.
func (g *MappingGuard) Close() error {
	if g.store == nil {
		return nil
	}
	s := g.store
	g.store = nil
	g.pitch = nil

	err := s.Unmap()
	unmapOpsTotal.WithLabelValues(residency(s.OnHost())).Inc()
	mapDuration.Observe(time.Since(g.start).Seconds())
	if g.span != nil {
		if err != nil {
			g.span.RecordError(err)
			g.span.SetStatus(codes.Error, "unmap failed")
		}
		g.span.End()
		g.span = nil
	}
	return err
}
