package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-tensor/internal/device"
	"github.com/23skdu/longbow-tensor/internal/tensor"
)

// Config controls a soak run.
type Config struct {
	// Alloc is one of host, emulator, pool or prealloc.
	Alloc    string
	Duration time.Duration
	Workers  int
	// MaxElems bounds the element count of linear tensors.
	MaxElems int
	Images   bool
	Seed     int64
}

// WorkerResult is what one worker achieved.
type WorkerResult struct {
	ID         int
	Iterations int64
	Bytes      int64
	Mismatches int64
	Last       tensor.Stats
}

// Result aggregates a soak run.
type Result struct {
	Alloc     string
	Elapsed   time.Duration
	Workers   []WorkerResult
	Pool      *device.PoolStats
	Emulator  *device.EmulatorStats
	snapshots []tensor.Snapshot
}

// Iterations returns the total iteration count across workers.
func (r *Result) Iterations() int64 {
	var n int64
	for _, w := range r.Workers {
		n += w.Iterations
	}
	return n
}

// Bytes returns the total bytes copied across workers.
func (r *Result) Bytes() int64 {
	var n int64
	for _, w := range r.Workers {
		n += w.Bytes
	}
	return n
}

// Mismatches returns the number of copies whose content did not round trip.
func (r *Result) Mismatches() int64 {
	var n int64
	for _, w := range r.Workers {
		n += w.Mismatches
	}
	return n
}

// backend bundles the allocator under test with its optional extras.
type backend struct {
	alloc    device.Allocator
	emulator *device.Emulator
	pool     *device.BufferPool
	prealloc *device.PreallocatedPool
}

func newBackend(kind string) (*backend, error) {
	switch kind {
	case "host":
		return &backend{alloc: device.NewHostAllocator(memory.NewGoAllocator())}, nil
	case "emulator":
		emu := device.NewEmulator(device.EmulatorConfig{})
		return &backend{alloc: emu, emulator: emu}, nil
	case "pool":
		emu := device.NewEmulator(device.EmulatorConfig{})
		pool := device.NewBufferPool(emu, device.PoolConfig{})
		return &backend{alloc: pool, emulator: emu, pool: pool}, nil
	case "prealloc":
		emu := device.NewEmulator(device.EmulatorConfig{})
		return &backend{alloc: emu, emulator: emu, prealloc: device.NewPreallocatedPool()}, nil
	default:
		return nil, fmt.Errorf("unknown allocator %q", kind)
	}
}

func (b *backend) Close() error {
	if b.pool != nil {
		if err := b.pool.Close(); err != nil {
			return err
		}
	}
	if b.prealloc != nil {
		return b.prealloc.Close()
	}
	return nil
}

func (b *backend) supportsImages() bool {
	return b.emulator != nil
}

// Run churns tensors until cfg.Duration elapses or ctx is cancelled.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxElems <= 0 {
		cfg.MaxElems = 1 << 16
	}
	b, err := newBackend(cfg.Alloc)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close allocator")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	res := &Result{
		Alloc:     b.alloc.Name(),
		Workers:   make([]WorkerResult, cfg.Workers),
		snapshots: make([]tensor.Snapshot, cfg.Workers),
	}
	start := time.Now()
	var progress atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		w := &worker{
			id:       i,
			cfg:      cfg,
			backend:  b,
			rng:      rand.New(rand.NewSource(cfg.Seed + int64(i))),
			result:   &res.Workers[i],
			snapshot: &res.snapshots[i],
			progress: &progress,
		}
		w.result.ID = i
		g.Go(func() error { return w.run(gctx) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)

	if b.pool != nil {
		s := b.pool.Stats()
		res.Pool = &s
	}
	if b.emulator != nil {
		s := b.emulator.Stats()
		res.Emulator = &s
	}
	return res, nil
}

type worker struct {
	id       int
	cfg      Config
	backend  *backend
	rng      *rand.Rand
	result   *WorkerResult
	snapshot *tensor.Snapshot
	progress *atomic.Int64
}

func (w *worker) run(ctx context.Context) (err error) {
	// Tensor invariant violations panic; surface them as a failed run.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d: %v", w.id, r)
		}
	}()

	if w.backend.prealloc != nil {
		buf, err := w.backend.emulator.NewBuffer(w.cfg.MaxElems*4 + tensor.ExtraBufferPadSize)
		if err != nil {
			return fmt.Errorf("worker %d: preallocate: %w", w.id, err)
		}
		if err := w.backend.prealloc.SetBuffer(w.id, buf); err != nil {
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
	}

	for ctx.Err() == nil {
		if err := w.iterate(ctx); err != nil {
			return err
		}
		w.result.Iterations++
		if n := w.progress.Add(1); n%1000 == 0 {
			log.Debug().Int64("iterations", n).Msg("Soak progress")
		}
	}
	return nil
}

func (w *worker) iterate(ctx context.Context) error {
	ctx, span := otel.GetTracerProvider().Tracer("tensorsoak").Start(ctx, "soak.iteration")
	defer span.End()

	cols := 1 + w.rng.Intn(min(64, w.cfg.MaxElems))
	rows := 1 + w.rng.Intn(max(1, w.cfg.MaxElems/cols))
	span.SetAttributes(attribute.Int("rows", rows), attribute.Int("cols", cols))

	src, err := w.newSource()
	if err != nil {
		return err
	}
	defer src.Release()
	src.SetLabel(fmt.Sprintf("soak-%d-src", w.id))
	src.Resize(tensor.Shape{rows, cols})

	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = w.rng.Float32()
	}
	tensor.CopyFrom(src, data)
	src.Reshape(tensor.Shape{cols, rows})

	dst := tensor.New(w.backend.alloc, device.Int8)
	defer dst.Release()
	dst.SetLabel(fmt.Sprintf("soak-%d-dst", w.id))
	dst.Copy(src)
	w.result.Bytes += int64(dst.RawSize())

	if !w.sameBytes(ctx, src, dst) {
		w.result.Mismatches++
	}
	w.result.Last = dst.Summary()

	if w.cfg.Images && w.backend.supportsImages() {
		if err := w.iterateImage(ctx); err != nil {
			return err
		}
	}
	*w.snapshot = dst.Snapshot()
	return nil
}

func (w *worker) newSource() (*tensor.Tensor, error) {
	if w.backend.prealloc == nil {
		return tensor.New(w.backend.alloc, device.Float32), nil
	}
	buf, err := w.backend.prealloc.Buffer(w.id)
	if err != nil {
		return nil, err
	}
	s, err := device.NewSlice(buf, 0, buf.Capacity())
	if err != nil {
		return nil, err
	}
	return tensor.NewFromSlice(s, device.Float32), nil
}

func (w *worker) sameBytes(ctx context.Context, a, b *tensor.Tensor) bool {
	ga := tensor.MapContext(ctx, a)
	defer ga.Close()
	gb := tensor.MapContext(ctx, b)
	defer gb.Close()
	n := a.RawSize()
	return bytes.Equal(ga.Bytes()[:n], gb.Bytes()[:n])
}

func (w *worker) iterateImage(ctx context.Context) error {
	shape := tensor.Shape{1, 1 + w.rng.Intn(16), 1 + w.rng.Intn(16), 1 + w.rng.Intn(8)}
	img := tensor.New(w.backend.alloc, device.Float32)
	defer img.Release()
	img.SetLabel(fmt.Sprintf("soak-%d-image", w.id))
	img.ResizeImage(shape, device.ChannelImageShape(shape))

	g := tensor.MapContext(ctx, img)
	view := tensor.View[float32](img, g)
	for i := range view {
		view[i] = float32(i % 251)
	}
	if err := g.Close(); err != nil {
		return fmt.Errorf("worker %d: unmap image: %w", w.id, err)
	}

	cp := tensor.New(w.backend.alloc, device.Float32)
	defer cp.Release()
	cp.SetLabel(fmt.Sprintf("soak-%d-image-copy", w.id))
	cp.Copy(img)
	if !bytes.Equal(img.Snapshot().Data, cp.Snapshot().Data) {
		w.result.Mismatches++
	}

	// Shrink within the existing image; growing would be fatal.
	half := tensor.Shape{1, max(1, shape[1]/2), shape[2], shape[3]}
	cp.ResizeImage(half, device.ChannelImageShape(half))
	w.result.Bytes += int64(img.RawSize())
	return nil
}
