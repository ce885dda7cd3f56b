package main

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-tensor/internal/tensor"
)

func TestRun_Allocators(t *testing.T) {
	for _, kind := range []string{"host", "emulator", "pool", "prealloc"} {
		t.Run(kind, func(t *testing.T) {
			res, err := Run(context.Background(), Config{
				Alloc:    kind,
				Duration: 50 * time.Millisecond,
				Workers:  2,
				MaxElems: 256,
				Images:   true,
				Seed:     7,
			})
			require.NoError(t, err)
			assert.Len(t, res.Workers, 2)
			assert.Positive(t, res.Iterations())
			assert.Positive(t, res.Bytes())
			assert.Zero(t, res.Mismatches())
			if res.Emulator != nil {
				held := int64(prealloced(kind, 2))
				if res.Pool != nil {
					held += int64(res.Pool.PooledBuffers)
				}
				assert.Equal(t, held, res.Emulator.Buffers, "every owned device buffer was released or pooled")
				assert.Zero(t, res.Emulator.Images)
			}
			if kind == "pool" {
				require.NotNil(t, res.Pool)
				assert.Positive(t, res.Pool.Hits)
			}
		})
	}
}

func prealloced(kind string, workers int) int {
	if kind == "prealloc" {
		return workers
	}
	return 0
}

func TestRun_UnknownAllocator(t *testing.T) {
	_, err := Run(context.Background(), Config{Alloc: "tpu", Duration: time.Millisecond})
	assert.ErrorContains(t, err, `unknown allocator "tpu"`)
}

func TestReportOutputs(t *testing.T) {
	res, err := Run(context.Background(), Config{Alloc: "emulator", Duration: 20 * time.Millisecond, Workers: 1, MaxElems: 64})
	require.NoError(t, err)

	var out bytes.Buffer
	printReport(&out, res)
	assert.Contains(t, out.String(), "allocator:   emulator")
	assert.Contains(t, out.String(), "worker 0:")

	dir := t.TempDir()
	path := filepath.Join(dir, "snap.cbor")
	require.NoError(t, writeFile(path, res.writeSnapshots))

	var buf bytes.Buffer
	require.NoError(t, res.writeSnapshots(&buf))
	snap, err := tensor.DecodeSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, "soak-0-dst", snap.Label)

	var ab bytes.Buffer
	require.NoError(t, res.writeArrow(&ab))
	rdr, err := ipc.NewReader(&ab)
	require.NoError(t, err)
	defer rdr.Release()
	require.True(t, rdr.Next())
	rec := rdr.Record()
	assert.Equal(t, int64(1), rec.NumRows())
	assert.Equal(t, "iterations", rec.ColumnName(1))
}

func TestWorker_ImageCopyMatches(t *testing.T) {
	b, err := newBackend("emulator")
	require.NoError(t, err)
	defer b.Close()

	res := &WorkerResult{}
	w := &worker{
		cfg:     Config{Images: true},
		backend: b,
		rng:     rand.New(rand.NewSource(3)),
		result:  res,
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, w.iterateImage(context.Background()))
	}
	assert.Zero(t, res.Mismatches)
	assert.Positive(t, res.Bytes)
	assert.Zero(t, b.emulator.Stats().Images)
}

func TestWorker_HostCopyMatches(t *testing.T) {
	b, err := newBackend("host")
	require.NoError(t, err)
	defer b.Close()

	res := &WorkerResult{}
	var snap tensor.Snapshot
	w := &worker{
		cfg:      Config{MaxElems: 128, Images: true},
		backend:  b,
		rng:      rand.New(rand.NewSource(5)),
		result:   res,
		snapshot: &snap,
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, w.iterate(context.Background()))
	}
	assert.Zero(t, res.Mismatches)
	assert.Positive(t, res.Bytes)
	assert.Equal(t, "soak-0-dst", snap.Label)
}
