package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func printReport(w io.Writer, res *Result) {
	p := message.NewPrinter(language.English)
	secs := res.Elapsed.Seconds()
	if secs == 0 {
		secs = 1
	}

	p.Fprintf(w, "allocator:   %s\n", res.Alloc)
	p.Fprintf(w, "elapsed:     %v\n", res.Elapsed.Round(time.Millisecond))
	p.Fprintf(w, "iterations:  %d (%.1f/s)\n", res.Iterations(), float64(res.Iterations())/secs)
	p.Fprintf(w, "copied:      %d bytes (%.1f MB/s)\n", res.Bytes(), float64(res.Bytes())/secs/(1<<20))
	p.Fprintf(w, "mismatches:  %d\n", res.Mismatches())
	if res.Pool != nil {
		p.Fprintf(w, "pool:        %d hits, %d misses, %d buffers (%d bytes) pooled\n",
			res.Pool.Hits, res.Pool.Misses, res.Pool.PooledBuffers, res.Pool.PooledBytes)
	}
	if res.Emulator != nil {
		p.Fprintf(w, "device:      %d syncs, %d bytes still allocated\n",
			res.Emulator.Syncs, res.Emulator.AllocatedBytes)
	}
	for _, wr := range res.Workers {
		p.Fprintf(w, "  worker %d: %d iterations, last %s\n", wr.ID, wr.Iterations, wr.Last)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeSnapshots encodes the last tensor of every worker as a CBOR sequence.
func (r *Result) writeSnapshots(w io.Writer) error {
	enc := cbor.NewEncoder(w)
	for i, s := range r.snapshots {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encode snapshot %d: %w", i, err)
		}
	}
	return nil
}

var reportSchema = arrow.NewSchema(
	[]arrow.Field{
		{Name: "worker", Type: arrow.PrimitiveTypes.Int32},
		{Name: "iterations", Type: arrow.PrimitiveTypes.Int64},
		{Name: "bytes", Type: arrow.PrimitiveTypes.Int64},
		{Name: "mismatches", Type: arrow.PrimitiveTypes.Int64},
		{Name: "last_mean", Type: arrow.PrimitiveTypes.Float64},
	},
	nil,
)

// writeArrow writes one row per worker as an Arrow IPC stream.
func (r *Result) writeArrow(w io.Writer) error {
	pool := memory.NewGoAllocator()

	ids := array.NewInt32Builder(pool)
	defer ids.Release()
	iters := array.NewInt64Builder(pool)
	defer iters.Release()
	copied := array.NewInt64Builder(pool)
	defer copied.Release()
	mismatches := array.NewInt64Builder(pool)
	defer mismatches.Release()
	means := array.NewFloat64Builder(pool)
	defer means.Release()

	for _, wr := range r.Workers {
		ids.Append(int32(wr.ID))
		iters.Append(wr.Iterations)
		copied.Append(wr.Bytes)
		mismatches.Append(wr.Mismatches)
		means.Append(wr.Last.Mean)
	}

	cols := []arrow.Array{ids.NewArray(), iters.NewArray(), copied.NewArray(), mismatches.NewArray(), means.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	rec := array.NewRecordBatch(reportSchema, cols, int64(len(r.Workers)))
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(reportSchema))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
