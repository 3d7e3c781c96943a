package rmaengine

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
)

// subTransferBytes is the chunk size a wide (derived-contiguous-type)
// transfer is split into. There is no persistent derived-type handle to
// free afterward, unlike the reference substrate — this runtime's Put/Get
// already take a flat byte range, so "build the derived type" collapses
// into slicing the byte view once per chunk.
const subTransferBytes = 1 << 20

// maxInFlightSubTransfers bounds how many of a wide transfer's chunks are
// outstanding against the substrate at once.
const maxInFlightSubTransfers = 4

// PutLarge packages a put whose count exceeds the substrate's 32-bit count
// limit as a derived-contiguous-type transfer (spec.md §4.5), split into
// subTransferBytes-sized sub-transfers fanned out concurrently and bounded
// by maxInFlightSubTransfers.
func PutLarge[T elemtype.Numeric](ctx context.Context, e *Engine, target int64, source []T, count int, pe int) error {
	if count <= maxSubstrateCount {
		return Put(ctx, e, target, source, count, pe)
	}
	return putOrGetWide(ctx, e, target, elemtype.Bytes(source[:count]), pe, true)
}

// GetLarge is PutLarge's inverse.
func GetLarge[T elemtype.Numeric](ctx context.Context, e *Engine, source []T, target int64, count int, pe int) error {
	if count <= maxSubstrateCount {
		return Get(ctx, e, source, target, count, pe)
	}
	return putOrGetWide(ctx, e, target, elemtype.Bytes(source[:count]), pe, false)
}

// putOrGetWide moves buf as a sequence of bounded, concurrently in-flight
// sub-transfers: errgroup.Group fans them out and collects the first
// failure, semaphore.Weighted caps how many are outstanding at once so a
// multi-gigabyte transfer doesn't open an unbounded number of concurrent
// substrate calls.
func putOrGetWide(ctx context.Context, e *Engine, addr int64, buf []byte, pe int, isPut bool) error {
	r := resolveWindow(e, "put_or_get_wide", addr)

	g, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(maxInFlightSubTransfers)

	for off := 0; off < len(buf); off += subTransferBytes {
		off := off
		end := off + subTransferBytes
		if end > len(buf) {
			end = len(buf)
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		chunk := buf[off:end]
		chunkOffset := r.Offset + int64(off)
		g.Go(func() error {
			defer sem.Release(1)
			if isPut {
				if err := e.Sub.Put(ctx, r.Window, pe, chunkOffset, chunk); err != nil {
					return err
				}
				return e.Sub.WinFlushLocal(r.Window, pe)
			}
			return e.Sub.Get(ctx, r.Window, pe, chunkOffset, chunk)
		})
	}
	return g.Wait()
}
