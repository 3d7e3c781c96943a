package oshmpi

import (
	"context"

	"github.com/jeffhammond/oshmpi-go/internal/errs"
	"github.com/jeffhammond/oshmpi-go/internal/symheap"
)

// AllocHint narrows how ShAllocHint places a request within the symmetric
// heap; see internal/subpool.AllocHint.
type AllocHint = symheap.AllocHint

const (
	AllocHintDefault       = symheap.AllocHintDefault
	AllocHintHighBandwidth = symheap.AllocHintHighBandwidth
)

// ShAlloc reserves n bytes from the symmetric heap, returning a symmetric
// address valid on every PE that made this same call (spec.md §4.3's SPMD
// convention: every PE must call ShAlloc with the same n, in the same
// collective order, even though the call itself does not round-trip over
// the substrate). Returns errs.Alloc (non-fatal) on exhaustion. Equivalent
// to ShAllocHint with AllocHintDefault.
func ShAlloc(ctx context.Context, n int64) (int64, error) {
	return ShAllocHint(ctx, AllocHintDefault, n)
}

// ShAllocHint is ShAlloc with an explicit placement hint (spec.md §4.2's
// shmemx-style high-bandwidth-memory placement extension).
func ShAllocHint(ctx context.Context, hint AllocHint, n int64) (int64, error) {
	addr, ok := current(ctx).mgr.Malloc(hint, n)
	if !ok {
		return 0, errs.NewAlloc("shmem_malloc", int(n))
	}
	return addr, nil
}

// ShAlign reserves n bytes aligned to align bytes (a power of two).
func ShAlign(ctx context.Context, align, n int64) (int64, error) {
	addr, ok := current(ctx).mgr.Memalign(align, n)
	if !ok {
		return 0, errs.NewAlloc("shmem_align", int(n))
	}
	return addr, nil
}

// ShRealloc resizes a prior symmetric allocation, possibly moving it. The
// returned address replaces addr; addr itself is invalid after a
// successful call.
func ShRealloc(ctx context.Context, addr, n int64) (int64, error) {
	newAddr, _, ok := current(ctx).mgr.Realloc(addr, n)
	if !ok {
		return 0, errs.NewAlloc("shmem_realloc", int(n))
	}
	return newAddr, nil
}

// ShFree releases a symmetric heap allocation. Every PE must call ShFree on
// the same logical allocation in the same collective order (spec.md §4.3);
// this call itself never blocks or communicates.
func ShFree(ctx context.Context, addr int64) error {
	return current(ctx).mgr.Free(addr)
}

// RemotePtr returns a description of where addr resolves on pe, for callers
// that want to confirm accessibility before issuing a put/get. Unlike the
// reference's shmem_ptr (which hands back a raw process-local pointer for
// intra-node fast-path use), this runtime routes all access back through
// Put/Get/atomics; RemotePtr only reports reachability.
func RemotePtr(ctx context.Context, addr int64, pe int) (ok bool) {
	return AddrAccessible(ctx, addr, pe)
}
