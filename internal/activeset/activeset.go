// Package activeset implements the active-set manager (spec.md §4.7): it
// turns a (start, log_stride, size) triple into a substrate communicator,
// caching up to 16 of them so repeated collectives over the same active
// set don't pay subgroup-construction cost every call.
package activeset

import (
	"context"
	"fmt"

	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

const cacheSlots = 16

// triple is the cache key; log_stride 0 still means stride 2^0=1, so the
// zero value never collides with an unset slot (size is always >= 1 for a
// real entry, and a zero-valued slot has size 0).
type triple struct {
	start     int
	logStride int
	size      int
}

type entry struct {
	key  triple
	comm substrate.Comm
}

// Manager caches active-set-to-communicator translations for one PE's
// world view. Not safe for concurrent use without external locking beyond
// what its own mutex-free linear scan assumes — matching spec.md §7's
// single-threaded-PE model (see internal/substrate.Group's doc comment).
type Manager struct {
	sub   substrate.Substrate
	world substrate.Comm

	slots []entry // up to cacheSlots live entries
}

func New(sub substrate.Substrate) *Manager {
	return &Manager{
		sub:   sub,
		world: substrate.WorldComm(sub.WorldSize()),
	}
}

// Acquire resolves (start, logStride, size) to a communicator and,
// if rootWorldRank is non-negative, that root's rank within the returned
// communicator's group.
func (m *Manager) Acquire(ctx context.Context, start, logStride, size int, rootWorldRank int) (substrate.Comm, int, error) {
	if size < 1 {
		return substrate.Comm{}, -1, fmt.Errorf("activeset: size %d must be >= 1", size)
	}
	n := m.sub.WorldSize()
	if start == 0 && logStride == 0 && size == n {
		root := translateRoot(m.world.Group, rootWorldRank)
		return m.world, root, nil
	}

	key := triple{start: start, logStride: logStride, size: size}
	for _, e := range m.slots {
		if e.key == key {
			return e.comm, translateRoot(e.comm.Group, rootWorldRank), nil
		}
	}

	members := make([]int, size)
	stride := 1 << uint(logStride)
	for i := 0; i < size; i++ {
		pe := start + i*stride
		if pe < 0 || pe >= n {
			return substrate.Comm{}, -1, fmt.Errorf("activeset: member rank %d out of range [0,%d)", pe, n)
		}
		members[i] = pe
	}

	group, err := m.sub.GroupIncl(ctx, m.world.Group, members)
	if err != nil {
		return substrate.Comm{}, -1, fmt.Errorf("activeset: group_incl: %w", err)
	}
	comm, err := m.sub.CommCreateGroup(ctx, group, start)
	if err != nil {
		return substrate.Comm{}, -1, fmt.Errorf("activeset: comm_create_group: %w", err)
	}

	if len(m.slots) < cacheSlots {
		m.slots = append(m.slots, entry{key: key, comm: comm})
	}
	// Cache overflow: the comm is still returned, just never cached or
	// tracked for release (spec.md §4.7 — "return the created communicator
	// without caching and free it on release").

	return comm, translateRoot(comm.Group, rootWorldRank), nil
}

// Release frees a non-cached communicator. Cached communicators are kept
// for the process's lifetime and this is a no-op for them.
func (m *Manager) Release(comm substrate.Comm) {
	for _, e := range m.slots {
		if e.comm.ID() == comm.ID() {
			return
		}
	}
	// Not cached: nothing further to do on the Local/GRPC substrates, which
	// hold no per-comm resources beyond the Comm value itself. A substrate
	// with real handle lifetimes (e.g. an MPI communicator) would free it
	// here.
}

func translateRoot(group substrate.Group, rootWorldRank int) int {
	if rootWorldRank < 0 {
		return -1
	}
	local, ok := group.Rank(rootWorldRank)
	if !ok {
		return -1
	}
	return local
}
