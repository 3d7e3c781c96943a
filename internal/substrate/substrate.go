// Package substrate is the thin abstraction (spec.md C1) over the
// underlying two-sided message-passing substrate that provides RMA,
// collectives, and process groups. Nothing above this package talks to a
// network, a shared-memory segment, or goroutines directly; everything
// goes through the Substrate interface, so the engine packages (rmaengine,
// collengine, waitengine, mcslock, activeset, symheap) can run unmodified
// against either the in-process Local implementation (used by every test in
// this module) or the networked GRPC implementation (used by a real
// multi-process deployment).
//
// Grounded on the shape of grpc.ClientConnInterface composed with
// grpc.ServiceRegistrar in github.com/joeycumines/go-inprocgrpc: a single
// small interface pair describing "a thing you call methods on and a thing
// you register handlers with" generalizes cleanly to "a thing you issue
// one-sided/collective operations against".
package substrate

import "context"

// Window identifies one of the runtime's fixed memory regions. Unlike a
// general RMA library, this runtime never creates windows dynamically: the
// symmetric heap, the etext region, and the MCS lock array are the only
// three regions that ever exist (spec.md §3), so Window is a small enum
// rather than an opaque per-call handle.
type Window int

const (
	WindowSheap Window = iota
	WindowEtext
	WindowLock
)

func (w Window) String() string {
	switch w {
	case WindowSheap:
		return "sheap"
	case WindowEtext:
		return "etext"
	case WindowLock:
		return "lock"
	default:
		return "unknown"
	}
}

// Datatype mirrors elemtype.Datatype without importing it, to keep this
// package free of a dependency on the generics layer; rmaengine/collengine
// convert between the two with a one-line mapping.
type Datatype int

const (
	Byte Datatype = iota
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Complex64
	Complex128
)

// AtomicOp is the operation code for accumulate/get_accumulate/fetch_and_op
// (spec.md §4.1). Replace is put's ordered form; NoOp is get's ordered form.
type AtomicOp int

const (
	OpReplace AtomicOp = iota
	OpNoOp
	OpAdd
	OpSwap // unconditional write, same effect as OpReplace; rmaengine's Swap uses OpReplace
)

// ReduceOp is the closed set of allreduce operations (spec.md §4.1, §4.8).
type ReduceOp int

const (
	ReduceSum ReduceOp = iota
	ReduceProd
	ReduceMin
	ReduceMax
	ReduceBand
	ReduceBor
	ReduceBxor
	ReduceLand
)

// Group is an immutable, order-preserving set of world ranks. Because
// group/communicator construction in this runtime is always driven by
// arguments that are identical (by the SPMD calling convention spec.md §3
// requires) on every member, Group and Comm values are pure, local
// computations: no network round trip is needed to agree on membership, the
// same way MPI's own group bookkeeping needs no wire traffic beyond the one
// collective call that *uses* the resulting communicator.
type Group struct {
	members []int
}

// NewGroup builds a Group from an explicit (already order-preserving)
// member list. Callers own the slice; NewGroup does not copy it.
func NewGroup(members []int) Group { return Group{members: members} }

func (g Group) Members() []int { return g.members }

func (g Group) Size() int { return len(g.members) }

// Rank returns the local rank of worldRank within g, or (-1, false) if
// worldRank is not a member.
func (g Group) Rank(worldRank int) (int, bool) {
	for i, r := range g.members {
		if r == worldRank {
			return i, true
		}
	}
	return -1, false
}

// Comm is a communicator: a Group plus a string id built from its creation
// tag and member list ("world" for WorldComm). It carries no transport
// state of its own.
type Comm struct {
	Group Group
	id    string
}

// ID is a stable string key for this communicator's membership, used as a
// rendezvous key by collective implementations and by internal/activeset's
// Release to recognize a cached communicator.
func (c Comm) ID() string { return c.id }

// WorldComm is the well-known communicator over every rank in [0, size).
func WorldComm(size int) Comm {
	members := make([]int, size)
	for i := range members {
		members[i] = i
	}
	return Comm{Group: NewGroup(members), id: "world"}
}

// Substrate is the full C1 surface spec.md §4.1 lists, minus the pieces
// (info_version, wtime formatting, etc.) that are pure wrappers with no
// substrate-specific behavior.
type Substrate interface {
	WorldRank() int
	WorldSize() int
	GroupWorld() Group

	// CommSplitByNode partitions WorldComm by shared-memory locality
	// (SPEC_FULL.md §4.1): it is the one group operation that is NOT a pure
	// function of its arguments, since node membership is host topology,
	// not caller-supplied data.
	CommSplitByNode(ctx context.Context) (Comm, error)

	// GroupIncl and CommCreateGroup are pure/local: see the Group/Comm doc
	// comments above. They still take ctx for interface symmetry with the
	// substrate adapters that might one day need it (e.g. a substrate
	// backed by a real MPI library would make an actual call here).
	GroupIncl(ctx context.Context, g Group, ranks []int) (Group, error)
	CommCreateGroup(ctx context.Context, g Group, tag int) (Comm, error)
	GroupTranslateRanks(src Group, ranks []int, dst Group) []int

	Barrier(ctx context.Context, c Comm) error
	Bcast(ctx context.Context, c Comm, root int, buf []byte) error
	Allgather(ctx context.Context, c Comm, send []byte) ([][]byte, error)
	Allreduce(ctx context.Context, c Comm, dt Datatype, op ReduceOp, send []byte, count int) ([]byte, error)
	Alltoall(ctx context.Context, c Comm, send [][]byte) ([][]byte, error)

	// WinAllocate returns this PE's local backing buffer for w, sized size
	// bytes, allocating it if this is the first call. same_size=true is
	// implicit: every PE calls this with the same size by construction.
	WinAllocate(ctx context.Context, w Window, size int) ([]byte, error)
	WinLockAll(w Window) error
	WinUnlockAll(w Window) error
	WinFlush(w Window, pe int) error
	WinFlushLocal(w Window, pe int) error
	WinFlushAll(w Window) error
	WinSync(w Window) error
	WinFree(w Window) error

	Put(ctx context.Context, w Window, pe int, offset int64, data []byte) error
	Get(ctx context.Context, w Window, pe int, offset int64, data []byte) error
	// Accumulate/GetAccumulate/FetchAndOp/CompareAndSwap operate on exactly
	// one element of dt; data/operand/expected/newValue/result buffers are
	// all dt's byte width.
	Accumulate(ctx context.Context, w Window, pe int, offset int64, dt Datatype, op AtomicOp, data []byte) error
	GetAccumulate(ctx context.Context, w Window, pe int, offset int64, dt Datatype, op AtomicOp, data []byte) (result []byte, err error)
	FetchAndOp(ctx context.Context, w Window, pe int, offset int64, dt Datatype, operand []byte) (result []byte, err error)
	CompareAndSwap(ctx context.Context, w Window, pe int, offset int64, dt Datatype, expected, newValue []byte) (old []byte, err error)

	// LocalBase returns the actual backing buffer for window w on pe, iff
	// pe is node-local and direct same-process access is permitted (spec.md
	// §4.5/§5's intra-node fast path). It returns (nil, false) whenever a
	// real message must be sent instead.
	LocalBase(w Window, pe int) ([]byte, bool)
	NodeLocalRanks() []int

	Wtime() float64
	Finalize() error
	GlobalExit(code int)
}
