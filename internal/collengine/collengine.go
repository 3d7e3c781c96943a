// Package collengine implements the collective engine (spec.md §4.8): a
// closed dispatch over {BARRIER, BROADCAST, ALLGATHER_FIXED, ALLGATHER_VAR,
// ALLREDUCE, ALLTOALL, ALLTOALL_STRIDED}, each acquiring its active set
// through internal/activeset before talking to the substrate.
package collengine

import (
	"context"
	"fmt"

	"github.com/jeffhammond/oshmpi-go/internal/activeset"
	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

// Op is the closed collective-operation enumeration spec.md §4.8 names.
type Op int

const (
	Barrier Op = iota
	Broadcast
	AllgatherFixed
	AllgatherVar
	Allreduce
	Alltoall
	AlltoallStrided
)

// ReduceOp mirrors substrate.ReduceOp at the public surface, restricted to
// the {SUM, PROD, MIN, MAX, AND, OR, XOR} spec.md §4.8 closes over.
type ReduceOp int

const (
	Sum ReduceOp = iota
	Prod
	Min
	Max
	And
	Or
	Xor
)

func toSubstrateReduce(op ReduceOp) substrate.ReduceOp {
	switch op {
	case Sum:
		return substrate.ReduceSum
	case Prod:
		return substrate.ReduceProd
	case Min:
		return substrate.ReduceMin
	case Max:
		return substrate.ReduceMax
	case And:
		return substrate.ReduceBand
	case Or:
		return substrate.ReduceBor
	case Xor:
		return substrate.ReduceBxor
	default:
		return substrate.ReduceSum
	}
}

func elemDT(d elemtype.Datatype) substrate.Datatype {
	switch d {
	case elemtype.Byte:
		return substrate.Byte
	case elemtype.Int8:
		return substrate.Int8
	case elemtype.Int16:
		return substrate.Int16
	case elemtype.Int32:
		return substrate.Int32
	case elemtype.Int64:
		return substrate.Int64
	case elemtype.Float32:
		return substrate.Float32
	case elemtype.Float64:
		return substrate.Float64
	case elemtype.Complex64:
		return substrate.Complex64
	case elemtype.Complex128:
		return substrate.Complex128
	default:
		return substrate.Byte
	}
}

// Engine dispatches collectives over an active-set cache.
type Engine struct {
	Sub       substrate.Substrate
	ActiveSet *activeset.Manager
}

func New(sub substrate.Substrate, as *activeset.Manager) *Engine {
	return &Engine{Sub: sub, ActiveSet: as}
}

// Barrier issues a barrier over (start, logStride, size). Step 1 of
// spec.md §4.8 (zeroing the caller's pSync array) has no analogue here: this
// engine carries no persistent pSync buffer, since the substrate's own
// generation counter (internal/substrate's joinRound/join) already
// discriminates successive collective calls on the same communicator —
// which is exactly what pSync's sentinel-reset exists to do in the
// reference design.
func (e *Engine) Barrier(ctx context.Context, start, logStride, size int) error {
	comm, _, err := e.ActiveSet.Acquire(ctx, start, logStride, size, -1)
	if err != nil {
		return err
	}
	return e.Sub.Barrier(ctx, comm)
}

// Broadcast moves source (valid on root) into target (valid on non-roots);
// the root does not locally copy source into target (spec.md §4.8).
func Broadcast[T elemtype.Numeric](ctx context.Context, e *Engine, start, logStride, size int, rootWorldRank int, target, source []T, count int) error {
	comm, rootLocal, err := e.ActiveSet.Acquire(ctx, start, logStride, size, rootWorldRank)
	if err != nil {
		return err
	}
	if rootLocal < 0 {
		return fmt.Errorf("collengine: broadcast root %d not a member of the active set", rootWorldRank)
	}
	var buf []byte
	isRoot := rootLocal == selfLocalRank(e.Sub, comm)
	if isRoot {
		buf = elemtype.Bytes(source[:count])
	} else {
		buf = elemtype.Bytes(target[:count])
	}
	if err := e.Sub.Bcast(ctx, comm, rootLocalToWorld(comm, rootLocal), buf); err != nil {
		return err
	}
	if !isRoot {
		copy(elemtype.Bytes(target[:count]), buf)
	}
	return nil
}

func selfLocalRank(sub substrate.Substrate, comm substrate.Comm) int {
	local, _ := comm.Group.Rank(sub.WorldRank())
	return local
}

func rootLocalToWorld(comm substrate.Comm, rootLocal int) int {
	return comm.Group.Members()[rootLocal]
}

// AllgatherFixed is "fcollect": every PE contributes the same count.
func AllgatherFixed[T elemtype.Numeric](ctx context.Context, e *Engine, start, logStride, size int, target, source []T, count int) error {
	comm, _, err := e.ActiveSet.Acquire(ctx, start, logStride, size, -1)
	if err != nil {
		return err
	}
	all, err := e.Sub.Allgather(ctx, comm, elemtype.Bytes(source[:count]))
	if err != nil {
		return err
	}
	elemSize := elemtype.Of[T]().Size
	out := elemtype.Bytes(target[:count*len(all)])
	for i, contrib := range all {
		copy(out[i*count*elemSize:], contrib)
	}
	return nil
}

// AllgatherVar is "collect": per-PE counts may differ. It allgathers the
// counts first, prefix-sums them into displacements, then allgathers the
// payloads (spec.md §4.8's two-phase description — no allgatherv primitive
// exists on the substrate, so the payload phase reuses plain Allgather and
// this package does the displacement bookkeeping).
func AllgatherVar[T elemtype.Numeric](ctx context.Context, e *Engine, start, logStride, size int, source []T, myCount int) (result []T, displs []int, err error) {
	comm, _, err := e.ActiveSet.Acquire(ctx, start, logStride, size, -1)
	if err != nil {
		return nil, nil, err
	}
	countBuf := make([]byte, 8)
	putUint64(countBuf, uint64(myCount))
	countsRaw, err := e.Sub.Allgather(ctx, comm, countBuf)
	if err != nil {
		return nil, nil, err
	}
	counts := make([]int, len(countsRaw))
	total := 0
	displs = make([]int, len(countsRaw))
	for i, c := range countsRaw {
		counts[i] = int(getUint64(c))
		displs[i] = total
		total += counts[i]
	}
	payload, err := e.Sub.Allgather(ctx, comm, elemtype.Bytes(source[:myCount]))
	if err != nil {
		return nil, nil, err
	}
	result = make([]T, total)
	for i, contrib := range payload {
		copy(elemtype.Bytes(result[displs[i]:displs[i]+counts[i]]), contrib)
	}
	return result, displs, nil
}

// Allreduce folds source into target using op over count elements. When
// source and target alias the same slice, the substrate still receives a
// copy of the pre-reduction value, matching the in-place sentinel behavior
// spec.md §4.8 describes (the Fabric/GRPC substrate always operates on a
// defensive copy of the contribution, so aliasing target==source is safe
// without a separate sentinel).
func Allreduce[T elemtype.Numeric](ctx context.Context, e *Engine, start, logStride, size int, target, source []T, count int, op ReduceOp) error {
	comm, _, err := e.ActiveSet.Acquire(ctx, start, logStride, size, -1)
	if err != nil {
		return err
	}
	result, err := e.Sub.Allreduce(ctx, comm, elemDT(elemtype.Of[T]().Datatype), toSubstrateReduce(op), elemtype.Bytes(source[:count]), count)
	if err != nil {
		return err
	}
	copy(elemtype.Bytes(target[:count]), result)
	return nil
}

// Alltoall exchanges count elements pairwise: send[i] holds what this PE
// sends to the active set's i'th member; recv[i] receives what member i
// sent to this PE.
func Alltoall[T elemtype.Numeric](ctx context.Context, e *Engine, start, logStride, size int, recv, send [][]T, count int) error {
	comm, _, err := e.ActiveSet.Acquire(ctx, start, logStride, size, -1)
	if err != nil {
		return err
	}
	sendBytes := make([][]byte, len(send))
	for i, s := range send {
		sendBytes[i] = elemtype.Bytes(s[:count])
	}
	recvBytes, err := e.Sub.Alltoall(ctx, comm, sendBytes)
	if err != nil {
		return err
	}
	for i, rb := range recvBytes {
		if rb == nil || i >= len(recv) {
			continue
		}
		copy(elemtype.Bytes(recv[i][:count]), rb)
	}
	return nil
}

// AlltoallStrided is Alltoall with a per-element stride applied when
// slicing each destination's contribution out of send, matching the
// reference's shmem_alltoalls family. The strided view is materialized
// into a contiguous buffer before the exchange since the substrate's
// Alltoall has no native stride concept.
func AlltoallStrided[T elemtype.Numeric](ctx context.Context, e *Engine, start, logStride, size int, recv [][]T, rstride int, send [][]T, sstride, count int) error {
	packedSend := make([][]T, len(send))
	for i, s := range send {
		packed := make([]T, count)
		for j := 0; j < count; j++ {
			packed[j] = s[j*sstride]
		}
		packedSend[i] = packed
	}
	packedRecv := make([][]T, len(recv))
	for i := range recv {
		packedRecv[i] = make([]T, count)
	}
	if err := Alltoall(ctx, e, start, logStride, size, packedRecv, packedSend, count); err != nil {
		return err
	}
	for i, pr := range packedRecv {
		for j := 0; j < count; j++ {
			recv[i][j*rstride] = pr[j]
		}
	}
	return nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
