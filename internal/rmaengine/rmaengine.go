// Package rmaengine implements the one-sided op engine (spec.md §4.5):
// generic put/get/strided/atomics over any internal/elemtype.Numeric
// element, with an intra-node fast path and two selectable RMA ordering
// modes.
package rmaengine

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
	"github.com/jeffhammond/oshmpi-go/internal/errs"
	"github.com/jeffhammond/oshmpi-go/internal/resolve"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

// maxSubstrateCount is the count above which PutLarge/GetLarge split their
// transfer into sub-transfers instead of issuing one native-count call,
// matching spec.md §4.5's 32-bit substrate count limit. Put, Get and the
// strided variants do not consult it.
const maxSubstrateCount = 1<<31 - 1

// Engine is the process-wide one-sided op engine. One Engine serves every
// element-type instantiation of Put/Get/etc, since the generics here are
// free functions taking *Engine rather than methods tied to a type
// parameter.
type Engine struct {
	Sub      substrate.Substrate
	Bases    resolve.Bases
	World    substrate.Comm
	Ordered  bool // spec.md §4.5's "ordered RMA" build option, selected at runtime
	nodeWide bool // true iff every world PE shares one node (fast-path eligible)
}

func New(sub substrate.Substrate, bases resolve.Bases, ordered bool) *Engine {
	return &Engine{
		Sub:      sub,
		Bases:    bases,
		World:    substrate.WorldComm(sub.WorldSize()),
		Ordered:  ordered,
		nodeWide: len(sub.NodeLocalRanks()) == sub.WorldSize(),
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

// resolveWindow classifies a symmetric address, aborting (per spec.md
// §4.5's failure modes: "resolve returning NotSymmetric aborts the process
// with a diagnostic") rather than returning an error the caller could
// swallow.
func resolveWindow(e *Engine, op string, addr int64) resolve.Result {
	r, err := resolve.Resolve(e.Bases, addr, e.Sub.WorldRank())
	if err != nil {
		panic(errs.NewPrecondition(op, fmt.Sprintf("address %d is not symmetric", addr)))
	}
	return r
}

// fastPathEligible reports whether addr's resolved window can use the
// intra-node native-memory path: every PE must share one node, and the
// window must be SHEAP (spec.md §4.5 — etext is never a fast-path target
// since its per-PE layout isn't guaranteed to coincide).
func (e *Engine) fastPathEligible(r resolve.Result) bool {
	return e.nodeWide && r.Window == substrate.WindowSheap
}

// Put stores count elements of source into target on pe. Returns once the
// source buffer may be reused (local completion); remote visibility needs a
// Fence or Quiet.
func Put[T elemtype.Numeric](ctx context.Context, e *Engine, target int64, source []T, count int, pe int) error {
	r := resolveWindow(e, "put", target)
	data := elemtype.Bytes(source[:count])
	if e.fastPathEligible(r) {
		if base, ok := e.Sub.LocalBase(r.Window, pe); ok {
			copy(base[r.Offset:], data)
			return nil
		}
	}
	if e.Ordered {
		return e.Sub.Accumulate(ctx, r.Window, pe, r.Offset, elemDT(elemtype.Of[T]().Datatype), substrate.OpReplace, data)
	}
	if err := e.Sub.Put(ctx, r.Window, pe, r.Offset, data); err != nil {
		return err
	}
	return e.Sub.WinFlushLocal(r.Window, pe)
}

// Get loads count elements from pe's target into source (local completion:
// source is valid on return).
func Get[T elemtype.Numeric](ctx context.Context, e *Engine, source []T, target int64, count int, pe int) error {
	r := resolveWindow(e, "get", target)
	dst := elemtype.Bytes(source[:count])
	if e.fastPathEligible(r) {
		if base, ok := e.Sub.LocalBase(r.Window, pe); ok {
			copy(dst, base[r.Offset:r.Offset+int64(len(dst))])
			return nil
		}
	}
	if e.Ordered {
		old, err := e.Sub.GetAccumulate(ctx, r.Window, pe, r.Offset, elemDT(elemtype.Of[T]().Datatype), substrate.OpNoOp, dst)
		if err != nil {
			return err
		}
		copy(dst, old)
		return nil
	}
	return e.Sub.Get(ctx, r.Window, pe, r.Offset, dst)
}

// PutStrided stores count elements from source (consecutive, stride
// sstride) into target on pe at stride tstride (both in elements).
func PutStrided[T elemtype.Numeric](ctx context.Context, e *Engine, target int64, tstride int, source []T, sstride, count int, pe int) error {
	elemSize := int64(elemtype.Of[T]().Size)
	for i := 0; i < count; i++ {
		srcIdx := i * sstride
		dstAddr := target + int64(i*tstride)*elemSize
		if err := Put(ctx, e, dstAddr, source[srcIdx:srcIdx+1], 1, pe); err != nil {
			return fmt.Errorf("put_strided: element %d: %w", i, err)
		}
	}
	return nil
}

// GetStrided is PutStrided's inverse.
func GetStrided[T elemtype.Numeric](ctx context.Context, e *Engine, source []T, tstride int, target int64, sstride, count int, pe int) error {
	elemSize := int64(elemtype.Of[T]().Size)
	for i := 0; i < count; i++ {
		dstIdx := i * tstride
		srcAddr := target + int64(i*sstride)*elemSize
		if err := Get(ctx, e, source[dstIdx:dstIdx+1], srcAddr, 1, pe); err != nil {
			return fmt.Errorf("get_strided: element %d: %w", i, err)
		}
	}
	return nil
}

// Swap atomically replaces the element at remote on pe with newVal and
// returns its previous value. Full remote completion on return.
func Swap[T elemtype.Swappable](ctx context.Context, e *Engine, remote int64, newVal T, pe int) (T, error) {
	r := resolveWindow(e, "swap", remote)
	if e.fastPathEligible(r) && isInteger[T]() {
		if base, ok := e.Sub.LocalBase(r.Window, pe); ok {
			return fastSwap[T](base, r.Offset, newVal), nil
		}
	}
	buf := []T{newVal}
	old, err := e.Sub.GetAccumulate(ctx, r.Window, pe, r.Offset, elemDT(elemtype.Of[T]().Datatype), substrate.OpReplace, elemtype.Bytes(buf))
	if err != nil {
		var zero T
		return zero, err
	}
	if err := e.Sub.WinFlush(r.Window, pe); err != nil {
		var zero T
		return zero, err
	}
	return elemtype.FromBytes[T](old)[0], nil
}

// Cswap atomically sets the element at remote on pe to newVal iff its
// current value equals expected, returning the value observed before the
// attempt either way.
func Cswap[T elemtype.Integer](ctx context.Context, e *Engine, remote int64, expected, newVal T, pe int) (T, error) {
	r := resolveWindow(e, "cswap", remote)
	expBuf := []T{expected}
	newBuf := []T{newVal}
	old, err := e.Sub.CompareAndSwap(ctx, r.Window, pe, r.Offset, elemDT(elemtype.Of[T]().Datatype), elemtype.Bytes(expBuf), elemtype.Bytes(newBuf))
	if err != nil {
		var zero T
		return zero, err
	}
	if err := e.Sub.WinFlush(r.Window, pe); err != nil {
		var zero T
		return zero, err
	}
	return elemtype.FromBytes[T](old)[0], nil
}

// Fadd atomically adds delta to the element at remote on pe, returning its
// prior value.
func Fadd[T elemtype.Numeric](ctx context.Context, e *Engine, remote int64, delta T, pe int) (T, error) {
	r := resolveWindow(e, "fadd", remote)
	buf := []T{delta}
	old, err := e.Sub.GetAccumulate(ctx, r.Window, pe, r.Offset, elemDT(elemtype.Of[T]().Datatype), substrate.OpAdd, elemtype.Bytes(buf))
	if err != nil {
		var zero T
		return zero, err
	}
	if err := e.Sub.WinFlush(r.Window, pe); err != nil {
		var zero T
		return zero, err
	}
	return elemtype.FromBytes[T](old)[0], nil
}

// Add atomically adds delta to the element at remote on pe, discarding its
// prior value.
func Add[T elemtype.Numeric](ctx context.Context, e *Engine, remote int64, delta T, pe int) error {
	r := resolveWindow(e, "add", remote)
	if e.fastPathEligible(r) && isInteger[T]() {
		if base, ok := e.Sub.LocalBase(r.Window, pe); ok {
			fastAdd[T](base, r.Offset, delta)
			return nil
		}
	}
	buf := []T{delta}
	if err := e.Sub.Accumulate(ctx, r.Window, pe, r.Offset, elemDT(elemtype.Of[T]().Datatype), substrate.OpAdd, elemtype.Bytes(buf)); err != nil {
		return err
	}
	return e.Sub.WinFlush(r.Window, pe)
}

// Finc is Fadd with delta=1.
func Finc[T elemtype.Numeric](ctx context.Context, e *Engine, remote int64, pe int) (T, error) {
	return Fadd[T](ctx, e, remote, T(1), pe)
}

// Inc is Add with delta=1.
func Inc[T elemtype.Numeric](ctx context.Context, e *Engine, remote int64, pe int) error {
	return Add[T](ctx, e, remote, T(1), pe)
}

// Fence issues a local sync and, unless the engine is in ordered-RMA mode
// (where the substrate already orders successive accumulates to the same
// target), a remote flush-all over both windows.
func (e *Engine) Fence(ctx context.Context) error {
	if err := e.Sub.WinSync(substrate.WindowSheap); err != nil {
		return err
	}
	if err := e.Sub.WinSync(substrate.WindowEtext); err != nil {
		return err
	}
	if e.Ordered {
		return nil
	}
	if err := e.Sub.WinFlushAll(substrate.WindowSheap); err != nil {
		return err
	}
	return e.Sub.WinFlushAll(substrate.WindowEtext)
}

// Quiet completes all outstanding non-blocking remote operations and syncs
// locally; in this engine every operation above already completes
// synchronously, so Quiet reduces to exactly what Fence performs.
func (e *Engine) Quiet(ctx context.Context) error {
	return e.Fence(ctx)
}

// BarrierAll performs Quiet followed by a world substrate barrier, per
// spec.md §4.5.
func (e *Engine) BarrierAll(ctx context.Context) error {
	if err := e.Quiet(ctx); err != nil {
		return err
	}
	return e.Sub.Barrier(ctx, e.World)
}

func isInteger[T elemtype.Numeric]() bool {
	var zero T
	switch any(zero).(type) {
	case int32, int64:
		return true
	default:
		return false
	}
}

// fastSwap/fastAdd perform the processor-atomic path spec.md §4.5 reserves
// for signed integer element types on the intra-node fast path; floating
// point never reaches these (isInteger gates the call, and Swap's caller
// for float falls through to the substrate path above).
func fastSwap[T elemtype.Swappable](base []byte, offset int64, newVal T) T {
	switch any(newVal).(type) {
	case int32:
		p := (*int32)(unsafe.Pointer(&base[offset]))
		old := atomic.SwapInt32(p, any(newVal).(int32))
		return any(old).(T)
	case int64:
		p := (*int64)(unsafe.Pointer(&base[offset]))
		old := atomic.SwapInt64(p, any(newVal).(int64))
		return any(old).(T)
	default:
		panic("rmaengine: fastSwap called with a non-integer type")
	}
}

func fastAdd[T elemtype.Numeric](base []byte, offset int64, delta T) {
	switch d := any(delta).(type) {
	case int32:
		p := (*int32)(unsafe.Pointer(&base[offset]))
		atomic.AddInt32(p, d)
	case int64:
		p := (*int64)(unsafe.Pointer(&base[offset]))
		atomic.AddInt64(p, d)
	default:
		panic("rmaengine: fastAdd called with a non-integer type")
	}
}
