// Package waitengine implements the point-to-point wait (spec.md §4.6):
// spin-polling a symmetric location with local sync between reads so
// remote writes from the intra-node fast path or the ordered-accumulate
// path become visible.
package waitengine

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
	"github.com/jeffhammond/oshmpi-go/internal/resolve"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

// Cmp is the comparison predicate family wait(var, cmp, value) supports.
type Cmp int

const (
	EQ Cmp = iota
	NE
	GT
	GE
	LT
	LE
)

func predicate[T elemtype.Ordered](cur, value T, cmp Cmp) bool {
	switch cmp {
	case EQ:
		return cur == value
	case NE:
		return cur != value
	case GT:
		return cur > value
	case GE:
		return cur >= value
	case LT:
		return cur < value
	case LE:
		return cur <= value
	default:
		return false
	}
}

// Engine polls the caller's own window (wait always targets a location
// local to the calling PE: there is no remote wait in spec.md §4.6).
type Engine struct {
	Sub   substrate.Substrate
	Bases resolve.Bases
}

func New(sub substrate.Substrate, bases resolve.Bases) *Engine {
	return &Engine{Sub: sub, Bases: bases}
}

// Wait blocks until predicate(*addr, value, cmp) holds, reading addr's
// current value from the calling PE's own window after each local sync.
// T is constrained to elemtype.Ordered (Numeric minus the complex types),
// since GT/GE/LT/LE have no defined meaning for a complex element.
func Wait[T elemtype.Ordered](ctx context.Context, e *Engine, addr int64, cmp Cmp, value T) error {
	r, err := resolve.Resolve(e.Bases, addr, e.Sub.WorldRank())
	if err != nil {
		return err
	}
	self := e.Sub.WorldRank()
	size := elemtype.Of[T]().Size
	for {
		if err := e.Sub.WinSync(r.Window); err != nil {
			return err
		}
		base, ok := e.Sub.LocalBase(r.Window, self)
		if !ok {
			return fmt.Errorf("waitengine: no local base for window %s on pe %d", r.Window, self)
		}
		cur := elemtype.FromBytes[T](base[r.Offset : r.Offset+int64(size)])[0]
		if predicate(cur, value, cmp) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
}

// WaitUntilChanged is the legacy wait(var, value) spelling: return when
// *var != value.
func WaitUntilChanged[T elemtype.Ordered](ctx context.Context, e *Engine, addr int64, value T) error {
	return Wait(ctx, e, addr, NE, value)
}
