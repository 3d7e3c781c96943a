package oshmpi

import (
	"context"

	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
	"github.com/jeffhammond/oshmpi-go/internal/waitengine"
)

// Cmp is the comparison predicate family Wait supports.
type Cmp = waitengine.Cmp

const (
	EQ Cmp = waitengine.EQ
	NE Cmp = waitengine.NE
	GT Cmp = waitengine.GT
	GE Cmp = waitengine.GE
	LT Cmp = waitengine.LT
	LE Cmp = waitengine.LE
)

// Wait blocks this PE until the element at addr (in this PE's own
// symmetric heap or etext region) satisfies cmp against value.
func Wait[T elemtype.Ordered](ctx context.Context, addr int64, cmp Cmp, value T) error {
	return waitengine.Wait[T](ctx, current(ctx).wait, addr, cmp, value)
}

// WaitUntilChanged blocks this PE until the element at addr no longer
// equals value.
func WaitUntilChanged[T elemtype.Ordered](ctx context.Context, addr int64, value T) error {
	return waitengine.WaitUntilChanged[T](ctx, current(ctx).wait, addr, value)
}
