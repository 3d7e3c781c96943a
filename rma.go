package oshmpi

import (
	"context"

	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
	"github.com/jeffhammond/oshmpi-go/internal/obslog"
	"github.com/jeffhammond/oshmpi-go/internal/rmaengine"
)

// Put stores count elements of source into target on pe.
func Put[T elemtype.Numeric](ctx context.Context, target int64, source []T, count int, pe int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "put", func() error {
		return rmaengine.Put[T](ctx, r.rma, target, source, count, pe)
	})
}

// Get loads count elements from pe's target into source.
func Get[T elemtype.Numeric](ctx context.Context, source []T, target int64, count int, pe int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "get", func() error {
		return rmaengine.Get[T](ctx, r.rma, source, target, count, pe)
	})
}

// PutStrided stores count elements from source (stride sstride) into target
// on pe at stride tstride (both strides in elements).
func PutStrided[T elemtype.Numeric](ctx context.Context, target int64, tstride int, source []T, sstride, count int, pe int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "put_strided", func() error {
		return rmaengine.PutStrided[T](ctx, r.rma, target, tstride, source, sstride, count, pe)
	})
}

// GetStrided loads count strided elements from pe's target into source.
func GetStrided[T elemtype.Numeric](ctx context.Context, source []T, tstride int, target int64, sstride, count int, pe int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "get_strided", func() error {
		return rmaengine.GetStrided[T](ctx, r.rma, source, tstride, target, sstride, count, pe)
	})
}

// Swap atomically replaces the element at remote on pe with newVal,
// returning its previous value.
func Swap[T elemtype.Swappable](ctx context.Context, remote int64, newVal T, pe int) (T, error) {
	r := current(ctx)
	var prev T
	err := obslog.Trace(r.sub.WorldRank(), "swap", func() error {
		var err error
		prev, err = rmaengine.Swap[T](ctx, r.rma, remote, newVal, pe)
		return err
	})
	return prev, err
}

// Cswap atomically sets remote on pe to newVal iff its current value equals
// expected, returning the value observed before the attempt.
func Cswap[T elemtype.Integer](ctx context.Context, remote int64, expected, newVal T, pe int) (T, error) {
	r := current(ctx)
	var prev T
	err := obslog.Trace(r.sub.WorldRank(), "cswap", func() error {
		var err error
		prev, err = rmaengine.Cswap[T](ctx, r.rma, remote, expected, newVal, pe)
		return err
	})
	return prev, err
}

// Fadd atomically adds delta to remote on pe, returning its prior value.
func Fadd[T elemtype.Numeric](ctx context.Context, remote int64, delta T, pe int) (T, error) {
	r := current(ctx)
	var prev T
	err := obslog.Trace(r.sub.WorldRank(), "fadd", func() error {
		var err error
		prev, err = rmaengine.Fadd[T](ctx, r.rma, remote, delta, pe)
		return err
	})
	return prev, err
}

// Add atomically adds delta to remote on pe, discarding its prior value.
func Add[T elemtype.Numeric](ctx context.Context, remote int64, delta T, pe int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "add", func() error {
		return rmaengine.Add[T](ctx, r.rma, remote, delta, pe)
	})
}

// Finc atomically increments remote on pe by one, returning its prior
// value.
func Finc[T elemtype.Numeric](ctx context.Context, remote int64, pe int) (T, error) {
	r := current(ctx)
	var prev T
	err := obslog.Trace(r.sub.WorldRank(), "finc", func() error {
		var err error
		prev, err = rmaengine.Finc[T](ctx, r.rma, remote, pe)
		return err
	})
	return prev, err
}

// Inc atomically increments remote on pe by one, discarding its prior
// value.
func Inc[T elemtype.Numeric](ctx context.Context, remote int64, pe int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "inc", func() error {
		return rmaengine.Inc[T](ctx, r.rma, remote, pe)
	})
}

// Fetch atomically reads remote on pe (a zero-delta Fadd).
func Fetch[T elemtype.Numeric](ctx context.Context, remote int64, pe int) (T, error) {
	r := current(ctx)
	var val T
	err := obslog.Trace(r.sub.WorldRank(), "fetch", func() error {
		var err error
		val, err = rmaengine.Fadd[T](ctx, r.rma, remote, 0, pe)
		return err
	})
	return val, err
}

// Set atomically writes newVal to remote on pe, discarding its prior value
// (a Swap whose result the caller doesn't need).
func Set[T elemtype.Swappable](ctx context.Context, remote int64, newVal T, pe int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "set", func() error {
		_, err := rmaengine.Swap[T](ctx, r.rma, remote, newVal, pe)
		return err
	})
}

// Fence completes all outstanding unordered put/accumulate operations
// issued by this PE so far, without returning their results.
func Fence(ctx context.Context) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "fence", func() error {
		return r.rma.Fence(ctx)
	})
}

// Quiet completes all outstanding non-blocking remote operations issued by
// this PE.
func Quiet(ctx context.Context) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "quiet", func() error {
		return r.rma.Quiet(ctx)
	})
}
