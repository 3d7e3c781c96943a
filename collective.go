package oshmpi

import (
	"context"

	"github.com/jeffhammond/oshmpi-go/internal/collengine"
	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
	"github.com/jeffhammond/oshmpi-go/internal/obslog"
)

// ReduceOp is the closed set of reduction operators Allreduce supports.
type ReduceOp = collengine.ReduceOp

const (
	Sum ReduceOp = collengine.Sum
	Prod ReduceOp = collengine.Prod
	Min ReduceOp = collengine.Min
	Max ReduceOp = collengine.Max
	And ReduceOp = collengine.And
	Or  ReduceOp = collengine.Or
	Xor ReduceOp = collengine.Xor
)

// Barrier synchronizes every PE in the active set (start, logStride, size).
func Barrier(ctx context.Context, start, logStride, size int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "barrier", func() error {
		return r.coll.Barrier(ctx, start, logStride, size)
	})
}

// BarrierAll synchronizes every PE in the world.
func BarrierAll(ctx context.Context) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "barrier_all", func() error {
		return r.rma.BarrierAll(ctx)
	})
}

// Broadcast moves count elements of source (valid on root) into target
// (valid on every non-root member of the active set).
func Broadcast[T elemtype.Numeric](ctx context.Context, start, logStride, size, root int, target, source []T, count int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "broadcast", func() error {
		return collengine.Broadcast[T](ctx, r.coll, start, logStride, size, root, target, source, count)
	})
}

// Fcollect gathers count elements from every member of the active set (all
// contributing the same count) into target, ordered by active-set rank.
func Fcollect[T elemtype.Numeric](ctx context.Context, start, logStride, size int, target, source []T, count int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "fcollect", func() error {
		return collengine.AllgatherFixed[T](ctx, r.coll, start, logStride, size, target, source, count)
	})
}

// Collect gathers a possibly different count of elements from each member
// of the active set, returning the concatenated result and each member's
// displacement within it.
func Collect[T elemtype.Numeric](ctx context.Context, start, logStride, size int, source []T, myCount int) (result []T, displs []int, err error) {
	r := current(ctx)
	err = obslog.Trace(r.sub.WorldRank(), "collect", func() error {
		var traceErr error
		result, displs, traceErr = collengine.AllgatherVar[T](ctx, r.coll, start, logStride, size, source, myCount)
		return traceErr
	})
	return result, displs, err
}

// Allreduce folds source into target across the active set using op.
func Allreduce[T elemtype.Numeric](ctx context.Context, start, logStride, size int, target, source []T, count int, op ReduceOp) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "allreduce", func() error {
		return collengine.Allreduce[T](ctx, r.coll, start, logStride, size, target, source, count, op)
	})
}

// Alltoall exchanges count elements pairwise across the active set.
func Alltoall[T elemtype.Numeric](ctx context.Context, start, logStride, size int, recv, send [][]T, count int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "alltoall", func() error {
		return collengine.Alltoall[T](ctx, r.coll, start, logStride, size, recv, send, count)
	})
}

// AlltoallStrided is Alltoall with a per-element stride applied on both
// sides of the exchange.
func AlltoallStrided[T elemtype.Numeric](ctx context.Context, start, logStride, size int, recv [][]T, rstride int, send [][]T, sstride, count int) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "alltoall_strided", func() error {
		return collengine.AlltoallStrided[T](ctx, r.coll, start, logStride, size, recv, rstride, send, sstride, count)
	})
}
