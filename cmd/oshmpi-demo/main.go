// Command oshmpi-demo runs a handful of SPMD scenarios from inside one
// process, using goroutines as PEs over the in-process substrate.Fabric.
// It exists to exercise the runtime end to end without a real multi-process
// launcher; the GRPC substrate is for an actual distributed deployment and
// is not driven by this command.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/jeffhammond/oshmpi-go"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

func main() {
	npes := flag.Int("npes", 4, "number of simulated PEs")
	scenario := flag.String("scenario", "pingpong", "pingpong|ring|allreduce|fetchinc|strided|mcslock")
	flag.Parse()

	if *npes < 1 {
		fmt.Fprintln(os.Stderr, "npes must be >= 1")
		os.Exit(1)
	}

	fab := substrate.NewFabric(*npes)
	var wg sync.WaitGroup
	errs := make([]error, *npes)

	for pe := 0; pe < *npes; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			ctx, err := oshmpi.Init(context.Background(), oshmpi.Options{Substrate: fab.Local(pe)})
			if err != nil {
				errs[pe] = err
				return
			}
			defer oshmpi.Finalize(ctx)
			if err := runScenario(ctx, *scenario); err != nil {
				errs[pe] = err
			}
		}(pe)
	}
	wg.Wait()

	for pe, err := range errs {
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%d] %v\n", pe, err)
			os.Exit(1)
		}
	}
}

func runScenario(ctx context.Context, name string) error {
	switch name {
	case "pingpong":
		return pingPong(ctx)
	case "ring":
		return naturalRing(ctx)
	case "allreduce":
		return allreduceSum(ctx)
	case "fetchinc":
		return fetchIncNeighbor(ctx)
	case "strided":
		return stridedPut(ctx)
	case "mcslock":
		return mcsLockFairness(ctx)
	default:
		return fmt.Errorf("unknown scenario %q", name)
	}
}

func pingPong(ctx context.Context) error {
	self, n := oshmpi.PESelf(ctx), oshmpi.PECount(ctx)
	if n < 2 {
		return nil
	}
	addr, err := oshmpi.ShAlloc(ctx, 8)
	if err != nil {
		return err
	}
	if err := oshmpi.BarrierAll(ctx); err != nil {
		return err
	}
	peer := 1 - self
	if self == 0 && peer < n {
		if err := oshmpi.Put(ctx, addr, []int64{42}, 1, peer); err != nil {
			return err
		}
		if err := oshmpi.Quiet(ctx); err != nil {
			return err
		}
	}
	if self == 1 {
		if err := oshmpi.Wait[int64](ctx, addr, oshmpi.EQ, 42); err != nil {
			return err
		}
	}
	return oshmpi.BarrierAll(ctx)
}

func naturalRing(ctx context.Context) error {
	self, n := oshmpi.PESelf(ctx), oshmpi.PECount(ctx)
	addr, err := oshmpi.ShAlloc(ctx, 8)
	if err != nil {
		return err
	}
	if err := oshmpi.BarrierAll(ctx); err != nil {
		return err
	}
	next := (self + 1) % n
	if err := oshmpi.Put(ctx, addr, []int64{int64(self)}, 1, next); err != nil {
		return err
	}
	if err := oshmpi.Quiet(ctx); err != nil {
		return err
	}
	return oshmpi.BarrierAll(ctx)
}

func allreduceSum(ctx context.Context) error {
	self, n := oshmpi.PESelf(ctx), oshmpi.PECount(ctx)
	source := []int64{int64(self)}
	target := make([]int64, 1)
	if err := oshmpi.Allreduce(ctx, 0, 0, n, target, source, 1, oshmpi.Sum); err != nil {
		return err
	}
	expect := int64(n*(n-1)) / 2
	if target[0] != expect {
		return fmt.Errorf("allreduce: got %d, want %d", target[0], expect)
	}
	return nil
}

func fetchIncNeighbor(ctx context.Context) error {
	self, n := oshmpi.PESelf(ctx), oshmpi.PECount(ctx)
	addr, err := oshmpi.ShAlloc(ctx, 8)
	if err != nil {
		return err
	}
	if err := oshmpi.Set[int64](ctx, addr, 0, self); err != nil {
		return err
	}
	if err := oshmpi.BarrierAll(ctx); err != nil {
		return err
	}
	next := (self + 1) % n
	if _, err := oshmpi.Finc[int64](ctx, addr, next); err != nil {
		return err
	}
	return oshmpi.BarrierAll(ctx)
}

func stridedPut(ctx context.Context) error {
	self, n := oshmpi.PESelf(ctx), oshmpi.PECount(ctx)
	const count = 5
	addr, err := oshmpi.ShAlloc(ctx, 8*int64(2*count))
	if err != nil {
		return err
	}
	if err := oshmpi.BarrierAll(ctx); err != nil {
		return err
	}
	next := (self + 1) % n
	source := make([]int64, count)
	for i := range source {
		source[i] = int64(2*i + 1)
	}
	if err := oshmpi.PutStrided(ctx, addr, 2, source, 1, count, next); err != nil {
		return err
	}
	return oshmpi.BarrierAll(ctx)
}

func mcsLockFairness(ctx context.Context) error {
	addr, err := oshmpi.ShAlloc(ctx, 8)
	if err != nil {
		return err
	}
	if oshmpi.PESelf(ctx) == 0 {
		if err := oshmpi.Set[int64](ctx, addr, 0, 0); err != nil {
			return err
		}
	}
	if err := oshmpi.BarrierAll(ctx); err != nil {
		return err
	}
	if err := oshmpi.SetLock(ctx); err != nil {
		return err
	}
	cur, err := oshmpi.Fetch[int64](ctx, addr, 0)
	if err != nil {
		return err
	}
	if err := oshmpi.Set[int64](ctx, addr, cur+1, 0); err != nil {
		return err
	}
	if err := oshmpi.ClearLock(ctx); err != nil {
		return err
	}
	return oshmpi.BarrierAll(ctx)
}
