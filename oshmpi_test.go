package oshmpi_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeffhammond/oshmpi-go"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

// runSPMD starts n goroutine-PEs sharing one in-process fabric, each running
// fn after Init and before Finalize, and fails the test if any PE returns an
// error. Each PE gets its own runtime handle carried on its own context, so
// concurrently-running PEs never share engines.
func runSPMD(t *testing.T, n int, fn func(ctx context.Context) error) {
	t.Helper()
	fab := substrate.NewFabric(n)
	var wg sync.WaitGroup
	errsOut := make([]error, n)
	for pe := 0; pe < n; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			ctx, err := oshmpi.Init(context.Background(), oshmpi.Options{Substrate: fab.Local(pe)})
			if err != nil {
				errsOut[pe] = err
				return
			}
			defer oshmpi.Finalize(ctx)
			errsOut[pe] = fn(ctx)
		}(pe)
	}
	wg.Wait()
	for pe, err := range errsOut {
		require.NoError(t, err, "pe %d", pe)
	}
}

func TestPingPong(t *testing.T) {
	runSPMD(t, 2, func(ctx context.Context) error {
		self := oshmpi.PESelf(ctx)
		addr, err := oshmpi.ShAlloc(ctx, 8)
		if err != nil {
			return err
		}
		if err := oshmpi.BarrierAll(ctx); err != nil {
			return err
		}
		if self == 0 {
			if err := oshmpi.Put(ctx, addr, []int64{42}, 1, 1); err != nil {
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
	})
}

func TestNaturalRing(t *testing.T) {
	const n = 5
	runSPMD(t, n, func(ctx context.Context) error {
		self := oshmpi.PESelf(ctx)
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
		if err := oshmpi.BarrierAll(ctx); err != nil {
			return err
		}
		prev := (self - 1 + n) % n
		got := make([]int64, 1)
		if err := oshmpi.Get(ctx, got, addr, 1, self); err != nil {
			return err
		}
		if got[0] != int64(prev) {
			t.Errorf("pe %d: got %d, want %d", self, got[0], prev)
		}
		return nil
	})
}

func TestAllreduceSum(t *testing.T) {
	const n = 6
	runSPMD(t, n, func(ctx context.Context) error {
		self := oshmpi.PESelf(ctx)
		source := []int64{int64(self)}
		target := make([]int64, 1)
		if err := oshmpi.Allreduce(ctx, 0, 0, n, target, source, 1, oshmpi.Sum); err != nil {
			return err
		}
		want := int64(n*(n-1)) / 2
		if target[0] != want {
			t.Errorf("pe %d: allreduce got %d, want %d", self, target[0], want)
		}
		return nil
	})
}

func TestFetchIncNeighbor(t *testing.T) {
	const n = 4
	runSPMD(t, n, func(ctx context.Context) error {
		self := oshmpi.PESelf(ctx)
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
		if err := oshmpi.BarrierAll(ctx); err != nil {
			return err
		}
		got, err := oshmpi.Fetch[int64](ctx, addr, self)
		if err != nil {
			return err
		}
		if got != 1 {
			t.Errorf("pe %d: fetch_inc counter got %d, want 1", self, got)
		}
		return nil
	})
}

func TestStridedPutPattern(t *testing.T) {
	const n = 2
	runSPMD(t, n, func(ctx context.Context) error {
		self := oshmpi.PESelf(ctx)
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
		if err := oshmpi.BarrierAll(ctx); err != nil {
			return err
		}
		got := make([]int64, 2*count)
		if err := oshmpi.Get(ctx, got, addr, 2*count, self); err != nil {
			return err
		}
		want := []int64{1, 0, 3, 0, 5, 0, 7, 0, 9, 0}
		for i, v := range want {
			if got[i] != v {
				t.Errorf("pe %d: strided result[%d] = %d, want %d", self, i, got[i], v)
			}
		}
		return nil
	})
}

func TestMCSLockFairness(t *testing.T) {
	const n = 5
	runSPMD(t, n, func(ctx context.Context) error {
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
		if err := oshmpi.BarrierAll(ctx); err != nil {
			return err
		}
		if oshmpi.PESelf(ctx) == 0 {
			final, err := oshmpi.Fetch[int64](ctx, addr, 0)
			if err != nil {
				return err
			}
			if final != n {
				t.Errorf("mcslock: final counter %d, want %d", final, n)
			}
		}
		return nil
	})
}

func TestPEAccessibleCorrectedBound(t *testing.T) {
	runSPMD(t, 3, func(ctx context.Context) error {
		if !oshmpi.PEAccessible(ctx, 2) {
			t.Error("pe 2 should be accessible in a 3-pe world")
		}
		if oshmpi.PEAccessible(ctx, 3) {
			t.Error("pe 3 should not be accessible in a 3-pe world (off-by-one check)")
		}
		return nil
	})
}

func TestShAllocHintHighBandwidth(t *testing.T) {
	runSPMD(t, 1, func(ctx context.Context) error {
		addr, err := oshmpi.ShAllocHint(ctx, oshmpi.AllocHintHighBandwidth, 32)
		if err != nil {
			return err
		}
		if err := oshmpi.Set[int64](ctx, addr, 7, 0); err != nil {
			return err
		}
		got, err := oshmpi.Fetch[int64](ctx, addr, 0)
		if err != nil {
			return err
		}
		if got != 7 {
			t.Errorf("ShAllocHint: round-trip got %d, want 7", got)
		}
		return nil
	})
}
