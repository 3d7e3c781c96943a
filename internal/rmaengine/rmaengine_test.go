package rmaengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

type fakeBases struct {
	sheapSize, etextSize int64
}

func (f fakeBases) SheapBase() int64 { return 0 }
func (f fakeBases) SheapSize() int64 { return f.sheapSize }
func (f fakeBases) EtextBase() int64 { return f.sheapSize }
func (f fakeBases) EtextSize() int64 { return f.etextSize }

func newTestEngines(t *testing.T, n int, ordered bool) (*substrate.Fabric, []*Engine) {
	fab := substrate.NewFabric(n)
	bases := fakeBases{sheapSize: 4096, etextSize: 1024}
	engines := make([]*Engine, n)
	for pe := 0; pe < n; pe++ {
		sub := fab.Local(pe)
		_, err := sub.WinAllocate(context.Background(), substrate.WindowSheap, int(bases.sheapSize))
		require.NoError(t, err)
		_, err = sub.WinAllocate(context.Background(), substrate.WindowEtext, int(bases.etextSize))
		require.NoError(t, err)
		engines[pe] = New(sub, bases, ordered)
	}
	return fab, engines
}

func TestPutGetRoundTrip(t *testing.T) {
	_, engines := newTestEngines(t, 2, false)
	ctx := context.Background()
	require.NoError(t, Put[int64](ctx, engines[0], 8, []int64{42}, 1, 1))
	out := make([]int64, 1)
	require.NoError(t, Get[int64](ctx, engines[0], out, 8, 1, 1))
	require.Equal(t, int64(42), out[0])
}

func TestPutGetOrderedMode(t *testing.T) {
	_, engines := newTestEngines(t, 2, true)
	ctx := context.Background()
	require.NoError(t, Put[int64](ctx, engines[0], 8, []int64{99}, 1, 1))
	out := make([]int64, 1)
	require.NoError(t, Get[int64](ctx, engines[0], out, 8, 1, 1))
	require.Equal(t, int64(99), out[0])
}

func TestPutStridedPattern(t *testing.T) {
	_, engines := newTestEngines(t, 2, false)
	ctx := context.Background()
	source := []int64{1, 3, 5, 7, 9}
	require.NoError(t, PutStrided[int64](ctx, engines[0], 0, 2, source, 1, 5, 1))

	out := make([]int64, 9)
	require.NoError(t, Get[int64](ctx, engines[0], out, 0, 9, 1))
	require.Equal(t, []int64{1, 0, 3, 0, 5, 0, 7, 0, 9}, out)
}

func TestSwap(t *testing.T) {
	_, engines := newTestEngines(t, 2, false)
	ctx := context.Background()
	require.NoError(t, Put[int64](ctx, engines[0], 0, []int64{10}, 1, 1))
	old, err := Swap[int64](ctx, engines[0], 0, 20, 1)
	require.NoError(t, err)
	require.Equal(t, int64(10), old)

	out := make([]int64, 1)
	require.NoError(t, Get[int64](ctx, engines[0], out, 0, 1, 1))
	require.Equal(t, int64(20), out[0])
}

func TestCswap(t *testing.T) {
	_, engines := newTestEngines(t, 2, false)
	ctx := context.Background()
	require.NoError(t, Put[int64](ctx, engines[0], 0, []int64{5}, 1, 1))

	old, err := Cswap[int64](ctx, engines[0], 0, 5, 99, 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), old)

	old, err = Cswap[int64](ctx, engines[0], 0, 5, 100, 1) // expected no longer matches
	require.NoError(t, err)
	require.Equal(t, int64(99), old)

	out := make([]int64, 1)
	require.NoError(t, Get[int64](ctx, engines[0], out, 0, 1, 1))
	require.Equal(t, int64(99), out[0])
}

func TestFaddAndInc(t *testing.T) {
	_, engines := newTestEngines(t, 2, false)
	ctx := context.Background()
	require.NoError(t, Put[int64](ctx, engines[0], 0, []int64{0}, 1, 1))

	old, err := Fadd[int64](ctx, engines[0], 0, 5, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), old)

	require.NoError(t, Inc[int64](ctx, engines[0], 0, 1))

	out := make([]int64, 1)
	require.NoError(t, Get[int64](ctx, engines[0], out, 0, 1, 1))
	require.Equal(t, int64(6), out[0])
}

func TestFastPathIntraNode(t *testing.T) {
	// Every PE in a Fabric shares one "node" (NodeLocalRanks covers the
	// whole world), so sheap put/get/add should take the atomic fast path
	// rather than the substrate's generic accumulate.
	_, engines := newTestEngines(t, 2, false)
	require.True(t, engines[0].nodeWide)
	ctx := context.Background()
	require.NoError(t, Put[int64](ctx, engines[0], 0, []int64{1}, 1, 1))
	require.NoError(t, Add[int64](ctx, engines[0], 0, 1, 1))
	out := make([]int64, 1)
	require.NoError(t, Get[int64](ctx, engines[0], out, 0, 1, 1))
	require.Equal(t, int64(2), out[0])
}

func TestResolveNotSymmetricPanics(t *testing.T) {
	_, engines := newTestEngines(t, 2, false)
	ctx := context.Background()
	require.Panics(t, func() {
		_ = Put[int64](ctx, engines[0], -5, []int64{1}, 1, 1)
	})
}
