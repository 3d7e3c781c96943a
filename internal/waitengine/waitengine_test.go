package waitengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

type fakeBases struct{ sheapSize int64 }

func (f fakeBases) SheapBase() int64 { return 0 }
func (f fakeBases) SheapSize() int64 { return f.sheapSize }
func (f fakeBases) EtextBase() int64 { return f.sheapSize }
func (f fakeBases) EtextSize() int64 { return 256 }

func newTestEngine(t *testing.T) (*substrate.Local, *Engine) {
	fab := substrate.NewFabric(1)
	sub := fab.Local(0)
	_, err := sub.WinAllocate(context.Background(), substrate.WindowSheap, 4096)
	require.NoError(t, err)
	return sub, New(sub, fakeBases{sheapSize: 4096})
}

func TestWaitReturnsImmediatelyWhenAlreadyTrue(t *testing.T) {
	sub, e := newTestEngine(t)
	require.NoError(t, sub.Put(context.Background(), substrate.WindowSheap, 0, 0, elemtype.Bytes([]int64{7})))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, Wait[int64](ctx, e, 0, EQ, 7))
}

func TestWaitBlocksUntilWriterSignals(t *testing.T) {
	sub, e := newTestEngine(t)
	require.NoError(t, sub.Put(context.Background(), substrate.WindowSheap, 0, 0, elemtype.Bytes([]int64{0})))

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- Wait[int64](ctx, e, 0, EQ, 42)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sub.Put(context.Background(), substrate.WindowSheap, 0, 0, elemtype.Bytes([]int64{42})))

	require.NoError(t, <-done)
}

func TestWaitUntilChanged(t *testing.T) {
	sub, e := newTestEngine(t)
	require.NoError(t, sub.Put(context.Background(), substrate.WindowSheap, 0, 0, elemtype.Bytes([]int64{5})))

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- WaitUntilChanged[int64](ctx, e, 0, 5)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sub.Put(context.Background(), substrate.WindowSheap, 0, 0, elemtype.Bytes([]int64{6})))
	require.NoError(t, <-done)
}

func TestWaitTimesOut(t *testing.T) {
	_, e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := Wait[int64](ctx, e, 0, EQ, 123)
	require.Error(t, err)
}

func TestWaitComparisons(t *testing.T) {
	require.True(t, predicate(5, 5, EQ))
	require.True(t, predicate(5, 6, NE))
	require.True(t, predicate(6, 5, GT))
	require.True(t, predicate(5, 5, GE))
	require.True(t, predicate(4, 5, LT))
	require.True(t, predicate(5, 5, LE))
	require.False(t, predicate(5, 5, GT))
}
