package mcslock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

func setupLocks(t *testing.T, n int) (*substrate.Fabric, []*Lock) {
	fab := substrate.NewFabric(n)
	locks := make([]*Lock, n)
	size := Size(n)
	for pe := 0; pe < n; pe++ {
		sub := fab.Local(pe)
		buf, err := sub.WinAllocate(context.Background(), substrate.WindowLock, int(size))
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			putInt64(buf[i*16:], -1)
			putInt64(buf[i*16+8:], 0)
		}
		putInt64(buf[int64(n)*16:], -1)
		locks[pe] = New(sub, 0)
	}
	// One shared counter lives on PE 0's window, independent of the lock's
	// own bookkeeping.
	_, err := fab.Local(0).WinAllocate(context.Background(), substrate.WindowEtext, 8)
	require.NoError(t, err)
	return fab, locks
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func TestTryLockUncontended(t *testing.T) {
	_, locks := setupLocks(t, 2)
	ok, err := locks[0].TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locks[1].TryLock(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, locks[0].Unlock(context.Background()))
}

func TestLockUnlockSingle(t *testing.T) {
	_, locks := setupLocks(t, 1)
	require.NoError(t, locks[0].Lock(context.Background()))
	require.NoError(t, locks[0].Unlock(context.Background()))
	require.NoError(t, locks[0].Lock(context.Background()))
	require.NoError(t, locks[0].Unlock(context.Background()))
}

// TestFairnessNoOverlap drives N PEs each through lock/increment/unlock and
// checks both that the shared counter ends at N and that no two PEs were
// ever inside the critical section simultaneously.
func TestFairnessNoOverlap(t *testing.T) {
	const n = 6
	fab, locks := setupLocks(t, n)

	var inCS int32
	var overlapped atomic.Bool
	var wg sync.WaitGroup

	for pe := 0; pe < n; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			ctx := context.Background()
			sub := fab.Local(pe)
			require.NoError(t, locks[pe].Lock(ctx))

			if atomic.AddInt32(&inCS, 1) != 1 {
				overlapped.Store(true)
			}

			_, err := sub.GetAccumulate(ctx, substrate.WindowEtext, 0, 0, substrate.Int64, substrate.OpAdd, elemtype.Bytes([]int64{1}))
			require.NoError(t, err)

			atomic.AddInt32(&inCS, -1)
			require.NoError(t, locks[pe].Unlock(ctx))
		}(pe)
	}
	wg.Wait()

	require.False(t, overlapped.Load(), "two PEs were inside the critical section concurrently")

	base, ok := fab.Local(0).LocalBase(substrate.WindowEtext, 0)
	require.True(t, ok)
	got := elemtype.FromBytes[int64](base[:8])[0]
	require.Equal(t, int64(n), got)
}
