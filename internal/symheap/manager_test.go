package symheap

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeffhammond/oshmpi-go/internal/config"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

func TestNewSizesAndAllocatesWindows(t *testing.T) {
	fab := substrate.NewFabric(2)
	cfg := config.Default()
	cfg.HeapSizeOverride = 8192

	mgrs := make([]*Manager, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for pe := 0; pe < 2; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			mgrs[pe], errs[pe] = New(context.Background(), fab.Local(pe), cfg)
		}(pe)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	require.Equal(t, int64(8192), mgrs[0].SheapSize())
	require.Equal(t, mgrs[0].SheapSize(), mgrs[0].EtextBase())
}

func TestMallocFreeThroughManager(t *testing.T) {
	fab := substrate.NewFabric(1)
	cfg := config.Default()
	cfg.HeapSizeOverride = 8192
	m, err := New(context.Background(), fab.Local(0), cfg)
	require.NoError(t, err)

	addr, ok := m.Malloc(AllocHintDefault, 64)
	require.True(t, ok)
	require.Equal(t, m.SheapBase(), addr)

	require.NoError(t, m.Free(addr))
}

func TestTeardownOrder(t *testing.T) {
	fab := substrate.NewFabric(1)
	cfg := config.Default()
	cfg.HeapSizeOverride = 8192
	m, err := New(context.Background(), fab.Local(0), cfg)
	require.NoError(t, err)
	require.NoError(t, m.Teardown(context.Background()))
}
