package collengine

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/jeffhammond/oshmpi-go/internal/activeset"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

func newEngines(n int) (*substrate.Fabric, []*Engine) {
	fab := substrate.NewFabric(n)
	engines := make([]*Engine, n)
	for pe := 0; pe < n; pe++ {
		sub := fab.Local(pe)
		engines[pe] = New(sub, activeset.New(sub))
	}
	return fab, engines
}

func TestBarrierReleasesAllMembers(t *testing.T) {
	const n = 4
	_, engines := newEngines(n)
	var wg sync.WaitGroup
	for pe := 0; pe < n; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			require.NoError(t, engines[pe].Barrier(context.Background(), 0, 0, n))
		}(pe)
	}
	wg.Wait()
}

func TestBroadcast(t *testing.T) {
	const n = 4
	_, engines := newEngines(n)
	var wg sync.WaitGroup
	results := make([][]int64, n)
	for pe := 0; pe < n; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			target := make([]int64, 3)
			source := []int64{7, 8, 9}
			err := Broadcast[int64](context.Background(), engines[pe], 0, 0, n, 1, target, source, 3)
			require.NoError(t, err)
			results[pe] = target
		}(pe)
	}
	wg.Wait()
	for pe := 0; pe < n; pe++ {
		if pe == 1 {
			continue
		}
		if diff := cmp.Diff([]int64{7, 8, 9}, results[pe]); diff != "" {
			t.Errorf("pe %d: broadcast result mismatch (-want +got):\n%s", pe, diff)
		}
	}
}

func TestAllreduceSum(t *testing.T) {
	const n = 5
	_, engines := newEngines(n)
	var wg sync.WaitGroup
	results := make([]int64, n)
	for pe := 0; pe < n; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			source := []int64{int64(pe)}
			target := make([]int64, 1)
			require.NoError(t, Allreduce[int64](context.Background(), engines[pe], 0, 0, n, target, source, 1, Sum))
			results[pe] = target[0]
		}(pe)
	}
	wg.Wait()
	want := int64(n * (n - 1) / 2)
	for pe := 0; pe < n; pe++ {
		require.Equal(t, want, results[pe])
	}
}

func TestAllgatherFixed(t *testing.T) {
	const n = 3
	_, engines := newEngines(n)
	var wg sync.WaitGroup
	results := make([][]int64, n)
	for pe := 0; pe < n; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			source := []int64{int64(pe)}
			target := make([]int64, n)
			require.NoError(t, AllgatherFixed[int64](context.Background(), engines[pe], 0, 0, n, target, source, 1))
			results[pe] = target
		}(pe)
	}
	wg.Wait()
	for pe := 0; pe < n; pe++ {
		if diff := cmp.Diff([]int64{0, 1, 2}, results[pe]); diff != "" {
			t.Errorf("pe %d: allgather result mismatch (-want +got):\n%s", pe, diff)
		}
	}
}

func TestAlltoall(t *testing.T) {
	const n = 3
	_, engines := newEngines(n)
	var wg sync.WaitGroup
	results := make([][][]int64, n)
	for pe := 0; pe < n; pe++ {
		wg.Add(1)
		go func(pe int) {
			defer wg.Done()
			send := make([][]int64, n)
			for d := 0; d < n; d++ {
				send[d] = []int64{int64(pe*10 + d)}
			}
			recv := make([][]int64, n)
			for d := range recv {
				recv[d] = make([]int64, 1)
			}
			require.NoError(t, Alltoall[int64](context.Background(), engines[pe], 0, 0, n, recv, send, 1))
			results[pe] = recv
		}(pe)
	}
	wg.Wait()
	want := make([][][]int64, n)
	for pe := 0; pe < n; pe++ {
		want[pe] = make([][]int64, n)
		for sender := 0; sender < n; sender++ {
			want[pe][sender] = []int64{int64(sender*10 + pe)}
		}
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("alltoall result mismatch (-want +got):\n%s", diff)
	}
}
