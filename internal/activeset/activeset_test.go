package activeset

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

func TestAcquireWorldFastPath(t *testing.T) {
	fab := substrate.NewFabric(4)
	m := New(fab.Local(0))
	comm, root, err := m.Acquire(context.Background(), 0, 0, 4, 2)
	require.NoError(t, err)
	require.Equal(t, 4, comm.Group.Size())
	require.Equal(t, 2, root)
}

func TestAcquireCachesSubset(t *testing.T) {
	fab := substrate.NewFabric(8)
	m := New(fab.Local(0))
	comm1, _, err := m.Acquire(context.Background(), 0, 1, 4, -1)
	require.NoError(t, err)
	if diff := cmp.Diff([]int{0, 2, 4, 6}, comm1.Group.Members()); diff != "" {
		t.Errorf("group members mismatch (-want +got):\n%s", diff)
	}

	comm2, _, err := m.Acquire(context.Background(), 0, 1, 4, -1)
	require.NoError(t, err)
	require.Equal(t, comm1.ID(), comm2.ID())
	require.Len(t, m.slots, 1)
}

func TestAcquireOutOfRangeMember(t *testing.T) {
	fab := substrate.NewFabric(4)
	m := New(fab.Local(0))
	_, _, err := m.Acquire(context.Background(), 2, 1, 4, -1)
	require.Error(t, err)
}

func TestAcquireRejectsZeroSize(t *testing.T) {
	fab := substrate.NewFabric(4)
	m := New(fab.Local(0))
	_, _, err := m.Acquire(context.Background(), 0, 0, 0, -1)
	require.Error(t, err)
}
