package symheap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeLookup(vals map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vals[name]
		return v, ok
	}
}

func TestResolveHeapSizeOverrideWins(t *testing.T) {
	s, err := resolveHeapSize(12345, 4, fakeLookup(map[string]string{"SHMEM_SYMMETRIC_HEAP_SIZE": "99"}))
	require.NoError(t, err)
	require.Equal(t, int64(12345), s)
}

func TestResolveHeapSizeEnvPriorityOrder(t *testing.T) {
	s, err := resolveHeapSize(0, 4, fakeLookup(map[string]string{
		"SMA_SYMMETRIC_SIZE":        "2M",
		"SHMEM_SYMMETRIC_HEAP_SIZE": "1M",
	}))
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), s)
}

func TestResolveHeapSizeFallsBackToDefault(t *testing.T) {
	s, err := resolveHeapSize(0, 4, fakeLookup(nil))
	require.NoError(t, err)
	require.True(t, s > 0)
}

func TestParseSizeStringSuffixes(t *testing.T) {
	cases := map[string]int64{
		"100":  100,
		"2K":   2_000,
		"3M":   3_000_000,
		"1G":   1_000_000_000,
		" 5k ": 5_000,
	}
	for in, want := range cases {
		got, err := parseSizeString(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestParseSizeStringRejectsGarbage(t *testing.T) {
	_, err := parseSizeString("not-a-number")
	require.Error(t, err)
	_, err = parseSizeString("-5")
	require.Error(t, err)
	_, err = parseSizeString("")
	require.Error(t, err)
}
