package resolve

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

type fakeBases struct {
	sheapBase, sheapSize int64
	etextBase, etextSize int64
}

func (f fakeBases) SheapBase() int64 { return f.sheapBase }
func (f fakeBases) SheapSize() int64 { return f.sheapSize }
func (f fakeBases) EtextBase() int64 { return f.etextBase }
func (f fakeBases) EtextSize() int64 { return f.etextSize }

func TestResolveSheap(t *testing.T) {
	b := fakeBases{sheapBase: 0, sheapSize: 1000, etextBase: 1000, etextSize: 100}
	r, err := Resolve(b, 500, 0)
	require.NoError(t, err)
	require.Equal(t, substrate.WindowSheap, r.Window)
	require.Equal(t, int64(500), r.Offset)
}

func TestResolveEtext(t *testing.T) {
	b := fakeBases{sheapBase: 0, sheapSize: 1000, etextBase: 1000, etextSize: 100}
	r, err := Resolve(b, 1050, 0)
	require.NoError(t, err)
	require.Equal(t, substrate.WindowEtext, r.Window)
	require.Equal(t, int64(50), r.Offset)
}

func TestResolveInclusiveUpperBound(t *testing.T) {
	b := fakeBases{sheapBase: 0, sheapSize: 1000, etextBase: 1000, etextSize: 100}
	// Offset == size (one past the sheap region's last byte) must resolve:
	// the upper bound is inclusive, not an exclusive check.
	r, err := Resolve(b, 1000, 0)
	require.NoError(t, err)
	require.Equal(t, substrate.WindowSheap, r.Window)
}

func TestResolveNotSymmetric(t *testing.T) {
	b := fakeBases{sheapBase: 0, sheapSize: 1000, etextBase: 1000, etextSize: 100}
	_, err := Resolve(b, -1, 0)
	require.Error(t, err)
	_, err = Resolve(b, 2000, 0)
	require.Error(t, err)
}

func TestIsSymmetric(t *testing.T) {
	b := fakeBases{sheapBase: 0, sheapSize: 1000, etextBase: 1000, etextSize: 100}
	require.True(t, IsSymmetric(b, 10))
	require.False(t, IsSymmetric(b, 5000))
}
