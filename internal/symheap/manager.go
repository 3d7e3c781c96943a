// Package symheap implements the symmetric memory manager (spec.md §4.3):
// it owns the sheap and etext windows, sizes the symmetric heap at startup,
// and layers internal/subpool over the sheap window so user allocations are
// collective-convention offsets rather than raw addresses.
package symheap

import (
	"context"
	"fmt"

	"github.com/jeffhammond/oshmpi-go/internal/config"
	"github.com/jeffhammond/oshmpi-go/internal/obslog"
	"github.com/jeffhammond/oshmpi-go/internal/subpool"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

// etextSize is fixed rather than discovered: Go programs carry no
// linker-exposed `etext`/`end` symbols the way the C runtime this design
// derives from does. A modest static window still lets symmetric
// package-level state (spec.md's ETEXT region) exist and resolve
// correctly; its size only needs to fit a signed 32-bit integer, which a
// compile-time constant trivially satisfies.
const etextSize = 1 << 20 // 1 MiB

// Manager owns the two symmetric regions for this PE. Its sheap/etext base
// offsets are synthetic (this runtime has no real shared address space to
// carve up) but identical in layout on every PE, which is all the resolver
// and one-sided op engine require.
type Manager struct {
	sub substrate.Substrate

	sheapBase int64
	sheapSize int64
	etextBase int64
	etextSize int64

	pool *subpool.Pool
}

// New sizes and allocates the sheap and etext windows, per spec.md §4.3's
// startup sequence: resolve S on PE 0 (env override, else memory-derived
// estimate, else the 10^8 default), broadcast it, allocate+lock-all the
// sheap window, build the subpool, then allocate+lock-all the etext
// window.
func New(ctx context.Context, sub substrate.Substrate, cfg config.Config) (*Manager, error) {
	world := substrate.WorldComm(sub.WorldSize())

	var sizeBuf [8]byte
	if sub.WorldRank() == 0 {
		ppn := len(sub.NodeLocalRanks())
		s, err := resolveHeapSize(cfg.HeapSizeOverride, ppn, osLookup)
		if err != nil {
			return nil, errWrap("resolve heap size", err)
		}
		putInt64(sizeBuf[:], s)
	}
	if err := sub.Bcast(ctx, world, 0, sizeBuf[:]); err != nil {
		return nil, errWrap("broadcast heap size", err)
	}
	sheapSize := getInt64(sizeBuf[:])
	if sheapSize <= 0 {
		return nil, fmt.Errorf("symheap: resolved non-positive heap size %d", sheapSize)
	}

	obslog.Rank(sub.WorldRank()).Debug().Int64("sheap_size", sheapSize).Msg("symmetric heap sized")

	if _, err := sub.WinAllocate(ctx, substrate.WindowSheap, int(sheapSize)); err != nil {
		return nil, errWrap("allocate sheap window", err)
	}
	if err := sub.WinLockAll(substrate.WindowSheap); err != nil {
		return nil, errWrap("lock_all sheap window", err)
	}
	pool, err := subpool.Create(sheapSize)
	if err != nil {
		return nil, errWrap("create subpool", err)
	}

	if etextSize > (1<<31)-1 {
		panic("symheap: etextSize exceeds a signed 32-bit integer")
	}
	if _, err := sub.WinAllocate(ctx, substrate.WindowEtext, etextSize); err != nil {
		return nil, errWrap("allocate etext window", err)
	}
	if err := sub.WinLockAll(substrate.WindowEtext); err != nil {
		return nil, errWrap("lock_all etext window", err)
	}

	return &Manager{
		sub:       sub,
		sheapBase: 0,
		sheapSize: sheapSize,
		etextBase: sheapSize, // contiguous; see resolve.go for why this is safe
		etextSize: etextSize,
		pool:      pool,
	}, nil
}

func (m *Manager) SheapBase() int64 { return m.sheapBase }
func (m *Manager) SheapSize() int64 { return m.sheapSize }
func (m *Manager) EtextBase() int64 { return m.etextBase }
func (m *Manager) EtextSize() int64 { return int64(m.etextSize) }

// AllocHint re-exports internal/subpool's placement hint so callers of
// Manager don't need to import subpool directly.
type AllocHint = subpool.AllocHint

const (
	AllocHintDefault       = subpool.AllocHintDefault
	AllocHintHighBandwidth = subpool.AllocHintHighBandwidth
)

// Malloc allocates n bytes from the sheap subpool per hint and returns a
// symmetric address (sheapBase + offset), or ok=false on exhaustion.
func (m *Manager) Malloc(hint AllocHint, n int64) (addr int64, ok bool) {
	off, ok := m.pool.Malloc(hint, n)
	if !ok {
		return 0, false
	}
	return m.sheapBase + off, true
}

func (m *Manager) Memalign(align, n int64) (addr int64, ok bool) {
	off, ok := m.pool.Memalign(align, n)
	if !ok {
		return 0, false
	}
	return m.sheapBase + off, true
}

func (m *Manager) Realloc(addr, n int64) (newAddr int64, moved bool, ok bool) {
	oldOff := addr - m.sheapBase
	off, moved, ok := m.pool.Realloc(oldOff, n)
	if !ok {
		return 0, false, false
	}
	if moved {
		// The pool only moves the offset; carry the bytes over (copy is
		// overlap-safe) so the new block starts with the old contents.
		if base, ok := m.sub.LocalBase(substrate.WindowSheap, m.sub.WorldRank()); ok {
			end := oldOff + n
			if end > int64(len(base)) {
				end = int64(len(base))
			}
			copy(base[off:], base[oldOff:end])
		}
	}
	return m.sheapBase + off, moved, true
}

func (m *Manager) Free(addr int64) error {
	return m.pool.Free(addr - m.sheapBase)
}

// Teardown implements spec.md §4.3's teardown order from "collective
// barrier" onward; releasing any lock-array allocation (the step that
// precedes the barrier) is internal/mcslock's responsibility and must run
// before the caller invokes Teardown.
func (m *Manager) Teardown(ctx context.Context) error {
	world := substrate.WorldComm(m.sub.WorldSize())
	if err := m.sub.Barrier(ctx, world); err != nil {
		return errWrap("teardown barrier", err)
	}
	if err := m.sub.WinUnlockAll(substrate.WindowEtext); err != nil {
		return errWrap("unlock etext window", err)
	}
	if err := m.sub.WinFree(substrate.WindowEtext); err != nil {
		return errWrap("free etext window", err)
	}
	m.pool.Destroy()
	if err := m.sub.WinUnlockAll(substrate.WindowSheap); err != nil {
		return errWrap("unlock sheap window", err)
	}
	if err := m.sub.WinFree(substrate.WindowSheap); err != nil {
		return errWrap("free sheap window", err)
	}
	return nil
}

func errWrap(op string, err error) error {
	return fmt.Errorf("symheap: %s: %w", op, err)
}

func putInt64(b []byte, v int64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getInt64(b []byte) int64 {
	var v int64
	for i := 0; i < 8; i++ {
		v |= int64(b[i]) << (8 * i)
	}
	return v
}
