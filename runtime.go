// Package oshmpi implements a partitioned global address space (PGAS)
// runtime: one-sided, symmetric-heap shared-memory semantics layered over
// a two-sided message-passing substrate.
//
// The reference design bundles its engines into a runtime context
// constructed by init and reached through a process-wide singleton pointer
// (spec.md §9), which is sound there because each PE is its own OS process.
// This module's test and demo harnesses instead run many PEs as goroutines
// in one process (internal/substrate.Fabric), so a single package-level
// pointer would have every PE silently share PE 0's engines. Init therefore
// returns a context carrying the new runtime handle, and every operation
// below reads it back out of the ctx argument it already needed for
// cancellation — the same "one handle, no explicit threading through call
// sites beyond what's already there" shape as the reference design, adapted
// to this module's concurrency model instead of the reference's
// one-process-per-PE assumption.
package oshmpi

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/jeffhammond/oshmpi-go/internal/activeset"
	"github.com/jeffhammond/oshmpi-go/internal/collengine"
	"github.com/jeffhammond/oshmpi-go/internal/config"
	"github.com/jeffhammond/oshmpi-go/internal/errs"
	"github.com/jeffhammond/oshmpi-go/internal/mcslock"
	"github.com/jeffhammond/oshmpi-go/internal/obslog"
	"github.com/jeffhammond/oshmpi-go/internal/resolve"
	"github.com/jeffhammond/oshmpi-go/internal/rmaengine"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
	"github.com/jeffhammond/oshmpi-go/internal/symheap"
	"github.com/jeffhammond/oshmpi-go/internal/waitengine"
)

// Threading is the threading level init may request, per spec.md §4.10 and
// §6. This runtime only ever grants Single; requesting a stronger level
// than the substrate can provide is a fatal Config error at Init.
type Threading int

const (
	Single Threading = iota
	Funneled
	Serialized
	Multiple
)

type runtime struct {
	sub  substrate.Substrate
	mgr  *symheap.Manager
	rma  *rmaengine.Engine
	wait *waitengine.Engine
	coll *collengine.Engine
	lock *mcslock.Lock
	cfg  config.Config
}

type runtimeKey struct{}

// Options configures Init beyond what environment variables and the
// optional TOML file (internal/config) already cover.
type Options struct {
	// Substrate, if non-nil, is used instead of building a local in-process
	// Fabric-backed substrate. cmd/oshmpi-demo and tests supply this to run
	// several PEs as goroutines sharing one substrate.Fabric.
	Substrate substrate.Substrate

	// ConfigPath is the optional TOML config file (internal/config.Load).
	ConfigPath string

	// Threading is the requested threading level; only Single is granted.
	Threading Threading
}

// Init brings a PE's runtime up: resolves configuration, tunes GOMAXPROCS
// via automaxprocs, builds the symmetric heap and etext windows, and wires
// the active-set, one-sided, wait, collective, and lock engines. The
// returned context carries the new runtime handle; pass it (or a context
// derived from it) to every other function in this package. Init is a
// collective call: every PE must call it with equivalent Options, per
// spec.md §3's SPMD convention.
func Init(ctx context.Context, opts Options) (context.Context, error) {
	if opts.Threading != Single {
		return ctx, errs.NewConfig("threading", fmt.Sprintf("requested level %d exceeds the single-threaded substrate", opts.Threading))
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return ctx, errs.NewConfig("config_path", err.Error())
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	obslog.Configure(level, os.Stderr)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...any) {
		obslog.L().Debug().Msgf(format, a...)
	})); err != nil {
		obslog.L().Warn().Err(err).Msg("automaxprocs: failed to set GOMAXPROCS")
	}

	sub := opts.Substrate
	if sub == nil {
		sub = substrate.NewFabric(1).Local(0)
	}

	mgr, err := symheap.New(ctx, sub, cfg)
	if err != nil {
		return ctx, err
	}

	as := activeset.New(sub)
	rma := rmaengine.New(sub, mgr, cfg.OrderedRMA)
	wait := waitengine.New(sub, mgr)
	coll := collengine.New(sub, as)

	lockBase, err := lockWindowBase(ctx, sub)
	if err != nil {
		return ctx, err
	}
	lock := mcslock.New(sub, lockBase)

	rt := &runtime{
		sub:  sub,
		mgr:  mgr,
		rma:  rma,
		wait: wait,
		coll: coll,
		lock: lock,
		cfg:  cfg,
	}
	obslog.Rank(sub.WorldRank()).Info().Int("world_size", sub.WorldSize()).Msg("oshmpi: init complete")
	return context.WithValue(ctx, runtimeKey{}, rt), nil
}

// lockWindowBase allocates and lock-all's the WindowLock region sized for
// one default MCS lock spanning the whole world, and initializes it per
// spec.md §4.9 ("initialized to (-1,-1)"); SetLock/ClearLock/TestLock
// operate on this default lock.
func lockWindowBase(ctx context.Context, sub substrate.Substrate) (int64, error) {
	n := sub.WorldSize()
	size := mcslock.Size(n)
	buf, err := sub.WinAllocate(ctx, substrate.WindowLock, int(size))
	if err != nil {
		return 0, err
	}
	if err := sub.WinLockAll(substrate.WindowLock); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		putInt64(buf[i*16:], -1)
		putInt64(buf[i*16+8:], 0)
	}
	putInt64(buf[int64(n)*16:], -1)
	return 0, nil
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

// current retrieves the runtime handle Init attached to ctx, panicking if
// this PE never called Init (there is no sensible recovery from issuing an
// operation before Init or after Finalize).
func current(ctx context.Context) *runtime {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok {
		panic("oshmpi: operation called on a context that never went through Init")
	}
	return rt
}

// Finalize tears this PE's runtime down in spec.md §4.3's documented order.
// It is a collective call: every PE must call Finalize with an equivalent
// (same-allocation-history) context before any of them return from it.
func Finalize(ctx context.Context) error {
	r := current(ctx)
	if err := r.sub.WinUnlockAll(substrate.WindowLock); err != nil {
		return err
	}
	if err := r.sub.WinFree(substrate.WindowLock); err != nil {
		return err
	}
	return r.mgr.Teardown(ctx)
}

// GlobalExit unconditionally aborts the substrate with status as its exit
// code, per spec.md §4.10.
func GlobalExit(ctx context.Context, status int) {
	current(ctx).sub.GlobalExit(status)
}

// PESelf returns the calling PE's world rank.
func PESelf(ctx context.Context) int { return current(ctx).sub.WorldRank() }

// PECount returns the world size N.
func PECount(ctx context.Context) int { return current(ctx).sub.WorldSize() }

// PEAccessible reports whether pe is a valid world rank. The reference
// implementation's shmem_pe_accessible tests pe <= size, an off-by-one bug
// (DESIGN.md, spec.md §9); this uses the corrected < size check.
func PEAccessible(ctx context.Context, pe int) bool {
	return pe >= 0 && pe < current(ctx).sub.WorldSize()
}

// AddrAccessible reports whether addr is a symmetric address resolvable
// against pe's bases. Per spec.md §4.4, pe is accepted for interface
// symmetry only; resolution always uses the calling PE's own bases.
func AddrAccessible(ctx context.Context, addr int64, pe int) bool {
	_ = pe
	return resolve.IsSymmetric(current(ctx).mgr, addr)
}
