// Package mcslock implements the MCS-style distributed mutual exclusion
// lock (spec.md §4.9): a symmetric per-PE queue-link array, a spin/release
// flag per PE, and a single global tail, acquired and released entirely
// through remote atomics on the lock window.
//
// Layout within WindowLock, for a Lock covering N PEs starting at offset
// base: for each PE p in [0,N), an 8-byte "next" queue-link slot at
// base+16p (initialized to -1, "no successor registered") followed by an
// 8-byte "release" spin flag at base+16p+8 (initialized to 0, "not
// waiting"); after all N pairs, one more 8-byte "tail" slot holding the
// world rank of the PE currently at the back of the queue, or -1 if the
// lock is unheld. spec.md §4.9 places the tail at "lock[0].prev by
// convention" and describes the release signal as living at "a well-known
// per-PE spin location" distinct from the queue-link field itself — this
// layout keeps both in the same window for simplicity rather than
// splitting the spin flag into the sheap region, which carries no
// semantic difference here since this runtime has no separate
// registration cost between windows.
package mcslock

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jeffhammond/oshmpi-go/internal/elemtype"
	"github.com/jeffhammond/oshmpi-go/internal/substrate"
)

const (
	unheld       int64 = -1
	noSuccessor  int64 = -1
	notWaiting   int64 = 0
	releaseSignal int64 = 1
)

// Lock is one symmetric MCS lock instance.
type Lock struct {
	sub   substrate.Substrate
	base  int64 // byte offset of PE 0's "next" slot within WindowLock
	n     int   // number of PEs this lock spans (always world size)
}

// New describes the lock instance occupying 16*N+8 bytes of WindowLock
// starting at base. The caller (root package lifecycle wiring) must have
// zero-initialized the "next" slots to -1, the "release" flags to 0, and
// the tail slot to -1 before any PE calls Lock — spec.md §4.9's "initialized
// to (-1,-1)".
func New(sub substrate.Substrate, base int64) *Lock {
	return &Lock{sub: sub, base: base, n: sub.WorldSize()}
}

// Size reports the number of WindowLock bytes one Lock instance occupies
// for a world of n PEs, for callers laying out multiple locks in one
// window.
func Size(n int) int64 { return int64(n)*16 + 8 }

func (l *Lock) nextOffset(pe int) int64    { return l.base + int64(pe)*16 }
func (l *Lock) releaseOffset(pe int) int64 { return l.base + int64(pe)*16 + 8 }
func (l *Lock) tailOffset() int64          { return l.base + int64(l.n)*16 }

func (l *Lock) readLocalInt64(w substrate.Window, pe int, offset int64) (int64, error) {
	if err := l.sub.WinSync(w); err != nil {
		return 0, err
	}
	base, ok := l.sub.LocalBase(w, pe)
	if !ok {
		return 0, fmt.Errorf("mcslock: no local base for lock window on pe %d", pe)
	}
	return elemtype.FromBytes[int64](base[offset : offset+8])[0], nil
}

func (l *Lock) remoteWrite(ctx context.Context, pe int, offset int64, v int64) error {
	buf := []int64{v}
	if err := l.sub.Accumulate(ctx, substrate.WindowLock, pe, offset, substrate.Int64, substrate.OpReplace, elemtype.Bytes(buf)); err != nil {
		return err
	}
	return l.sub.WinFlush(substrate.WindowLock, pe)
}

// Lock blocks until this PE holds the lock: swap into the tail, and if a
// predecessor existed, mark itself waiting, register as the predecessor's
// successor, then spin on its own release flag.
func (l *Lock) Lock(ctx context.Context) error {
	self := l.sub.WorldRank()
	rank := int64(self)

	swapBuf := []int64{rank}
	prevRaw, err := l.sub.GetAccumulate(ctx, substrate.WindowLock, 0, l.tailOffset(), substrate.Int64, substrate.OpReplace, elemtype.Bytes(swapBuf))
	if err != nil {
		return fmt.Errorf("mcslock: swap tail: %w", err)
	}
	if err := l.sub.WinFlush(substrate.WindowLock, 0); err != nil {
		return err
	}
	prev := elemtype.FromBytes[int64](prevRaw)[0]
	if prev == unheld {
		return nil
	}

	if err := l.remoteWrite(ctx, self, l.releaseOffset(self), releaseSignal); err != nil {
		return fmt.Errorf("mcslock: mark waiting: %w", err)
	}
	if err := l.remoteWrite(ctx, int(prev), l.nextOffset(int(prev)), rank); err != nil {
		return fmt.Errorf("mcslock: publish successor: %w", err)
	}

	for {
		v, err := l.readLocalInt64(substrate.WindowLock, self, l.releaseOffset(self))
		if err != nil {
			return err
		}
		if v == notWaiting {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
}

// Unlock releases the lock: try to CAS the tail back to unheld; on
// failure, a successor is registering (or already has), so wait for its
// rank to appear in this PE's "next" slot and hand off directly.
func (l *Lock) Unlock(ctx context.Context) error {
	self := l.sub.WorldRank()
	rank := int64(self)

	next, err := l.readLocalInt64(substrate.WindowLock, self, l.nextOffset(self))
	if err != nil {
		return err
	}
	if next == noSuccessor {
		expected := []int64{rank}
		newVal := []int64{unheld}
		oldRaw, err := l.sub.CompareAndSwap(ctx, substrate.WindowLock, 0, l.tailOffset(), substrate.Int64, elemtype.Bytes(expected), elemtype.Bytes(newVal))
		if err != nil {
			return fmt.Errorf("mcslock: cas tail on unlock: %w", err)
		}
		if err := l.sub.WinFlush(substrate.WindowLock, 0); err != nil {
			return err
		}
		if elemtype.FromBytes[int64](oldRaw)[0] == rank {
			return nil
		}
	}

	successor, err := l.waitForSuccessor(ctx, self)
	if err != nil {
		return err
	}
	if err := l.remoteWrite(ctx, int(successor), l.releaseOffset(int(successor)), notWaiting); err != nil {
		return fmt.Errorf("mcslock: signal successor: %w", err)
	}
	// Reset this PE's own next slot so a future Lock call starts clean.
	return l.remoteWrite(ctx, self, l.nextOffset(self), noSuccessor)
}

func (l *Lock) waitForSuccessor(ctx context.Context, self int) (int64, error) {
	for {
		next, err := l.readLocalInt64(substrate.WindowLock, self, l.nextOffset(self))
		if err != nil {
			return 0, err
		}
		if next != noSuccessor {
			return next, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		runtime.Gosched()
	}
}

// TryLock attempts the non-blocking path: CAS the tail from unheld to this
// PE, altering no other state either way.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	rank := int64(l.sub.WorldRank())
	expected := []int64{unheld}
	newVal := []int64{rank}
	oldRaw, err := l.sub.CompareAndSwap(ctx, substrate.WindowLock, 0, l.tailOffset(), substrate.Int64, elemtype.Bytes(expected), elemtype.Bytes(newVal))
	if err != nil {
		return false, fmt.Errorf("mcslock: cas tail on trylock: %w", err)
	}
	if err := l.sub.WinFlush(substrate.WindowLock, 0); err != nil {
		return false, err
	}
	return elemtype.FromBytes[int64](oldRaw)[0] == unheld, nil
}
