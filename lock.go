package oshmpi

import (
	"context"

	"github.com/jeffhammond/oshmpi-go/internal/obslog"
)

// SetLock acquires the runtime's default world-spanning MCS distributed
// lock, blocking until held.
func SetLock(ctx context.Context) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "set_lock", func() error {
		return r.lock.Lock(ctx)
	})
}

// ClearLock releases the default distributed lock.
func ClearLock(ctx context.Context) error {
	r := current(ctx)
	return obslog.Trace(r.sub.WorldRank(), "clear_lock", func() error {
		return r.lock.Unlock(ctx)
	})
}

// TestLock attempts to acquire the default distributed lock without
// blocking, returning whether it was acquired.
func TestLock(ctx context.Context) (bool, error) {
	r := current(ctx)
	var acquired bool
	err := obslog.Trace(r.sub.WorldRank(), "test_lock", func() error {
		var traceErr error
		acquired, traceErr = r.lock.TryLock(ctx)
		return traceErr
	})
	return acquired, err
}
