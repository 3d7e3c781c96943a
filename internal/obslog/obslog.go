// Package obslog is the runtime's single logging/profiling seam. It wraps
// zerolog (the teacher's logiface-zerolog sink) rather than exposing a
// pluggable facade: this runtime only ever writes structured logs to
// stderr, so the extra abstraction the teacher's logiface package builds
// for swappable backends has no job to do here.
package obslog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
)

// Configure replaces the process-wide logger's level and output writer.
// Called once from lifecycle Init, after config is loaded.
func Configure(level zerolog.Level, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// L returns the current process-wide logger.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &logger
}

// Rank tags the logger with a PE rank as a structured "pe" field. It does
// not prefix the message; Fatalf is the one that writes the
// "[<rank>] <message>" line.
func Rank(pe int) zerolog.Logger {
	return L().With().Int("pe", pe).Logger()
}

// Fatalf logs a rank-tagged fatal diagnostic in the exact shape spec.md §6
// requires ("[<rank>] <message>") before the caller aborts the substrate.
func Fatalf(pe int, format string, args ...any) {
	L().Error().Msgf("[%d] "+format, append([]any{pe}, args...)...)
}

// Trace wraps a single C5/C8/C9 entry point, recording its duration and
// error at debug level. This is the one surviving seam from the reference
// implementation's per-type pshmem profiling interposition (SPEC_FULL.md
// §4.5): one hook, not one per typed symbol.
func Trace(pe int, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	ev := L().Debug().Int("pe", pe).Str("op", op).Dur("elapsed", time.Since(start))
	if err != nil {
		ev.Err(err).Msg("op failed")
	} else {
		ev.Msg("op complete")
	}
	return err
}
