package symheap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
)

// envSizeVars is the ordered fallback list spec.md §4.3 specifies for the
// symmetric heap size override; the first one set wins.
var envSizeVars = []string{
	"SHMEM_SYMMETRIC_HEAP_SIZE",
	"SMA_SYMMETRIC_SIZE",
	"SYMMETRIC_SIZE",
	"X1_SYMMETRIC_HEAP_SIZE",
	"XT_SYMMETRIC_HEAP_SIZE",
	"OOSHM_SYMMETRIC_HEAP_SIZE",
}

const (
	defaultHeapSize = 100_000_000 // 10^8 bytes, spec.md §4.3's fallback
	maxHeapSize     = 1<<31 - 1   // spec.md's 2^31 cap
)

// resolveHeapSize determines S per spec.md §4.3: first matching env var
// (decimal, optionally K/M/G suffixed), else a memory-derived estimate
// divided across ppn processes per node, capped at 2^31, else the 10^8
// default. override, when non-zero, takes precedence over everything
// (internal/config's HeapSizeOverride, wired by the caller).
func resolveHeapSize(override int64, ppn int, lookup func(string) (string, bool)) (int64, error) {
	if override > 0 {
		return override, nil
	}
	for _, name := range envSizeVars {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		n, err := parseSizeString(v)
		if err != nil {
			return 0, fmt.Errorf("symheap: %s=%q: %w", name, v, err)
		}
		return n, nil
	}
	if ppn <= 0 {
		ppn = 1
	}
	// pbnjay/memory's FreeMemory reports free system memory in bytes, which
	// stands in for "pages_free * page_size"; it returns 0 where the
	// platform exposes no such figure, and then the 10^8 default applies.
	free := memory.FreeMemory()
	if free == 0 {
		return defaultHeapSize, nil
	}
	estimate := int64(free) / int64(ppn)
	if estimate <= 0 || estimate > maxHeapSize {
		return maxHeapSize, nil
	}
	return estimate, nil
}

// parseSizeString parses a decimal integer with an optional K/M/G suffix
// (multipliers 1e3/1e6/1e9, per spec.md §4.3 — not binary Ki/Mi/Gi).
func parseSizeString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch suffix := s[len(s)-1]; suffix {
	case 'K', 'k':
		mult = 1_000
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1_000_000
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1_000_000_000
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	return n * mult, nil
}

func osLookup(name string) (string, bool) { return os.LookupEnv(name) }
