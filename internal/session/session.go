// Package session preserves a user's open file-browser locations across
// disruptive remounts. This is cosmetic state recovery: every operation is
// best-effort and must never affect the reconciliation result.
package session

import (
	"context"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// Snapshot is an ordered collection of window groups, each an ordered list
// of absolute paths that were open under the old mount path.
type Snapshot struct {
	Windows [][]string
}

// Empty reports whether the snapshot captured nothing.
func (s Snapshot) Empty() bool {
	for _, w := range s.Windows {
		if len(w) > 0 {
			return false
		}
	}
	return true
}

// Preserver captures and restores open browse locations under a mount
// prefix. Implementations must swallow their own failures.
type Preserver interface {
	// Capture enumerates open locations whose path starts with prefix,
	// grouped by originating window. Any failure yields an empty snapshot.
	Capture(ctx context.Context, prefix string) Snapshot
	// Restore re-opens the snapshot's paths with oldPrefix rewritten to
	// newPrefix, dropping paths that no longer exist. The first path of a
	// group opens a new window; the rest open as tabs in it.
	Restore(ctx context.Context, snap Snapshot, oldPrefix, newPrefix string)
}

// New returns the platform's Preserver: Finder-backed on macOS, a no-op
// elsewhere.
func New(logger zerolog.Logger) Preserver {
	if runtime.GOOS == "darwin" {
		return NewFinderPreserver(logger)
	}
	return NoopPreserver{}
}

// NoopPreserver is used on platforms without a UI-automation channel.
type NoopPreserver struct{}

func (NoopPreserver) Capture(context.Context, string) Snapshot        { return Snapshot{} }
func (NoopPreserver) Restore(context.Context, Snapshot, string, string) {}

// Remap rewrites every captured path from oldPrefix to newPrefix and drops
// paths that fail the exists check, preserving window grouping and order.
// Groups left with no surviving paths are dropped.
func Remap(snap Snapshot, oldPrefix, newPrefix string, exists func(string) bool) Snapshot {
	var out Snapshot
	for _, window := range snap.Windows {
		var kept []string
		for _, path := range window {
			if !strings.HasPrefix(path, oldPrefix) {
				continue
			}
			mapped := newPrefix + strings.TrimPrefix(path, oldPrefix)
			if !exists(mapped) {
				continue
			}
			kept = append(kept, mapped)
		}
		if len(kept) > 0 {
			out.Windows = append(out.Windows, kept)
		}
	}
	return out
}

// statExists is the production exists check for Remap.
func statExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
