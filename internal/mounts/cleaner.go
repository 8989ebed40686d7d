package mounts

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// ErrStaleBlocked reports a leftover directory at the canonical mount path
// that could not be removed. Mounting over it would make the OS create a
// numbered variant, so the pass must stop and ask for manual cleanup.
var ErrStaleBlocked = errors.New("stale directory blocks mount point")

// Cleaner removes empty leftover directories at candidate mount paths.
type Cleaner struct {
	logger zerolog.Logger
}

// NewCleaner creates a Cleaner.
func NewCleaner(logger zerolog.Logger) *Cleaner {
	return &Cleaner{logger: logger.With().Str("component", "cleaner").Logger()}
}

// Preclean opportunistically removes each candidate path that is not an
// active mount. Failures (non-empty directory, permission denied) are
// ignored; cleanup here is not authoritative.
func (c *Cleaner) Preclean(paths []string, active map[string]bool) {
	for _, path := range paths {
		if active[path] {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			c.logger.Debug().Str("path", path).Err(err).Msg("preclean skipped")
			continue
		}
		c.logger.Info().Str("path", path).Msg("removed stale mount directory")
	}
}

// CheckStaleBlocking verifies that path is free for a clean mount. A
// directory that exists but is not mounted is a stale leftover; removal is
// attempted once, and a failure is fatal for the current pass because
// automated privileged removal is unsafe.
func (c *Cleaner) CheckStaleBlocking(path string, active bool) error {
	if active {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		// Nothing there, nothing blocking.
		return nil
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s exists and is not a directory; remove it manually", ErrStaleBlocked, path)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: %s could not be removed (%v); remove it manually with elevated privileges, e.g. `sudo rmdir %s`", ErrStaleBlocked, path, err, path)
	}

	c.logger.Info().Str("path", path).Msg("removed stale directory blocking mount point")
	return nil
}
