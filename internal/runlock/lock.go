// Package runlock provides advisory mutual exclusion between reconciliation
// passes, with staleness recovery for crashed invocations.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultStaleAfter is how old a lock marker may get before a new invocation
// may reclaim it. A crashed pass self-heals after this window instead of
// deadlocking all future runs.
const DefaultStaleAfter = 120 * time.Second

// Lock is a filesystem-visible exclusive marker owned by one invocation.
type Lock struct {
	path       string
	staleAfter time.Duration
	acquired   bool
	logger     zerolog.Logger
}

// New creates a Lock at the given marker path.
func New(path string, logger zerolog.Logger) *Lock {
	return &Lock{
		path:       path,
		staleAfter: DefaultStaleAfter,
		logger:     logger.With().Str("component", "runlock").Logger(),
	}
}

// Acquire attempts to atomically create the lock marker. It returns false
// when another invocation holds a fresh lock; the caller should exit as a
// benign no-op. A marker older than the staleness threshold is forcibly
// removed and creation retried once.
func (l *Lock) Acquire(runID uuid.UUID) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}

	created, err := l.tryCreate(runID)
	if err != nil {
		return false, err
	}
	if created {
		return true, nil
	}

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			// The holder released between our create and stat.
			return l.tryCreate(runID)
		}
		return false, fmt.Errorf("stat lock marker: %w", err)
	}

	age := time.Since(info.ModTime())
	if age <= l.staleAfter {
		l.logger.Debug().Dur("age", age).Msg("another reconciliation pass holds the lock")
		return false, nil
	}

	l.logger.Warn().Str("path", l.path).Dur("age", age).Msg("reclaiming stale run lock")
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove stale lock marker: %w", err)
	}
	return l.tryCreate(runID)
}

// Release removes the lock marker. Safe to call on every exit path,
// including when Acquire returned false.
func (l *Lock) Release() {
	if !l.acquired {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn().Str("path", l.path).Err(err).Msg("failed to remove run lock")
		return
	}
	l.acquired = false
}

func (l *Lock) tryCreate(runID uuid.UUID) (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("create lock marker: %w", err)
	}

	fmt.Fprintf(f, "%d %s %s\n", os.Getpid(), runID, time.Now().Format(time.RFC3339))
	f.Close()

	l.acquired = true
	return true, nil
}
