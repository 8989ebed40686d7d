package mounts

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrMountTimeout is returned when a requested mount never appears in the
// mount table within the polling window.
var ErrMountTimeout = errors.New("mount did not appear in time")

// StateObserver is the mount-table view the Executor polls.
type StateObserver interface {
	Observe(ctx context.Context) ([]Mount, error)
}

// Executor issues a mount request for a chosen endpoint and polls until it
// lands, compensating for the OS substituting a numbered path.
type Executor struct {
	mounter     Mounter
	observer    StateObserver
	cleaner     *Cleaner
	share       string
	canonical   string
	maxVariants int

	pollInterval time.Duration
	pollAttempts int

	logger zerolog.Logger
}

// NewExecutor creates an Executor for the share at its canonical mount path.
func NewExecutor(mounter Mounter, observer StateObserver, cleaner *Cleaner, share, canonical string, logger zerolog.Logger) *Executor {
	return &Executor{
		mounter:      mounter,
		observer:     observer,
		cleaner:      cleaner,
		share:        share,
		canonical:    canonical,
		maxVariants:  4,
		pollInterval: 1 * time.Second,
		pollAttempts: 20,
		logger:       logger.With().Str("component", "executor").Logger(),
	}
}

// MountAndWait requests a mount via the given host and polls the mount table
// until the share appears anywhere. Landing at a numbered variant still
// counts as success here; consolidation happens on a later pass.
//
// On poll timeout the mount table is checked once more: the OS sometimes
// completes a mount slightly after the request returns, at a path that was
// not asked for. Such a late wrong-path mount is unmounted, the candidate
// paths precleaned, and the request retried once before giving up.
func (e *Executor) MountAndWait(ctx context.Context, host string) error {
	if err := e.mounter.RequestMount(ctx, host, e.share, e.canonical); err != nil {
		return err
	}
	if e.waitForMount(ctx) {
		return nil
	}

	set, err := e.observer.Observe(ctx)
	if err != nil || len(set) == 0 {
		return ErrMountTimeout
	}

	// The mount landed late. At the canonical path that is plain success.
	for _, m := range set {
		if m.Path == e.canonical {
			return nil
		}
	}

	e.logger.Warn().Str("path", set[0].Path).Msg("mount landed at wrong path, correcting")
	for _, m := range set {
		if err := e.mounter.Unmount(ctx, m.Path); err != nil {
			e.logger.Warn().Str("path", m.Path).Err(err).Msg("unmount of misplaced mount failed")
		}
	}

	e.cleaner.Preclean(CandidatePaths(e.canonical, e.maxVariants), nil)
	if err := e.cleaner.CheckStaleBlocking(e.canonical, false); err != nil {
		return err
	}

	if err := e.mounter.RequestMount(ctx, host, e.share, e.canonical); err != nil {
		return err
	}
	if e.waitForMount(ctx) {
		return nil
	}
	return ErrMountTimeout
}

// Unmount detaches the share instance mounted at path.
func (e *Executor) Unmount(ctx context.Context, path string) error {
	return e.mounter.Unmount(ctx, path)
}

// waitForMount polls the mount table until the share appears anywhere, for
// up to pollAttempts intervals.
func (e *Executor) waitForMount(ctx context.Context) bool {
	for i := 0; i < e.pollAttempts; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.pollInterval):
		}

		set, err := e.observer.Observe(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Msg("observe failed while waiting for mount")
			continue
		}
		if len(set) > 0 {
			e.logger.Info().Str("path", set[0].Path).Str("source", set[0].Source).Msg("mount landed")
			return true
		}
	}
	return false
}
