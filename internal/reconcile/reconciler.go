// Package reconcile drives the mount reconciliation state machine: it
// compares the observed OS mount state against the desired state (the share
// mounted exactly once, at the canonical path, via the best reachable
// endpoint) and takes at most one corrective action sequence per pass.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/mountguard/internal/mounts"
	"github.com/MacJediWizard/mountguard/internal/netcheck"
	"github.com/MacJediWizard/mountguard/internal/session"
)

// ErrNoEndpoint is returned when no candidate endpoint is reachable.
var ErrNoEndpoint = errors.New("no endpoint reachable")

// Outcome labels a pass for logs and the history journal.
type Outcome string

const (
	// OutcomeNoop: already mounted at the canonical path via the best endpoint.
	OutcomeNoop Outcome = "noop"
	// OutcomeMounted: mounted from scratch.
	OutcomeMounted Outcome = "mounted"
	// OutcomeSwitched: remounted via a better-ranked endpoint.
	OutcomeSwitched Outcome = "switched"
	// OutcomeRemounted: preferred switch failed, remounted via the original endpoint.
	OutcomeRemounted Outcome = "remounted"
	// OutcomeConsolidated: variant mounts collapsed into the canonical path.
	OutcomeConsolidated Outcome = "consolidated"
	// OutcomeUnreachable: no endpoint reachable, nothing mounted.
	OutcomeUnreachable Outcome = "unreachable"
	// OutcomeBlocked: a non-removable stale directory occupies the mount point.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeFailed: all mount attempts failed.
	OutcomeFailed Outcome = "failed"
)

// Result describes one reconciliation pass.
type Result struct {
	RunID      uuid.UUID
	Outcome    Outcome
	Endpoint   string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Success reports whether the pass ended in success or a benign no-op.
func (r Result) Success() bool {
	return r.Err == nil
}

// Observer reports the share's current mounts.
type Observer interface {
	Observe(ctx context.Context) ([]mounts.Mount, error)
	CurrentRemoteHost(ctx context.Context, path string) (string, error)
}

// Executor performs mount attempts and unmounts.
type Executor interface {
	MountAndWait(ctx context.Context, host string) error
	Unmount(ctx context.Context, path string) error
}

// Cleaner removes stale leftover directories at candidate mount paths.
type Cleaner interface {
	Preclean(paths []string, active map[string]bool)
	CheckStaleBlocking(path string, active bool) error
}

// EndpointSelector picks reachable endpoints in priority order.
type EndpointSelector interface {
	SelectReachable(ctx context.Context, endpoints []netcheck.Endpoint) (netcheck.Endpoint, int, bool)
	Reachable(ctx context.Context, host string) bool
}

// OutageNotifier rate-limits unreachable notifications across passes.
type OutageNotifier interface {
	LogUnreachableOnce(hosts []string)
	Clear()
}

// Options configures a Reconciler.
type Options struct {
	// MountPoint is the canonical local mount path.
	MountPoint string
	// Share is the share name as it appears in remote sources.
	Share string
	// LocalHosts are the LAN endpoints, in preference order.
	LocalHosts []string
	// VPNPeer is resolved to an address each pass; empty disables it.
	VPNPeer string
	// VPNFallback is the last-known VPN address, ranked last.
	VPNFallback string
	// MaxVariants bounds the numbered variant paths considered. Default 4.
	MaxVariants int
}

func (o Options) maxVariants() int {
	if o.MaxVariants > 0 {
		return o.MaxVariants
	}
	return 4
}

// Deps are the collaborators a Reconciler drives.
type Deps struct {
	Observer Observer
	Executor Executor
	Cleaner  Cleaner
	Selector EndpointSelector
	// Resolver resolves the VPN peer; may be nil when no VPN peer is configured.
	Resolver netcheck.PeerResolver
	Sessions session.Preserver
	Notifier OutageNotifier
}

// Reconciler reconciles observed mount state against the desired state.
// It holds no mount state between passes; the OS mount table is the single
// source of truth, re-observed fresh each Run.
type Reconciler struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger
}

// New creates a Reconciler.
func New(opts Options, deps Deps, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		opts:   opts,
		deps:   deps,
		logger: logger.With().Str("component", "reconciler").Logger(),
	}
}

// Run performs one reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) Result {
	res := Result{RunID: uuid.New(), StartedAt: time.Now()}
	logger := r.logger.With().Str("run_id", res.RunID.String()).Logger()

	defer func() {
		res.FinishedAt = time.Now()
	}()

	set, err := r.deps.Observer.Observe(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("observe mounts: %w", err)
		return res
	}

	endpoints := r.rankedEndpoints(ctx, logger)

	switch {
	case len(set) == 0:
		r.runIdle(ctx, logger, endpoints, &res)
	case allAtCanonical(set, r.opts.MountPoint):
		r.runCorrect(ctx, logger, endpoints, &res)
	default:
		r.runMisplaced(ctx, logger, set, endpoints, &res)
	}

	return res
}

// runIdle handles the nothing-mounted state: clean up leftovers and mount
// via the best reachable endpoint.
func (r *Reconciler) runIdle(ctx context.Context, logger zerolog.Logger, endpoints []netcheck.Endpoint, res *Result) {
	logger.Info().Msg("share not mounted, attempting mount")

	r.deps.Cleaner.Preclean(r.candidatePaths(), nil)
	if err := r.deps.Cleaner.CheckStaleBlocking(r.opts.MountPoint, false); err != nil {
		res.Outcome = OutcomeBlocked
		res.Err = err
		return
	}

	ep, err := r.mountViaBest(ctx, logger, endpoints)
	if err != nil {
		r.recordMountFailure(res, err)
		return
	}

	r.deps.Notifier.Clear()
	res.Outcome = OutcomeMounted
	res.Endpoint = ep.Host
	logger.Info().Str("endpoint", ep.Host).Msg("share mounted")
}

// runCorrect handles the already-correct state: a no-op unless a
// better-ranked endpoint has become reachable, in which case the mount is
// switched over, falling back to the original endpoint rather than leaving
// the user disconnected.
func (r *Reconciler) runCorrect(ctx context.Context, logger zerolog.Logger, endpoints []netcheck.Endpoint, res *Result) {
	current, err := r.deps.Observer.CurrentRemoteHost(ctx, r.opts.MountPoint)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot determine current endpoint, leaving mount alone")
		res.Outcome = OutcomeNoop
		return
	}

	best, _, ok := r.deps.Selector.SelectReachable(ctx, endpoints)
	if !ok || strings.EqualFold(best.Host, current) {
		res.Outcome = OutcomeNoop
		res.Endpoint = current
		return
	}

	logger.Info().Str("current", current).Str("preferred", best.Host).Msg("better endpoint reachable, switching")

	snap := r.deps.Sessions.Capture(ctx, r.opts.MountPoint)

	if err := r.deps.Executor.Unmount(ctx, r.opts.MountPoint); err != nil {
		// The switch is an optimization; keep the working mount.
		logger.Warn().Err(err).Msg("unmount for endpoint switch failed, keeping current mount")
		res.Outcome = OutcomeNoop
		res.Endpoint = current
		return
	}

	r.deps.Cleaner.Preclean(r.candidatePaths(), nil)

	if err := r.deps.Executor.MountAndWait(ctx, best.Host); err != nil {
		logger.Warn().Str("endpoint", best.Host).Err(err).Msg("preferred remount failed, falling back to original endpoint")

		// The original endpoint served this mount moments ago; remount
		// through it without re-probing.
		if err := r.deps.Executor.MountAndWait(ctx, current); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("remount via %s and fallback via %s both failed: %w", best.Host, current, err)
			return
		}

		r.deps.Notifier.Clear()
		r.deps.Sessions.Restore(ctx, snap, r.opts.MountPoint, r.opts.MountPoint)
		res.Outcome = OutcomeRemounted
		res.Endpoint = current
		logger.Info().Str("endpoint", current).Msg("remounted via original endpoint")
		return
	}

	r.deps.Notifier.Clear()
	r.deps.Sessions.Restore(ctx, snap, r.opts.MountPoint, r.opts.MountPoint)
	res.Outcome = OutcomeSwitched
	res.Endpoint = best.Host
	logger.Info().Str("endpoint", best.Host).Msg("switched to preferred endpoint")
}

// runMisplaced handles mounts at numbered variant paths: unmount every
// instance, clean up, and mount fresh at the canonical path. Variants are
// never reused, even in part, so the remediation path stays single and
// auditable.
func (r *Reconciler) runMisplaced(ctx context.Context, logger zerolog.Logger, set []mounts.Mount, endpoints []netcheck.Endpoint, res *Result) {
	variant := set[0].Path
	for _, m := range set {
		if m.Path != r.opts.MountPoint {
			variant = m.Path
			break
		}
	}
	logger.Warn().Int("instances", len(set)).Str("variant", variant).Msg("share mounted at wrong path, consolidating")

	// Windows may be open under any of the instances, the canonical path
	// included in the mixed state; snapshot each prefix separately.
	type pathSnap struct {
		path string
		snap session.Snapshot
	}
	var snaps []pathSnap
	seen := map[string]bool{}
	for _, m := range set {
		if seen[m.Path] {
			continue
		}
		seen[m.Path] = true
		snaps = append(snaps, pathSnap{path: m.Path, snap: r.deps.Sessions.Capture(ctx, m.Path)})
	}

	for _, m := range set {
		if err := r.deps.Executor.Unmount(ctx, m.Path); err != nil {
			logger.Warn().Str("path", m.Path).Err(err).Msg("unmount failed")
		}
	}

	// A surviving instance would satisfy the fresh mount's poll on its own
	// and leave the share where it was. Fail the pass instead and let the
	// next invocation retry from a clean observation.
	remaining, err := r.deps.Observer.Observe(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("re-observe after unmount: %w", err)
		return
	}
	if len(remaining) > 0 {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("share still mounted at %s after unmount, deferring to next pass", remaining[0].Path)
		return
	}

	r.deps.Cleaner.Preclean(r.candidatePaths(), nil)
	if err := r.deps.Cleaner.CheckStaleBlocking(r.opts.MountPoint, false); err != nil {
		res.Outcome = OutcomeBlocked
		res.Err = err
		return
	}

	ep, err := r.mountViaBest(ctx, logger, endpoints)
	if err != nil {
		r.recordMountFailure(res, err)
		return
	}

	r.deps.Notifier.Clear()
	for _, ps := range snaps {
		if ps.snap.Empty() {
			continue
		}
		r.deps.Sessions.Restore(ctx, ps.snap, ps.path, r.opts.MountPoint)
	}
	res.Outcome = OutcomeConsolidated
	res.Endpoint = ep.Host
	logger.Info().Str("endpoint", ep.Host).Msg("share consolidated at canonical path")
}

// mountViaBest mounts through the highest-priority reachable endpoint,
// falling through to lower-ranked reachable endpoints when an attempt fails.
func (r *Reconciler) mountViaBest(ctx context.Context, logger zerolog.Logger, endpoints []netcheck.Endpoint) (netcheck.Endpoint, error) {
	ep, idx, ok := r.deps.Selector.SelectReachable(ctx, endpoints)
	if !ok {
		r.deps.Notifier.LogUnreachableOnce(hostsOf(endpoints))
		return netcheck.Endpoint{}, ErrNoEndpoint
	}

	err := r.deps.Executor.MountAndWait(ctx, ep.Host)
	if err == nil {
		return ep, nil
	}
	if errors.Is(err, mounts.ErrStaleBlocked) {
		return netcheck.Endpoint{}, err
	}
	logger.Warn().Str("endpoint", ep.Host).Err(err).Msg("mount attempt failed, trying next endpoint")

	for i := idx + 1; i < len(endpoints); i++ {
		if !r.deps.Selector.Reachable(ctx, endpoints[i].Host) {
			continue
		}
		err = r.deps.Executor.MountAndWait(ctx, endpoints[i].Host)
		if err == nil {
			return endpoints[i], nil
		}
		if errors.Is(err, mounts.ErrStaleBlocked) {
			return netcheck.Endpoint{}, err
		}
		logger.Warn().Str("endpoint", endpoints[i].Host).Err(err).Msg("mount attempt failed")
	}

	return netcheck.Endpoint{}, fmt.Errorf("all reachable endpoints failed to mount: %w", err)
}

// rankedEndpoints builds the fixed priority list for this pass:
// local names first, then the dynamically resolved VPN address, then the
// last-known VPN address.
func (r *Reconciler) rankedEndpoints(ctx context.Context, logger zerolog.Logger) []netcheck.Endpoint {
	var endpoints []netcheck.Endpoint
	for i, host := range r.opts.LocalHosts {
		endpoints = append(endpoints, netcheck.Endpoint{Name: fmt.Sprintf("local-%d", i+1), Host: host})
	}

	if r.opts.VPNPeer != "" && r.deps.Resolver != nil {
		ip, err := r.deps.Resolver.Resolve(ctx, r.opts.VPNPeer)
		if err != nil {
			logger.Debug().Str("peer", r.opts.VPNPeer).Err(err).Msg("vpn peer resolution failed")
		} else {
			endpoints = append(endpoints, netcheck.Endpoint{Name: "vpn", Host: ip})
		}
	}

	if r.opts.VPNFallback != "" && !containsHost(endpoints, r.opts.VPNFallback) {
		endpoints = append(endpoints, netcheck.Endpoint{Name: "vpn-fallback", Host: r.opts.VPNFallback})
	}

	return endpoints
}

func (r *Reconciler) candidatePaths() []string {
	return mounts.CandidatePaths(r.opts.MountPoint, r.opts.maxVariants())
}

func (r *Reconciler) recordMountFailure(res *Result, err error) {
	switch {
	case errors.Is(err, ErrNoEndpoint):
		res.Outcome = OutcomeUnreachable
	case errors.Is(err, mounts.ErrStaleBlocked):
		res.Outcome = OutcomeBlocked
	default:
		res.Outcome = OutcomeFailed
	}
	res.Err = err
}

func allAtCanonical(set []mounts.Mount, canonical string) bool {
	for _, m := range set {
		if m.Path != canonical {
			return false
		}
	}
	return true
}

func containsHost(endpoints []netcheck.Endpoint, host string) bool {
	for _, ep := range endpoints {
		if strings.EqualFold(ep.Host, host) {
			return true
		}
	}
	return false
}

func hostsOf(endpoints []netcheck.Endpoint) []string {
	hosts := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		hosts = append(hosts, ep.Host)
	}
	return hosts
}
