package netcheck

import (
	"context"

	"github.com/rs/zerolog"
)

// Endpoint is one candidate network location for the share.
type Endpoint struct {
	// Name labels the endpoint in logs ("local-1", "vpn", ...).
	Name string
	// Host is the hostname or address probed and mounted through.
	Host string
}

// ReachabilityProber is the connectivity check used by the Selector.
type ReachabilityProber interface {
	Reachable(ctx context.Context, host string) bool
}

// Selector picks the first reachable endpoint from a ranked list.
// The list is a preference order, not a pool: no randomness, no balancing.
type Selector struct {
	prober ReachabilityProber
	logger zerolog.Logger
}

// NewSelector creates a Selector backed by the given prober.
func NewSelector(prober ReachabilityProber, logger zerolog.Logger) *Selector {
	return &Selector{
		prober: prober,
		logger: logger.With().Str("component", "selector").Logger(),
	}
}

// SelectReachable returns the first endpoint in rank order whose host is
// reachable, along with its index in the list. ok is false when none are.
func (s *Selector) SelectReachable(ctx context.Context, endpoints []Endpoint) (Endpoint, int, bool) {
	for i, ep := range endpoints {
		if s.prober.Reachable(ctx, ep.Host) {
			s.logger.Debug().Str("endpoint", ep.Name).Str("host", ep.Host).Msg("endpoint reachable")
			return ep, i, true
		}
	}
	return Endpoint{}, -1, false
}

// Reachable probes a single host.
func (s *Selector) Reachable(ctx context.Context, host string) bool {
	return s.prober.Reachable(ctx, host)
}
