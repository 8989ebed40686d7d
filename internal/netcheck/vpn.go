package netcheck

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PeerResolver resolves a VPN peer name to its current address.
type PeerResolver interface {
	Resolve(ctx context.Context, peer string) (string, error)
}

// TailscaleResolver queries the local tailscale daemon for a peer's address.
type TailscaleResolver struct {
	binary  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewTailscaleResolver creates a resolver using the tailscale CLI.
func NewTailscaleResolver(logger zerolog.Logger) *TailscaleResolver {
	return &TailscaleResolver{
		binary:  "tailscale",
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "vpn_resolver").Logger(),
	}
}

// Resolve returns the peer's IPv4 address, or an error when the peer is
// unknown or the daemon is not running.
func (r *TailscaleResolver) Resolve(ctx context.Context, peer string) (string, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := exec.CommandContext(resolveCtx, r.binary, "ip", "-4", peer).Output()
	if err != nil {
		return "", fmt.Errorf("resolve vpn peer %q: %w", peer, err)
	}

	ip := strings.TrimSpace(string(output))
	if ip == "" {
		return "", fmt.Errorf("vpn peer %q has no address", peer)
	}

	r.logger.Debug().Str("peer", peer).Str("ip", ip).Msg("resolved vpn peer")
	return ip, nil
}
