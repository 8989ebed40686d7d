// Package netcheck provides endpoint reachability probing and selection
// for the share's service port.
package netcheck

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// DefaultProbeTimeout bounds a single reachability check.
const DefaultProbeTimeout = 1 * time.Second

// Prober tests TCP connectivity to candidate endpoints.
type Prober struct {
	port    int
	timeout time.Duration
	logger  zerolog.Logger
}

// NewProber creates a Prober for the given service port.
func NewProber(port int, logger zerolog.Logger) *Prober {
	return &Prober{
		port:    port,
		timeout: DefaultProbeTimeout,
		logger:  logger.With().Str("component", "prober").Logger(),
	}
}

// Reachable reports whether a TCP connection to host on the share's service
// port succeeds within the probe timeout. Any failure yields false.
func (p *Prober) Reachable(ctx context.Context, host string) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(p.port))

	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		p.logger.Debug().Str("host", host).Err(err).Msg("endpoint not reachable")
		return false
	}
	conn.Close()

	return true
}
