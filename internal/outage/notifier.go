// Package outage rate-limits repeated unreachable-share notifications
// across reconciliation passes.
package outage

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Notifier writes one "unreachable" log line per outage. A persistent marker
// file records that the current outage has already been reported; the marker
// is cleared the moment any mount succeeds, re-arming the notifier for the
// next outage.
type Notifier struct {
	markerPath string
	logger     zerolog.Logger
}

// New creates a Notifier with its marker at the given path.
func New(markerPath string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		markerPath: markerPath,
		logger:     logger.With().Str("component", "outage").Logger(),
	}
}

// LogUnreachableOnce emits the unreachable warning unless this outage has
// already been reported.
func (n *Notifier) LogUnreachableOnce(hosts []string) {
	if _, err := os.Stat(n.markerPath); err == nil {
		return
	}

	n.logger.Warn().Strs("endpoints", hosts).Msg("share unreachable on all endpoints")

	if err := os.MkdirAll(filepath.Dir(n.markerPath), 0700); err != nil {
		n.logger.Warn().Err(err).Msg("failed to create outage marker directory")
		return
	}
	if err := os.WriteFile(n.markerPath, []byte(time.Now().Format(time.RFC3339)+"\n"), 0644); err != nil {
		n.logger.Warn().Err(err).Msg("failed to write outage marker")
	}
}

// Clear removes the outage marker after a successful mount.
func (n *Notifier) Clear() {
	if err := os.Remove(n.markerPath); err != nil && !os.IsNotExist(err) {
		n.logger.Warn().Err(err).Msg("failed to clear outage marker")
	}
}
