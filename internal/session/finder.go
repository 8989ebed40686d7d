package session

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// captureScript lists the POSIX path of every Finder window's target, one
// per line, front to back.
const captureScript = `
tell application "Finder"
	set out to ""
	repeat with w in (every Finder window)
		try
			set out to out & POSIX path of (target of w as alias) & linefeed
		end try
	end repeat
	return out
end tell`

// FinderPreserver drives the macOS Finder through osascript.
type FinderPreserver struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewFinderPreserver creates a FinderPreserver.
func NewFinderPreserver(logger zerolog.Logger) *FinderPreserver {
	return &FinderPreserver{
		timeout: 10 * time.Second,
		logger:  logger.With().Str("component", "session").Logger(),
	}
}

// Capture lists open Finder window locations under prefix. Finder reports
// one target per window, so each group holds a single path.
func (p *FinderPreserver) Capture(ctx context.Context, prefix string) Snapshot {
	scriptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	output, err := exec.CommandContext(scriptCtx, "osascript", "-e", captureScript).Output()
	if err != nil {
		p.logger.Debug().Err(err).Msg("finder capture failed, continuing without snapshot")
		return Snapshot{}
	}

	var snap Snapshot
	for _, line := range strings.Split(string(output), "\n") {
		path := strings.TrimRight(strings.TrimSpace(line), "/")
		if path == "" || !strings.HasPrefix(path, prefix) {
			continue
		}
		snap.Windows = append(snap.Windows, []string{path})
	}

	if !snap.Empty() {
		p.logger.Info().Int("windows", len(snap.Windows)).Msg("captured open finder locations")
	}
	return snap
}

// Restore re-opens the captured locations against the new mount prefix.
func (p *FinderPreserver) Restore(ctx context.Context, snap Snapshot, oldPrefix, newPrefix string) {
	remapped := Remap(snap, oldPrefix, newPrefix, statExists)
	if remapped.Empty() {
		return
	}

	for _, window := range remapped.Windows {
		for i, path := range window {
			var script string
			if i == 0 {
				script = fmt.Sprintf(`tell application "Finder" to make new Finder window to (POSIX file %q as alias)`, path)
			} else {
				// Additional paths of the same group open as tabs.
				script = fmt.Sprintf(`
tell application "Finder" to activate
tell application "System Events" to tell process "Finder" to keystroke "t" using command down
tell application "Finder" to set target of front Finder window to (POSIX file %q as alias)`, path)
			}

			scriptCtx, cancel := context.WithTimeout(ctx, p.timeout)
			if _, err := exec.CommandContext(scriptCtx, "osascript", "-e", script).Output(); err != nil {
				p.logger.Debug().Str("path", path).Err(err).Msg("finder restore failed for path")
			}
			cancel()
		}
	}

	p.logger.Info().Int("windows", len(remapped.Windows)).Msg("restored finder locations")
}
