package mounts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// Mounter issues mount and unmount requests to the OS. The mount request is
// fire-and-forget; callers poll the mount table to see it land.
type Mounter interface {
	RequestMount(ctx context.Context, host, share, mountPoint string) error
	Unmount(ctx context.Context, path string) error
}

// OSMounter shells out to the platform's mount tooling.
type OSMounter struct {
	logger zerolog.Logger
}

// NewOSMounter creates an OSMounter.
func NewOSMounter(logger zerolog.Logger) *OSMounter {
	return &OSMounter{logger: logger.With().Str("component", "mounter").Logger()}
}

// RequestMount asks the OS to mount //host/share. On macOS the request goes
// through Finder, which returns before the mount lands and may substitute a
// numbered path when the requested one is blocked; callers must poll.
func (m *OSMounter) RequestMount(ctx context.Context, host, share, mountPoint string) error {
	switch runtime.GOOS {
	case "darwin":
		url := fmt.Sprintf("smb://%s/%s", host, strings.ReplaceAll(share, " ", "%20"))
		script := fmt.Sprintf("mount volume %q", url)
		cmd := exec.CommandContext(ctx, "osascript", "-e", script)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("request mount of %s: %w", url, err)
		}
		// Reap the helper; its exit status is advisory, the mount table decides.
		go func() {
			if err := cmd.Wait(); err != nil {
				m.logger.Debug().Str("url", url).Err(err).Msg("mount request helper exited with error")
			}
		}()
		m.logger.Info().Str("url", url).Msg("mount requested")
		return nil

	case "linux":
		if err := os.MkdirAll(mountPoint, 0755); err != nil {
			return fmt.Errorf("create mount point %s: %w", mountPoint, err)
		}
		source := fmt.Sprintf("//%s/%s", host, share)
		cmd := exec.CommandContext(ctx, "mount", "-t", "cifs", source, mountPoint)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("mount %s at %s: %w: %s", source, mountPoint, err, strings.TrimSpace(string(output)))
		}
		m.logger.Info().Str("source", source).Str("path", mountPoint).Msg("mount requested")
		return nil

	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

// Unmount detaches the mount at path.
func (m *OSMounter) Unmount(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "diskutil", "unmount", path)
	case "linux":
		cmd = exec.CommandContext(ctx, "umount", path)
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("unmount %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}
	m.logger.Info().Str("path", path).Msg("unmounted")
	return nil
}
