// Package mounts observes and manipulates the OS mount table for a single
// network share.
package mounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// networkFilesystems are the mount types that can carry the share.
var networkFilesystems = map[string]bool{
	"smbfs": true,
	"cifs":  true,
	"nfs":   true,
	"nfs4":  true,
}

// Mount is one active mount of the share.
type Mount struct {
	// Source is the remote source string, e.g. "//user@nas.local/Projects".
	Source string
	// Path is the local mount path.
	Path string
}

// Observer enumerates current OS mounts and classifies share-related entries.
// The mount table is re-read on every call; nothing is cached across passes.
type Observer struct {
	share  string
	logger zerolog.Logger
}

// NewObserver creates an Observer for the named share.
func NewObserver(share string, logger zerolog.Logger) *Observer {
	return &Observer{
		share:  share,
		logger: logger.With().Str("component", "observer").Logger(),
	}
}

// Observe returns all active mounts whose remote source references the share,
// regardless of local path. In steady state there is exactly one, at the
// canonical mount point.
func (o *Observer) Observe(ctx context.Context) ([]Mount, error) {
	partitions, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list mounts: %w", err)
	}

	var found []Mount
	for _, p := range partitions {
		if !networkFilesystems[strings.ToLower(p.Fstype)] {
			continue
		}
		if !o.matchesShare(p.Device) {
			continue
		}
		found = append(found, Mount{Source: p.Device, Path: p.Mountpoint})
	}

	return found, nil
}

// CurrentRemoteHost parses the remote source of whatever is mounted at path
// into just its host component. Used to detect "mounted but via a
// non-preferred endpoint".
func (o *Observer) CurrentRemoteHost(ctx context.Context, path string) (string, error) {
	set, err := o.Observe(ctx)
	if err != nil {
		return "", err
	}
	for _, m := range set {
		if m.Path == path {
			return RemoteHost(m.Source), nil
		}
	}
	return "", fmt.Errorf("nothing mounted at %s", path)
}

// matchesShare reports whether a mount's remote source identifies the share.
// The share name may appear URL-encoded in the source (spaces as %20).
func (o *Observer) matchesShare(source string) bool {
	lower := strings.ToLower(source)
	name := strings.ToLower(o.share)
	if strings.Contains(lower, name) {
		return true
	}
	encoded := strings.ReplaceAll(name, " ", "%20")
	return strings.Contains(lower, encoded)
}

// RemoteHost extracts the host component from a mount's remote source string.
// Handles "//user@host/Share", "//host/Share", "host:/export" and UNC forms.
func RemoteHost(source string) string {
	s := strings.TrimPrefix(source, "//")
	s = strings.TrimPrefix(s, `\\`)

	// Cut at the share path.
	if i := strings.IndexAny(s, `/\`); i >= 0 {
		s = s[:i]
	}
	// Drop any user@ prefix.
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	// Drop an NFS export or explicit port suffix.
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

// CandidatePaths returns the canonical mount path followed by the numbered
// variants the OS may materialize when the canonical path is blocked.
func CandidatePaths(canonical string, variants int) []string {
	paths := []string{canonical}
	for i := 1; i <= variants; i++ {
		paths = append(paths, fmt.Sprintf("%s-%d", canonical, i))
	}
	return paths
}
