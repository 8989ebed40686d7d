package mounts

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestRemoteHost(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "smb with user",
			source: "//alice@nas.local/Projects",
			want:   "nas.local",
		},
		{
			name:   "smb without user",
			source: "//nas.lan/Projects",
			want:   "nas.lan",
		},
		{
			name:   "vpn address",
			source: "//alice@100.64.0.7/Projects",
			want:   "100.64.0.7",
		},
		{
			name:   "nfs export",
			source: "nas.local:/export/projects",
			want:   "nas.local",
		},
		{
			name:   "unc path",
			source: `\\nas.local\Projects`,
			want:   "nas.local",
		},
		{
			name:   "encoded share name",
			source: "//alice@nas.local/Project%20Files",
			want:   "nas.local",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemoteHost(tt.source); got != tt.want {
				t.Errorf("RemoteHost(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestObserver_MatchesShare(t *testing.T) {
	o := NewObserver("Project Files", zerolog.Nop())

	tests := []struct {
		source string
		want   bool
	}{
		{"//alice@nas.local/Project%20Files", true},
		{"//alice@nas.local/Project Files", true},
		{"//alice@nas.local/project%20files", true},
		{"//alice@nas.local/Backups", false},
		{"//alice@nas.local/Projects", false},
	}

	for _, tt := range tests {
		if got := o.matchesShare(tt.source); got != tt.want {
			t.Errorf("matchesShare(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestCandidatePaths(t *testing.T) {
	paths := CandidatePaths("/Volumes/Projects", 2)

	want := []string{"/Volumes/Projects", "/Volumes/Projects-1", "/Volumes/Projects-2"}
	if len(paths) != len(want) {
		t.Fatalf("CandidatePaths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}
