package outage

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNotifier_LogsOncePerOutage(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "outage.marker")
	hosts := []string{"nas.local", "100.64.0.7"}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	n := New(marker, logger)

	// N consecutive passes during the same outage emit exactly one line.
	for i := 0; i < 5; i++ {
		n.LogUnreachableOnce(hosts)
	}

	if got := strings.Count(buf.String(), "share unreachable"); got != 1 {
		t.Fatalf("unreachable logged %d times, want 1\nlog: %s", got, buf.String())
	}

	// A successful mount clears the marker; the next outage logs again.
	n.Clear()
	n.LogUnreachableOnce(hosts)
	n.LogUnreachableOnce(hosts)

	if got := strings.Count(buf.String(), "share unreachable"); got != 2 {
		t.Fatalf("unreachable logged %d times after re-arm, want 2", got)
	}
}

func TestNotifier_ClearWithoutMarkerIsQuiet(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "outage.marker")

	var buf bytes.Buffer
	n := New(marker, zerolog.New(&buf))

	n.Clear()
	if buf.Len() != 0 {
		t.Errorf("Clear on a missing marker should be silent, got %q", buf.String())
	}
}
