package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestAnnounceLinesStartWithTimestamp(t *testing.T) {
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	defer func() { stdout = prev }()

	announce("Reconciled: %s via %s", "mounted", "nas.local")

	line := strings.TrimSuffix(buf.String(), "\n")
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		t.Fatalf("line = %q, want a timestamp followed by the message", line)
	}
	if _, err := time.Parse(time.RFC3339, fields[0]); err != nil {
		t.Errorf("line %q does not start with an RFC3339 timestamp: %v", line, err)
	}
	if fields[1] != "Reconciled: mounted via nas.local" {
		t.Errorf("message = %q, want the formatted event text", fields[1])
	}
}
