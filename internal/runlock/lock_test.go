package runlock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestLock_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.lock")
	l := New(path, zerolog.Nop())

	ok, err := l.Acquire(uuid.New())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Fatal("expected to acquire an uncontended lock")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("lock marker should exist after acquire")
	}

	l.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("lock marker should be gone after release")
	}
}

func TestLock_ContentionIsBenign(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.lock")

	first := New(path, zerolog.Nop())
	ok, err := first.Acquire(uuid.New())
	if err != nil || !ok {
		t.Fatalf("first Acquire() = %v, %v", ok, err)
	}
	defer first.Release()

	second := New(path, zerolog.Nop())
	ok, err = second.Acquire(uuid.New())
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if ok {
		t.Fatal("second invocation must not acquire a fresh lock")
	}

	// Releasing the loser must not disturb the holder's marker.
	second.Release()
	if _, err := os.Stat(path); err != nil {
		t.Fatal("holder's lock marker must survive the loser's release")
	}
}

func TestLock_StaleReclaim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.lock")

	// Simulate a crashed invocation by planting an old marker.
	if err := os.WriteFile(path, []byte("12345 dead\n"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-5 * time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	l := New(path, zerolog.Nop())
	ok, err := l.Acquire(uuid.New())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Fatal("a marker past the staleness threshold must be reclaimed")
	}
	l.Release()
}

func TestLock_FreshMarkerNotReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.lock")

	if err := os.WriteFile(path, []byte("12345 alive\n"), 0644); err != nil {
		t.Fatal(err)
	}

	l := New(path, zerolog.Nop())
	ok, err := l.Acquire(uuid.New())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if ok {
		t.Fatal("a fresh marker must not be reclaimed")
	}
}
