package mounts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCleaner_Preclean(t *testing.T) {
	c := NewCleaner(zerolog.Nop())
	base := t.TempDir()

	empty := filepath.Join(base, "Projects")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatal(err)
	}

	nonEmpty := filepath.Join(base, "Projects-1")
	if err := os.Mkdir(nonEmpty, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nonEmpty, "leftover.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	mounted := filepath.Join(base, "Projects-2")
	if err := os.Mkdir(mounted, 0755); err != nil {
		t.Fatal(err)
	}

	missing := filepath.Join(base, "Projects-3")

	c.Preclean([]string{empty, nonEmpty, mounted, missing}, map[string]bool{mounted: true})

	if _, err := os.Stat(empty); !os.IsNotExist(err) {
		t.Error("empty stale directory should have been removed")
	}
	if _, err := os.Stat(nonEmpty); err != nil {
		t.Error("non-empty directory should have been left alone")
	}
	if _, err := os.Stat(mounted); err != nil {
		t.Error("active mount path should have been left alone")
	}
}

func TestCleaner_CheckStaleBlocking(t *testing.T) {
	c := NewCleaner(zerolog.Nop())

	t.Run("missing path is ok", func(t *testing.T) {
		if err := c.CheckStaleBlocking(filepath.Join(t.TempDir(), "nope"), false); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("active mount is ok", func(t *testing.T) {
		dir := t.TempDir()
		if err := c.CheckStaleBlocking(dir, true); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := os.Stat(dir); err != nil {
			t.Error("active mount path must not be removed")
		}
	})

	t.Run("empty stale directory removed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "Projects")
		if err := os.Mkdir(path, 0755); err != nil {
			t.Fatal(err)
		}
		if err := c.CheckStaleBlocking(path, false); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("stale directory should have been removed")
		}
	})

	t.Run("non-removable directory is fatal and names the path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "Projects")
		if err := os.Mkdir(path, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(path, "blocker"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		err := c.CheckStaleBlocking(path, false)
		if !errors.Is(err, ErrStaleBlocked) {
			t.Fatalf("error = %v, want ErrStaleBlocked", err)
		}
		if !strings.Contains(err.Error(), path) {
			t.Errorf("error %q does not name the blocked path %q", err, path)
		}
	})
}
