package profiles

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirCreatesProfileInsideRoot(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(root, false)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	dir, err := m.Dir("test-profile", 3)
	if err != nil {
		t.Fatalf("dir: %v", err)
	}
	if want := filepath.Join(m.Root(), "test-profile-3"); dir != want {
		t.Fatalf("dir = %q, want %q", dir, want)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected profile directory to exist: %v", err)
	}
}

func TestNamedRejectsEscapes(t *testing.T) {
	m, err := NewManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	for _, name := range []string{"", ".", "..", "../outside", "a/../../b", "/etc/chrome", "  "} {
		if _, err := m.Named(name); !errors.Is(err, ErrInvalidProfileName) {
			t.Fatalf("Named(%q) err = %v, want ErrInvalidProfileName", name, err)
		}
	}
	if _, err := m.Named("nested/profile-1"); err != nil {
		t.Fatalf("nested name should be allowed: %v", err)
	}
}

func TestCleanupRemovesEphemeralProfiles(t *testing.T) {
	m, err := NewManager(t.TempDir(), true)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	a, _ := m.Dir("temp-profile", 1)
	b, _ := m.Dir("temp-profile", 2)

	if err := m.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	for _, dir := range []string{a, b} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed, stat err = %v", dir, err)
		}
	}
}

func TestCleanupKeepsPersistentProfiles(t *testing.T) {
	m, err := NewManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	dir, _ := m.Dir("test-profile", 1)
	if err := m.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("persistent profile removed: %v", err)
	}
}
