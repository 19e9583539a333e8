// discover_test.go validates glob discovery: no-op patterns, empty
// results, ordering, and the fail-fast handling of unreadable directories.
package script

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
)

func touchExec(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover_EmptyPattern(t *testing.T) {
	paths, err := Discover("")
	if err != nil {
		t.Fatalf("empty pattern must not be an error, got %v", err)
	}
	if paths != nil {
		t.Errorf("empty pattern should yield no paths, got %v", paths)
	}
}

func TestDiscover_NoMatches(t *testing.T) {
	paths, err := Discover(filepath.Join(t.TempDir(), "*.sh"))
	if err != nil {
		t.Fatalf("zero matches must not be an error, got %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected zero matches, got %v", paths)
	}
}

func TestDiscover_OrderedMatches(t *testing.T) {
	dir := t.TempDir()
	// Created out of order on purpose; discovery order is the engine's
	// lexicographic order.
	touchExec(t, filepath.Join(dir, "20-quota.sh"))
	touchExec(t, filepath.Join(dir, "10-setup.sh"))
	touchExec(t, filepath.Join(dir, "30-mounts.sh"))

	paths, err := Discover(filepath.Join(dir, "*.sh"))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		filepath.Join(dir, "10-setup.sh"),
		filepath.Join(dir, "20-quota.sh"),
		filepath.Join(dir, "30-mounts.sh"),
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("got %v, want %v", paths, want)
	}
}

func TestDiscover_BadPattern(t *testing.T) {
	_, err := Discover("/etc/hooks/[")
	if err == nil {
		t.Fatal("expected error for malformed pattern")
	}
	var derr *DiscoveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DiscoveryError, got %T", err)
	}
	if !errors.Is(err, doublestar.ErrBadPattern) {
		t.Errorf("expected wrapped ErrBadPattern, got %v", err)
	}
}

func TestDiscover_UnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are advisory for root")
	}

	base := t.TempDir()
	locked := filepath.Join(base, "locked")
	if err := os.Mkdir(locked, 0o755); err != nil {
		t.Fatal(err)
	}
	touchExec(t, filepath.Join(locked, "hidden.sh"))
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	// An unreadable component aborts the whole discovery rather than
	// degrading to a silent empty result.
	_, err := Discover(filepath.Join(base, "*", "*.sh"))
	if err == nil {
		t.Fatal("expected DiscoveryError for unreadable directory")
	}
	var derr *DiscoveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DiscoveryError, got %T: %v", err, err)
	}
	if derr.Pattern == "" {
		t.Error("DiscoveryError should record the pattern")
	}
}
