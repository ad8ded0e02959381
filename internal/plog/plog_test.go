package plog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmitWritesSessionFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Options{Dir: dir, Quiet: true, MinLevel: DEBUG})
	if err != nil {
		t.Fatal(err)
	}
	s.Infof("building %s", "hello-2.12")
	s.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one session file, got %d", len(entries))
	}
	b, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "building hello-2.12") {
		t.Errorf("session log missing message: %q", b)
	}
	if !strings.Contains(string(b), "[INFO]") {
		t.Errorf("session log missing level: %q", b)
	}
}

func TestMinLevelFilters(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Options{Dir: dir, Quiet: true, MinLevel: WARN})
	if err != nil {
		t.Fatal(err)
	}
	s.Infof("should be filtered")
	s.Warnf("should appear")
	s.Close()

	counts := s.Counts()
	if counts["INFO"] != 0 {
		t.Errorf("INFO count = %d, want 0 (below MinLevel)", counts["INFO"])
	}
	if counts["WARN"] != 1 {
		t.Errorf("WARN count = %d, want 1", counts["WARN"])
	}
}
