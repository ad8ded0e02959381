package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "bootstrap.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifestParsesOrderedPhases(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
phases:
  - name: cross-binutils
    recipe: binutils-pass1
  - name: cross-gcc
    recipe: gcc-pass1
    stage: /mnt/lfs
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Phases) != 2 {
		t.Fatalf("Phases = %v, want 2", m.Phases)
	}
	if m.Phases[0].Name != "cross-binutils" || m.Phases[0].Recipe != "binutils-pass1" {
		t.Errorf("phase 0 = %+v", m.Phases[0])
	}
	if m.Phases[1].Stage != "/mnt/lfs" {
		t.Errorf("phase 1 stage = %q, want /mnt/lfs", m.Phases[1].Stage)
	}
	if m.indexOf("cross-gcc") != 1 {
		t.Errorf("indexOf(cross-gcc) = %d, want 1", m.indexOf("cross-gcc"))
	}
	if m.indexOf("missing") != -1 {
		t.Errorf("indexOf(missing) = %d, want -1", m.indexOf("missing"))
	}
}

func TestLoadManifestRejectsEmptyPhaseList(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "phases: []\n")

	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected an error for an empty phase list")
	}
}
