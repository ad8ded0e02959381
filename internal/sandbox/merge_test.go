package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMergeIntoCopiesFilesDirsAndSymlinks(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.MkdirAll(filepath.Join(src, "usr", "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "usr", "lib", "libfoo.so"), []byte("lib bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("libfoo.so", filepath.Join(src, "usr", "lib", "libfoo.so.1")); err != nil {
		t.Fatal(err)
	}

	if err := mergeInto(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "usr", "lib", "libfoo.so"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "lib bytes" {
		t.Errorf("merged file content = %q", got)
	}

	link, err := os.Readlink(filepath.Join(dst, "usr", "lib", "libfoo.so.1"))
	if err != nil {
		t.Fatal(err)
	}
	if link != "libfoo.so" {
		t.Errorf("merged symlink target = %q, want libfoo.so", link)
	}
}

func TestMergeIntoOverwritesExistingFile(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "file"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "file"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := mergeInto(src, dst); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(filepath.Join(dst, "file"))
	if string(got) != "new" {
		t.Errorf("merged content = %q, want new", got)
	}
}
