package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsELFDetectsMagicBytes(t *testing.T) {
	dir := t.TempDir()

	elfPath := filepath.Join(dir, "binary")
	if err := os.WriteFile(elfPath, append([]byte{0x7f, 'E', 'L', 'F'}, []byte{2, 1, 1, 0}...), 0o755); err != nil {
		t.Fatal(err)
	}
	ok, err := isELF(elfPath)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected ELF magic to be detected")
	}

	textPath := filepath.Join(dir, "script.sh")
	if err := os.WriteFile(textPath, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	ok, err = isELF(textPath)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("shell script should not be detected as ELF")
	}
}
