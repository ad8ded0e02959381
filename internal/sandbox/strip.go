package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/porgproject/porg/internal/perr"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// isELF reports whether path begins with the ELF magic bytes, the same
// sniffing method the teacher uses before running strip/objcopy on a
// staged file.
func isELF(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	buf := make([]byte, 4)
	n, err := f.Read(buf)
	if err != nil || n < 4 {
		return false, nil
	}
	for i, b := range elfMagic {
		if buf[i] != b {
			return false, nil
		}
	}
	return true, nil
}

// stripTree walks root and runs "strip --strip-unneeded" in place on every
// regular file identified as an ELF image. Non-ELF files are left
// untouched, matching spec.md §4.F's strip step.
func stripTree(ctx context.Context, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		elf, err := isELF(path)
		if err != nil || !elf {
			return nil
		}
		cmd := exec.CommandContext(ctx, "strip", "--strip-unneeded", path)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return perr.IOError.Newf("stripping %s: %v", path, err)
		}
		return nil
	})
}
