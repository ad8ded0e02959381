package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/porgproject/porg/internal/perr"
)

// extractSource unpacks archivePath into destDir. Per spec.md §4.F's
// tie-break, if the archive contains exactly one top-level directory its
// contents are hoisted to destDir directly (mirroring the teacher's
// `tar xf ... --strip-components=1`); otherwise the raw extracted tree
// becomes destDir as-is.
func extractSource(ctx context.Context, archivePath, destDir string) error {
	tmp, err := os.MkdirTemp(filepath.Dir(destDir), "porg-extract-")
	if err != nil {
		return perr.IOError.Newf("creating extract tmp dir")
	}
	defer os.RemoveAll(tmp)

	cmd := exec.CommandContext(ctx, "tar", "xf", archivePath, "--no-same-owner", "-C", tmp)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return perr.ExtractFailed.Newf("extracting %s: %v", archivePath, err)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		return perr.IOError.Newf("reading extracted tree %s", tmp)
	}

	src := tmp
	if len(entries) == 1 && entries[0].IsDir() {
		src = filepath.Join(tmp, entries[0].Name())
	}

	if err := os.Rename(src, destDir); err != nil {
		return perr.ExtractFailed.Newf("moving extracted tree into place: %v", err)
	}
	return nil
}

// applyPatches applies each patch file (in order, via `patch -p1`) against
// the extracted source tree at srcDir.
func applyPatches(ctx context.Context, srcDir string, patches []string) error {
	for _, p := range patches {
		cmd := exec.CommandContext(ctx, "patch", "-p1", "-i", p)
		cmd.Dir = srcDir
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return perr.PatchFailed.Newf("applying %s: %v", p, err)
		}
	}
	return nil
}
