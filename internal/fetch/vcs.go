package fetch

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/porgproject/porg/internal/perr"
)

// fetchVCS clones rawURL into a per-repository cache directory at shallow
// depth, or fetches into an already-cloned one. Success is judged, per
// spec.md §4.E, solely by whether the directory ends up with a populated
// tree — a fetch failure on an already-usable checkout is not fatal.
func (f *Fetcher) fetchVCS(ctx context.Context, rawURL string) (string, error) {
	repoURL, ref := splitVCSURL(rawURL)
	dir := filepath.Join(f.CacheDir, "vcs", vcsDirName(repoURL))

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return dir, nil // directory populated; tolerate an unopenable repo metadata
		}
		wt, err := repo.Worktree()
		if err == nil {
			_ = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Depth: 1})
		}
		if populated(dir) {
			return dir, nil
		}
		return "", perr.IOError.Newf("vcs checkout %s is empty after fetch", dir)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", perr.IOError.Newf("creating vcs cache dir")
	}
	opts := &git.CloneOptions{URL: repoURL, Depth: 1, SingleBranch: true}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		os.RemoveAll(dir)
		return "", perr.IOError.Newf("cloning %s: %v", repoURL, err)
	}
	if !populated(dir) {
		return "", perr.IOError.Newf("vcs clone %s produced an empty tree", dir)
	}
	return dir, nil
}

func splitVCSURL(rawURL string) (repoURL, ref string) {
	u := strings.TrimPrefix(rawURL, "git+")
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i], u[i+1:]
	}
	return u, ""
}

func vcsDirName(repoURL string) string {
	name := filepath.Base(strings.TrimSuffix(repoURL, "/"))
	return strings.TrimSuffix(name, ".git")
}

func populated(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name() != ".git" {
			return true
		}
	}
	return false
}
