// Package sync implements the `sync` verb of spec.md §6: bring the ports
// tree at a local directory up to date with GIT_REPO/GIT_BRANCH, cloning
// it if it doesn't exist yet or pulling into it if it does.
//
// It is the same go-git clone-or-pull shape as internal/fetch's VCS
// source handling (internal/fetch/vcs.go), pulled out as its own
// component because the ports tree is a single well-known checkout
// rather than one of many per-recipe source candidates, and because a
// sync failure here is always fatal to the caller rather than something
// to fall through past.
package sync

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg/internal/plog"
)

// Syncer updates a local ports tree checkout from a remote git repository.
type Syncer struct {
	PortsDir string
	Repo     string
	Branch   string
	Log      *plog.Session
}

// New constructs a Syncer. repo may be empty, in which case Sync is a
// no-op that reports the tree as already up to date (spec.md's GIT_REPO
// is an optional key; a ports tree laid out by other means is valid).
func New(portsDir, repo, branch string, log *plog.Session) *Syncer {
	return &Syncer{PortsDir: portsDir, Repo: repo, Branch: branch, Log: log}
}

// Result reports what Sync did.
type Result struct {
	Cloned bool
	Dir    string
}

// Sync clones the ports tree into PortsDir if it isn't a git checkout
// yet, or fetches and fast-forwards it in place otherwise.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	if s.Repo == "" {
		s.logf("no GIT_REPO configured, leaving %s untouched", s.PortsDir)
		return &Result{Dir: s.PortsDir}, nil
	}

	if _, err := os.Stat(filepath.Join(s.PortsDir, ".git")); err == nil {
		return s.pull(ctx)
	}
	return s.clone(ctx)
}

func (s *Syncer) clone(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(s.PortsDir, 0o755); err != nil {
		return nil, perr.IOError.Newf("creating ports dir %s: %v", s.PortsDir, err)
	}
	opts := &git.CloneOptions{URL: s.Repo, SingleBranch: true}
	if s.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.Branch)
	}
	s.logf("cloning ports tree from %s into %s", s.Repo, s.PortsDir)
	if _, err := git.PlainCloneContext(ctx, s.PortsDir, false, opts); err != nil {
		return nil, perr.IOError.Newf("cloning ports tree from %s: %v", s.Repo, err)
	}
	return &Result{Cloned: true, Dir: s.PortsDir}, nil
}

func (s *Syncer) pull(ctx context.Context) (*Result, error) {
	repo, err := git.PlainOpen(s.PortsDir)
	if err != nil {
		return nil, perr.IOError.Newf("opening ports tree at %s: %v", s.PortsDir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, perr.IOError.Newf("ports tree %s has no worktree: %v", s.PortsDir, err)
	}
	opts := &git.PullOptions{RemoteName: "origin"}
	if s.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.Branch)
	}
	s.logf("pulling ports tree at %s", s.PortsDir)
	if err := wt.PullContext(ctx, opts); err != nil && err != git.NoErrAlreadyUpToDate {
		return nil, perr.IOError.Newf("pulling ports tree at %s: %v", s.PortsDir, err)
	}
	return &Result{Dir: s.PortsDir}, nil
}

func (s *Syncer) logf(format string, args ...interface{}) {
	if s.Log != nil {
		s.Log.Infof(format, args...)
	}
}
