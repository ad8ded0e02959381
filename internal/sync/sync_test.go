package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initOriginWithFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	writeAndCommit(t, repo, dir, name, content)
	return dir
}

func writeAndCommit(t *testing.T, repo *git.Repository, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatal(err)
	}
	_, err = wt.Commit("update "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "porg-test", Email: "test@porg.invalid", When: time.Unix(0, 0)},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSyncWithoutRepoConfiguredIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "", "", nil)
	res, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Cloned || res.Dir != dir {
		t.Errorf("res = %+v, want untouched no-op", res)
	}
}

func TestSyncClonesOnFirstRun(t *testing.T) {
	origin := initOriginWithFile(t, "pkg.yaml", "name: hello\n")
	dest := filepath.Join(t.TempDir(), "ports")

	s := New(dest, origin, "", nil)
	res, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cloned {
		t.Error("expected Cloned = true on first sync")
	}
	if _, err := os.Stat(filepath.Join(dest, "pkg.yaml")); err != nil {
		t.Errorf("expected pkg.yaml to exist after clone: %v", err)
	}
}

func TestSyncPullsOnSubsequentRuns(t *testing.T) {
	origin := initOriginWithFile(t, "pkg.yaml", "name: hello\nversion: \"1.0\"\n")
	dest := filepath.Join(t.TempDir(), "ports")

	s := New(dest, origin, "", nil)
	if _, err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	originRepo, err := git.PlainOpen(origin)
	if err != nil {
		t.Fatal(err)
	}
	writeAndCommit(t, originRepo, origin, "pkg.yaml", "name: hello\nversion: \"2.0\"\n")

	res, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Cloned {
		t.Error("expected Cloned = false on a subsequent sync")
	}
	b, err := os.ReadFile(filepath.Join(dest, "pkg.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "name: hello\nversion: \"2.0\"\n" {
		t.Errorf("pkg.yaml after pull = %q, want updated content", string(b))
	}
}
