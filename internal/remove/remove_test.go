package remove

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/porgproject/porg/internal/db"
	"github.com/porgproject/porg/internal/depgraph"
	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg"
	"golang.org/x/xerrors"
)

type noRecipes struct{}

func (noRecipes) Recipe(name string) (*porg.Recipe, error) {
	return nil, perr.MissingRecipe.Newf("no recipe %s", name)
}

func newTestRemover(t *testing.T) (*Remover, *db.DB, string) {
	t.Helper()
	dir := t.TempDir()
	database := db.Open(filepath.Join(dir, "installed.json"))
	graph := depgraph.New(noRecipes{}, database)
	return New(database, graph, nil), database, dir
}

func TestRemoveNotFound(t *testing.T) {
	rm, _, _ := newTestRemover(t)
	_, err := rm.Remove(context.Background(), "missing", Options{})
	if !xerrors.Is(err, perr.NotFound) {
		t.Fatalf("err = %v, want wrapping perr.NotFound", err)
	}
}

func TestRemoveRefusesWhenDependentsExist(t *testing.T) {
	rm, database, dir := newTestRemover(t)
	glibcPrefix := filepath.Join(dir, "glibc")
	helloPrefix := filepath.Join(dir, "hello")
	os.MkdirAll(glibcPrefix, 0o755)
	os.MkdirAll(helloPrefix, 0o755)

	if err := database.Register("glibc", "2.38", glibcPrefix, nil); err != nil {
		t.Fatal(err)
	}
	if err := database.RegisterRecord(porg.InstalledRecord{
		Name: "hello", Version: "2.12", Prefix: helloPrefix, Dependencies: []string{"glibc"},
	}); err != nil {
		t.Fatal(err)
	}

	_, err := rm.Remove(context.Background(), "glibc", Options{})
	if err == nil {
		t.Fatal("expected has_dependents error")
	}
	var depErr *perr.DependentsError
	if !xerrors.As(err, &depErr) {
		t.Fatalf("err = %T, want *perr.DependentsError", err)
	}
	if len(depErr.Dependents) != 1 || depErr.Dependents[0] != "hello" {
		t.Errorf("Dependents = %v", depErr.Dependents)
	}
}

func TestRemoveForceIgnoresDependents(t *testing.T) {
	rm, database, dir := newTestRemover(t)
	glibcPrefix := filepath.Join(dir, "opt", "glibc")
	helloPrefix := filepath.Join(dir, "opt", "hello")
	os.MkdirAll(glibcPrefix, 0o755)
	os.MkdirAll(helloPrefix, 0o755)

	database.Register("glibc", "2.38", glibcPrefix, nil)
	database.RegisterRecord(porg.InstalledRecord{Name: "hello", Version: "2.12", Prefix: helloPrefix, Dependencies: []string{"glibc"}})

	removed, err := rm.Remove(context.Background(), "glibc", Options{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != "glibc-2.38" {
		t.Errorf("removed = %v", removed)
	}
	if installed, _ := database.IsInstalled("glibc"); installed {
		t.Error("glibc should have been unregistered")
	}
	if _, err := os.Stat(glibcPrefix); !os.IsNotExist(err) {
		t.Error("glibc prefix tree should have been deleted")
	}
}

func TestRemoveDryRunMutatesNothing(t *testing.T) {
	rm, database, dir := newTestRemover(t)
	prefix := filepath.Join(dir, "opt", "standalone")
	os.MkdirAll(prefix, 0o755)
	database.Register("standalone", "1.0", prefix, nil)

	removed, err := rm.Remove(context.Background(), "standalone", Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 {
		t.Errorf("removed = %v", removed)
	}
	if installed, _ := database.IsInstalled("standalone"); !installed {
		t.Error("dry-run should not have unregistered the package")
	}
	if _, err := os.Stat(prefix); err != nil {
		t.Error("dry-run should not have deleted the prefix")
	}
}

func TestRemoveRecursiveCascadesOrphans(t *testing.T) {
	rm, database, dir := newTestRemover(t)
	appPrefix := filepath.Join(dir, "opt", "app")
	libPrefix := filepath.Join(dir, "opt", "lib")
	os.MkdirAll(appPrefix, 0o755)
	os.MkdirAll(libPrefix, 0o755)

	database.RegisterRecord(porg.InstalledRecord{Name: "lib", Version: "1.0", Prefix: libPrefix})
	database.RegisterRecord(porg.InstalledRecord{Name: "app", Version: "1.0", Prefix: appPrefix, Dependencies: []string{"lib"}})

	removed, err := rm.Remove(context.Background(), "app", Options{Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, r := range removed {
		found[r] = true
	}
	if !found["app-1.0"] || !found["lib-1.0"] {
		t.Errorf("removed = %v, want app and its now-orphaned lib", removed)
	}
}
