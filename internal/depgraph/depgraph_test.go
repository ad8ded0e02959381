package depgraph

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg"
	"golang.org/x/xerrors"
)

type fakeRecipes map[string]*porg.Recipe

func (f fakeRecipes) Recipe(name string) (*porg.Recipe, error) {
	r, ok := f[name]
	if !ok {
		return nil, perr.MissingRecipe.Newf("no recipe %s", name)
	}
	return r, nil
}

type fakeInstalled []porg.InstalledRecord

func (f fakeInstalled) List() ([]porg.InstalledRecord, error) {
	return []porg.InstalledRecord(f), nil
}

func rec(name, version string, build, runtime []string) *porg.Recipe {
	return &porg.Recipe{Name: name, Version: version, DepsBuild: build, DepsRuntime: runtime}
}

func TestResolveOrdersDependenciesBeforeDependents(t *testing.T) {
	recipes := fakeRecipes{
		"glibc": rec("glibc", "2.38", nil, nil),
		"make":  rec("make", "4.4", []string{"glibc"}, nil),
		"hello": rec("hello", "2.12", []string{"make"}, []string{"glibc"}),
	}
	g := New(recipes, fakeInstalled{})

	order, err := g.Resolve("hello")
	if err != nil {
		t.Fatal(err)
	}

	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["glibc"] > pos["make"] || pos["make"] > pos["hello"] || pos["glibc"] > pos["hello"] {
		t.Errorf("order violates dependency precedence: %v", order)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	recipes := fakeRecipes{
		"a": rec("a", "1.0", []string{"b"}, nil),
		"b": rec("b", "1.0", []string{"c"}, nil),
		"c": rec("c", "1.0", []string{"a"}, nil),
	}
	g := New(recipes, fakeInstalled{})

	_, err := g.Resolve("a")
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !xerrors.Is(err, perr.CycleDetected) {
		t.Fatalf("err = %v, want wrapping perr.CycleDetected", err)
	}
	var cycErr *perr.CycleError
	if !xerrors.As(err, &cycErr) {
		t.Fatalf("err = %T, want *perr.CycleError", err)
	}
	want := map[string]bool{"a": true, "b": true, "c": true}
	for _, n := range cycErr.Path {
		if !want[n] {
			t.Errorf("cycle path %v contains unexpected node %q", cycErr.Path, n)
		}
	}
	if len(cycErr.Path) < 2 {
		t.Errorf("cycle path %v too short to name a cycle", cycErr.Path)
	}
}

func TestMissingExcludesInstalled(t *testing.T) {
	recipes := fakeRecipes{
		"glibc": rec("glibc", "2.38", nil, nil),
		"make":  rec("make", "4.4", []string{"glibc"}, nil),
		"hello": rec("hello", "2.12", []string{"make"}, []string{"glibc"}),
	}
	installed := fakeInstalled{{Name: "glibc", Version: "2.38"}}
	g := New(recipes, installed)

	missing, err := g.Missing("hello")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(missing)
	if diff := cmp.Diff([]string{"make"}, missing); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
}

func TestReverseDependents(t *testing.T) {
	installed := fakeInstalled{
		{Name: "hello", Version: "2.12", Dependencies: []string{"glibc", "make"}},
		{Name: "glibc", Version: "2.38"},
		{Name: "make", Version: "4.4", Dependencies: []string{"glibc"}},
	}
	g := New(fakeRecipes{}, installed)

	deps, err := g.ReverseDependents("glibc")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"hello", "make"}, deps); diff != "" {
		t.Errorf("ReverseDependents(glibc) mismatch (-want +got):\n%s", diff)
	}
}

func TestOrphansSkipsCriticalPrefixes(t *testing.T) {
	installed := fakeInstalled{
		{Name: "glibc", Version: "2.38", Prefix: "/usr"},
		{Name: "old-lib", Version: "1.0", Prefix: "/opt/old-lib"},
		{Name: "used-lib", Version: "1.0", Prefix: "/opt/used-lib"},
		{Name: "app", Version: "1.0", Prefix: "/opt/app", Dependencies: []string{"used-lib"}},
	}
	g := New(fakeRecipes{}, installed)

	orphans, err := g.Orphans()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"app", "old-lib"}, orphans); diff != "" {
		t.Errorf("Orphans mismatch (-want +got):\n%s", diff)
	}
}

// TestUpgradePlanWorld mirrors spec.md's worked example S3: libfoo has a
// newer recipe version, app has not changed version but depends on libfoo
// at runtime, so app must be flagged for rebuild too.
func TestUpgradePlanWorld(t *testing.T) {
	recipes := fakeRecipes{
		"libfoo": rec("libfoo", "1.1", nil, nil),
		"app":    rec("app", "2.0", nil, []string{"libfoo"}),
	}
	installed := fakeInstalled{
		{Name: "libfoo", Version: "1.0"},
		{Name: "app", Version: "2.0", Dependencies: []string{"libfoo"}},
	}
	g := New(recipes, installed)

	plan, err := g.UpgradePlan("world")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"libfoo", "app"}, plan.NeedsRebuild); diff != "" {
		t.Errorf("NeedsRebuild mismatch (-want +got):\n%s", diff)
	}
	pos := map[string]int{}
	for i, n := range plan.UpgradeOrder {
		pos[n] = i
	}
	if pos["libfoo"] > pos["app"] {
		t.Errorf("UpgradeOrder = %v, libfoo must precede app", plan.UpgradeOrder)
	}
}
