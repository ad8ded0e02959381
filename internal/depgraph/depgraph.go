// Package depgraph computes build/upgrade order over the recipe and
// installed-package graph: topological resolution with cycle detection,
// reverse-dependency queries, upgrade planning with rebuild-needed
// analysis, and orphan discovery.
//
// Edges are stored in a gonum.org/v1/gonum/graph/simple.DirectedGraph
// indexed by integer node ids with a name->id arena alongside it — the
// same representation the teacher's internal/batch.Ctx.Build builds for
// its package DAG (gonum's simple.DirectedGraph plus a byFullname map),
// per Design Notes §9's explicit preference for an integer-id arena over
// language-level cross-references. The traversal itself (DFS gray/black
// coloring, name-sorted sibling tie-break, explicit cycle path) is
// hand-written rather than gonum's graph/topo.Sort, because topo.Sort
// reports unorderable components as an unordered set, not the specific
// ordered cycle path and deterministic tie-break spec.md §4.D requires.
package depgraph

import (
	"sort"

	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg"
	"gonum.org/v1/gonum/graph/simple"
)

// UpgradePlanResult is the outcome of planning an upgrade over a scope
// ("world" or a single package name): the order later packages must be
// rebuilt in, and which of those actually need a rebuild (not installed,
// a newer recipe version, or a runtime dependency that is itself rebuilt).
type UpgradePlanResult struct {
	UpgradeOrder []string
	NeedsRebuild []string
}

// RecipeSource resolves a package name to its recipe, the way the
// resolver lazily discovers recipes under the ports tree.
type RecipeSource interface {
	Recipe(name string) (*porg.Recipe, error)
}

// InstalledSource exposes the currently installed set for
// reverse-dependency and rebuild-needed queries.
type InstalledSource interface {
	List() ([]porg.InstalledRecord, error)
}

// node implements gonum/graph.Node; id is an arbitrary dense arena index,
// name is the package name it represents.
type node struct {
	id   int64
	name string
}

func (n *node) ID() int64 { return n.id }

// Graph is the dependency graph view over recipes plus the installed
// set. It is not persisted; built fresh per query.
type Graph struct {
	recipes   RecipeSource
	installed InstalledSource

	g      *simple.DirectedGraph
	ids    map[string]int64
	nodes  map[int64]*node
	nextID int64
}

// New constructs a Graph backed by recipes and installed.
func New(recipes RecipeSource, installed InstalledSource) *Graph {
	return &Graph{
		recipes:   recipes,
		installed: installed,
		g:         simple.NewDirectedGraph(),
		ids:       map[string]int64{},
		nodes:     map[int64]*node{},
	}
}

func (gr *Graph) nodeFor(name string) *node {
	if id, ok := gr.ids[name]; ok {
		return gr.nodes[id]
	}
	n := &node{id: gr.nextID, name: name}
	gr.nextID++
	gr.ids[name] = n.id
	gr.nodes[n.id] = n
	gr.g.AddNode(n)
	return n
}

const (
	white = 0
	gray  = 1
	black = 2
)

// Resolve returns a topological order sufficient to install name:
// dependencies appear before every dependent. Independent siblings are
// ordered by name for reproducibility across runs. A dependency cycle
// yields a *perr.CycleError (matches perr.CycleDetected via errors.Is).
func (gr *Graph) Resolve(name string) ([]string, error) {
	color := map[string]int{}
	var stack []string
	var order []string

	var visit func(n string) error
	visit = func(n string) error {
		color[n] = gray
		stack = append(stack, n)

		rec, err := gr.recipes.Recipe(n)
		if err != nil {
			return perr.MissingRecipe.Newf("recipe for %s", n)
		}
		gr.nodeFor(n) // ensure the node is registered even if n has no dependencies
		deps := append([]string(nil), rec.DepsBuild...)
		deps = append(deps, rec.DepsRuntime...)
		deps = dedupSorted(deps)

		for _, d := range deps {
			gr.g.SetEdge(gr.g.NewEdge(gr.nodeFor(d), gr.nodeFor(n)))
			switch color[d] {
			case black:
				continue
			case gray:
				return &perr.CycleError{Path: cyclePath(stack, d)}
			default:
				if err := visit(d); err != nil {
					return err
				}
			}
		}

		color[n] = black
		stack = stack[:len(stack)-1]
		order = append(order, n)
		return nil
	}

	if err := visit(name); err != nil {
		return nil, err
	}
	return order, nil
}

func cyclePath(stack []string, closesAt string) []string {
	idx := 0
	for i, n := range stack {
		if n == closesAt {
			idx = i
			break
		}
	}
	path := append([]string(nil), stack[idx:]...)
	path = append(path, closesAt)
	return path
}

func dedupSorted(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Missing returns the transitive dependency set of name minus the
// currently installed set.
func (gr *Graph) Missing(name string) ([]string, error) {
	order, err := gr.Resolve(name)
	if err != nil {
		return nil, err
	}
	installedSet, err := gr.installedNames()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range order {
		if n == name {
			continue
		}
		if !installedSet[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

func (gr *Graph) installedNames() (map[string]bool, error) {
	recs, err := gr.installed.List()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(recs))
	for _, r := range recs {
		set[r.Name] = true
	}
	return set, nil
}

// ReverseDependents returns the names of installed records whose
// Dependencies list contains name (direct dependents only).
func (gr *Graph) ReverseDependents(name string) ([]string, error) {
	recs, err := gr.installed.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range recs {
		for _, d := range r.Dependencies {
			if d == name {
				out = append(out, r.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// UpgradePlan computes the rebuild order for scope: either a single
// package name, or the literal string "world" meaning every installed
// package. UpgradeOrder lists every package reachable from scope in
// dependency order (dependencies first); NeedsRebuild is the subset that
// is not installed, whose recipe version is newer than the installed one
// (porg.VersionLess), or that has a runtime dependency in NeedsRebuild.
func (gr *Graph) UpgradePlan(scope string) (*UpgradePlanResult, error) {
	var roots []string
	if scope == "world" {
		recs, err := gr.installed.List()
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			roots = append(roots, r.Name)
		}
		sort.Strings(roots)
	} else {
		roots = []string{scope}
	}

	seen := map[string]bool{}
	var order []string
	for _, root := range roots {
		o, err := gr.Resolve(root)
		if err != nil {
			return nil, err
		}
		for _, n := range o {
			if !seen[n] {
				seen[n] = true
				order = append(order, n)
			}
		}
	}

	installedVer := map[string]string{}
	recs, err := gr.installed.List()
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		installedVer[r.Name] = r.Version
	}

	rebuild := map[string]bool{}
	var needsRebuild []string
	for _, n := range order {
		rec, err := gr.recipes.Recipe(n)
		if err != nil {
			return nil, perr.MissingRecipe.Newf("recipe for %s", n)
		}
		cur, installed := installedVer[n]
		versionBump := !installed || porg.VersionLess(cur, rec.Version)

		// order is dependency-first, so every runtime dep of n has already
		// been visited: a package whose runtime dependency needs a rebuild
		// needs one too, even with its own version unchanged, since the
		// rebuilt dependency's ABI/content may have moved under it.
		depRebuilt := false
		for _, d := range rec.DepsRuntime {
			if rebuild[d] {
				depRebuilt = true
				break
			}
		}

		if versionBump || depRebuilt {
			rebuild[n] = true
			needsRebuild = append(needsRebuild, n)
		}
	}

	return &UpgradePlanResult{UpgradeOrder: order, NeedsRebuild: needsRebuild}, nil
}

// Orphans returns installed records with zero reverse-dependents whose
// prefix is not one of porg.CriticalPrefixes (extended, per the REDESIGN
// FLAG in spec.md §9, from the original's narrower "/" and "/usr" carve-out
// to every critical prefix in §4.F).
func (gr *Graph) Orphans() ([]string, error) {
	recs, err := gr.installed.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range recs {
		if porg.IsCriticalPrefix(r.Prefix) {
			continue
		}
		deps, err := gr.ReverseDependents(r.Name)
		if err != nil {
			return nil, err
		}
		if len(deps) == 0 {
			out = append(out, r.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}
