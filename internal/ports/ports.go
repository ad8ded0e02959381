// Package ports discovers recipe files under the ports tree laid out per
// spec.md §6 as <PORTS_DIR>/<category>/<name>/*.y{a,}ml, and satisfies
// every component-local RecipeLocator/RecipeSource interface
// (internal/depgraph, internal/sandbox's callers, internal/upgrade,
// internal/bootstrap, internal/audit) from the one index.
package ports

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/porgproject/porg/internal/recipe"
	"github.com/porgproject/porg"
)

// Tree indexes recipe files under a root directory by package name. The
// index is built once and refreshed by Rescan (cheap enough to call
// after a sync pulls new recipes in).
type Tree struct {
	root string

	mu    sync.RWMutex
	paths map[string]string // name -> recipe file path
}

// New returns a Tree rooted at root. The index is empty until Rescan (or
// the first Locate/Recipe call, which scans lazily) populates it.
func New(root string) *Tree {
	return &Tree{root: root}
}

// Rescan walks the tree and rebuilds the name->path index from scratch.
// A missing root is not an error; the index is simply empty.
func (t *Tree) Rescan() error {
	paths := map[string]string{}
	err := filepath.Walk(t.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}
		name := filepath.Base(filepath.Dir(path))
		// Deterministic tie-break when more than one recipe file maps to
		// the same package directory: the lexicographically first wins.
		if existing, ok := paths[name]; !ok || path < existing {
			paths[name] = path
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.paths = paths
	t.mu.Unlock()
	return nil
}

func (t *Tree) ensureScanned() {
	t.mu.RLock()
	done := t.paths != nil
	t.mu.RUnlock()
	if !done {
		_ = t.Rescan()
	}
}

// Locate implements the RecipeLocator interface shared by
// internal/audit, internal/upgrade and internal/bootstrap: it resolves a
// package name to the recipe file path backing it.
func (t *Tree) Locate(name string) (string, bool) {
	t.ensureScanned()
	t.mu.RLock()
	defer t.mu.RUnlock()
	path, ok := t.paths[name]
	return path, ok
}

// Recipe implements depgraph.RecipeSource: it resolves and parses a
// package name's recipe in one step.
func (t *Tree) Recipe(name string) (*porg.Recipe, error) {
	path, ok := t.Locate(name)
	if !ok {
		return nil, os.ErrNotExist
	}
	return recipe.Load(path)
}

// Names returns every package name currently indexed, sorted.
func (t *Tree) Names() []string {
	t.ensureScanned()
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.paths))
	for n := range t.paths {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
