package ports

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRecipeFile(t *testing.T, root, category, name, filename, body string) {
	t.Helper()
	dir := filepath.Join(root, category, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTreeLocatesRecipesByDirectoryName(t *testing.T) {
	root := t.TempDir()
	writeRecipeFile(t, root, "sys-libs", "zlib", "recipe.yaml", "name: zlib\nversion: \"1.3\"\n")
	writeRecipeFile(t, root, "app-editors", "hello", "recipe.yml", "name: hello\nversion: \"2.12\"\n")

	tree := New(root)
	if err := tree.Rescan(); err != nil {
		t.Fatal(err)
	}

	path, ok := tree.Locate("zlib")
	if !ok {
		t.Fatal("expected zlib to be located")
	}
	if filepath.Base(path) != "recipe.yaml" {
		t.Errorf("zlib path = %s, want recipe.yaml", path)
	}

	if _, ok := tree.Locate("hello"); !ok {
		t.Fatal("expected hello to be located")
	}

	if _, ok := tree.Locate("missing"); ok {
		t.Fatal("expected missing package to not be located")
	}
}

func TestTreeRecipeParsesTheLocatedFile(t *testing.T) {
	root := t.TempDir()
	writeRecipeFile(t, root, "sys-libs", "zlib", "recipe.yaml", "name: zlib\nversion: \"1.3\"\n")

	tree := New(root)
	r, err := tree.Recipe("zlib")
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "zlib" || r.Version != "1.3" {
		t.Errorf("r = %+v", r)
	}
}

func TestTreeLazilyScansOnFirstUse(t *testing.T) {
	root := t.TempDir()
	writeRecipeFile(t, root, "sys-libs", "zlib", "recipe.yaml", "name: zlib\nversion: \"1.3\"\n")

	tree := New(root)
	names := tree.Names()
	if len(names) != 1 || names[0] != "zlib" {
		t.Errorf("Names() = %v, want [zlib]", names)
	}
}

func TestTreeIgnoresNonYAMLFiles(t *testing.T) {
	root := t.TempDir()
	writeRecipeFile(t, root, "sys-libs", "zlib", "recipe.yaml", "name: zlib\nversion: \"1.3\"\n")
	writeRecipeFile(t, root, "sys-libs", "zlib", "README.md", "not a recipe")

	tree := New(root)
	if err := tree.Rescan(); err != nil {
		t.Fatal(err)
	}
	if len(tree.Names()) != 1 {
		t.Errorf("Names() = %v, want exactly one entry", tree.Names())
	}
}

func TestTreeOnMissingRootHasEmptyIndex(t *testing.T) {
	tree := New(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := tree.Rescan(); err != nil {
		t.Fatal(err)
	}
	if len(tree.Names()) != 0 {
		t.Errorf("Names() = %v, want empty", tree.Names())
	}
}
