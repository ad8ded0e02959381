package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/porgproject/porg"
)

func writeRecipe(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBasicRecipe(t *testing.T) {
	path := writeRecipe(t, `
name: hello
version: "2.12"
sources:
  - url: file:///f/hello-2.12.tar.gz
    checksum: deadbeef
build: |
  ./configure --prefix=/usr
  make
install: >
  make
  DESTDIR=$DESTDIR install
dependencies:
  build:
    - make
  runtime:
    - glibc
`)
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "hello" || r.Version != "2.12" {
		t.Errorf("name/version = %q/%q", r.Name, r.Version)
	}
	if len(r.Sources) != 1 || r.Sources[0].Checksum != "deadbeef" {
		t.Errorf("sources = %+v", r.Sources)
	}
	if r.Build != "./configure --prefix=/usr\nmake\n" {
		t.Errorf("literal block scalar not preserved: %q", r.Build)
	}
	if r.Install != "make DESTDIR=$DESTDIR install\n" {
		t.Errorf("folded block scalar not folded: %q", r.Install)
	}
	if len(r.DepsBuild) != 1 || r.DepsBuild[0] != "make" {
		t.Errorf("DepsBuild = %v", r.DepsBuild)
	}
	if len(r.DepsRuntime) != 1 || r.DepsRuntime[0] != "glibc" {
		t.Errorf("DepsRuntime = %v", r.DepsRuntime)
	}
}

func TestSingleSourceConvenienceFolds(t *testing.T) {
	path := writeRecipe(t, `
name: foo
version: "1.0"
source: https://example.org/foo-1.0.tar.gz
sha256: abc123
`)
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Sources) != 1 {
		t.Fatalf("Sources = %+v", r.Sources)
	}
	if r.Sources[0].URL != "https://example.org/foo-1.0.tar.gz" || r.Sources[0].Checksum != "abc123" {
		t.Errorf("folded source = %+v", r.Sources[0])
	}
}

func TestUnknownKeysPreservedNotError(t *testing.T) {
	path := writeRecipe(t, `
name: foo
version: "1.0"
maintainer: jane
`)
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if r.Extra["maintainer"] != "jane" {
		t.Errorf("Extra = %+v", r.Extra)
	}
}

func TestMissingNameVersionDefaults(t *testing.T) {
	path := writeRecipe(t, `
build: "true"
`)
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if r.Version != "0.0.0" {
		t.Errorf("Version = %q, want 0.0.0 default", r.Version)
	}
	if r.Name == "" {
		t.Errorf("Name should default from filename/dir")
	}
}

func TestSourcesMustBeSequence(t *testing.T) {
	path := writeRecipe(t, `
name: foo
version: "1.0"
sources: "not-a-sequence"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	perr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("err = %T, want *ParseError", err)
	}
	if perr.Line == 0 {
		t.Errorf("ParseError missing line info: %+v", perr)
	}
}

func TestHooksParsed(t *testing.T) {
	path := writeRecipe(t, `
name: foo
version: "1.0"
hooks:
  post-install:
    - ldconfig
    - systemctl daemon-reload
`)
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cmds := r.Hooks[porg.HookPostInstall]
	if len(cmds) != 2 || cmds[1] != "systemctl daemon-reload" {
		t.Errorf("hooks = %+v", r.Hooks)
	}
}
