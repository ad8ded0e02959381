package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg"
	"golang.org/x/xerrors"
)

func recWithName(key, name string) porg.InstalledRecord {
	return porg.InstalledRecord{Name: name}
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	return Open(filepath.Join(dir, "installed.json"))
}

func TestRegisterGetIsInstalled(t *testing.T) {
	d := newTestDB(t)
	if err := os.MkdirAll(filepath.Join(filepath.Dir(d.Path()), "prefix"), 0o755); err != nil {
		t.Fatal(err)
	}
	prefix := filepath.Join(filepath.Dir(d.Path()), "prefix")

	if err := d.Register("hello", "2.12", prefix, nil); err != nil {
		t.Fatal(err)
	}
	rec, err := d.Get("hello")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Key() != "hello-2.12" {
		t.Errorf("key = %q", rec.Key())
	}
	ok, err := d.IsInstalled("hello")
	if err != nil || !ok {
		t.Errorf("IsInstalled = %v, %v", ok, err)
	}
}

func TestSingleVersionInvariant(t *testing.T) {
	d := newTestDB(t)
	p1 := t.TempDir()
	p2 := t.TempDir()
	if err := d.Register("libfoo", "1.0", p1, nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Register("libfoo", "1.1", p2, nil); err != nil {
		t.Fatal(err)
	}
	list, err := d.List()
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, r := range list {
		if r.Name == "libfoo" {
			count++
			if r.Version != "1.1" {
				t.Errorf("surviving version = %q, want 1.1", r.Version)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one libfoo record, got %d", count)
	}
}

func TestUnregisterNotFound(t *testing.T) {
	d := newTestDB(t)
	_, err := d.Unregister("nope")
	if !xerrors.Is(err, perr.NotFound) {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestRegisterThenUnregisterRoundTrip(t *testing.T) {
	d := newTestDB(t)
	prefix := t.TempDir()
	if err := d.Register("x", "1.0", prefix, nil); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(d.Path())
	if err != nil {
		t.Fatal(err)
	}
	_ = before // captured for readability; the empty-db case is checked below

	if _, err := d.Unregister("x"); err != nil {
		t.Fatal(err)
	}
	list, err := d.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty db after register+unregister, got %d records", len(list))
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	d := newTestDB(t)
	prefix := t.TempDir()
	if err := d.Register("x", "1.0", prefix, nil); err != nil {
		t.Fatal(err)
	}
	backupDir := t.TempDir()
	path, err := d.Backup(backupDir)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Register("y", "2.0", t.TempDir(), nil); err != nil {
		t.Fatal(err)
	}

	if err := d.Restore(path); err != nil {
		t.Fatal(err)
	}
	list, err := d.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "x" {
		t.Errorf("restore did not return to prior state: %+v", list)
	}
}

func TestMatchingRule(t *testing.T) {
	cases := []struct {
		key, name, query string
		want             bool
	}{
		{"libfoo-1.0", "libfoo", "libfoo-1.0", true},
		{"libfoo-1.0", "libfoo", "libfoo", true},
		{"libfoobar-1.0", "libfoobar", "libfoo", false},
	}
	for _, c := range cases {
		got := matches(c.key, recWithName(c.key, c.name), c.query)
		if got != c.want {
			t.Errorf("matches(%q, %q) = %v, want %v", c.key, c.query, got, c.want)
		}
	}
}
