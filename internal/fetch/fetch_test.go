package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg"
	"golang.org/x/xerrors"
)

func TestClassifyScheme(t *testing.T) {
	cases := map[string]porg.SourceScheme{
		"https://example.org/a.tar.gz":       porg.SchemeHTTPS,
		"http://example.org/a.tar.gz":         porg.SchemeHTTP,
		"ftp://example.org/a.tar.gz":          porg.SchemeFTP,
		"file:///tmp/a.tar.gz":                porg.SchemeFile,
		"git+https://example.org/repo#main":   porg.SchemeVCS,
		"https://example.org/repo.git":        porg.SchemeVCS,
	}
	for url, want := range cases {
		if got := classifyScheme(url); got != want {
			t.Errorf("classifyScheme(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestFetchHTTPDownloadsAndVerifiesChecksum(t *testing.T) {
	const body = "hello world source tarball"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	sum := sha256.Sum256([]byte(body))
	checksum := hex.EncodeToString(sum[:])

	f := New(t.TempDir(), "", nil)
	path, err := f.Fetch(context.Background(), []porg.Source{{URL: srv.URL + "/pkg-1.0.tar.gz", Checksum: checksum}})
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Errorf("downloaded content = %q, want %q", got, body)
	}
}

func TestFetchRejectsBadChecksumAndTriesNextSource(t *testing.T) {
	const body = "source bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	sum := sha256.Sum256([]byte(body))
	goodChecksum := hex.EncodeToString(sum[:])

	f := New(t.TempDir(), "", nil)
	sources := []porg.Source{
		{URL: srv.URL + "/bad.tar.gz", Checksum: "deadbeef"},
		{URL: srv.URL + "/good.tar.gz", Checksum: goodChecksum},
	}
	path, err := f.Fetch(context.Background(), sources)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "good.tar.gz" {
		t.Errorf("path = %s, want good.tar.gz to have been chosen", path)
	}
	if _, err := os.Stat(filepath.Join(f.CacheDir, "bad.tar.gz")); err == nil {
		t.Errorf("rejected download %s should have been removed", "bad.tar.gz")
	}
}

func TestFetchAllSourcesExhaustedReturnsNoValidSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(t.TempDir(), "", nil)
	_, err := f.Fetch(context.Background(), []porg.Source{{URL: srv.URL + "/missing.tar.gz"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !xerrors.Is(err, perr.NoValidSource) {
		t.Errorf("err = %v, want wrapping perr.NoValidSource", err)
	}
}

func TestFetchFileSkipsExistingCacheEntry(t *testing.T) {
	dir := t.TempDir()
	srcFile := filepath.Join(dir, "origin.tar.gz")
	if err := os.WriteFile(srcFile, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	cacheDir := t.TempDir()
	cached := filepath.Join(cacheDir, "origin.tar.gz")
	if err := os.WriteFile(cached, []byte("already-cached"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New(cacheDir, "", nil)
	path, err := f.Fetch(context.Background(), []porg.Source{{URL: "file://" + srcFile}})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "already-cached" {
		t.Errorf("expected cached file to be reused, got %q", got)
	}
}
