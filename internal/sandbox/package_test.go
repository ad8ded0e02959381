package sandbox

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/porgproject/porg"
)

func TestTarDirProducesExpectedEntries(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "usr", "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "usr", "bin", "hello"), []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	tarPath := filepath.Join(t.TempDir(), "out.tar")
	if err := tarDir(root, tarPath); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(tarPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names[hdr.Name] = true
	}
	if !names["usr/"] || !names["usr/bin/"] || !names["usr/bin/hello"] {
		t.Errorf("tar entries = %v, missing expected paths", names)
	}
}

func TestCompressArtifactGzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "pkg.tar")
	if err := os.WriteFile(tarPath, []byte("fake tar bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := compressArtifact(tarPath, porg.FormatGzip)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(out) != ".gz" {
		t.Errorf("out = %s, want .gz suffix", out)
	}
	if _, err := os.Stat(tarPath); !os.IsNotExist(err) {
		t.Errorf("uncompressed tar should have been removed")
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer gr.Close()
	got, err := io.ReadAll(gr)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fake tar bytes" {
		t.Errorf("decompressed = %q", got)
	}
}

func TestCompressArtifactTarFormatIsNoop(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "pkg.tar")
	if err := os.WriteFile(tarPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := compressArtifact(tarPath, porg.FormatTar)
	if err != nil {
		t.Fatal(err)
	}
	if out != tarPath {
		t.Errorf("out = %s, want unchanged %s", out, tarPath)
	}
}
