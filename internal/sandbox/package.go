package sandbox

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg"
	"github.com/ulikunitz/xz"
)

// tarDir writes the contents of root into a tar archive at tarPath.
func tarDir(root, tarPath string) error {
	out, err := os.Create(tarPath)
	if err != nil {
		return perr.IOError.Newf("creating %s", tarPath)
	}
	defer out.Close()

	tw := tar.NewWriter(out)
	defer tw.Close()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if info.IsDir() {
			hdr.Name += "/"
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			hdr.Linkname = link
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// compressArtifact compresses tarPath per format and removes the
// uncompressed tar on success, per spec.md §4.F's packaging step.
func compressArtifact(tarPath string, format porg.ArtifactFormat) (string, error) {
	if format == porg.FormatTar {
		return tarPath, nil
	}

	outPath := tarPath + "." + string(format)
	in, err := os.Open(tarPath)
	if err != nil {
		return "", perr.IOError.Newf("opening %s for compression", tarPath)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return "", perr.IOError.Newf("creating %s", outPath)
	}

	var werr error
	switch format {
	case porg.FormatZstd:
		enc, err := zstd.NewWriter(out)
		if err != nil {
			out.Close()
			return "", perr.PackageFailed.Newf("zstd writer: %v", err)
		}
		_, werr = io.Copy(enc, in)
		if cerr := enc.Close(); werr == nil {
			werr = cerr
		}
	case porg.FormatXZ:
		enc, err := xz.NewWriter(out)
		if err != nil {
			out.Close()
			return "", perr.PackageFailed.Newf("xz writer: %v", err)
		}
		_, werr = io.Copy(enc, in)
		if cerr := enc.Close(); werr == nil {
			werr = cerr
		}
	case porg.FormatGzip:
		enc := gzip.NewWriter(out)
		_, werr = io.Copy(enc, in)
		if cerr := enc.Close(); werr == nil {
			werr = cerr
		}
	default:
		out.Close()
		return "", perr.InvalidInput.Newf("unsupported package format %q", format)
	}

	if cerr := out.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(outPath)
		return "", perr.PackageFailed.Newf("compressing %s: %v", tarPath, werr)
	}
	if err := os.Remove(tarPath); err != nil {
		return "", perr.IOError.Newf("removing uncompressed tar %s", tarPath)
	}
	return outPath, nil
}
