package fetch

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/porgproject/porg/internal/perr"
)

// fetchHTTP downloads rawURL into CacheDir, staging through a ".part"
// sibling so a crash mid-download never leaves a file that looks complete.
// If the final path already exists, the download is skipped entirely.
func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (string, error) {
	final := f.cachePath(rawURL)
	if _, err := os.Stat(final); err == nil {
		return final, nil
	}

	part := final + ".part"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", perr.IOError.Newf("building request for %s", rawURL)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", perr.IOError.Newf("downloading %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", perr.IOError.Newf("downloading %s: status %s", rawURL, resp.Status)
	}

	out, err := os.Create(part)
	if err != nil {
		return "", perr.IOError.Newf("creating %s", part)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(part)
		return "", perr.IOError.Newf("writing %s", part)
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return "", perr.IOError.Newf("closing %s", part)
	}
	if err := os.Rename(part, final); err != nil {
		return "", perr.IOError.Newf("renaming %s to %s", part, final)
	}
	return final, nil
}

// fetchFile copies a file:// source (or a bare filesystem path) into the
// cache the same .part-then-rename way, so callers never branch on
// scheme once the bytes are local.
func (f *Fetcher) fetchFile(rawURL string) (string, error) {
	src := rawURL
	const prefix = "file://"
	if len(src) >= len(prefix) && src[:len(prefix)] == prefix {
		src = src[len(prefix):]
	}

	final := f.cachePath(rawURL)
	if _, err := os.Stat(final); err == nil {
		return final, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", perr.IOError.Newf("opening source file %s", src)
	}
	defer in.Close()

	part := final + ".part"
	out, err := os.Create(part)
	if err != nil {
		return "", perr.IOError.Newf("creating %s", part)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(part)
		return "", perr.IOError.Newf("copying %s", src)
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return "", err
	}
	if err := os.Rename(part, final); err != nil {
		return "", perr.IOError.Newf("renaming %s to %s", part, final)
	}
	return final, nil
}
