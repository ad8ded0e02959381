package plog

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Rotate compresses session logs older than rotateDays and removes
// compressed logs older than deleteDays, matching spec.md §4.A's log
// rotation contract.
func Rotate(dir string, rotateDays, deleteDays int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	now := time.Now()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		path := filepath.Join(dir, e.Name())

		if strings.HasSuffix(e.Name(), ".gz") {
			if age > time.Duration(deleteDays)*24*time.Hour {
				os.Remove(path)
			}
			continue
		}
		if !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		if age > time.Duration(rotateDays)*24*time.Hour {
			if err := gzipFile(path); err != nil {
				return err
			}
		}
	}
	return nil
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(path)
}
