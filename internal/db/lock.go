package db

import (
	"os"
	"path/filepath"
	"time"

	"github.com/porgproject/porg/internal/perr"
)

// dirLock is the directory-based advisory lock of spec.md §4.B: create a
// directory atomically (os.Mkdir fails with EEXIST if held), poll with
// bounded retries at a fixed interval, release on every exit path.
type dirLock struct {
	path string
	held bool
}

func newDirLock(dbPath string) *dirLock {
	return &dirLock{path: dbPath + ".lock"}
}

// acquire blocks (with bounded retries) until the lock directory can be
// created, or returns db_locked.
func (l *dirLock) acquire(maxAttempts int, wait time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := os.Mkdir(l.path, 0o755)
		if err == nil {
			l.held = true
			return nil
		}
		if !os.IsExist(err) {
			return err
		}
		time.Sleep(wait)
	}
	return perr.DBLocked.Newf("lock held at %s after %d attempts", l.path, maxAttempts)
}

// release removes the lock directory. Safe to call even if acquire
// failed or was never called.
func (l *dirLock) release() {
	if !l.held {
		return
	}
	os.Remove(l.path)
	l.held = false
}
