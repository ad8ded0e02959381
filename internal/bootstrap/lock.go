package bootstrap

import (
	"os"
	"path/filepath"
	"time"

	"github.com/porgproject/porg/internal/perr"
)

// dirLock is a process-wide advisory lock identical in shape to the
// installed DB's (internal/db/lock.go): an atomically-created directory
// as the mutex, bounded-retry acquire, release on every exit path.
// Duplicated rather than exported from internal/db because the two
// components guard unrelated resources (the installed-record file vs.
// "is another bootstrap run in progress") and have no other reason to
// share a type.
type dirLock struct {
	path string
	held bool
}

func newDirLock(stateDir string) *dirLock {
	return &dirLock{path: filepath.Join(stateDir, "bootstrap.lock")}
}

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
	return perr.DBLocked.Newf("bootstrap lock held at %s after %d attempts", l.path, maxAttempts)
}

func (l *dirLock) release() {
	if !l.held {
		return
	}
	os.Remove(l.path)
	l.held = false
}
