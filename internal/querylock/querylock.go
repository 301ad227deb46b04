// Package querylock serialises runs of the same query across processes.
package querylock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned by TryLock when another run holds the query's lock.
var ErrHeld = errors.New("query lock held by another run")

// Locker hands out per-query file locks below a directory.
type Locker struct {
	dir string
}

// New creates a Locker that keeps its lock files in dir.
func New(dir string) *Locker {
	return &Locker{dir: dir}
}

// Path returns the lock file used for a query.
func (l *Locker) Path(queryID int64) string {
	return filepath.Join(l.dir, fmt.Sprintf("query-%d.lock", queryID))
}

// Lock is an acquired per-query lock.
type Lock struct {
	fl *flock.Flock
}

// TryLock acquires the query's lock without blocking.
func (l *Locker) TryLock(queryID int64) (*Lock, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fl := flock.New(l.Path(queryID))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("query %d: %w", queryID, ErrHeld)
	}
	return &Lock{fl: fl}, nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
