// Package runlock keeps two sync processes from running passes against the
// same cursor at once.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("another sync is in progress")

// Lock is an exclusive advisory file lock.
type Lock struct {
	fl *flock.Flock
}

// DefaultPath is the lock file used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "notionsync.lock")
}

// New returns an unlocked Lock on path.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Acquire takes the lock without waiting.
func (l *Lock) Acquire() error {
	if dir := filepath.Dir(l.fl.Path()); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create lock directory: %w", err)
		}
	}
	locked, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w (lock file %s)", ErrLocked, l.fl.Path())
	}
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}
