package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/inkwell-press/inkwell/internal/core"
)

const (
	// DefaultLockTimeout bounds how long WithLock waits for a live
	// holder before giving up.
	DefaultLockTimeout = 30 * time.Second

	lockRetryDelay = 100 * time.Millisecond
)

// FileLock provides scoped mutual exclusion over the state file using
// a sibling flock(2) lock file. The kernel releases the lock when the
// holding process exits, so a crashed process can never leave the
// pipeline wedged; waiting on a live holder is bounded by Timeout.
type FileLock struct {
	path    string
	timeout time.Duration
}

// NewFileLock creates a lock guarding statePath.
func NewFileLock(statePath string, timeout time.Duration) *FileLock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &FileLock{
		path:    statePath + ".lock",
		timeout: timeout,
	}
}

// Path returns the lock file location.
func (l *FileLock) Path() string { return l.path }

// WithLock acquires the lock, runs fn, and releases on both normal
// return and error. Acquisition failure is fatal for the call; fn is
// never run partially locked.
func (l *FileLock) WithLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return core.ErrLock("creating lock directory").WithCause(err)
	}

	fl := flock.New(l.path)
	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ok, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return core.ErrLock(fmt.Sprintf("acquiring %s", l.path)).WithCause(err)
	}
	if !ok {
		return core.ErrLock(fmt.Sprintf("timed out acquiring %s after %s", l.path, l.timeout))
	}
	defer func() {
		_ = fl.Unlock()
	}()

	return fn()
}
