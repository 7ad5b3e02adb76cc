// Package namedlock implements the cross-process mutual exclusion primitive
// spec.md §4.1 describes, grounded on locks::CriticalSection
// (_examples/original_source/src/locks.cpp): a named, system-wide lock with
// a bounded-wait acquire and a reset primitive for stuck-holder recovery.
// The original keys the lock on a POSIX named semaphore; this port keys it
// on golang.org/x/sys/unix.Flock over a regular file, the same syscall
// family the teacher repo uses for its own daemon lockfile
// (internal/lockfile/lock_unix.go).
package namedlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"

	"github.com/flightdeals/dealsindex/internal/dealerrs"
)

// DefaultWait is the bounded wait acquire() gives up after, grounded on
// locks::WAIT_FOR_LOCK_MSEC (5000ms).
const DefaultWait = 5 * time.Second

// PollInterval is the retry spacing, grounded on
// locks::SLEEP_BETWEEN_TRIES_USEC (100µs). The backoff multiplier is 1 and
// the maximum interval is PollInterval, so retries run at a fixed interval,
// close to the original's plain busy-wait under contention.
const PollInterval = 100 * time.Microsecond

// Lock is a named, cross-process mutual exclusion primitive. Acquire must
// be paired with Release on every exit path, including errors raised
// inside the critical section; callers that can use a closure should
// prefer WithLock, which enforces that pairing.
type Lock struct {
	name string
	path string
	file *os.File

	// mu serializes Acquire within this process: flock granted to a second
	// *os.File owned by the same process does not block against the first,
	// so cross-goroutine exclusion inside one process needs this in
	// addition to the syscall.
	mu   sync.Mutex
	held bool
}

// Open creates or attaches the named lock's backing file under dir.
func Open(dir, name string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dealerrs.Wrap(dealerrs.KindInternal, err, "create lock dir %q", dir)
	}
	path := filepath.Join(dir, name+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, dealerrs.Wrap(dealerrs.KindInternal, err, "open lock file %q", path)
	}
	return &Lock{name: name, path: path, file: f}, nil
}

// Acquire blocks until the lock is held or DefaultWait elapses, whichever
// comes first, failing with dealerrs.KindLockTimeout in the latter case.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = PollInterval
	b.MaxInterval = PollInterval
	b.Multiplier = 1
	b.MaxElapsedTime = DefaultWait

	err := backoff.Retry(func() error {
		ferr := unix.Flock(int(l.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if ferr == unix.EWOULDBLOCK {
			return ferr
		}
		if ferr != nil {
			return backoff.Permanent(ferr)
		}
		return nil
	}, backoff.WithContext(b, ctx))

	if err != nil {
		l.mu.Unlock()
		return dealerrs.Wrap(dealerrs.KindLockTimeout, err, "acquire lock %q", l.name)
	}

	l.held = true
	return nil
}

// Release releases a held lock. Calling Release without a successful
// Acquire is a no-op, so a failed Acquire's caller never needs to guard
// its own cleanup path.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	defer l.mu.Unlock()
	l.held = false
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return dealerrs.Wrap(dealerrs.KindInternal, err, "release lock %q", l.name)
	}
	return nil
}

// WithLock acquires the lock, runs fn, and releases on every exit path
// (including a panic or error from fn), matching spec.md §4.1's "scoped
// acquisition must release on every exit path" contract.
func (l *Lock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() { _ = l.Release() }()
	return fn()
}

// Reset forces the lock back to the unlocked state, for startup recovery
// when a previous holder died without releasing. Grounded on
// CriticalSection::reset_not_for_production: used only during test
// bring-up, never from request-serving code paths.
func (l *Lock) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("reset lock %q: %w", l.name, err)
	}
	return nil
}

// Close releases the backing file handle. The lock itself is released
// implicitly by the kernel when the last descriptor referencing it closes.
func (l *Lock) Close() error {
	return l.file.Close()
}
