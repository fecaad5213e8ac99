package partialrestart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrHeldByOther is returned when a marker's flock is already held by a
// live peer process (spec §3: "a producer terminates while holding
// outstanding ... slots" is recoverable only once its existence marker's
// lock is free).
var ErrHeldByOther = errors.New("partialrestart: marker held by another process")

// Marker is a held partial-restart marker file: its existence records
// "a producer/consumer was here", its flock records "and is still alive"
// (spec §3 "Service instance existence and usage markers", §4.5 steps
// 1/2). Grounded on
// _examples/calvinalkan-agent-task/internal/fs/lock.go's flock discipline,
// generalized from a generic file locker to the specific existence/usage
// marker lifecycle LoLa needs.
type Marker struct {
	path   string
	file   *os.File
	shared bool
}

// Acquire creates (if needed) the marker file at path and takes an
// exclusive, non-blocking flock on it, then writes the current process id
// into the locked file in place (spec §4.5 step 1: "Attempt to
// exclusively lock the existence marker file... if already locked by a
// live process, fail"). The file is never replaced, so the lock taken is
// always on the same inode other processes open at path.
//
// Returns ErrHeldByOther if the lock is already held — the expected case
// when another live process is offering/using the same service instance.
func Acquire(path string) (*Marker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("partialrestart: create marker directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("partialrestart: open marker %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return nil, ErrHeldByOther
		}
		return nil, fmt.Errorf("partialrestart: flock marker %s: %w", path, err)
	}

	pid := strconv.Itoa(os.Getpid())
	err = f.Truncate(0)
	if err == nil {
		_, err = f.WriteAt([]byte(pid), 0)
	}
	if err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("partialrestart: write marker %s: %w", path, err)
	}

	return &Marker{path: path, file: f}, nil
}

// AcquireShared creates (if needed) the marker file at path and takes a
// shared, non-blocking flock on it: a consumer's liveness signal on the
// service-instance usage marker (spec §4.6 step 1: "Take a shared
// filesystem lock on the service-instance usage marker file"). Unlike
// Acquire, many processes may hold this lock at once.
func AcquireShared(path string) (*Marker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("partialrestart: create marker directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("partialrestart: open marker %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("partialrestart: flock marker %s: %w", path, err)
	}

	return &Marker{path: path, file: f, shared: true}, nil
}

// IsStale reports whether the marker file at path exists but is not
// currently flocked by a live process — the signature of a crashed
// producer or consumer that a rollback agent must recover from (spec §3
// "Partial restart", Open Question on producer crash recovery: "detection
// protocol ... via the existence marker file-lock").
func IsStale(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("partialrestart: open marker %s: %w", path, err)
	}
	defer f.Close()

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return false, nil // held by a live process
		}
		return false, fmt.Errorf("partialrestart: flock marker %s: %w", path, err)
	}
	// We now hold the lock nobody else had: release it immediately, this
	// call only probes liveness and must not itself claim ownership.
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return true, nil
}

// Release unlocks and removes the marker file. Only the process that
// called Acquire should call Release (spec §4.5 step 6 / subscriber
// teardown).
func (m *Marker) Release() error {
	if m.file == nil {
		return nil
	}
	if m.shared {
		return m.releaseSharedLocked()
	}

	unlockErr := unix.Flock(int(m.file.Fd()), unix.LOCK_UN)
	closeErr := m.file.Close()
	removeErr := os.Remove(m.path)
	m.file = nil
	if unlockErr != nil {
		return fmt.Errorf("partialrestart: unlock marker %s: %w", m.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("partialrestart: close marker %s: %w", m.path, closeErr)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("partialrestart: remove marker %s: %w", m.path, removeErr)
	}
	return nil
}

// releaseSharedLocked drops this holder's shared lock. Since several
// consumer processes may hold the usage marker's shared lock at once,
// only the last one to leave should unlink the file: after releasing,
// it probes for an exclusive lock (which only succeeds with no other
// holder left) and unlinks on success.
func (m *Marker) releaseSharedLocked() error {
	if err := unix.Flock(int(m.file.Fd()), unix.LOCK_UN); err != nil {
		m.file.Close()
		m.file = nil
		return fmt.Errorf("partialrestart: unlock marker %s: %w", m.path, err)
	}
	if err := unix.Flock(int(m.file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err == nil {
		os.Remove(m.path)
		unix.Flock(int(m.file.Fd()), unix.LOCK_UN)
	}
	closeErr := m.file.Close()
	m.file = nil
	if closeErr != nil {
		return fmt.Errorf("partialrestart: close marker %s: %w", m.path, closeErr)
	}
	return nil
}

// Path returns the marker's filesystem path.
func (m *Marker) Path() string { return m.path }
