// Package lock guards the SQLite database against a second instagate
// instance. SQLite tolerates one writer; two processes deduplicating and
// replying against the same file would double-send.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned when another process holds the database lock.
var ErrHeld = errors.New("database lock held by another process")

// DBLock is a single-instance lock implemented via a PID file + flock(2),
// placed next to the database file. Keep the lock alive by keeping the file
// descriptor open.
type DBLock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive non-blocking lock at <dbPath>.lock and writes
// the current PID into it. If another instance holds the lock, the error
// wraps ErrHeld and names the holder's PID when it can be read.
func Acquire(dbPath string) (*DBLock, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	lockPath := dbPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolderPID(f)
		_ = f.Close()
		if holder > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrHeld, holder)
		}
		return nil, ErrHeld
	}

	if err := writePID(f); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, err
	}

	return &DBLock{path: lockPath, f: f}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

func readHolderPID(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}

func (l *DBLock) Path() string { return l.path }

func (l *DBLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
