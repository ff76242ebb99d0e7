// Package lock keeps two sync runs from writing the same mirror at once.
//
// The guard is a PID file beside the SQLite database. A file left behind by
// a process that no longer exists is treated as stale and replaced.
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

// Suffix is appended to the database path to name the guard file.
const Suffix = ".pid"

// RunGuard holds the PID file for one mirror database.
type RunGuard struct {
	path string
}

// NewRunGuard returns the guard for the database at dbPath.
func NewRunGuard(dbPath string) *RunGuard {
	return &RunGuard{path: dbPath + Suffix}
}

// Path returns the guard file location.
func (g *RunGuard) Path() string {
	return g.path
}

// Check reports whether another live process holds the guard.
// Stale or unreadable guard files are removed.
func (g *RunGuard) Check() error {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		_ = os.Remove(g.path)
		return nil
	}
	if pid != os.Getpid() && processExists(pid) {
		return &AlreadyRunningError{PID: pid, Path: g.path}
	}

	_ = os.Remove(g.path)
	return nil
}

// Acquire claims the guard for the current process.
func (g *RunGuard) Acquire() error {
	if err := g.Check(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("create guard dir: %w", err)
	}

	f, err := os.OpenFile(g.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// Lost a race with another run starting at the same moment.
			return &AlreadyRunningError{Path: g.path}
		}
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the guard file. Safe to call when it does not exist.
func (g *RunGuard) Release() {
	_ = os.Remove(g.path)
}

// AlreadyRunningError means another sync holds the mirror.
type AlreadyRunningError struct {
	PID  int
	Path string
}

func (e *AlreadyRunningError) Error() string {
	if e.PID == 0 {
		return fmt.Sprintf("another sync is running (%s)", e.Path)
	}
	return fmt.Sprintf("another sync is running (pid %d, %s)", e.PID, e.Path)
}

// processExists sends signal 0; on Unix FindProcess always succeeds.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
