package lock

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by Acquire when a live process holds the lock.
var ErrAlreadyRunning = errors.New("another collector is already running")

// ProcessProber answers whether a process id belongs to a running process.
type ProcessProber interface {
	Alive(pid int) bool
}

// SignalProber probes with signal 0. A permission error means the process
// exists but belongs to someone else, which still counts as alive.
type SignalProber struct{}

func (SignalProber) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// PIDFile is an advisory singleton lock recorded as a decimal pid.
type PIDFile struct {
	Path   string
	Prober ProcessProber

	pid int
}

func New(path string) *PIDFile {
	return &PIDFile{Path: path, Prober: SignalProber{}}
}

// Acquire records the current process in the pid file. A file left by a
// process that is no longer running, or one that cannot be parsed, is
// replaced.
func (p *PIDFile) Acquire() error {
	self := os.Getpid()

	owner, err := p.readPID()
	switch {
	case err == nil:
		if owner != self && p.Prober.Alive(owner) {
			return fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, owner, p.Path)
		}
		if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale pid file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove unreadable pid file: %w", err)
		}
	}

	f, err := os.OpenFile(p.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w (%s appeared while acquiring)", ErrAlreadyRunning, p.Path)
		}
		return fmt.Errorf("create pid file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", self); err != nil {
		f.Close()
		os.Remove(p.Path)
		return fmt.Errorf("write pid file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p.Path)
		return fmt.Errorf("close pid file: %w", err)
	}
	p.pid = self
	return nil
}

// Release removes the pid file if it still names this process.
func (p *PIDFile) Release() error {
	if p.pid == 0 {
		return nil
	}
	owner, err := p.readPID()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.pid = 0
			return nil
		}
		return err
	}
	if owner != p.pid {
		return nil
	}
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	p.pid = 0
	return nil
}

func (p *PIDFile) readPID() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	line, _, _ := bytes.Cut(data, []byte("\n"))
	pid, err := strconv.Atoi(string(bytes.TrimSpace(line)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", p.Path, err)
	}
	return pid, nil
}
