//go:build windows
// +build windows

package wal

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

func checkDirPerms(name string) error {
	fi, err := os.Stat(name)
	if err != nil {
		return errors.Wrap(err, "stat")
	}

	if !fi.IsDir() {
		return errors.Errorf("%s is not a directory", name)
	}

	// Attempt to write a file, and remove it before returning.
	testFile := filepath.Join(name, "walwrchk")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrap(err, "no write perms?")
	}
	f.Close()
	os.Remove(testFile)
	return nil
}

type dirLock struct {
	f    *os.File
	once sync.Once
	err  error
}

func acquireDirLock(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	if err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, new(windows.Overlapped)); err != nil {
		f.Close()
		if err == windows.ERROR_LOCK_VIOLATION {
			return nil, errors.Wrap(ErrLocked, path)
		}
		return nil, errors.Wrap(err, "lock file")
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) release() error {
	l.once.Do(func() {
		if err := windows.UnlockFileEx(windows.Handle(l.f.Fd()), 0, 1, 0, new(windows.Overlapped)); err != nil {
			l.err = errors.Wrap(err, "unlock")
		}
		if err := l.f.Close(); err != nil && l.err == nil {
			l.err = errors.Wrap(err, "close lock file")
		}
	})
	return l.err
}

// syncDir is a no-op; directories cannot be opened for syncing on Windows.
func syncDir(dir string) error {
	return nil
}
