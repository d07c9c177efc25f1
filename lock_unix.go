//go:build !windows
// +build !windows

package wal

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// checkDirPerms checks to see if name exists, is a directory, and that we
// have read and write permissions to it.
func checkDirPerms(name string) error {
	// Try to stat the path. If we can't get any info from it, this
	// usually means the path doesn't exit, or that we do not have
	// read access.
	fi, err := os.Stat(name)
	if err != nil {
		return errors.Wrap(err, "stat")
	}

	// Make sure the path refers to a directory.
	if !fi.IsDir() {
		return errors.Errorf("%s is not a directory", name)
	}

	// Can we write to the directory?
	if err := unix.Access(name, unix.R_OK|unix.W_OK); err != nil {
		return errors.Wrap(err, "check write permissions")
	}

	return nil
}

// dirLock is an exclusive advisory lock held on a file inside the WAL
// directory.
type dirLock struct {
	f    *os.File
	once sync.Once
	err  error
}

// acquireDirLock takes an exclusive flock on path without waiting. Locks
// belong to the open file description, so a second handle in the same
// process conflicts just like another process does.
func acquireDirLock(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.Wrap(ErrLocked, path)
		}
		return nil, errors.Wrap(err, "flock")
	}
	return &dirLock{f: f}, nil
}

// release unlocks and closes the lock file. The file itself is left in
// place. Only the first call has an effect.
func (l *dirLock) release() error {
	l.once.Do(func() {
		if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
			l.err = errors.Wrap(err, "unlock")
		}
		if err := l.f.Close(); err != nil && l.err == nil {
			l.err = errors.Wrap(err, "close lock file")
		}
	})
	return l.err
}

// syncDir commits directory entries (created, renamed or removed files)
// to stable storage.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "open dir")
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Wrap(err, "sync dir")
	}
	return nil
}
