package wal

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

var errInjected = errors.New("injected fault")

// faultyFile wraps a real segment file, and fails Sync or Write once its
// trigger is armed.
type faultyFile struct {
	segmentFile
	failSync  *atomic.Bool
	failWrite *atomic.Bool
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.failWrite.Load() {
		return 0, errInjected
	}
	return f.segmentFile.Write(p)
}

func (f *faultyFile) Sync() error {
	if f.failSync.Load() {
		return errInjected
	}
	return f.segmentFile.Sync()
}

// faultyOpener returns a fileOpener whose files fail according to the
// returned triggers. The triggers apply to every file opened.
func faultyOpener() (open fileOpener, failSync, failWrite *atomic.Bool) {
	failSync, failWrite = new(atomic.Bool), new(atomic.Bool)
	open = func(path string) (segmentFile, error) {
		f, err := createSegmentFile(path)
		if err != nil {
			return nil, err
		}
		return &faultyFile{segmentFile: f, failSync: failSync, failWrite: failWrite}, nil
	}
	return open, failSync, failWrite
}
