package wal

import (
	"io"
	"os"
)

// segmentFile defines the interface of a file the writer appends segment
// frames to.
type segmentFile interface {
	io.Writer
	io.Closer

	// Sync commits the file's contents to stable storage.
	Sync() error

	// Name returns the path the file was opened with.
	Name() string
}

// fileOpener creates a new segment file at path. The file must not
// already exist.
type fileOpener func(path string) (segmentFile, error)

func createSegmentFile(path string) (segmentFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}
