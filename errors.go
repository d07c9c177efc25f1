package wal

import "github.com/pkg/errors"

var (
	// ErrClosed is returned by operations on a *WAL after Close was called.
	ErrClosed = errors.New("wal: closed")

	// ErrLocked is returned by Open when another handle holds the
	// directory lock.
	ErrLocked = errors.New("wal: directory locked by another instance")

	// ErrFrameTooLarge is returned when a frame declares a payload length
	// beyond MaxFrameBytes.
	ErrFrameTooLarge = errors.New("wal: frame too large")

	// ErrChecksumMismatch is returned when a frame's payload does not match
	// its trailing checksum.
	ErrChecksumMismatch = errors.New("wal: frame checksum mismatch")

	// ErrCorruptRecord is returned when a frame's payload cannot be decoded
	// into a known record.
	ErrCorruptRecord = errors.New("wal: corrupt record")

	// ErrSegmentMissing is returned by the writer when the active segment
	// file disappeared and the sync policy does not tolerate it.
	ErrSegmentMissing = errors.New("wal: active segment missing")

	// ErrSegmentExists is returned by the writer when the file a new
	// segment would be named after already exists, which happens when the
	// owning store mints an id that already started a segment.
	ErrSegmentExists = errors.New("wal: segment file already exists")

	// ErrInvalidConfig is returned for a configuration that cannot be used.
	ErrInvalidConfig = errors.New("wal: invalid configuration")
)
