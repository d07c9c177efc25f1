package wal

import (
	"io"

	"github.com/pkg/errors"
)

// Reader sequentially reads mint records from every segment in a WAL
// directory, in the order the segments were written. When the end of a
// segment is reached, the next segment is opened.
//
// A Reader does not interpret records; replaying them is the job of the
// owning store. It is not safe to call a Reader from multiple goroutines,
// and a directory should not be read while a *WAL is writing to it.
//
// Example:
//
//	r, err := NewReader(dir)
//	if err != nil {
//		...
//	}
//	defer r.Close()
//
//	for r.Next() {
//		rec := r.Record()
//		...
//	}
//
//	if err := r.Error(); err != nil {
//		log.Println("error:", err)
//	}
type Reader struct {
	segments []SegmentInfo
	idx      int // Index of the segment being read.

	rc  io.ReadCloser // Current segment being read.
	rec MintRecord
	err error
}

// NewReader returns a *Reader over the segments in dir.
func NewReader(dir string) (*Reader, error) {
	segments, err := ListSegments(dir)
	if err != nil {
		return nil, errors.Wrap(err, "wal reader")
	}
	return &Reader{segments: segments, idx: -1}, nil
}

// Segments returns the segments the *Reader will read, in order.
func (r *Reader) Segments() []SegmentInfo {
	return r.segments
}

// Next reports whether or not there is another record that can be read
// using the Record method.
//
// A false return value means there are no more records in the current
// segment, and no more segments can be opened, or that an error occurred.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for {
		if r.rc == nil {
			if r.idx+1 >= len(r.segments) {
				return false
			}
			r.idx++
			if err := r.openSegment(); err != nil {
				r.err = err
				return false
			}
			if r.rc == nil {
				continue
			}
		}

		ok, err := r.nextRecord()
		if err != nil {
			r.err = errors.Wrapf(err, "segment %s", r.segments[r.idx].Path)
			r.closeSegment()
			return false
		}
		if ok {
			return true
		}
		r.closeSegment()
	}
}

// openSegment opens the segment at r.idx, and validates its header.
//
// An uncompressed segment whose header is missing or torn was being
// created when the writer stopped; it holds no records and is skipped.
func (r *Reader) openSegment() error {
	info := r.segments[r.idx]
	rc, err := openSegmentReader(info.Path, info.Compressed)
	if err != nil {
		return err
	}
	payload, err := ReadFrame(rc)
	if !info.Compressed && (err == io.EOF || err == io.ErrUnexpectedEOF) {
		rc.Close()
		return nil
	}
	if err == nil {
		var hdr SegmentHeader
		err = hdr.UnmarshalText(payload)
	}
	if err != nil {
		rc.Close()
		return errors.Wrapf(err, "read header of %s", info.Path)
	}
	r.rc = rc
	return nil
}

// nextRecord reads the next mint record from the current segment. It
// returns false, with a nil error, at the end of the segment.
func (r *Reader) nextRecord() (bool, error) {
	info := r.segments[r.idx]
	payload, err := ReadFrame(r.rc)
	switch {
	case err == io.EOF:
		if info.Compressed {
			return false, errors.Wrap(io.ErrUnexpectedEOF, "compressed segment without summary")
		}
		return false, nil
	case err == io.ErrUnexpectedEOF && !info.Compressed:
		// A torn frame at the tail of an uncompressed segment is what a
		// crash mid-write leaves behind.
		return false, nil
	case err != nil:
		return false, err
	}

	typ, err := payloadType(payload)
	if err != nil {
		return false, err
	}
	switch typ {
	case typeMint:
		var rec MintRecord
		if err := rec.UnmarshalText(payload); err != nil {
			return false, err
		}
		r.rec = rec
		return true, nil
	case typeSummary:
		if !info.Compressed {
			return false, errors.Wrap(ErrCorruptRecord, "summary in uncompressed segment")
		}
		if _, err := ReadFrame(r.rc); err != io.EOF {
			return false, errors.Wrap(ErrCorruptRecord, "data after summary")
		}
		return false, nil
	}
	return false, errors.Wrapf(ErrCorruptRecord, "unexpected %q record", typ)
}

func (r *Reader) closeSegment() {
	if r.rc != nil {
		r.rc.Close()
		r.rc = nil
	}
}

// Record returns the current mint record. Successive calls to Record,
// without calling Next, will return the same record.
func (r *Reader) Record() MintRecord {
	return r.rec
}

// Segment returns the segment the current record was read from.
func (r *Reader) Segment() SegmentInfo {
	if r.idx < 0 || r.idx >= len(r.segments) {
		return SegmentInfo{}
	}
	return r.segments[r.idx]
}

// Error returns the most-recent error encountered by the *Reader.
func (r *Reader) Error() error {
	if r.err != nil {
		return errors.Wrap(r.err, "wal reader")
	}
	return nil
}

// Close releases the segment currently being read.
func (r *Reader) Close() error {
	r.closeSegment()
	return nil
}
