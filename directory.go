package wal

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SegmentInfo describes a segment file found in a WAL directory.
type SegmentInfo struct {
	Path       string
	FirstID    int32
	Compressed bool

	// Sequence is the sequence number declared by the segment's header,
	// or 0 when the header could not be read.
	Sequence int64
}

// ScanResult is the outcome of scanning a WAL directory.
type ScanResult struct {
	Found       bool  // At least one segment file exists.
	MaxSequence int64 // Highest sequence number declared by any header.
	Segments    []SegmentInfo
}

// ScanSegments lists dir and reads the header of every segment file in it.
//
// Truncated or corrupt segments are included with a Sequence of 0; only a
// failure to list dir is returned as an error.
func ScanSegments(dir string) (ScanResult, error) {
	return scanSegments(dir, zap.NewNop())
}

func scanSegments(dir string, logger *zap.Logger) (ScanResult, error) {
	var res ScanResult
	names, err := findSegmentFiles(dir)
	if err != nil {
		return res, errors.Wrap(err, "find segment files")
	}
	for _, name := range names {
		firstID, compressed, _ := parseSegmentFileName(name)
		info := SegmentInfo{
			Path:       filepath.Join(dir, name),
			FirstID:    firstID,
			Compressed: compressed,
		}
		hdr, err := readSegmentHeader(info.Path, compressed)
		if err != nil {
			logger.Warn("unreadable segment header",
				zap.String("path", info.Path),
				zap.Error(err))
		} else {
			info.Sequence = hdr.Segment
		}
		if info.Sequence > res.MaxSequence {
			res.MaxSequence = info.Sequence
		}
		res.Found = true
		res.Segments = append(res.Segments, info)
	}
	return res, nil
}

// ListSegments returns the segments in dir in the order they were written:
// by sequence number, then by first ID. Segments whose header could not be
// read come last, ordered by first ID; a crash while a segment is being
// created leaves at most one such file.
//
// If a segment exists both compressed and uncompressed, only the
// uncompressed original is returned; the compressed copy was verified but
// removing the original was interrupted.
func ListSegments(dir string) ([]SegmentInfo, error) {
	res, err := ScanSegments(dir)
	if err != nil {
		return nil, err
	}
	plain := make(map[int32]bool)
	for _, info := range res.Segments {
		if !info.Compressed {
			plain[info.FirstID] = true
		}
	}
	segments := res.Segments[:0]
	for _, info := range res.Segments {
		if info.Compressed && plain[info.FirstID] {
			continue
		}
		segments = append(segments, info)
	}
	sort.SliceStable(segments, func(i, j int) bool {
		if (segments[i].Sequence == 0) != (segments[j].Sequence == 0) {
			return segments[j].Sequence == 0
		}
		if segments[i].Sequence != segments[j].Sequence {
			return segments[i].Sequence < segments[j].Sequence
		}
		return segments[i].FirstID < segments[j].FirstID
	})
	return segments, nil
}

// findSegmentFiles returns the names of the regular files in dir that match
// the segment naming convention.
//
// This function does not descend into child directories.
func findSegmentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, _, ok := parseSegmentFileName(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// removeStaleTemps deletes compression artifacts left behind by a crash
// between writing a compressed segment and renaming it into place. The
// originals they were made from are still present.
func removeStaleTemps(dir string, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "find stale temporary files")
	}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, tempSuffix) {
			continue
		}
		if _, _, ok := parseSegmentFileName(strings.TrimSuffix(name, tempSuffix)); !ok {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			return errors.Wrap(err, "remove stale temporary file")
		}
		logger.Warn("removed stale temporary file", zap.String("path", path))
	}
	return nil
}

// openSegmentReader opens a segment file for reading, decompressing it if
// necessary.
func openSegmentReader(path string, compressed bool) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open segment file")
	}
	if !compressed {
		return struct {
			io.Reader
			io.Closer
		}{bufio.NewReader(f), f}, nil
	}
	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "open gzip stream")
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// readSegmentHeader decodes just the first frame of a segment file.
func readSegmentHeader(path string, compressed bool) (SegmentHeader, error) {
	var hdr SegmentHeader
	r, err := openSegmentReader(path, compressed)
	if err != nil {
		return hdr, err
	}
	defer r.Close()
	payload, err := ReadFrame(r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return hdr, errors.Wrap(err, "read header frame")
	}
	if err := hdr.UnmarshalText(payload); err != nil {
		return hdr, errors.Wrap(err, "decode header")
	}
	return hdr, nil
}
