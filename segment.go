package wal

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Segment files are named after the ID of the first record minted into
// them:
//
//	wal-<firstId>.v1      active, or finalized but uncompressed
//	wal-<firstId>.v1.gz   finalized and compressed
const (
	segmentPrefix    = "wal-"
	segmentSuffix    = ".v1"
	compressedSuffix = segmentSuffix + ".gz"
	tempSuffix       = ".tmp"
	lockFileName     = "lock"
)

func segmentFileName(firstID int32) string {
	return segmentPrefix + strconv.FormatInt(int64(firstID), 10) + segmentSuffix
}

// parseSegmentFileName extracts the first ID from a segment file name, and
// reports whether the name refers to a compressed segment.
func parseSegmentFileName(name string) (firstID int32, compressed, ok bool) {
	if !strings.HasPrefix(name, segmentPrefix) {
		return 0, false, false
	}
	rest := name[len(segmentPrefix):]
	switch {
	case strings.HasSuffix(rest, compressedSuffix):
		rest, compressed = strings.TrimSuffix(rest, compressedSuffix), true
	case strings.HasSuffix(rest, segmentSuffix):
		rest = strings.TrimSuffix(rest, segmentSuffix)
	default:
		return 0, false, false
	}
	n, err := strconv.ParseInt(rest, 10, 32)
	if err != nil {
		return 0, false, false
	}
	return int32(n), compressed, true
}

// siblingDir returns the path of a directory called name next to dir.
func siblingDir(dir, name string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(dir)), name)
}

// segment is the writer's view of the active segment.
type segment struct {
	file    segmentFile
	path    string
	seq     int64
	firstID int32
	lastID  int32
	records int

	size    int64 // Bytes appended, including those still buffered.
	flushed int64 // Bytes handed to the file.
}

// remaining returns the number of bytes that can be appended before the
// segment reaches limit.
func (s *segment) remaining(limit int64) int64 {
	return limit - s.size
}
