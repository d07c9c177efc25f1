package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendToFile(t *testing.T, path string, p []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write(p)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func writeGzip(t *testing.T, path string, p []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write(p)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestReader(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		r, err := NewReader(t.TempDir())
		require.NoError(t, err)
		defer r.Close()
		assert.False(t, r.Next())
		assert.NoError(t, r.Error())
		assert.Empty(t, r.Segments())
		assert.Equal(t, SegmentInfo{}, r.Segment())
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		_, err := NewReader(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})

	t.Run("MixedSegments", func(t *testing.T) {
		dir := t.TempDir()
		p := writeTestSegment(t, dir, 1, 1, 2, 3)
		_, err := compressSegment(p, 3)
		require.NoError(t, err)
		writeTestSegment(t, dir, 2, 4, 5)

		r, err := NewReader(dir)
		require.NoError(t, err)
		defer r.Close()
		require.Len(t, r.Segments(), 2)

		var ids []int32
		for r.Next() {
			ids = append(ids, r.Record().ID)
			assert.Equal(t, r.Record().ID >= 4, !r.Segment().Compressed)
		}
		require.NoError(t, r.Error())
		assert.Equal(t, []int32{1, 2, 3, 4, 5}, ids)
	})

	t.Run("TornTail", func(t *testing.T) {
		dir := t.TempDir()
		p := writeTestSegment(t, dir, 1, 1, 2)
		frame, err := EncodeFrame(MintRecord{LSN: 3, ID: 3, Kind: KindIRI, Lexical: "urn:torn"})
		require.NoError(t, err)
		appendToFile(t, p, frame[:len(frame)-3])

		recs := readAll(t, dir)
		require.Len(t, recs, 2)
		assert.Equal(t, int32(2), recs[1].ID)
	})
}

func TestReaderCrashLeftovers(t *testing.T) {
	dir := t.TempDir()
	writeTestSegment(t, dir, 1, 1, 2, 3, 4, 5)

	// A segment created just before a crash: empty, or with a torn header.
	require.NoError(t, os.WriteFile(filepath.Join(dir, segmentFileName(6)), nil, 0644))
	hdr, err := EncodeFrame(SegmentHeader{Version: FormatVersion, Engine: EngineTag, Segment: 2, FirstID: 7})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, segmentFileName(7)), hdr[:len(hdr)-2], 0644))

	r, err := NewReader(dir)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.Segments(), 3)
	assert.Equal(t, int32(1), r.Segments()[0].FirstID)

	var ids []int32
	for r.Next() {
		ids = append(ids, r.Record().ID)
	}
	require.NoError(t, r.Error())
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, ids)
}

func TestReaderCorruption(t *testing.T) {
	summaryFrame := func(t *testing.T) []byte {
		frame, err := EncodeFrame(SegmentSummary{LastID: 2, Checksum: 1})
		require.NoError(t, err)
		return frame
	}

	tests := []struct {
		name    string
		prepare func(t *testing.T, dir string)
		target  error
	}{
		{
			name: "ChecksumMismatch",
			prepare: func(t *testing.T, dir string) {
				p := writeTestSegment(t, dir, 1, 1, 2)
				data, err := os.ReadFile(p)
				require.NoError(t, err)
				data[len(data)-10] ^= 0x01
				require.NoError(t, os.WriteFile(p, data, 0644))
			},
			target: ErrChecksumMismatch,
		},
		{
			name: "SummaryInUncompressedSegment",
			prepare: func(t *testing.T, dir string) {
				p := writeTestSegment(t, dir, 1, 1, 2)
				appendToFile(t, p, summaryFrame(t))
			},
			target: ErrCorruptRecord,
		},
		{
			name: "HeaderInMiddle",
			prepare: func(t *testing.T, dir string) {
				p := writeTestSegment(t, dir, 1, 1, 2)
				hdr, err := EncodeFrame(SegmentHeader{Version: FormatVersion, Segment: 1, FirstID: 3})
				require.NoError(t, err)
				appendToFile(t, p, hdr)
			},
			target: ErrCorruptRecord,
		},
		{
			name: "DataAfterSummary",
			prepare: func(t *testing.T, dir string) {
				p := writeTestSegment(t, dir, 1, 1, 2)
				data, err := os.ReadFile(p)
				require.NoError(t, err)
				data = append(data, summaryFrame(t)...)
				extra, err := EncodeFrame(MintRecord{LSN: 3, ID: 3, Kind: KindIRI})
				require.NoError(t, err)
				writeGzip(t, p+".gz", append(data, extra...))
				require.NoError(t, os.Remove(p))
			},
			target: ErrCorruptRecord,
		},
		{
			name: "CompressedWithoutSummary",
			prepare: func(t *testing.T, dir string) {
				p := writeTestSegment(t, dir, 1, 1, 2)
				data, err := os.ReadFile(p)
				require.NoError(t, err)
				writeGzip(t, p+".gz", data)
				require.NoError(t, os.Remove(p))
			},
		},
		{
			name: "BadHeader",
			prepare: func(t *testing.T, dir string) {
				frame, err := EncodeFrame(MintRecord{LSN: 1, ID: 1, Kind: KindIRI})
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(filepath.Join(dir, "wal-1.v1"), frame, 0644))
			},
			target: ErrCorruptRecord,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.prepare(t, dir)

			r, err := NewReader(dir)
			require.NoError(t, err)
			defer r.Close()
			for r.Next() {
			}
			err = r.Error()
			require.Error(t, err)
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target), "got %v", err)
			}

			// Errors are sticky.
			assert.False(t, r.Next())
		})
	}
}
