package wal

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decompressAll returns the uncompressed contents of a .gz segment.
func decompressAll(t *testing.T, path string) []byte {
	t.Helper()
	r, err := openSegmentReader(path, true)
	require.NoError(t, err)
	defer r.Close()
	p, err := io.ReadAll(r)
	require.NoError(t, err)
	return p
}

// splitFrames decodes every frame in p, failing the test on trailing
// garbage.
func splitFrames(t *testing.T, p []byte) [][]byte {
	t.Helper()
	var payloads [][]byte
	for len(p) > 0 {
		payload, n, err := DecodeFrame(p)
		require.NoError(t, err)
		payloads = append(payloads, payload)
		p = p[n:]
	}
	return payloads
}

func TestCompressSegment(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSegment(t, dir, 7, 100, 101, 102, 103)
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	dst, err := compressSegment(path, 103)
	require.NoError(t, err)
	assert.Equal(t, path+".gz", dst)
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, dst+tempSuffix)

	data := decompressAll(t, dst)
	summaryFrame, err := EncodeFrame(SegmentSummary{LastID: 103, Checksum: checksum(original)})
	require.NoError(t, err)
	assert.Equal(t, len(original)+len(summaryFrame), len(data))
	assert.Equal(t, original, data[:len(original)])

	payloads := splitFrames(t, data)
	require.Len(t, payloads, 6)
	var s SegmentSummary
	require.NoError(t, s.UnmarshalText(payloads[5]))
	assert.Equal(t, int32(103), s.LastID)
	assert.Equal(t, checksum(original), s.Checksum)
}

func TestCompressSegmentFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSegment(t, dir, 1, 1, 2, 3)
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	// A non-empty directory where the temporary file should go makes the
	// compressed file impossible to create.
	blocker := path + ".gz" + tempSuffix
	require.NoError(t, os.Mkdir(blocker, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(blocker, "keep"), nil, 0644))

	_, err = compressSegment(path, 3)
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, got)
	assert.NoFileExists(t, path+".gz")

	segments, err := ListSegments(dir)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.False(t, segments[0].Compressed)
}

func TestVerifyCompressed(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSegment(t, dir, 1, 1, 2)
	tmp := path + ".gz" + tempSuffix

	size, summary, err := writeCompressed(path, tmp, 2)
	require.NoError(t, err)
	require.NoError(t, verifyCompressed(tmp, size, summary))

	t.Run("WrongSize", func(t *testing.T) {
		assert.Error(t, verifyCompressed(tmp, size-1, summary))
	})

	t.Run("WrongSummary", func(t *testing.T) {
		other, err := EncodeFrame(SegmentSummary{LastID: 2, Checksum: 1})
		require.NoError(t, err)
		assert.Error(t, verifyCompressed(tmp, size, other))
	})
}
