package walutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	wal "github.com/eclipse-rdf4j/rdf4j-sub039"
)

func writeLog(t *testing.T, n int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "wal")
	appendLog(t, dir, 1, n)
	return dir
}

// appendLog opens a WAL on dir and mints ids (first..first+n-1)*2.
func appendLog(t *testing.T, dir string, first, n int) {
	t.Helper()
	cfg := wal.DefaultConfig(dir)
	cfg.MaxSegmentBytes = 1024
	cfg.IdlePollInterval = 2 * time.Millisecond

	w, err := wal.Open(cfg, wal.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	for i := first; i < first+n; i++ {
		_, err := w.LogMint(int32(i*2), wal.KindTypedLiteral, "1", "http://www.w3.org/2001/XMLSchema#integer", "", int32(i))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestReplay(t *testing.T) {
	dir := writeLog(t, 50)

	var ids []int32
	last, err := Replay(dir, func(rec wal.MintRecord) error {
		ids = append(ids, rec.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, wal.LSN(50), last)
	require.Len(t, ids, 50)
	for i, id := range ids {
		assert.Equal(t, int32((i+1)*2), id)
	}
}

func TestReplayStops(t *testing.T) {
	dir := writeLog(t, 10)
	errStop := errors.New("stop")

	var calls int
	last, err := Replay(dir, func(rec wal.MintRecord) error {
		calls++
		if rec.LSN == 4 {
			return errStop
		}
		return nil
	})
	assert.True(t, errors.Is(err, errStop), "got %v", err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, wal.LSN(3), last)
}

func TestReplaySkipsEmptySegment(t *testing.T) {
	dir := writeLog(t, 5)

	// A crash right after a segment file was created leaves it empty.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wal-12.v1"), nil, 0644))

	var ids []int32
	last, err := Replay(dir, func(rec wal.MintRecord) error {
		ids = append(ids, rec.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 4, 6, 8, 10}, ids)
	assert.Equal(t, wal.LSN(5), last)
}

func TestLastMinted(t *testing.T) {
	id, lsn, err := LastMinted(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Equal(t, wal.ZeroLSN, lsn)

	dir := writeLog(t, 25)
	id, lsn, err = LastMinted(dir)
	require.NoError(t, err)
	assert.Equal(t, int32(50), id)
	assert.Equal(t, wal.LSN(25), lsn)
}

func TestLastMintedAfterReopen(t *testing.T) {
	dir := writeLog(t, 5)
	appendLog(t, dir, 6, 2)

	var ids []int32
	last, err := Replay(dir, func(rec wal.MintRecord) error {
		ids = append(ids, rec.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 4, 6, 8, 10, 12, 14}, ids)
	assert.Equal(t, wal.LSN(2), last)

	id, lsn, err := LastMinted(dir)
	require.NoError(t, err)
	assert.Equal(t, int32(14), id)
	assert.Equal(t, wal.LSN(2), lsn)
}
