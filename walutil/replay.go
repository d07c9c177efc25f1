// Package walutil provides helpers for owning stores that consume a
// value-store write-ahead log.
package walutil

import (
	"github.com/pkg/errors"

	wal "github.com/eclipse-rdf4j/rdf4j-sub039"
)

// Replay calls fn for every mint record in dir, in the order the records
// were written: segment by segment, in segment sequence order. It returns
// the LSN of the last record passed to fn. Replay stops at the first error
// returned by fn.
//
// LSNs are assigned per *wal.WAL handle and restart at 1 each time a WAL
// is opened, so across a directory written by several handles they are
// neither unique nor increasing. Use the replay order, not the LSN, to
// find the most recent record.
//
// Replay must not be called while a *wal.WAL is open on dir; open the WAL
// afterwards, or check its HasInitialSegments before replaying.
//
//	last, err := walutil.Replay("/var/lib/store/wal", func(rec wal.MintRecord) error {
//		return dict.Restore(rec.ID, rec.Kind, rec.Lexical, rec.Datatype, rec.Language)
//	})
func Replay(dir string, fn func(wal.MintRecord) error) (wal.LSN, error) {
	r, err := wal.NewReader(dir)
	if err != nil {
		return wal.ZeroLSN, err
	}
	defer r.Close()

	last := wal.ZeroLSN
	for r.Next() {
		rec := r.Record()
		if err := fn(rec); err != nil {
			return last, errors.Wrapf(err, "replay lsn %s", rec.LSN)
		}
		last = rec.LSN
	}
	return last, r.Error()
}

// LastMinted returns the ID and LSN of the most recently written record in
// dir, which is the last one Replay visits. Both are zero if dir holds no
// records.
func LastMinted(dir string) (int32, wal.LSN, error) {
	var (
		id  int32
		lsn = wal.ZeroLSN
	)
	_, err := Replay(dir, func(rec wal.MintRecord) error {
		id, lsn = rec.ID, rec.LSN
		return nil
	})
	return id, lsn, err
}
