package wal

import (
	"bytes"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// compressSegment compresses the finalized segment at path into
// path+".gz", appending a summary frame that carries lastID and the
// checksum of the uncompressed bytes. The compressed file is verified
// before it replaces the original.
//
// On error the original is left untouched and no compressed file remains,
// unless the error is reported after the rename, in which case both exist.
func compressSegment(path string, lastID int32) (string, error) {
	dst := path + ".gz"
	tmp := dst + tempSuffix

	size, summary, err := writeCompressed(path, tmp, lastID)
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := verifyCompressed(tmp, size, summary); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "verify compressed segment")
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "rename compressed segment")
	}
	dir := filepath.Dir(path)
	if err := syncDir(dir); err != nil {
		return dst, err
	}
	if err := os.Remove(path); err != nil {
		return dst, errors.Wrap(err, "remove original segment")
	}
	return dst, syncDir(dir)
}

// writeCompressed streams src through gzip into dst, followed by the
// summary frame. It returns the size of src and the encoded summary frame.
func writeCompressed(src, dst string, lastID int32) (int64, []byte, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, nil, errors.Wrap(err, "open segment")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, nil, errors.Wrap(err, "create compressed segment")
	}
	defer out.Close()

	crc := crc32.New(castagnoli)
	zw := gzip.NewWriter(out)
	n, err := io.Copy(zw, io.TeeReader(in, crc))
	if err != nil {
		return 0, nil, errors.Wrap(err, "compress segment")
	}
	summary, err := EncodeFrame(SegmentSummary{LastID: lastID, Checksum: crc.Sum32()})
	if err != nil {
		return 0, nil, err
	}
	if _, err := zw.Write(summary); err != nil {
		return 0, nil, errors.Wrap(err, "write summary frame")
	}
	if err := zw.Close(); err != nil {
		return 0, nil, errors.Wrap(err, "close gzip stream")
	}
	if err := out.Sync(); err != nil {
		return 0, nil, errors.Wrap(err, "sync compressed segment")
	}
	if err := out.Close(); err != nil {
		return 0, nil, errors.Wrap(err, "close compressed segment")
	}
	return n, summary, nil
}

// verifyCompressed decompresses path and checks that it holds exactly size
// bytes followed by summary, and that the summary's checksum matches the
// decompressed bytes.
func verifyCompressed(path string, size int64, summary []byte) error {
	r, err := openSegmentReader(path, true)
	if err != nil {
		return err
	}
	defer r.Close()

	v := &verifier{limit: size, crc: crc32.New(castagnoli), tailCap: len(summary)}
	n, err := io.Copy(v, r)
	if err != nil {
		return errors.Wrap(err, "decompress")
	}
	if want := size + int64(len(summary)); n != want {
		return errors.Errorf("decompressed %d bytes, want %d", n, want)
	}
	if !bytes.Equal(v.tail, summary) {
		return errors.New("summary frame mismatch")
	}
	payload, _, err := DecodeFrame(v.tail)
	if err != nil {
		return errors.Wrap(err, "decode summary frame")
	}
	var s SegmentSummary
	if err := s.UnmarshalText(payload); err != nil {
		return err
	}
	if got := v.crc.Sum32(); got != s.Checksum {
		return errors.Wrapf(ErrChecksumMismatch, "segment want=%08x got=%08x", s.Checksum, got)
	}
	return nil
}

// verifier checksums the first limit bytes written to it and keeps up to
// tailCap of the bytes after them.
type verifier struct {
	limit   int64
	written int64
	crc     hash.Hash32
	tail    []byte
	tailCap int
}

func (v *verifier) Write(p []byte) (int, error) {
	n := len(p)
	if head := v.limit - v.written; head > 0 {
		if int64(len(p)) <= head {
			v.crc.Write(p)
			v.written += int64(n)
			return n, nil
		}
		v.crc.Write(p[:head])
		p = p[head:]
	}
	if room := v.tailCap + 1 - len(v.tail); room > 0 {
		if len(p) > room {
			v.tail = append(v.tail, p[:room]...)
		} else {
			v.tail = append(v.tail, p...)
		}
	}
	v.written += int64(n)
	return n, nil
}
