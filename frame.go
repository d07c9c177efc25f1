package wal

import (
	"encoding"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

const (
	// MaxFrameBytes caps the payload length a frame may declare. Anything
	// larger is treated as corruption instead of being allocated.
	MaxFrameBytes = 16 << 20

	frameLengthSize   = 4
	frameChecksumSize = 4
	frameOverhead     = frameLengthSize + frameChecksumSize
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// checksum returns the CRC-32C of p.
func checksum(p []byte) uint32 {
	return crc32.Checksum(p, castagnoli)
}

// appendFrame appends payload to dst, wrapped in a frame:
//
//	[uint32 length][payload][uint32 crc32c(payload)]
//
// Both integers are little-endian.
func appendFrame(dst, payload []byte) []byte {
	var n [frameLengthSize]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(payload)))
	dst = append(dst, n[:]...)
	dst = append(dst, payload...)
	binary.LittleEndian.PutUint32(n[:], checksum(payload))
	return append(dst, n[:]...)
}

// EncodeFrame marshals m and returns it wrapped in a frame.
func EncodeFrame(m encoding.TextMarshaler) ([]byte, error) {
	payload, err := m.MarshalText()
	if err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}
	if len(payload) > MaxFrameBytes {
		return nil, errors.Wrapf(ErrFrameTooLarge, "payload of %d bytes", len(payload))
	}
	return appendFrame(make([]byte, 0, len(payload)+frameOverhead), payload), nil
}

// DecodeFrame decodes the frame at the start of p, and returns its payload
// along with the number of bytes the frame occupies.
//
// A p shorter than the frame it begins with yields io.ErrUnexpectedEOF.
func DecodeFrame(p []byte) (payload []byte, n int, err error) {
	if len(p) < frameLengthSize {
		return nil, 0, io.ErrUnexpectedEOF
	}
	size, err := frameSize(binary.LittleEndian.Uint32(p))
	if err != nil {
		return nil, 0, err
	}
	end := frameLengthSize + size
	if len(p) < end+frameChecksumSize {
		return nil, 0, io.ErrUnexpectedEOF
	}
	payload = p[frameLengthSize:end]
	if err := verifyChecksum(payload, binary.LittleEndian.Uint32(p[end:])); err != nil {
		return nil, 0, err
	}
	return payload, end + frameChecksumSize, nil
}

// ReadFrame reads the next frame from r and returns its payload.
//
// ReadFrame returns io.EOF if r is exhausted exactly at a frame boundary,
// and io.ErrUnexpectedEOF if a frame is cut short.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [frameLengthSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size, err := frameSize(binary.LittleEndian.Uint32(hdr[:]))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size+frameChecksumSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	payload := buf[:size]
	if err := verifyChecksum(payload, binary.LittleEndian.Uint32(buf[size:])); err != nil {
		return nil, err
	}
	return payload, nil
}

func frameSize(n uint32) (int, error) {
	if n > MaxFrameBytes {
		return 0, errors.Wrapf(ErrFrameTooLarge, "declared length %d", n)
	}
	if n == 0 {
		return 0, errors.Wrap(ErrCorruptRecord, "empty frame")
	}
	return int(n), nil
}

func verifyChecksum(payload []byte, want uint32) error {
	if got := checksum(payload); got != want {
		return errors.Wrapf(ErrChecksumMismatch, "want=%08x got=%08x", want, got)
	}
	return nil
}
