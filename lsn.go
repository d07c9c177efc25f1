package wal

import (
	"strconv"

	"github.com/pkg/errors"
)

// LSN is a log sequence number. Each mint record logged through a *WAL is
// assigned a unique LSN, strictly greater than any LSN handed out before it
// by the same handle.
type LSN int64

// ZeroLSN precedes every LSN that can be assigned to a record.
const ZeroLSN = LSN(0)

// ParseLSN returns an LSN parsed from s.
func ParseLSN(s string) (LSN, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ZeroLSN, errors.Wrap(err, "parse lsn")
	}
	return LSN(n), nil
}

// Before reports whether l was assigned before b.
func (l LSN) Before(b LSN) bool {
	return l < b
}

// After reports whether l was assigned after b.
func (l LSN) After(b LSN) bool {
	return l > b
}

// Within reports whether a <= l <= b.
func (l LSN) Within(a, b LSN) bool {
	return a <= l && l <= b
}

// String implements the fmt.Stringer interface, and provides a means for
// representing an LSN that can be later parsed with ParseLSN.
func (l LSN) String() string {
	return strconv.FormatInt(int64(l), 10)
}
