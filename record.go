package wal

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Record type tags, stored in the "t" field of every payload.
const (
	typeHeader  = "V"
	typeMint    = "M"
	typeSummary = "S"
)

const (
	// FormatVersion is written into every segment header.
	FormatVersion = 1

	// EngineTag identifies the engine that wrote a segment.
	EngineTag = "valuestore"
)

const payloadTerminator = '\n'

// MintRecord records that the value described by Kind, Lexical, Datatype
// and Language was assigned the integer identifier ID. Hash is the value
// hash precomputed by the owning store. An empty string means the field is
// absent.
type MintRecord struct {
	LSN      LSN
	ID       int32
	Kind     ValueKind
	Lexical  string
	Datatype string
	Language string
	Hash     int32
}

type mintPayload struct {
	T    string    `json:"t"`
	LSN  int64     `json:"lsn"`
	ID   int32     `json:"id"`
	VK   ValueKind `json:"vk"`
	Lex  string    `json:"lex"`
	DT   string    `json:"dt"`
	Lang string    `json:"lang"`
	Hash int32     `json:"hash"`
}

// MarshalText implements the encoding.TextMarshaler interface, returning the
// newline-terminated payload stored inside a frame.
func (r MintRecord) MarshalText() ([]byte, error) {
	return marshalPayload(mintPayload{
		T:    typeMint,
		LSN:  int64(r.LSN),
		ID:   r.ID,
		VK:   r.Kind,
		Lex:  r.Lexical,
		DT:   r.Datatype,
		Lang: r.Language,
		Hash: r.Hash,
	})
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (r *MintRecord) UnmarshalText(p []byte) error {
	var m mintPayload
	if err := unmarshalPayload(p, typeMint, &m); err != nil {
		return err
	}
	if !m.VK.Valid() {
		return errors.Wrap(ErrCorruptRecord, "mint record without value kind")
	}
	*r = MintRecord{
		LSN:      LSN(m.LSN),
		ID:       m.ID,
		Kind:     m.VK,
		Lexical:  m.Lex,
		Datatype: m.DT,
		Language: m.Lang,
		Hash:     m.Hash,
	}
	return nil
}

// SegmentHeader is the first record of every segment.
type SegmentHeader struct {
	Version int
	Store   string
	Engine  string
	Created int64 // Unix seconds.
	Segment int64 // Sequence number of the segment.
	FirstID int32 // ID of the first record minted into the segment.
}

type headerPayload struct {
	T       string `json:"t"`
	V       int    `json:"v"`
	Store   string `json:"store"`
	Engine  string `json:"engine"`
	Created int64  `json:"created"`
	Segment int64  `json:"segment"`
	FirstID int32  `json:"firstId"`
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h SegmentHeader) MarshalText() ([]byte, error) {
	return marshalPayload(headerPayload{
		T:       typeHeader,
		V:       h.Version,
		Store:   h.Store,
		Engine:  h.Engine,
		Created: h.Created,
		Segment: h.Segment,
		FirstID: h.FirstID,
	})
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *SegmentHeader) UnmarshalText(p []byte) error {
	var m headerPayload
	if err := unmarshalPayload(p, typeHeader, &m); err != nil {
		return err
	}
	*h = SegmentHeader{
		Version: m.V,
		Store:   m.Store,
		Engine:  m.Engine,
		Created: m.Created,
		Segment: m.Segment,
		FirstID: m.FirstID,
	}
	return nil
}

// SegmentSummary is appended to a segment when it is compressed. Checksum
// covers every uncompressed byte of the segment that precedes the summary.
type SegmentSummary struct {
	LastID   int32
	Checksum uint32
}

type summaryPayload struct {
	T        string `json:"t"`
	LastID   int32  `json:"lastId"`
	Checksum uint32 `json:"checksum"`
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s SegmentSummary) MarshalText() ([]byte, error) {
	return marshalPayload(summaryPayload{
		T:        typeSummary,
		LastID:   s.LastID,
		Checksum: s.Checksum,
	})
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (s *SegmentSummary) UnmarshalText(p []byte) error {
	var m summaryPayload
	if err := unmarshalPayload(p, typeSummary, &m); err != nil {
		return err
	}
	*s = SegmentSummary{LastID: m.LastID, Checksum: m.Checksum}
	return nil
}

func marshalPayload(v interface{}) ([]byte, error) {
	p, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	return append(p, payloadTerminator), nil
}

func unmarshalPayload(p []byte, want string, v interface{}) error {
	typ, err := payloadType(p)
	if err != nil {
		return err
	}
	if typ != want {
		return errors.Wrapf(ErrCorruptRecord, "record type %q, want %q", typ, want)
	}
	if err := json.Unmarshal(p[:len(p)-1], v); err != nil {
		return errors.Wrapf(ErrCorruptRecord, "unmarshal payload: %v", err)
	}
	return nil
}

// payloadType returns the "t" field of a newline-terminated payload.
func payloadType(p []byte) (string, error) {
	if len(p) == 0 || p[len(p)-1] != payloadTerminator {
		return "", errors.Wrap(ErrCorruptRecord, "payload not newline-terminated")
	}
	body := p[:len(p)-1]
	if bytes.IndexByte(body, payloadTerminator) != -1 {
		return "", errors.Wrap(ErrCorruptRecord, "embedded newline in payload")
	}
	var tagged struct {
		T string `json:"t"`
	}
	if err := json.Unmarshal(body, &tagged); err != nil {
		return "", errors.Wrapf(ErrCorruptRecord, "unmarshal record type: %v", err)
	}
	switch tagged.T {
	case typeHeader, typeMint, typeSummary:
		return tagged.T, nil
	}
	return "", errors.Wrapf(ErrCorruptRecord, "unknown record type %q", tagged.T)
}
