package wal

import "github.com/pkg/errors"

// ValueKind identifies the kind of RDF value a mint record describes, and
// therefore which of the record's optional fields are meaningful.
type ValueKind uint8

const (
	// KindIRI is an IRI. Lexical holds the full IRI string.
	KindIRI ValueKind = iota + 1
	// KindBNode is a blank node. Lexical holds its label.
	KindBNode
	// KindPlainLiteral is a literal without datatype or language tag.
	KindPlainLiteral
	// KindLanguageLiteral is a literal carrying a language tag in Language.
	KindLanguageLiteral
	// KindTypedLiteral is a literal whose datatype IRI is held in Datatype.
	KindTypedLiteral
	// KindNamespace is a namespace IRI shared by other values.
	KindNamespace
)

var kindCodes = map[ValueKind]string{
	KindIRI:             "I",
	KindBNode:           "B",
	KindPlainLiteral:    "L",
	KindLanguageLiteral: "G",
	KindTypedLiteral:    "T",
	KindNamespace:       "N",
}

var kindNames = map[ValueKind]string{
	KindIRI:             "iri",
	KindBNode:           "bnode",
	KindPlainLiteral:    "plain-literal",
	KindLanguageLiteral: "language-literal",
	KindTypedLiteral:    "typed-literal",
	KindNamespace:       "namespace",
}

// Valid reports whether k is one of the known value kinds.
func (k ValueKind) Valid() bool {
	_, ok := kindCodes[k]
	return ok
}

// Code returns the short code used for k on the wire.
func (k ValueKind) Code() string {
	return kindCodes[k]
}

func (k ValueKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseValueKind returns the ValueKind for a wire code.
func ParseValueKind(code string) (ValueKind, error) {
	for k, c := range kindCodes {
		if c == code {
			return k, nil
		}
	}
	return 0, errors.Wrapf(ErrCorruptRecord, "unknown value kind %q", code)
}

// MarshalText implements the encoding.TextMarshaler interface.
func (k ValueKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, errors.Errorf("invalid value kind %d", uint8(k))
	}
	return []byte(k.Code()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (k *ValueKind) UnmarshalText(p []byte) error {
	v, err := ParseValueKind(string(p))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
