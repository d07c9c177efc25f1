package wal

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderPayload(t *testing.T) {
	h := SegmentHeader{
		Version: FormatVersion,
		Store:   "store-1",
		Engine:  EngineTag,
		Created: 1700000000,
		Segment: 4,
		FirstID: 1024,
	}
	p, err := h.MarshalText()
	require.NoError(t, err)
	assert.Equal(t,
		`{"t":"V","v":1,"store":"store-1","engine":"valuestore","created":1700000000,"segment":4,"firstId":1024}`+"\n",
		string(p))

	var got SegmentHeader
	require.NoError(t, got.UnmarshalText(p))
	assert.Equal(t, h, got)
}

func TestSummaryPayload(t *testing.T) {
	s := SegmentSummary{LastID: 77, Checksum: 0xfedcba98}
	p, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, `{"t":"S","lastId":77,"checksum":4275878552}`+"\n", string(p))

	var got SegmentSummary
	require.NoError(t, got.UnmarshalText(p))
	assert.Equal(t, s, got)
}

func TestCorruptPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"Unterminated", `{"t":"M","lsn":1,"id":1,"vk":"I","lex":"","dt":"","lang":"","hash":0}`},
		{"NotJSON", "garbage\n"},
		{"UnknownType", `{"t":"X"}` + "\n"},
		{"WrongType", `{"t":"S","lastId":1,"checksum":2}` + "\n"},
		{"UnknownKind", `{"t":"M","lsn":1,"id":1,"vk":"Q","lex":"","dt":"","lang":"","hash":0}` + "\n"},
		{"MissingKind", `{"t":"M","lsn":1,"id":1}` + "\n"},
		{"IDOverflow", `{"t":"M","lsn":1,"id":4294967296,"vk":"I"}` + "\n"},
		{"EmbeddedNewline", "{\"t\":\"M\",\n\"vk\":\"I\"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec MintRecord
			err := rec.UnmarshalText([]byte(tt.payload))
			assert.True(t, errors.Is(err, ErrCorruptRecord), "got %v", err)
		})
	}
}

func TestValueKinds(t *testing.T) {
	kinds := []ValueKind{KindIRI, KindBNode, KindPlainLiteral, KindLanguageLiteral, KindTypedLiteral, KindNamespace}
	seen := make(map[string]bool)
	for _, k := range kinds {
		require.True(t, k.Valid(), k.String())
		require.False(t, seen[k.Code()], "duplicate code %q", k.Code())
		seen[k.Code()] = true

		got, err := ParseValueKind(k.Code())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	assert.False(t, ValueKind(0).Valid())
	assert.Equal(t, "unknown", ValueKind(200).String())
	_, err := ValueKind(0).MarshalText()
	assert.Error(t, err)
}

func TestLSN(t *testing.T) {
	l, err := ParseLSN("42")
	require.NoError(t, err)
	assert.Equal(t, LSN(42), l)
	assert.Equal(t, "42", l.String())
	assert.True(t, l.After(41))
	assert.True(t, l.Before(43))
	assert.True(t, l.Within(42, 42))
	assert.False(t, l.Within(43, 50))

	_, err = ParseLSN("forty-two")
	assert.Error(t, err)
}
