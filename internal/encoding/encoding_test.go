package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trigofed/pkg/rdf"
)

func TestEncodeDecodeWord(t *testing.T) {
	tests := []struct {
		name string
		term rdf.Term
		word string
	}{
		{"iri", rdf.NewNamedNode("http://example.org/a"), "<http://example.org/a>"},
		{"plain literal", rdf.NewLiteral("hello"), `"hello"`},
		{"language literal", rdf.NewLiteralWithLanguage("hallo", "de"), `"hallo"@de`},
		{"typed literal", rdf.NewLiteralWithDatatype("2024-01-01", rdf.XSDDate), `"2024-01-01"^^<http://www.w3.org/2001/XMLSchema#date>`},
		{"escaped literal", rdf.NewLiteral("say \"hi\"\n\\"), `"say \"hi\"\n\\"`},
	}

	enc := NewTermEncoder()
	dec := NewTermDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			word, err := enc.EncodeTerm(tt.term)
			require.NoError(t, err)
			assert.Equal(t, tt.word, word)

			back, err := dec.DecodeWord(word)
			require.NoError(t, err)
			assert.True(t, tt.term.Equals(back), "expected %s, got %s", tt.term, back)
		})
	}
}

func TestEncodeBlankNodeFails(t *testing.T) {
	_, err := NewTermEncoder().EncodeTerm(rdf.NewBlankNode("b0"))
	assert.Error(t, err)
}

func TestDecodeInvalidWords(t *testing.T) {
	dec := NewTermDecoder()
	for _, word := range []string{"", "<unterminated", `"open`, `"x"#bad`, "plain", "_x"} {
		_, err := dec.DecodeWord(word)
		assert.Error(t, err, "word %q", word)
	}

	term, err := dec.DecodeWord("_:b7")
	require.NoError(t, err)
	assert.Equal(t, "_:b7", term.String())
}

func TestHash128(t *testing.T) {
	enc := NewTermEncoder()
	a := enc.Hash128("<http://example.org/a>")
	assert.Equal(t, a, enc.Hash128("<http://example.org/a>"))
	assert.NotEqual(t, a, enc.Hash128("<http://example.org/b>"))
}
