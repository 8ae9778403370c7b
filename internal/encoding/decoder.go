package encoding

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trigofed/pkg/rdf"
)

// TermDecoder handles decoding of vocabulary words back into RDF terms
type TermDecoder struct{}

// NewTermDecoder creates a new term decoder
func NewTermDecoder() *TermDecoder {
	return &TermDecoder{}
}

// DecodeWord parses a vocabulary word produced by TermEncoder
func (d *TermDecoder) DecodeWord(word string) (rdf.Term, error) {
	if word == "" {
		return nil, fmt.Errorf("empty word")
	}

	switch word[0] {
	case '<':
		if word[len(word)-1] != '>' {
			return nil, fmt.Errorf("unterminated IRI: %s", word)
		}
		return rdf.NewNamedNodeFromIRIRef(word), nil

	case '"':
		end := closingQuote(word)
		if end < 0 {
			return nil, fmt.Errorf("unterminated literal: %s", word)
		}
		value := UnescapeString(word[1:end])
		suffix := word[end+1:]

		switch {
		case suffix == "":
			return rdf.NewLiteral(value), nil
		case strings.HasPrefix(suffix, "@"):
			return rdf.NewLiteralWithLanguage(value, suffix[1:]), nil
		case strings.HasPrefix(suffix, "^^<") && strings.HasSuffix(suffix, ">"):
			return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(suffix[3:len(suffix)-1])), nil
		default:
			return nil, fmt.Errorf("invalid literal suffix %q in %s", suffix, word)
		}

	case '_':
		if !strings.HasPrefix(word, "_:") {
			return nil, fmt.Errorf("invalid blank node: %s", word)
		}
		return rdf.NewBlankNode(word[2:]), nil

	default:
		return nil, fmt.Errorf("unknown word syntax: %s", word)
	}
}

// closingQuote returns the index of the unescaped quote that closes the
// literal starting at word[0], or -1.
func closingQuote(word string) int {
	for i := 1; i < len(word); i++ {
		switch word[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

// UnescapeString reverses EscapeString
func UnescapeString(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
