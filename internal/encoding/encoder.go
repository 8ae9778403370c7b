package encoding

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	"github.com/zeebo/xxh3"
)

// HashSize is the size of a word hash (xxhash3 128-bit)
const HashSize = 16

// WordHash is the 128-bit hash of a vocabulary word
type WordHash [HashSize]byte

// TermEncoder turns RDF terms into vocabulary words. A word is the
// N-Triples form of the term: <iri>, "lex", "lex"@lang or "lex"^^<dt>.
// Words are valid SPARQL term syntax and can be spliced into query text.
type TermEncoder struct{}

func NewTermEncoder() *TermEncoder {
	return &TermEncoder{}
}

// Hash128 computes a 128-bit xxhash3 hash of the input string
func (e *TermEncoder) Hash128(s string) WordHash {
	hash := xxh3.HashString128(s)
	var result WordHash
	binary.BigEndian.PutUint64(result[0:8], hash.Hi)
	binary.BigEndian.PutUint64(result[8:16], hash.Lo)
	return result
}

// EncodeTerm encodes an RDF term into its vocabulary word.
// Blank nodes have no word: they are never stored in a vocabulary.
func (e *TermEncoder) EncodeTerm(term rdf.Term) (string, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return e.encodeNamedNode(t), nil
	case *rdf.Literal:
		return e.encodeLiteral(t), nil
	case *rdf.BlankNode:
		return "", fmt.Errorf("blank node %s has no vocabulary word", t)
	default:
		return "", fmt.Errorf("unknown term type: %T", term)
	}
}

func (e *TermEncoder) encodeNamedNode(node *rdf.NamedNode) string {
	return "<" + node.IRI + ">"
}

func (e *TermEncoder) encodeLiteral(lit *rdf.Literal) string {
	var b strings.Builder
	b.Grow(len(lit.Value) + 2)
	b.WriteByte('"')
	b.WriteString(EscapeString(lit.Value))
	b.WriteByte('"')

	if lit.Language != "" {
		b.WriteByte('@')
		b.WriteString(lit.Language)
	} else if lit.Datatype != nil {
		b.WriteString("^^")
		b.WriteString(e.encodeNamedNode(lit.Datatype))
	}
	return b.String()
}

// EscapeString escapes special characters in N-Triples string literals
func EscapeString(s string) string {
	if !strings.ContainsAny(s, "\\\"\n\r\t") {
		return s
	}
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
