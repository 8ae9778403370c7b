package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/trigofed/internal/encoding"
	"github.com/aleksaelezovic/trigofed/internal/vocab"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
)

var (
	termEncoder = encoding.NewTermEncoder()
	termDecoder = encoding.NewTermDecoder()
)

var integerDatatypes = map[string]bool{
	rdf.XSDInteger.IRI:            true,
	rdf.XSDInt.IRI:                true,
	rdf.XSDLong.IRI:               true,
	rdf.XSDShort.IRI:              true,
	rdf.XSDNonNegativeInteger.IRI: true,
	"http://www.w3.org/2001/XMLSchema#byte":               true,
	"http://www.w3.org/2001/XMLSchema#positiveInteger":    true,
	"http://www.w3.org/2001/XMLSchema#negativeInteger":    true,
	"http://www.w3.org/2001/XMLSchema#nonPositiveInteger": true,
	"http://www.w3.org/2001/XMLSchema#unsignedLong":       true,
	"http://www.w3.org/2001/XMLSchema#unsignedInt":        true,
	"http://www.w3.org/2001/XMLSchema#unsignedShort":      true,
	"http://www.w3.org/2001/XMLSchema#unsignedByte":       true,
}

var doubleDatatypes = map[string]bool{
	rdf.XSDDouble.IRI:  true,
	rdf.XSDFloat.IRI:   true,
	rdf.XSDDecimal.IRI: true,
}

// TermToId converts an IRI or literal to an Id. Numeric and boolean
// literals with a valid lexical form become inline values; every other term
// is looked up in the global vocabulary and otherwise added to lv.
// Blank nodes cannot be converted here since they need a per-result scope.
func (ec *ExecutionContext) TermToId(term rdf.Term, lv *vocab.LocalVocab) (Id, error) {
	if lit, ok := term.(*rdf.Literal); ok && lit.Datatype != nil && lit.Language == "" {
		if id, ok := inlineLiteral(lit); ok {
			return id, nil
		}
	}
	word, err := termEncoder.EncodeTerm(term)
	if err != nil {
		return Id{}, err
	}
	return ec.WordToId(word, lv)
}

// WordToId resolves a vocabulary word
func (ec *ExecutionContext) WordToId(word string, lv *vocab.LocalVocab) (Id, error) {
	if ec.Vocab != nil {
		idx, ok, err := ec.Vocab.Index(word)
		if err != nil {
			return Id{}, err
		}
		if ok {
			return MakeFromVocabIndex(idx), nil
		}
	}
	return MakeFromLocalVocabIndex(lv.IndexAndAddIfNotContained(word)), nil
}

func inlineLiteral(lit *rdf.Literal) (Id, bool) {
	dt := lit.Datatype.IRI
	value := strings.TrimSpace(lit.Value)
	switch {
	case integerDatatypes[dt]:
		if v, err := strconv.ParseInt(strings.TrimPrefix(value, "+"), 10, 64); err == nil {
			return MakeFromInt(v), true
		}
	case doubleDatatypes[dt]:
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return MakeFromDouble(v), true
		}
	case dt == rdf.XSDBoolean.IRI:
		switch value {
		case "true", "1":
			return MakeFromBool(true), true
		case "false", "0":
			return MakeFromBool(false), true
		}
	}
	return Id{}, false
}

// IdToWord returns the vocabulary word of an index Id. ok is false for
// Undefined and for blank nodes.
func (ec *ExecutionContext) IdToWord(id Id, lv *vocab.LocalVocab) (word string, ok bool, err error) {
	switch id.Datatype() {
	case VocabIndex:
		if ec.Vocab == nil {
			return "", false, fmt.Errorf("no vocabulary to resolve %s", id)
		}
		w, err := ec.Vocab.Word(id.Index())
		if err != nil {
			return "", false, err
		}
		return w, true, nil
	case LocalVocabIndex:
		if lv == nil {
			return "", false, fmt.Errorf("no local vocabulary to resolve %s", id)
		}
		w, ok := lv.Word(id.Index())
		if !ok {
			return "", false, fmt.Errorf("local vocabulary index %d is unknown", id.Index())
		}
		return w, true, nil
	case Int:
		return literalWord(rdf.NewIntegerLiteral(id.Int())), true, nil
	case Double:
		return literalWord(rdf.NewDoubleLiteral(id.Double())), true, nil
	case Bool:
		return literalWord(rdf.NewBooleanLiteral(id.Bool())), true, nil
	default:
		return "", false, nil
	}
}

func literalWord(lit *rdf.Literal) string {
	word, _ := termEncoder.EncodeTerm(lit)
	return word
}

// IdToTerm converts an Id back to an RDF term, nil for Undefined
func (ec *ExecutionContext) IdToTerm(id Id, lv *vocab.LocalVocab) (rdf.Term, error) {
	switch id.Datatype() {
	case Undefined:
		return nil, nil
	case BlankNodeIndex:
		return rdf.NewBlankNode("bn" + strconv.FormatUint(id.Index(), 10)), nil
	case Int:
		return rdf.NewIntegerLiteral(id.Int()), nil
	case Double:
		return rdf.NewDoubleLiteral(id.Double()), nil
	case Bool:
		return rdf.NewBooleanLiteral(id.Bool()), nil
	}
	word, _, err := ec.IdToWord(id, lv)
	if err != nil {
		return nil, err
	}
	return termDecoder.DecodeWord(word)
}
