package rdf

import (
	"fmt"
	"strconv"
	"strings"
)

// TermType represents the type of an RDF term
type TermType byte

const (
	TermTypeNamedNode TermType = iota + 1
	TermTypeBlankNode
	TermTypeLiteral
)

// Term represents an RDF term (IRI, blank node, or literal)
type Term interface {
	Type() TermType
	String() string
	Equals(other Term) bool
}

// NamedNode represents an IRI
type NamedNode struct {
	IRI string
}

func NewNamedNode(iri string) *NamedNode {
	return &NamedNode{IRI: iri}
}

// NewNamedNodeFromIRIRef builds a named node from an IRI reference that may
// or may not be wrapped in angle brackets.
func NewNamedNodeFromIRIRef(iriRef string) *NamedNode {
	if len(iriRef) >= 2 && iriRef[0] == '<' && iriRef[len(iriRef)-1] == '>' {
		return &NamedNode{IRI: iriRef[1 : len(iriRef)-1]}
	}
	return &NamedNode{IRI: iriRef}
}

func (n *NamedNode) Type() TermType {
	return TermTypeNamedNode
}

func (n *NamedNode) String() string {
	return fmt.Sprintf("<%s>", n.IRI)
}

func (n *NamedNode) Equals(other Term) bool {
	if on, ok := other.(*NamedNode); ok {
		return n.IRI == on.IRI
	}
	return false
}

// BlankNode represents a blank node
type BlankNode struct {
	ID string
}

func NewBlankNode(id string) *BlankNode {
	return &BlankNode{ID: id}
}

func (b *BlankNode) Type() TermType {
	return TermTypeBlankNode
}

func (b *BlankNode) String() string {
	return fmt.Sprintf("_:%s", b.ID)
}

func (b *BlankNode) Equals(other Term) bool {
	if ob, ok := other.(*BlankNode); ok {
		return b.ID == ob.ID
	}
	return false
}

// Literal represents an RDF literal
type Literal struct {
	Value    string
	Language string     // for language-tagged strings
	Datatype *NamedNode // for typed literals
}

func NewLiteral(value string) *Literal {
	return &Literal{Value: value}
}

func NewLiteralWithLanguage(value, language string) *Literal {
	return &Literal{Value: value, Language: language}
}

// NewLiteralWithDatatype creates a typed literal. An xsd:string datatype is
// dropped since a simple literal and an xsd:string literal are the same term.
func NewLiteralWithDatatype(value string, datatype *NamedNode) *Literal {
	if datatype != nil && datatype.IRI == XSDString.IRI {
		return &Literal{Value: value}
	}
	return &Literal{Value: value, Datatype: datatype}
}

func (l *Literal) Type() TermType {
	return TermTypeLiteral
}

func (l *Literal) String() string {
	result := fmt.Sprintf(`"%s"`, l.Value)
	if l.Language != "" {
		result += "@" + l.Language
	} else if l.Datatype != nil {
		result += "^^" + l.Datatype.String()
	}
	return result
}

func (l *Literal) Equals(other Term) bool {
	if ol, ok := other.(*Literal); ok {
		if l.Value != ol.Value {
			return false
		}
		if l.Language != ol.Language {
			return false
		}
		if l.Datatype == nil && ol.Datatype == nil {
			return true
		}
		if l.Datatype != nil && ol.Datatype != nil {
			return l.Datatype.Equals(ol.Datatype)
		}
		return false
	}
	return false
}

// Variable represents a SPARQL variable. Name is stored without the leading
// '?' or '$'.
type Variable struct {
	Name string
}

// NewVariable creates a variable from either "?x", "$x" or "x".
func NewVariable(name string) Variable {
	return Variable{Name: strings.TrimLeft(name, "?$")}
}

func (v Variable) String() string {
	return "?" + v.Name
}

// JoinVariables renders variables separated by sep, e.g. "?a ?b".
func JoinVariables(vars []Variable, sep string) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.String()
	}
	return strings.Join(parts, sep)
}

// Helper functions for common XSD datatypes
var (
	XSDString             = NewNamedNode("http://www.w3.org/2001/XMLSchema#string")
	XSDInteger            = NewNamedNode("http://www.w3.org/2001/XMLSchema#integer")
	XSDInt                = NewNamedNode("http://www.w3.org/2001/XMLSchema#int")
	XSDLong               = NewNamedNode("http://www.w3.org/2001/XMLSchema#long")
	XSDShort              = NewNamedNode("http://www.w3.org/2001/XMLSchema#short")
	XSDNonNegativeInteger = NewNamedNode("http://www.w3.org/2001/XMLSchema#nonNegativeInteger")
	XSDDecimal            = NewNamedNode("http://www.w3.org/2001/XMLSchema#decimal")
	XSDDouble             = NewNamedNode("http://www.w3.org/2001/XMLSchema#double")
	XSDFloat              = NewNamedNode("http://www.w3.org/2001/XMLSchema#float")
	XSDBoolean            = NewNamedNode("http://www.w3.org/2001/XMLSchema#boolean")
	XSDDateTime           = NewNamedNode("http://www.w3.org/2001/XMLSchema#dateTime")
	XSDDate               = NewNamedNode("http://www.w3.org/2001/XMLSchema#date")
)

func NewIntegerLiteral(value int64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatInt(value, 10), XSDInteger)
}

func NewDoubleLiteral(value float64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatFloat(value, 'E', -1, 64), XSDDouble)
}

func NewBooleanLiteral(value bool) *Literal {
	return NewLiteralWithDatatype(strconv.FormatBool(value), XSDBoolean)
}
