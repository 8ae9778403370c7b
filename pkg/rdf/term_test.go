package rdf

import (
	"testing"
)

// ===== NamedNode Tests =====

func TestNamedNode_String(t *testing.T) {
	node := NewNamedNode("http://example.org/resource")
	expected := "<http://example.org/resource>"
	if node.String() != expected {
		t.Errorf("Expected %s, got %s", expected, node.String())
	}
}

func TestNamedNode_FromIRIRef(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"http://example.org/a", "http://example.org/a"},
		{"<http://example.org/a>", "http://example.org/a"},
		{"<", "<"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			node := NewNamedNodeFromIRIRef(tt.input)
			if node.IRI != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, node.IRI)
			}
		})
	}
}

func TestNamedNode_Equals(t *testing.T) {
	node1 := NewNamedNode("http://example.org/resource")
	node2 := NewNamedNode("http://example.org/resource")
	node3 := NewNamedNode("http://example.org/different")

	if !node1.Equals(node2) {
		t.Error("Expected equal NamedNodes to be equal")
	}
	if node1.Equals(node3) {
		t.Error("Expected different NamedNodes to not be equal")
	}
	if node1.Equals(NewLiteral("test")) {
		t.Error("NamedNode should not equal Literal")
	}
}

// ===== BlankNode Tests =====

func TestBlankNode_String(t *testing.T) {
	node := NewBlankNode("b1")
	expected := "_:b1"
	if node.String() != expected {
		t.Errorf("Expected %s, got %s", expected, node.String())
	}
}

func TestBlankNode_Equals(t *testing.T) {
	if !NewBlankNode("b1").Equals(NewBlankNode("b1")) {
		t.Error("Expected equal BlankNodes to be equal")
	}
	if NewBlankNode("b1").Equals(NewBlankNode("b2")) {
		t.Error("Expected different BlankNodes to not be equal")
	}
}

// ===== Literal Tests =====

func TestLiteral_String(t *testing.T) {
	tests := []struct {
		name     string
		literal  *Literal
		expected string
	}{
		{
			name:     "plain literal",
			literal:  NewLiteral("hello"),
			expected: "\"hello\"",
		},
		{
			name:     "literal with language",
			literal:  NewLiteralWithLanguage("hello", "en"),
			expected: "\"hello\"@en",
		},
		{
			name:     "literal with datatype",
			literal:  NewLiteralWithDatatype("42", XSDInteger),
			expected: "\"42\"^^<http://www.w3.org/2001/XMLSchema#integer>",
		},
		{
			name:     "xsd:string collapses to plain literal",
			literal:  NewLiteralWithDatatype("hello", XSDString),
			expected: "\"hello\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.literal.String()
			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestLiteral_Equals(t *testing.T) {
	lit1 := NewLiteral("hello")

	if !lit1.Equals(NewLiteral("hello")) {
		t.Error("Expected equal plain literals to be equal")
	}
	if lit1.Equals(NewLiteral("world")) {
		t.Error("Expected different plain literals to not be equal")
	}
	if NewLiteralWithLanguage("hello", "en").Equals(NewLiteralWithLanguage("hello", "fr")) {
		t.Error("Expected literals with different languages to not be equal")
	}
	if NewLiteralWithDatatype("42", XSDInteger).Equals(NewLiteralWithDatatype("42", XSDDecimal)) {
		t.Error("Expected literals with different datatypes to not be equal")
	}
	if !lit1.Equals(NewLiteralWithDatatype("hello", XSDString)) {
		t.Error("Expected xsd:string literal to equal plain literal")
	}
}

func TestNumericLiterals(t *testing.T) {
	if got := NewIntegerLiteral(-7).String(); got != `"-7"^^<http://www.w3.org/2001/XMLSchema#integer>` {
		t.Errorf("unexpected integer literal %s", got)
	}
	if got := NewDoubleLiteral(2.5).Value; got != "2.5E+00" {
		t.Errorf("unexpected double lexical form %s", got)
	}
	if got := NewBooleanLiteral(true).Value; got != "true" {
		t.Errorf("unexpected boolean lexical form %s", got)
	}
}

// ===== Variable Tests =====

func TestVariable(t *testing.T) {
	for _, name := range []string{"?x", "$x", "x"} {
		v := NewVariable(name)
		if v.Name != "x" {
			t.Errorf("NewVariable(%q): expected name x, got %q", name, v.Name)
		}
		if v.String() != "?x" {
			t.Errorf("NewVariable(%q): expected ?x, got %s", name, v.String())
		}
	}

	vars := []Variable{NewVariable("a"), NewVariable("?b")}
	if got := JoinVariables(vars, " "); got != "?a ?b" {
		t.Errorf("Expected \"?a ?b\", got %q", got)
	}
}
