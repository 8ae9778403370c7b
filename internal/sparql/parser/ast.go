package parser

import (
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
)

// ServiceClause is a parsed SERVICE clause: SERVICE [SILENT] <iri> { ... }
type ServiceClause struct {
	// Endpoint is the IRI of the remote endpoint, without angle brackets
	Endpoint string
	Silent   bool

	// Prologue holds the PREFIX and BASE declarations preceding the clause,
	// verbatim. They are forwarded with the remote query.
	Prologue string

	// GraphPattern is the text of the pattern including the outer braces
	GraphPattern string

	// Variables are the variables visible in the pattern, in order of
	// first occurrence
	Variables []rdf.Variable

	// Prefixes declared in the prologue, prefix -> namespace IRI
	Prefixes map[string]string
}

// EndpointIRIRef returns the endpoint as <iri>
func (c *ServiceClause) EndpointIRIRef() string {
	return "<" + c.Endpoint + ">"
}
