package results

import (
	"encoding/csv"
	"strings"

	"github.com/aleksaelezovic/trigofed/pkg/rdf"
)

// SPARQL CSV and TSV Results Formats
// https://www.w3.org/TR/sparql11-results-csv-tsv/

// FormatCSV converts a table to SPARQL CSV format
func FormatCSV(table *Table) ([]byte, error) {
	var builder strings.Builder
	w := csv.NewWriter(&builder)

	varNames := make([]string, len(table.Variables))
	for i, v := range table.Variables {
		varNames[i] = v.Name
	}
	if err := w.Write(varNames); err != nil {
		return nil, err
	}

	for _, row := range table.Rows {
		record := make([]string, len(row))
		for i, term := range row {
			// unbound stays empty
			if term != nil {
				record[i] = termToCSVValue(term)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return []byte(builder.String()), nil
}

// FormatTSV converts a table to SPARQL TSV format
func FormatTSV(table *Table) ([]byte, error) {
	var builder strings.Builder

	builder.WriteString(rdf.JoinVariables(table.Variables, "\t"))
	builder.WriteString("\n")

	for _, row := range table.Rows {
		for i, term := range row {
			if i > 0 {
				builder.WriteString("\t")
			}
			if term != nil {
				builder.WriteString(termToTSVValue(term))
			}
		}
		builder.WriteString("\n")
	}

	return []byte(builder.String()), nil
}

// termToCSVValue writes IRIs without brackets and literals without quotes
// or datatype.
func termToCSVValue(term rdf.Term) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return t.IRI

	case *rdf.BlankNode:
		return "_:" + t.ID

	case *rdf.Literal:
		if t.Language != "" {
			return t.Value + "@" + t.Language
		}
		return t.Value

	default:
		return term.String()
	}
}

// termToTSVValue converts an RDF term to a TSV value string
// In the SPARQL 1.1 TSV format:
// - IRIs are enclosed in angle brackets: <iri>
// - Numeric literals (integer, decimal, double) without quotes: 4, 5.5
// - Typed literals: "value"^^<datatype> (except for standard numeric types)
// - Blank nodes: _:label
func termToTSVValue(term rdf.Term) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return "<" + t.IRI + ">"

	case *rdf.BlankNode:
		return "_:" + t.ID

	case *rdf.Literal:
		if t.Language != "" {
			return "\"" + escapeTSVString(t.Value) + "\"@" + t.Language
		} else if t.Datatype != nil {
			datatypeIRI := t.Datatype.IRI
			if datatypeIRI == rdf.XSDInteger.IRI ||
				datatypeIRI == rdf.XSDDecimal.IRI ||
				datatypeIRI == rdf.XSDDouble.IRI {
				return t.Value
			}
			return "\"" + escapeTSVString(t.Value) + "\"^^<" + datatypeIRI + ">"
		}
		return "\"" + escapeTSVString(t.Value) + "\""

	default:
		return term.String()
	}
}

// escapeTSVString escapes special characters in TSV strings
func escapeTSVString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\t", "\\t")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}
