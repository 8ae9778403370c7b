// Package results reads and writes SPARQL SELECT results.
package results

import (
	"encoding/json"
	"fmt"

	"github.com/aleksaelezovic/trigofed/pkg/rdf"
)

// SPARQL JSON Results Format
// https://www.w3.org/TR/sparql11-results-json/

// Table is a SELECT result: one term per variable per row, nil when the
// variable is unbound.
type Table struct {
	Variables []rdf.Variable
	Rows      [][]rdf.Term
}

// SPARQLResultsJSON represents the JSON format for SPARQL query results
type SPARQLResultsJSON struct {
	Head    ResultHead      `json:"head"`
	Results *ResultBindings `json:"results,omitempty"`
}

// ResultHead contains the variable names
type ResultHead struct {
	Vars []string `json:"vars"`
}

// ResultBindings contains the result bindings
type ResultBindings struct {
	Bindings []map[string]BindingValue `json:"bindings"`
}

// BindingValue represents a single bound value
type BindingValue struct {
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Datatype *string `json:"datatype,omitempty"`
	XMLLang  *string `json:"xml:lang,omitempty"`
}

// FormatJSON converts a table to SPARQL JSON format
func FormatJSON(table *Table) ([]byte, error) {
	varNames := make([]string, len(table.Variables))
	for i, v := range table.Variables {
		varNames[i] = v.Name
	}

	jsonBindings := make([]map[string]BindingValue, 0, len(table.Rows))
	for _, row := range table.Rows {
		if len(row) != len(varNames) {
			return nil, fmt.Errorf("row has %d values, expected %d", len(row), len(varNames))
		}
		jsonBinding := make(map[string]BindingValue)
		for i, term := range row {
			if term != nil {
				jsonBinding[varNames[i]] = termToBindingValue(term)
			}
		}
		jsonBindings = append(jsonBindings, jsonBinding)
	}

	sparqlResult := SPARQLResultsJSON{
		Head: ResultHead{
			Vars: varNames,
		},
		Results: &ResultBindings{
			Bindings: jsonBindings,
		},
	}

	return json.MarshalIndent(sparqlResult, "", "  ")
}

// ParseJSON reads a SPARQL JSON SELECT result
func ParseJSON(data []byte) (*Table, error) {
	var doc SPARQLResultsJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid SPARQL JSON results: %w", err)
	}
	if doc.Results == nil {
		return nil, fmt.Errorf("invalid SPARQL JSON results: results section missing")
	}

	table := &Table{Variables: make([]rdf.Variable, len(doc.Head.Vars))}
	for i, name := range doc.Head.Vars {
		table.Variables[i] = rdf.NewVariable(name)
	}
	for _, binding := range doc.Results.Bindings {
		row := make([]rdf.Term, len(doc.Head.Vars))
		for i, name := range doc.Head.Vars {
			bv, ok := binding[name]
			if !ok {
				continue
			}
			term, err := bindingValueToTerm(bv)
			if err != nil {
				return nil, err
			}
			row[i] = term
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// termToBindingValue converts an RDF term to a SPARQL JSON binding value
func termToBindingValue(term rdf.Term) BindingValue {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return BindingValue{
			Type:  "uri",
			Value: t.IRI,
		}

	case *rdf.BlankNode:
		return BindingValue{
			Type:  "bnode",
			Value: t.ID,
		}

	case *rdf.Literal:
		bv := BindingValue{
			Type:  "literal",
			Value: t.Value,
		}

		if t.Language != "" {
			bv.XMLLang = &t.Language
		} else if t.Datatype != nil {
			datatypeIRI := t.Datatype.IRI
			bv.Datatype = &datatypeIRI
		}

		return bv

	default:
		return BindingValue{
			Type:  "literal",
			Value: term.String(),
		}
	}
}

func bindingValueToTerm(bv BindingValue) (rdf.Term, error) {
	switch bv.Type {
	case "uri":
		return rdf.NewNamedNode(bv.Value), nil
	case "bnode":
		return rdf.NewBlankNode(bv.Value), nil
	case "literal", "typed-literal":
		if bv.XMLLang != nil {
			return rdf.NewLiteralWithLanguage(bv.Value, *bv.XMLLang), nil
		}
		if bv.Datatype != nil {
			return rdf.NewLiteralWithDatatype(bv.Value, rdf.NewNamedNode(*bv.Datatype)), nil
		}
		return rdf.NewLiteral(bv.Value), nil
	default:
		return nil, fmt.Errorf("unknown binding type %q", bv.Type)
	}
}
