package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aleksaelezovic/trigofed/internal/sparql/parser"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
)

// leadingSelect matches a pattern body that starts with a sub-select
var leadingSelect = regexp.MustCompile(`^[ \t\r\n]*(?i:SELECT)`)

// BuildQuery assembles the query sent to the endpoint: the prologue, the
// SELECT clause and the graph pattern, with values pushed into the pattern
// when non-empty.
func BuildQuery(clause *parser.ServiceClause, values string) (string, error) {
	pattern := clause.GraphPattern
	if values != "" {
		var err error
		if pattern, err = PushDownValues(pattern, values); err != nil {
			return "", err
		}
	}
	projection := "*"
	if len(clause.Variables) > 0 {
		projection = rdf.JoinVariables(clause.Variables, " ")
	}
	return clause.Prologue + "\nSELECT " + projection + " " + pattern, nil
}

// PushDownValues inserts values directly after the opening brace of
// pattern. A body that is a single sub-select gets wrapped in another pair
// of braces so that it stays a valid group next to the VALUES clause.
func PushDownValues(pattern, values string) (string, error) {
	idx := strings.IndexByte(pattern, '{')
	if idx < 0 {
		return "", fmt.Errorf("graph pattern %q has no opening brace", pattern)
	}
	body := pattern[idx+1:]
	if leadingSelect.MatchString(body) {
		return "{\n" + values + "\n{" + body + "\n}", nil
	}
	return "{\n" + values + "\n" + body, nil
}
