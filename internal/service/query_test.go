package service

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryGolden(t *testing.T) {
	tests := []struct {
		name   string
		clause string
		values string
	}{
		{"query_plain", "SERVICE <http://example.org/sparql> { ?s ?p ?o }", ""},
		{"query_prologue", "PREFIX ex: <http://example.org/>\nSERVICE ex:sparql { ?s ex:p ?o }", ""},
		{"query_values", "SERVICE <http://example.org/sparql> { ?s ?p ?o }", "VALUES (?s) { (<a>) (<b>) } . "},
		{"query_subselect", "SERVICE <http://example.org/sparql> { SELECT ?s WHERE { ?s ?p ?o } }", "VALUES (?s) { (<a>) } . "},
		{"query_no_variables", "SERVICE <http://example.org/sparql> { }", ""},
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := BuildQuery(mustParse(t, tt.clause), tt.values)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(query))
		})
	}
}

func TestPushDownValues(t *testing.T) {
	got, err := PushDownValues("{ ?s ?p ?o }", "VALUES (?s) { (<a>) (<b>) } ")
	require.NoError(t, err)
	assert.Equal(t, "{\nVALUES (?s) { (<a>) (<b>) } \n ?s ?p ?o }", got)

	got, err = PushDownValues("{\n  select * { ?x ?y ?z } }", "VALUES (?x) { (1) } . ")
	require.NoError(t, err)
	assert.Equal(t, "{\nVALUES (?x) { (1) } . \n{\n  select * { ?x ?y ?z } }\n}", got)

	// SELECT must lead the body to count as a sub-select
	got, err = PushDownValues("{ ?s ?p ?o { SELECT * {} } }", "V")
	require.NoError(t, err)
	assert.Equal(t, "{\nV\n ?s ?p ?o { SELECT * {} } }", got)

	_, err = PushDownValues("?s ?p ?o", "V")
	assert.Error(t, err)
}
