package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aleksaelezovic/trigofed/internal/server"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	"github.com/aleksaelezovic/trigofed/pkg/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--vocab-path", filepath.Join(t.TempDir(), "vocab"), "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestServiceCommand(t *testing.T) {
	fixture := server.NewServer(&results.Table{
		Variables: []rdf.Variable{rdf.NewVariable("s"), rdf.NewVariable("o")},
		Rows: [][]rdf.Term{
			{rdf.NewNamedNode("http://example.org/a"), rdf.NewLiteral("hello")},
			{rdf.NewNamedNode("http://example.org/b"), nil},
		},
	}, "", nil)
	srv := httptest.NewServer(fixture.Handler())
	defer srv.Close()

	clause := "SERVICE <" + srv.URL + "/sparql> { ?s <http://example.org/p> ?o }"

	out, err := run(t, "service", clause, "--output", "csv")
	require.NoError(t, err)
	assert.Equal(t, "s,o\r\nhttp://example.org/a,hello\r\nhttp://example.org/b,\r\n", out)

	out, err = run(t, "service", clause, "--lazy", "--output", "tsv")
	require.NoError(t, err)
	assert.Equal(t, "?s\t?o\n<http://example.org/a>\t\"hello\"\n<http://example.org/b>\t\n", out)

	out, err = run(t, "service", clause)
	require.NoError(t, err)
	assert.Contains(t, out, "<http://example.org/a>")
	assert.Contains(t, out, "(2 rows)")

	assert.Equal(t, int64(3), fixture.Queries())
}

func TestServiceCommandPrintQuery(t *testing.T) {
	dir := t.TempDir()
	sibling := filepath.Join(dir, "sibling.json")
	require.NoError(t, os.WriteFile(sibling, []byte(`{"head": {"vars": ["s", "x"]}, "results": {"bindings": [
		{"s": {"type": "uri", "value": "http://example.org/a"}, "x": {"type": "literal", "value": "1"}}
	]}}`), 0o600))
	clauseFile := filepath.Join(dir, "clause.rq")
	require.NoError(t, os.WriteFile(clauseFile, []byte("PREFIX ex: <http://example.org/>\nSERVICE <http://remote/sparql> { ?s ex:p ?o }"), 0o600))

	out, err := run(t, "service", "--file", clauseFile, "--sibling", sibling, "--print-query")
	require.NoError(t, err)
	assert.Equal(t, "PREFIX ex: <http://example.org/>\nSELECT ?s ?o {\nVALUES (?s) { (<http://example.org/a>) } . \n ?s ex:p ?o }\n", out)
}

func TestServiceCommandErrors(t *testing.T) {
	_, err := run(t, "service")
	assert.Error(t, err)

	_, err = run(t, "service", "SELECT * {}")
	assert.Error(t, err)

	_, err = run(t, "service", "SERVICE <http://remote/sparql> { ?s ?p ?o }", "--output", "xml", "--syntax-test-mode")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestVocabCommands(t *testing.T) {
	dir := t.TempDir()
	words := filepath.Join(dir, "words.txt")
	require.NoError(t, os.WriteFile(words, []byte("# known terms\n<http://example.org/a>\n\"hello\"\n<http://example.org/a>\n"), 0o600))
	vocabPath := filepath.Join(dir, "vocab")

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"vocab", "load", words, "--vocab-path", vocabPath, "--log-level", "error"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "vocabulary size: 2\n", out.String())

	out.Reset()
	root = NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"vocab", "lookup", "<http://example.org/a>", "<http://example.org/z>", "--vocab-path", vocabPath})
	require.NoError(t, root.Execute())
	assert.Equal(t, "<http://example.org/a>\t0\n<http://example.org/z>\tnot found\n", out.String())

	out.Reset()
	root = NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"vocab", "dump", "--vocab-path", vocabPath})
	require.NoError(t, root.Execute())
	assert.Equal(t, "0\t<http://example.org/a>\n1\t\"hello\"\n", out.String())

	others := filepath.Join(dir, "others.txt")
	require.NoError(t, os.WriteFile(others, []byte("\"hello\"\n<http://example.org/b>\n"), 0o600))
	out.Reset()
	root = NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"vocab", "load", "--reset", others, "--vocab-path", vocabPath})
	require.NoError(t, root.Execute())
	assert.Equal(t, "vocabulary size: 2\n", out.String())

	out.Reset()
	root = NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"vocab", "dump", "--vocab-path", vocabPath})
	require.NoError(t, root.Execute())
	assert.Equal(t, "0\t\"hello\"\n1\t<http://example.org/b>\n", out.String())
}

func TestWordsOfResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"head": {"vars": ["s", "o"]}, "results": {"bindings": [
		{"s": {"type": "bnode", "value": "b0"}, "o": {"type": "literal", "value": "x", "xml:lang": "en"}},
		{"s": {"type": "uri", "value": "http://example.org/a"}}
	]}}`), 0o600))

	words, err := wordsOf(path)
	require.NoError(t, err)
	assert.Equal(t, []string{`"x"@en`, "<http://example.org/a>"}, words)
}
