package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aleksaelezovic/trigofed/internal/config"
	"github.com/aleksaelezovic/trigofed/internal/engine"
	"github.com/aleksaelezovic/trigofed/internal/sparql/parser"
	"github.com/aleksaelezovic/trigofed/internal/storage"
	"github.com/aleksaelezovic/trigofed/internal/transport"
	"github.com/aleksaelezovic/trigofed/internal/vocab"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	"github.com/stretchr/testify/require"
)

const (
	testEndpoint = "http://example.org/sparql"
	knownIRI     = "http://example.org/known"
)

// newTestContext returns a context whose global vocabulary contains
// <http://example.org/known> at index 0.
func newTestContext(t *testing.T, mutate func(p *config.RuntimeParameters)) *engine.ExecutionContext {
	t.Helper()
	st, err := storage.NewInMemoryStorage()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	v := vocab.NewVocabulary(st)
	_, err = v.Add("<" + knownIRI + ">")
	require.NoError(t, err)

	params := config.Default()
	if mutate != nil {
		mutate(&params)
	}
	ec, err := engine.NewExecutionContext(v, params, engine.WithLogger(engine.NewDiscardLogger()))
	require.NoError(t, err)
	t.Cleanup(ec.Close)
	return ec
}

func mustParse(t *testing.T, text string) *parser.ServiceClause {
	t.Helper()
	clause, err := parser.ParseService(text)
	require.NoError(t, err)
	return clause
}

// fakeEndpoint answers every request with the same response and records
// the requests it got.
type fakeEndpoint struct {
	status      int
	reason      string
	contentType string
	body        string
	err         error
	requests    []transport.Request
}

func jsonEndpoint(body string) *fakeEndpoint {
	return &fakeEndpoint{
		status:      200,
		reason:      "OK",
		contentType: transport.ContentTypeSPARQLResultsJSON,
		body:        body,
	}
}

func (f *fakeEndpoint) send(_ context.Context, req transport.Request) (*transport.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &transport.Response{
		Status:      f.status,
		Reason:      f.reason,
		ContentType: f.contentType,
		Body:        io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

// newService creates a SERVICE over "{ ?s <http://example.org/p> ?o }"
func newService(t *testing.T, ec *engine.ExecutionContext, silent bool, f *fakeEndpoint) *Service {
	t.Helper()
	text := "SERVICE <" + testEndpoint + "> { ?s <http://example.org/p> ?o }"
	if silent {
		text = "SERVICE SILENT <" + testEndpoint + "> { ?s <http://example.org/p> ?o }"
	}
	return New(ec, mustParse(t, text), f.send)
}

// rowsOf renders every row of a table as terms, "" for Undefined.
func rowsOf(t *testing.T, ec *engine.ExecutionContext, c engine.Chunk) [][]string {
	t.Helper()
	rows := make([][]string, c.Table.NumRows())
	for r := range rows {
		rows[r] = make([]string, c.Table.NumColumns())
		for col := range rows[r] {
			term, err := ec.IdToTerm(c.Table.At(r, col), c.Vocab)
			require.NoError(t, err)
			if term != nil {
				rows[r][col] = term.String()
			}
		}
	}
	return rows
}

// collect drains a lazy result and returns the chunks
func collect(t *testing.T, res *engine.Result) ([]engine.Chunk, error) {
	t.Helper()
	it := res.Chunks()
	defer it.Close()
	var chunks []engine.Chunk
	ctx := context.Background()
	for it.Next(ctx) {
		chunks = append(chunks, it.Chunk())
	}
	return chunks, it.Err()
}

func newValues(t *testing.T, ec *engine.ExecutionContext, vars []string, rows ...[]rdf.Term) *engine.Values {
	t.Helper()
	variables := make([]rdf.Variable, len(vars))
	for i, v := range vars {
		variables[i] = rdf.NewVariable(v)
	}
	values, err := engine.NewValues(ec, variables, rows)
	require.NoError(t, err)
	return values
}

func iri(s string) rdf.Term {
	return rdf.NewNamedNode(s)
}
