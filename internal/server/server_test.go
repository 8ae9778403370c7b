package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aleksaelezovic/trigofed/internal/transport"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	"github.com/aleksaelezovic/trigofed/pkg/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	table := &results.Table{
		Variables: []rdf.Variable{rdf.NewVariable("s")},
		Rows: [][]rdf.Term{
			{rdf.NewNamedNode("http://example.org/a")},
			{rdf.NewNamedNode("http://example.org/b")},
		},
	}
	s := NewServer(table, "", nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func TestServerPostQuery(t *testing.T) {
	s, srv := newTestServer(t)
	query := "SELECT ?s { VALUES (?s) { (<http://example.org/a>) } ?s ?p ?o }"

	resp, err := http.Post(srv.URL+"/sparql", transport.ContentTypeSPARQLQuery, strings.NewReader(query))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), transport.ContentTypeSPARQLResultsJSON))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	table, err := results.ParseJSON(body)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)

	assert.Equal(t, int64(1), s.Queries())
	assert.Equal(t, query, s.LastQuery())
}

func TestServerGetAndForm(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/sparql?query=" + url.QueryEscape("SELECT * {}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.PostForm(srv.URL+"/sparql", url.Values{"query": {"select * {}"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerErrors(t *testing.T) {
	_, srv := newTestServer(t)

	tests := []struct {
		name   string
		do     func() (*http.Response, error)
		status int
	}{
		{"missing query", func() (*http.Response, error) { return http.Get(srv.URL + "/sparql") }, http.StatusBadRequest},
		{"not a select", func() (*http.Response, error) {
			return http.Post(srv.URL+"/sparql", transport.ContentTypeSPARQLQuery, strings.NewReader("ASK {}"))
		}, http.StatusBadRequest},
		{"wrong method", func() (*http.Response, error) {
			req, _ := http.NewRequest(http.MethodPut, srv.URL+"/sparql", nil)
			return http.DefaultClient.Do(req)
		}, http.StatusMethodNotAllowed},
		{"unknown path", func() (*http.Response, error) { return http.Get(srv.URL + "/nope") }, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.do()
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestServerFormats(t *testing.T) {
	_, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/sparql", strings.NewReader("SELECT ?s {}"))
	require.NoError(t, err)
	req.Header.Set("Accept", "text/csv")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "s\r\nhttp://example.org/a\r\nhttp://example.org/b\r\n", string(body))
}

func TestServerGzipThroughClient(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := transport.NewClient(0).SendRequest(context.Background(), transport.Request{
		URL:         srv.URL + "/sparql",
		Body:        "SELECT ?s {}",
		ContentType: transport.ContentTypeSPARQLQuery,
		Accept:      transport.ContentTypeSPARQLResultsJSON,
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	table, err := results.ParseJSON(body)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}
