// Package server provides a SPARQL endpoint that answers every SELECT query
// with a fixed result table. It is meant as a remote side for trying out
// SERVICE clauses.
package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aleksaelezovic/trigofed/internal/transport"
	"github.com/aleksaelezovic/trigofed/pkg/results"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// Server represents the HTTP SPARQL server
type Server struct {
	table     *results.Table
	addr      string
	logger    *log.Logger
	queries   atomic.Int64
	lastQuery atomic.Value
}

// NewServer creates a new SPARQL HTTP server
func NewServer(table *results.Table, addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{
		table:  table,
		addr:   addr,
		logger: logger,
	}
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql", s.handleSPARQL)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Infof("Starting SPARQL endpoint at http://%s/sparql", s.addr)
	return server.ListenAndServe()
}

// Queries returns the number of queries answered so far
func (s *Server) Queries() int64 {
	return s.queries.Load()
}

// LastQuery returns the most recently received query text
func (s *Server) LastQuery() string {
	q, _ := s.lastQuery.Load().(string)
	return q
}

// handleRoot provides information about the endpoint
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "trigofed fixture endpoint\nvariables: %d, rows: %s, queries answered: %s\n",
		len(s.table.Variables), humanize.Comma(int64(len(s.table.Rows))), humanize.Comma(s.Queries()))
}

// handleSPARQL handles SPARQL query requests according to SPARQL 1.1 Protocol
// https://www.w3.org/TR/sparql11-protocol/
func (s *Server) handleSPARQL(w http.ResponseWriter, r *http.Request) {
	// Enable CORS
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var queryString string
	switch r.Method {
	case http.MethodGet:
		queryString = r.URL.Query().Get("query")
		if queryString == "" {
			s.writeError(w, http.StatusBadRequest, "Missing 'query' parameter")
			return
		}
	case http.MethodPost:
		contentType := r.Header.Get("Content-Type")
		if strings.Contains(contentType, "application/x-www-form-urlencoded") {
			if err := r.ParseForm(); err != nil {
				s.writeError(w, http.StatusBadRequest, "Failed to parse form")
				return
			}
			queryString = r.FormValue("query")
		} else {
			// application/sparql-query, or anything else read as the query
			body, err := io.ReadAll(r.Body)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "Failed to read request body")
				return
			}
			queryString = string(body)
		}
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use GET or POST")
		return
	}

	if strings.TrimSpace(queryString) == "" {
		s.writeError(w, http.StatusBadRequest, "Empty query")
		return
	}
	if !strings.Contains(strings.ToUpper(queryString), "SELECT") {
		s.writeError(w, http.StatusBadRequest, "Only SELECT queries are supported")
		return
	}

	s.queries.Add(1)
	s.lastQuery.Store(queryString)
	s.logger.WithFields(log.Fields{
		"size":   humanize.Bytes(uint64(len(queryString))),
		"values": strings.Contains(queryString, "VALUES"),
	}).Debug("received query")

	format := s.negotiateFormat(r.Header.Get("Accept"))
	s.writeResult(w, r, format)
}

// negotiateFormat determines the response format based on Accept header
func (s *Server) negotiateFormat(acceptHeader string) string {
	accept := strings.ToLower(acceptHeader)

	switch {
	case strings.Contains(accept, transport.ContentTypeSPARQLResultsJSON),
		strings.Contains(accept, "application/json"):
		return "json"
	case strings.Contains(accept, "text/csv"):
		return "csv"
	case strings.Contains(accept, "text/tab-separated-values"):
		return "tsv"
	}

	// Default to JSON
	return "json"
}

// writeResult writes the table in the specified format, gzip-compressed if
// the client accepts it.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, format string) {
	var data []byte
	var err error
	var contentType string

	switch format {
	case "csv":
		contentType = "text/csv; charset=utf-8"
		data, err = results.FormatCSV(s.table)
	case "tsv":
		contentType = "text/tab-separated-values; charset=utf-8"
		data, err = results.FormatTSV(s.table)
	default:
		contentType = transport.ContentTypeSPARQLResultsJSON + "; charset=utf-8"
		data, err = results.FormatJSON(s.table)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Formatting error: %v", err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(http.StatusOK)
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(data); err != nil {
		s.logger.WithError(err).Warn("failed to write response")
	}
	if err := gz.Close(); err != nil {
		s.logger.WithError(err).Warn("failed to write response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.logger.Errorf("Error: %s", message)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, statusCode, message)
}
