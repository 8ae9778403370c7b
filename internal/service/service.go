// Package service executes SPARQL SERVICE clauses against remote
// endpoints. It builds the remote query (optionally narrowed by a VALUES
// clause computed from a sibling operation), sends it, and decodes the
// streamed SPARQL JSON results into tables.
package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aleksaelezovic/trigofed/internal/engine"
	"github.com/aleksaelezovic/trigofed/internal/sparql/parser"
	"github.com/aleksaelezovic/trigofed/internal/transport"
	"github.com/aleksaelezovic/trigofed/internal/vocab"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Placeholder estimates; nothing is known about a remote result up front.
const (
	sizeEstimate   = 100_000
	costMultiplier = 10
)

// Service is the operation for a SERVICE clause.
type Service struct {
	engine.Base
	clause       *parser.ServiceClause
	send         transport.SendRequestFunc
	cacheBreaker string
	siblingInfo  *SiblingInfo
}

// New creates the operation. With a nil send the default HTTP client is
// used, bounded by the service_timeout parameter.
func New(ec *engine.ExecutionContext, clause *parser.ServiceClause, send transport.SendRequestFunc) *Service {
	if send == nil {
		send = transport.NewClient(ec.Params.ServiceTimeout).SendRequest
	}
	return &Service{
		Base:         engine.NewBase(ec),
		clause:       clause,
		send:         send,
		cacheBreaker: uuid.NewString(),
	}
}

// Clone returns a fresh operation for the same clause. The clone shares
// the cache breaker, so it may be served from the cache entry of s.
func (s *Service) Clone() *Service {
	return &Service{
		Base:         engine.NewBase(s.ExecutionContext()),
		clause:       s.clause,
		send:         s.send,
		cacheBreaker: s.cacheBreaker,
	}
}

func (s *Service) Clause() *parser.ServiceClause { return s.clause }

// SiblingInfo returns the sibling result kept for VALUES push-down, if any
func (s *Service) SiblingInfo() *SiblingInfo { return s.siblingInfo }

func (s *Service) Kind() engine.Kind { return engine.KindService }

func (s *Service) Descriptor() string {
	return "Service with IRI " + s.clause.EndpointIRIRef()
}

// CacheKey is the clause text while SERVICE results are cached and an
// instance-unique token otherwise.
func (s *Service) CacheKey() string {
	if !s.ExecutionContext().Params.CacheServiceResults {
		return "SERVICE " + s.cacheBreaker
	}
	silent := ""
	if s.clause.Silent {
		silent = "SILENT "
	}
	return "SERVICE " + silent + s.clause.EndpointIRIRef() + " {\n" +
		s.clause.Prologue + "\n" + s.clause.GraphPattern + "\n}"
}

func (s *Service) ResultWidth() int { return len(s.clause.Variables) }

// VariableColumns marks every column as possibly undefined
func (s *Service) VariableColumns() engine.VariableToColumnMap {
	m := make(engine.VariableToColumnMap, len(s.clause.Variables))
	for i, v := range s.clause.Variables {
		m[v] = engine.ColumnInfo{Index: i, PossiblyUndefined: true}
	}
	return m
}

func (s *Service) Children() []engine.Operation { return nil }
func (s *Service) Multiplicity(int) float64     { return 1 }
func (s *Service) SizeEstimate() uint64         { return sizeEstimate }
func (s *Service) CostEstimate() uint64         { return costMultiplier * s.SizeEstimate() }
func (s *Service) ResultSortedOn() []int        { return nil }
func (s *Service) KnownEmptyResult() bool       { return false }

// Query returns the text sent to the endpoint, including a VALUES clause
// built from the sibling result if there is one.
func (s *Service) Query(ctx context.Context) (string, error) {
	values, ok, err := s.siblingValuesClause(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		values = ""
	}
	return BuildQuery(s.clause, values)
}

// ComputeResult runs the remote request. Failures of a SILENT clause yield
// the neutral result instead, except cancellation and allocation failures.
func (s *Service) ComputeResult(ctx context.Context, requestLaziness bool) (*engine.Result, error) {
	res, err := s.computeResult(ctx, requestLaziness)
	if err == nil {
		return res, nil
	}
	if engine.IsCancellation(err) || engine.IsResourceLimit(err) || !s.clause.Silent {
		return nil, err
	}
	s.logger().WithError(err).Warn("SERVICE failed, continuing with the neutral result because of SILENT")
	return s.neutralResult()
}

func (s *Service) computeResult(ctx context.Context, requestLaziness bool) (*engine.Result, error) {
	ec := s.ExecutionContext()
	if ec.Params.SyntaxTestMode {
		return s.neutralResult()
	}

	endpoint, err := url.Parse(s.clause.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, &Error{Endpoint: s.clause.Endpoint, Msg: "invalid endpoint IRI", Err: err}
	}

	query, err := s.Query(ctx)
	if err != nil {
		return nil, err
	}

	s.logger().WithFields(log.Fields{
		"protocol": endpoint.Scheme,
		"host":     endpoint.Hostname(),
		"port":     port(endpoint),
		"target":   endpoint.RequestURI(),
	}).Info("Sending SERVICE query to remote endpoint")
	s.logger().Debug(query)

	resp, err := s.send(ctx, transport.Request{
		URL:         s.clause.Endpoint,
		Method:      http.MethodPost,
		Body:        query,
		ContentType: transport.ContentTypeSPARQLQuery,
		Accept:      transport.ContentTypeSPARQLResultsJSON,
	})
	if err != nil {
		if engine.IsCancellation(err) {
			return nil, err
		}
		return nil, &Error{Endpoint: s.clause.Endpoint, Msg: err.Error(), Err: err}
	}

	if resp.Status != http.StatusOK {
		return nil, s.errorWithBodyHead(resp, fmt.Sprintf(
			"SERVICE responded with HTTP status code: %d, %s", resp.Status, resp.Reason))
	}
	if !strings.HasPrefix(cases.Lower(language.Und).String(resp.ContentType), transport.ContentTypeSPARQLResultsJSON) {
		return nil, s.errorWithBodyHead(resp, fmt.Sprintf(
			"trigofed requires the endpoint of a SERVICE to send the result as '%s' but the endpoint sent '%s'",
			transport.ContentTypeSPARQLResultsJSON, resp.ContentType))
	}

	d := newDecoder(ec, s.RuntimeInfo(), s.clause.Endpoint, s.clause.Variables, resp.Body, !requestLaziness)
	if requestLaziness {
		var it engine.ChunkIterator = d
		if s.clause.Silent {
			it = &silentIterator{inner: d, svc: s}
		}
		return engine.NewLazyResult(it, s.ResultSortedOn()), nil
	}

	defer d.Close()
	if !d.Next(ctx) {
		return nil, d.Err()
	}
	return engine.NewMaterializedResult(d.Chunk(), s.ResultSortedOn()), nil
}

// errorWithBodyHead reads up to 100 bytes of the body for context and
// closes it.
func (s *Service) errorWithBodyHead(resp *transport.Response, msg string) error {
	defer resp.Body.Close()
	buf := make([]byte, contextBytes)
	n, _ := io.ReadFull(resp.Body, buf)
	return &Error{Endpoint: s.clause.Endpoint, Msg: msg, First100: string(buf[:n])}
}

// neutralResult is one row with every column undefined
func (s *Service) neutralResult() (*engine.Result, error) {
	table := engine.NewIdTable(s.ResultWidth(), s.ExecutionContext().Allocator)
	if err := table.EmplaceBack(); err != nil {
		return nil, err
	}
	return engine.NewMaterializedResult(engine.Chunk{Table: table, Vocab: vocab.NewLocalVocab()}, s.ResultSortedOn()), nil
}

func (s *Service) logger() *log.Entry {
	return s.ExecutionContext().Logger.WithField("service", s.clause.Endpoint)
}

func port(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}

// silentIterator applies SILENT to failures that only surface while a lazy
// result is consumed: before the first chunk the neutral row is produced,
// afterwards the stream just ends.
type silentIterator struct {
	inner   engine.ChunkIterator
	svc     *Service
	yielded bool
	cur     engine.Chunk
	err     error
	done    bool
}

func (it *silentIterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	if it.inner.Next(ctx) {
		it.yielded = true
		it.cur = it.inner.Chunk()
		return true
	}
	it.done = true
	err := it.inner.Err()
	if err == nil {
		return false
	}
	if engine.IsCancellation(err) || engine.IsResourceLimit(err) {
		it.err = err
		return false
	}
	it.svc.logger().WithError(err).Warn("SERVICE failed while streaming, ending the result because of SILENT")
	if it.yielded {
		return false
	}
	neutral, nerr := it.svc.neutralResult()
	if nerr != nil {
		it.err = nerr
		return false
	}
	it.cur = engine.Chunk{Table: neutral.IdTable(), Vocab: neutral.LocalVocab()}
	return true
}

func (it *silentIterator) Chunk() engine.Chunk { return it.cur }
func (it *silentIterator) Err() error          { return it.err }
func (it *silentIterator) Close() error        { return it.inner.Close() }
