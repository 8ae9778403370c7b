// Package transport sends SPARQL requests to remote endpoints.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// Media types used by the SPARQL 1.1 protocol
const (
	ContentTypeSPARQLQuery       = "application/sparql-query"
	ContentTypeSPARQLResultsJSON = "application/sparql-results+json"
)

// Request is a single outgoing request
type Request struct {
	URL         string
	Method      string
	Body        string
	ContentType string
	Accept      string
}

// Response is the status line, content type and body stream of a reply.
// The caller must close Body.
type Response struct {
	Status      int
	Reason      string
	ContentType string
	Body        io.ReadCloser
}

// SendRequestFunc performs a request. Implementations must honour ctx.
type SendRequestFunc func(ctx context.Context, req Request) (*Response, error)

// Client is the default SendRequestFunc provider, backed by net/http.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a client. timeout bounds each request including reading
// the body, 0 means no timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: "trigofed/1.0",
	}
}

// SendRequest implements SendRequestFunc
func (c *Client) SendRequest(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, strings.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	httpReq.Header.Set("Accept-Encoding", "gzip")
	httpReq.Header.Set("User-Agent", c.userAgent)

	log.WithFields(log.Fields{
		"url":    req.URL,
		"method": method,
		"size":   humanize.Bytes(uint64(len(req.Body))),
	}).Debug("sending request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}

	body := resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("invalid gzip response body: %w", err)
		}
		body = &gzipBody{zr: zr, raw: resp.Body}
	}

	return &Response{
		Status:      resp.StatusCode,
		Reason:      http.StatusText(resp.StatusCode),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

type gzipBody struct {
	zr  *gzip.Reader
	raw io.ReadCloser
}

func (g *gzipBody) Read(p []byte) (int, error) {
	return g.zr.Read(p)
}

func (g *gzipBody) Close() error {
	zerr := g.zr.Close()
	if err := g.raw.Close(); err != nil {
		return err
	}
	return zerr
}
