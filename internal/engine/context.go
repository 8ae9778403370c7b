package engine

import (
	"fmt"
	"io"

	"github.com/aleksaelezovic/trigofed/internal/config"
	"github.com/aleksaelezovic/trigofed/internal/vocab"
	log "github.com/sirupsen/logrus"
)

// Vocabulary is the read side of the global vocabulary
type Vocabulary interface {
	Index(word string) (uint64, bool, error)
	Word(idx uint64) (string, error)
}

// ExecutionContext holds what operations share while a query runs.
type ExecutionContext struct {
	Vocab      Vocabulary
	BlankNodes *vocab.BlankNodeManager
	Allocator  *Allocator
	Params     config.RuntimeParameters
	Cache      *ResultCache
	Logger     *log.Logger
}

// Option configures an ExecutionContext
type Option func(*ExecutionContext)

func WithLogger(l *log.Logger) Option {
	return func(ec *ExecutionContext) { ec.Logger = l }
}

// WithoutCache disables the result cache
func WithoutCache() Option {
	return func(ec *ExecutionContext) {
		if ec.Cache != nil {
			ec.Cache.Close()
		}
		ec.Cache = nil
	}
}

// NewExecutionContext creates a context over v. v may be nil when no global
// vocabulary exists; every word then goes to a local vocabulary.
func NewExecutionContext(v Vocabulary, params config.RuntimeParameters, opts ...Option) (*ExecutionContext, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	cache, err := NewResultCache(params.ResultCacheMaxCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	ec := &ExecutionContext{
		Vocab:      v,
		BlankNodes: vocab.NewBlankNodeManager(),
		Allocator:  NewAllocator(params.AllocationLimitCells),
		Params:     params,
		Cache:      cache,
		Logger:     log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec, nil
}

// Close releases the result cache
func (ec *ExecutionContext) Close() {
	if ec.Cache != nil {
		ec.Cache.Close()
	}
}

// NewDiscardLogger returns a logger that drops everything, for tests.
func NewDiscardLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}
