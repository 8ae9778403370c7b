package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	log "github.com/sirupsen/logrus"
)

// Kind identifies the few operator types that other operators need to
// recognise.
type Kind int

const (
	KindOther Kind = iota
	KindSort
	KindService
)

func (k Kind) String() string {
	switch k {
	case KindSort:
		return "Sort"
	case KindService:
		return "Service"
	default:
		return "Other"
	}
}

// ComputationMode selects whether a caller accepts a lazy result
type ComputationMode int

const (
	FullyMaterialized ComputationMode = iota
	LazyIfSupported
)

// ColumnInfo describes where a variable lives in a result and whether it
// may be unbound in some rows.
type ColumnInfo struct {
	Index             int
	PossiblyUndefined bool
}

// VariableToColumnMap maps each visible variable to its column
type VariableToColumnMap map[rdf.Variable]ColumnInfo

// Variables returns the variables ordered by column index
func (m VariableToColumnMap) Variables() []rdf.Variable {
	vars := make([]rdf.Variable, 0, len(m))
	for v := range m {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return m[vars[i]].Index < m[vars[j]].Index })
	return vars
}

// Operation is a node of a query execution tree.
type Operation interface {
	Kind() Kind
	Descriptor() string
	// CacheKey identifies the result. Operations with equal keys produce
	// equal results.
	CacheKey() string
	ResultWidth() int
	VariableColumns() VariableToColumnMap
	Children() []Operation
	SizeEstimate() uint64
	CostEstimate() uint64
	Multiplicity(col int) float64
	ResultSortedOn() []int
	KnownEmptyResult() bool
	ComputeResult(ctx context.Context, requestLaziness bool) (*Result, error)

	RuntimeInfo() *RuntimeInfo
	SetPrecomputedResult(r *Result)
	TakePrecomputedResult() *Result
}

// Base carries the state shared by all operations. Embed it by value.
type Base struct {
	execCtx     *ExecutionContext
	info        *RuntimeInfo
	precomputed *Result
}

func NewBase(ec *ExecutionContext) Base {
	return Base{execCtx: ec, info: NewRuntimeInfo()}
}

func (b *Base) ExecutionContext() *ExecutionContext {
	return b.execCtx
}

func (b *Base) RuntimeInfo() *RuntimeInfo {
	return b.info
}

// SetPrecomputedResult installs a result that the next GetResult returns
// instead of computing.
func (b *Base) SetPrecomputedResult(r *Result) {
	b.precomputed = r
}

func (b *Base) TakePrecomputedResult() *Result {
	r := b.precomputed
	b.precomputed = nil
	return r
}

// UnwrapSort returns the child of a Sort operation and op itself otherwise.
func UnwrapSort(op Operation) (Operation, error) {
	if op.Kind() != KindSort {
		return op, nil
	}
	children := op.Children()
	if len(children) != 1 {
		return nil, fmt.Errorf("sort operation must have exactly one child, has %d", len(children))
	}
	return children[0], nil
}

// GetResult returns the result of op. A precomputed result is used first,
// then the result cache, and only then is the result computed. Materialized
// results are stored in the cache; cached tables are shared and must not be
// modified.
func GetResult(ctx context.Context, op Operation, mode ComputationMode) (*Result, error) {
	info := op.RuntimeInfo()
	if r := op.TakePrecomputedResult(); r != nil {
		info.SetStatus(StatusPrecomputed, r)
		return r, nil
	}

	var cache *ResultCache
	var logger *log.Entry
	if b, ok := op.(interface{ ExecutionContext() *ExecutionContext }); ok && b.ExecutionContext() != nil {
		ec := b.ExecutionContext()
		cache = ec.Cache
		logger = ec.Logger.WithField("op", op.Descriptor())
	} else {
		logger = log.WithField("op", op.Descriptor())
	}

	key := op.CacheKey()
	if cache != nil {
		if r, ok := cache.Get(key); ok {
			info.SetStatus(StatusCached, r)
			logger.Debug("result served from cache")
			return r, nil
		}
	}

	start := time.Now()
	r, err := op.ComputeResult(ctx, mode == LazyIfSupported)
	info.SetElapsed(time.Since(start))
	if err != nil {
		info.SetStatus(StatusFailed, nil)
		return nil, err
	}
	if r.IsFullyMaterialized() {
		info.SetStatus(StatusComputed, r)
		if cache != nil {
			cache.Put(key, r)
		}
	} else {
		info.SetStatus(StatusLazy, r)
	}
	return r, nil
}

// Status of a computed operation
type Status string

const (
	StatusNotStarted  Status = "not started"
	StatusComputed    Status = "fully materialized"
	StatusLazy        Status = "lazily materialized"
	StatusCached      Status = "cached"
	StatusPrecomputed Status = "precomputed"
	StatusFailed      Status = "failed"
)

// RuntimeInfo records how an operation was executed
type RuntimeInfo struct {
	mu      sync.Mutex
	status  Status
	numRows int
	elapsed time.Duration
	details map[string]any
}

func NewRuntimeInfo() *RuntimeInfo {
	return &RuntimeInfo{status: StatusNotStarted, details: make(map[string]any)}
}

func (ri *RuntimeInfo) SetStatus(s Status, r *Result) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.status = s
	if r != nil && r.IsFullyMaterialized() {
		ri.numRows = r.IdTable().NumRows()
	}
}

func (ri *RuntimeInfo) Status() Status {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.status
}

func (ri *RuntimeInfo) NumRows() int {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.numRows
}

// AddRows is used by lazy producers to account for yielded rows
func (ri *RuntimeInfo) AddRows(n int) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.numRows += n
}

func (ri *RuntimeInfo) SetElapsed(d time.Duration) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.elapsed = d
}

func (ri *RuntimeInfo) Elapsed() time.Duration {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.elapsed
}

func (ri *RuntimeInfo) AddDetail(key string, value any) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.details[key] = value
}

func (ri *RuntimeInfo) Detail(key string) (any, bool) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	v, ok := ri.details[key]
	return v, ok
}

// Details returns a copy of all details
func (ri *RuntimeInfo) Details() map[string]any {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	out := make(map[string]any, len(ri.details))
	for k, v := range ri.details {
		out[k] = v
	}
	return out
}

func (ri *RuntimeInfo) String() string {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	keys := make([]string, 0, len(ri.details))
	for k := range ri.details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "status=%s rows=%d time=%s", ri.status, ri.numRows, ri.elapsed)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ri.details[k])
	}
	return b.String()
}
