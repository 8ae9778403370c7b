package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Sort orders the rows of its child by the given columns, ascending.
type Sort struct {
	Base
	child   Operation
	columns []int
}

func NewSort(ec *ExecutionContext, child Operation, columns []int) *Sort {
	return &Sort{Base: NewBase(ec), child: child, columns: columns}
}

func (s *Sort) Kind() Kind { return KindSort }

func (s *Sort) Descriptor() string {
	cols := make([]string, len(s.columns))
	for i, c := range s.columns {
		cols[i] = strconv.Itoa(c)
	}
	return "Sort on columns " + strings.Join(cols, ",")
}

func (s *Sort) CacheKey() string {
	return fmt.Sprintf("SORT(%v) {\n%s\n}", s.columns, s.child.CacheKey())
}

func (s *Sort) ResultWidth() int                     { return s.child.ResultWidth() }
func (s *Sort) VariableColumns() VariableToColumnMap { return s.child.VariableColumns() }
func (s *Sort) Children() []Operation                { return []Operation{s.child} }
func (s *Sort) SizeEstimate() uint64                 { return s.child.SizeEstimate() }
func (s *Sort) Multiplicity(col int) float64         { return s.child.Multiplicity(col) }
func (s *Sort) ResultSortedOn() []int                { return s.columns }
func (s *Sort) KnownEmptyResult() bool               { return s.child.KnownEmptyResult() }

func (s *Sort) CostEstimate() uint64 {
	n := s.child.SizeEstimate()
	log := uint64(1)
	for m := n; m > 1; m >>= 1 {
		log++
	}
	return s.child.CostEstimate() + n*log
}

func (s *Sort) ComputeResult(ctx context.Context, _ bool) (*Result, error) {
	in, err := GetResult(ctx, s.child, FullyMaterialized)
	if err != nil {
		return nil, err
	}
	table := in.IdTable()

	perm := make([]int, table.NumRows())
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		a, b := table.Row(perm[i]), table.Row(perm[j])
		for _, c := range s.columns {
			if cmp := a[c].Compare(b[c]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})

	out := NewIdTable(table.NumColumns(), s.ExecutionContext().Allocator)
	out.Reserve(table.NumRows())
	for _, r := range perm {
		if err := out.AppendRow(table.Row(r)...); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewMaterializedResult(Chunk{Table: out, Vocab: in.LocalVocab()}, s.columns), nil
}
