package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trigofed/internal/vocab"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
)

// Values is an inline table of bindings. It can hand out its rows lazily in
// chunks of a fixed size.
type Values struct {
	Base
	variables []rdf.Variable
	chunk     Chunk
	chunkRows int
	key       string
}

// NewValues builds the table from terms; a nil term is Undefined. Blank
// nodes with the same label share one fresh blank node index.
func NewValues(ec *ExecutionContext, variables []rdf.Variable, rows [][]rdf.Term) (*Values, error) {
	lv := vocab.NewLocalVocab()
	table := NewIdTable(len(variables), ec.Allocator)
	blankNodes := make(map[string]Id)
	var key strings.Builder
	key.WriteString("VALUES (" + rdf.JoinVariables(variables, " ") + ") {")

	for i, row := range rows {
		if len(row) != len(variables) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(variables))
		}
		ids := make([]Id, len(row))
		key.WriteString(" (")
		for c, term := range row {
			if c > 0 {
				key.WriteByte(' ')
			}
			switch t := term.(type) {
			case nil:
				ids[c] = MakeUndefined()
				key.WriteString("UNDEF")
				continue
			case *rdf.BlankNode:
				id, ok := blankNodes[t.ID]
				if !ok {
					id = MakeFromBlankNodeIndex(lv.BlankNodeIndex(ec.BlankNodes))
					blankNodes[t.ID] = id
				}
				ids[c] = id
			default:
				id, err := ec.TermToId(term, lv)
				if err != nil {
					return nil, err
				}
				ids[c] = id
			}
			key.WriteString(term.String())
		}
		key.WriteByte(')')
		if err := table.AppendRow(ids...); err != nil {
			return nil, err
		}
	}
	key.WriteString(" }")

	return &Values{
		Base:      NewBase(ec),
		variables: variables,
		chunk:     Chunk{Table: table, Vocab: lv},
		key:       key.String(),
	}, nil
}

// SetLazyChunkRows makes lazy computations yield chunks of n rows, n <= 0
// disables laziness.
func (v *Values) SetLazyChunkRows(n int) {
	v.chunkRows = n
}

func (v *Values) Kind() Kind { return KindOther }

func (v *Values) Descriptor() string {
	return "Values with variables " + rdf.JoinVariables(v.variables, " ")
}

func (v *Values) CacheKey() string          { return v.key }
func (v *Values) ResultWidth() int          { return len(v.variables) }
func (v *Values) Children() []Operation     { return nil }
func (v *Values) SizeEstimate() uint64      { return uint64(v.chunk.Table.NumRows()) }
func (v *Values) CostEstimate() uint64      { return uint64(v.chunk.Table.NumRows()) }
func (v *Values) ResultSortedOn() []int     { return nil }
func (v *Values) KnownEmptyResult() bool    { return v.chunk.Table.NumRows() == 0 }
func (v *Values) Variables() []rdf.Variable { return v.variables }

func (v *Values) VariableColumns() VariableToColumnMap {
	m := make(VariableToColumnMap, len(v.variables))
	for i, variable := range v.variables {
		undef := false
		for r := 0; r < v.chunk.Table.NumRows(); r++ {
			if v.chunk.Table.At(r, i).IsUndefined() {
				undef = true
				break
			}
		}
		m[variable] = ColumnInfo{Index: i, PossiblyUndefined: undef}
	}
	return m
}

// Multiplicity is the average number of rows per distinct value of col
func (v *Values) Multiplicity(col int) float64 {
	rows := v.chunk.Table.NumRows()
	if rows == 0 {
		return 1
	}
	distinct := make(map[Id]struct{})
	for r := 0; r < rows; r++ {
		distinct[v.chunk.Table.At(r, col)] = struct{}{}
	}
	return float64(rows) / float64(len(distinct))
}

func (v *Values) ComputeResult(_ context.Context, requestLaziness bool) (*Result, error) {
	if !requestLaziness || v.chunkRows <= 0 {
		return NewMaterializedResult(v.chunk, nil), nil
	}

	table := v.chunk.Table
	var chunks []Chunk
	for start := 0; start < table.NumRows(); start += v.chunkRows {
		end := min(start+v.chunkRows, table.NumRows())
		part := NewIdTable(table.NumColumns(), nil)
		for r := start; r < end; r++ {
			if err := part.AppendRow(table.Row(r)...); err != nil {
				return nil, err
			}
		}
		chunks = append(chunks, Chunk{Table: part, Vocab: v.chunk.Vocab})
	}
	return NewLazyResult(FromChunks(chunks...), nil), nil
}
