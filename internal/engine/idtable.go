package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Allocator enforces a cap on the number of Ids held by result tables. A
// nil *Allocator is unlimited.
type Allocator struct {
	limit int64
	used  atomic.Int64
}

// NewAllocator returns an allocator for at most limitCells Ids, 0 means
// unlimited.
func NewAllocator(limitCells int64) *Allocator {
	return &Allocator{limit: limitCells}
}

// Allocate reserves cells Ids or fails with ErrAllocationLimitExceeded
func (a *Allocator) Allocate(cells int64) error {
	if a == nil || cells == 0 {
		return nil
	}
	used := a.used.Add(cells)
	if a.limit > 0 && used > a.limit {
		a.used.Add(-cells)
		return fmt.Errorf("%w: requested %d Ids with %d of %d in use",
			ErrAllocationLimitExceeded, cells, used-cells, a.limit)
	}
	return nil
}

// Free releases cells Ids
func (a *Allocator) Free(cells int64) {
	if a == nil {
		return
	}
	a.used.Add(-cells)
}

// Used returns the number of Ids currently reserved
func (a *Allocator) Used() int64 {
	if a == nil {
		return 0
	}
	return a.used.Load()
}

// IdTable is a row-major table of Ids with a fixed number of columns.
// Row r occupies data[r*numColumns : (r+1)*numColumns].
type IdTable struct {
	numColumns int
	numRows    int
	data       []Id
	alloc      *Allocator
}

// NewIdTable creates an empty table. alloc may be nil.
func NewIdTable(numColumns int, alloc *Allocator) *IdTable {
	return &IdTable{numColumns: numColumns, alloc: alloc}
}

func (t *IdTable) NumColumns() int {
	return t.numColumns
}

func (t *IdTable) NumRows() int {
	return t.numRows
}

// EmplaceBack appends a row of Undefined values
func (t *IdTable) EmplaceBack() error {
	if err := t.alloc.Allocate(int64(t.numColumns)); err != nil {
		return err
	}
	for i := 0; i < t.numColumns; i++ {
		t.data = append(t.data, MakeUndefined())
	}
	t.numRows++
	return nil
}

// AppendRow appends a complete row
func (t *IdTable) AppendRow(row ...Id) error {
	if len(row) != t.numColumns {
		return fmt.Errorf("row has %d values, table has %d columns", len(row), t.numColumns)
	}
	if err := t.alloc.Allocate(int64(t.numColumns)); err != nil {
		return err
	}
	t.data = append(t.data, row...)
	t.numRows++
	return nil
}

// InsertAtEnd appends all rows of other, which must have the same width
func (t *IdTable) InsertAtEnd(other *IdTable) error {
	if other.numColumns != t.numColumns {
		return fmt.Errorf("cannot append table with %d columns to table with %d columns",
			other.numColumns, t.numColumns)
	}
	if err := t.alloc.Allocate(int64(len(other.data))); err != nil {
		return err
	}
	t.data = append(t.data, other.data...)
	t.numRows += other.numRows
	return nil
}

// Reserve grows the capacity to hold rows rows without reallocating
func (t *IdTable) Reserve(rows int) {
	if need := rows * t.numColumns; need > cap(t.data) {
		data := make([]Id, len(t.data), need)
		copy(data, t.data)
		t.data = data
	}
}

// Release gives the cells of t back to its allocator and empties it. The
// table stays usable but is no longer tracked. Releasing twice is a no-op.
func (t *IdTable) Release() {
	if t == nil {
		return
	}
	t.alloc.Free(int64(len(t.data)))
	t.alloc = nil
	t.data = nil
	t.numRows = 0
}

func (t *IdTable) At(row, col int) Id {
	return t.data[row*t.numColumns+col]
}

func (t *IdTable) Set(row, col int, id Id) {
	t.data[row*t.numColumns+col] = id
}

// Row returns the values of row. The slice aliases the table.
func (t *IdTable) Row(row int) []Id {
	offset := row * t.numColumns
	return t.data[offset : offset+t.numColumns]
}

func (t *IdTable) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "IdTable with %d columns, %d rows\n", t.numColumns, t.numRows)
	for r := 0; r < t.numRows; r++ {
		for c, id := range t.Row(r) {
			if c > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(id.String())
		}
		b.WriteByte('\n')
	}
	return b.String()
}
