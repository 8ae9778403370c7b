package engine

import (
	"context"
	"fmt"

	"github.com/aleksaelezovic/trigofed/internal/vocab"
)

// Chunk is a table together with the local vocabulary its Ids refer to.
type Chunk struct {
	Table *IdTable
	Vocab *vocab.LocalVocab
}

// ChunkIterator produces the chunks of a lazy result, Volcano style:
//
//	for it.Next(ctx) {
//		c := it.Chunk()
//	}
//	if err := it.Err(); err != nil { ... }
type ChunkIterator interface {
	Next(ctx context.Context) bool
	Chunk() Chunk
	Err() error
	Close() error
}

// Result is either fully materialized (one table) or lazy (a stream of
// chunks that can be consumed once).
type Result struct {
	chunk    *Chunk
	chunks   ChunkIterator
	sortedOn []int
	consumed bool
}

func NewMaterializedResult(c Chunk, sortedOn []int) *Result {
	if c.Vocab == nil {
		c.Vocab = vocab.NewLocalVocab()
	}
	return &Result{chunk: &c, sortedOn: sortedOn}
}

func NewLazyResult(it ChunkIterator, sortedOn []int) *Result {
	return &Result{chunks: it, sortedOn: sortedOn}
}

func (r *Result) IsFullyMaterialized() bool {
	return r.chunk != nil
}

// IdTable returns the table of a materialized result, nil for lazy ones
func (r *Result) IdTable() *IdTable {
	if r.chunk == nil {
		return nil
	}
	return r.chunk.Table
}

// LocalVocab returns the local vocabulary of a materialized result
func (r *Result) LocalVocab() *vocab.LocalVocab {
	if r.chunk == nil {
		return nil
	}
	return r.chunk.Vocab
}

// Release gives the table of a materialized result back to its allocator.
// Results shared through the result cache must not be released.
func (r *Result) Release() {
	if r.chunk != nil {
		r.chunk.Table.Release()
	}
}

func (r *Result) SortedOn() []int {
	return r.sortedOn
}

// Chunks returns the chunk stream. A materialized result yields its single
// chunk and can be iterated any number of times; a lazy result only once.
func (r *Result) Chunks() ChunkIterator {
	if r.chunk != nil {
		return FromChunks(*r.chunk)
	}
	if r.consumed {
		return &errIterator{err: ErrResultConsumed}
	}
	r.consumed = true
	return r.chunks
}

// sliceIterator yields a fixed list of chunks
type sliceIterator struct {
	chunks []Chunk
	pos    int
	cur    Chunk
	err    error
}

// FromChunks returns an iterator over the given chunks
func FromChunks(chunks ...Chunk) ChunkIterator {
	return &sliceIterator{chunks: chunks}
}

func (it *sliceIterator) Next(ctx context.Context) bool {
	if it.err = ctx.Err(); it.err != nil || it.pos >= len(it.chunks) {
		return false
	}
	it.cur = it.chunks[it.pos]
	it.pos++
	return true
}

func (it *sliceIterator) Chunk() Chunk { return it.cur }
func (it *sliceIterator) Err() error   { return it.err }
func (it *sliceIterator) Close() error { return nil }

// concatIterator drains its iterators one after another
type concatIterator struct {
	its []ChunkIterator
	cur Chunk
	err error
}

// Concat returns an iterator yielding all chunks of its, in order
func Concat(its ...ChunkIterator) ChunkIterator {
	return &concatIterator{its: its}
}

func (it *concatIterator) Next(ctx context.Context) bool {
	for it.err == nil && len(it.its) > 0 {
		head := it.its[0]
		if head.Next(ctx) {
			it.cur = head.Chunk()
			return true
		}
		if err := head.Err(); err != nil {
			it.err = err
			return false
		}
		if err := head.Close(); err != nil {
			it.err = err
			return false
		}
		it.its = it.its[1:]
	}
	if it.err == nil {
		it.err = ctx.Err()
	}
	return false
}

func (it *concatIterator) Chunk() Chunk { return it.cur }
func (it *concatIterator) Err() error   { return it.err }

func (it *concatIterator) Close() error {
	var first error
	for _, i := range it.its {
		if err := i.Close(); err != nil && first == nil {
			first = err
		}
	}
	it.its = nil
	return first
}

type errIterator struct {
	err error
}

func (it *errIterator) Next(context.Context) bool { return false }
func (it *errIterator) Chunk() Chunk              { return Chunk{} }
func (it *errIterator) Err() error                { return it.err }
func (it *errIterator) Close() error              { return nil }

// Materialize drains it into a single chunk whose vocabulary is the union of
// all chunk vocabularies. The iterator is closed. A lone chunk is returned
// as it is. Otherwise every chunk is copied and its table released: the
// chunks of a lazy result belong to whoever consumes them.
func Materialize(ctx context.Context, it ChunkIterator, numColumns int, alloc *Allocator) (Chunk, error) {
	defer it.Close()

	var first *Chunk
	var out Chunk
	// a pending lone chunk may be shared with a materialized result, so
	// only tables this function allocated or already copied are released
	fail := func(err error) (Chunk, error) {
		out.Table.Release()
		return Chunk{}, err
	}

	for it.Next(ctx) {
		c := it.Chunk()
		if first == nil && out.Table == nil {
			first = &c
			continue
		}
		if out.Table == nil {
			out = Chunk{Table: NewIdTable(numColumns, alloc), Vocab: vocab.NewLocalVocab()}
			if err := moveInto(out, *first); err != nil {
				first.Table.Release()
				return fail(err)
			}
			first = nil
		}
		if err := moveInto(out, c); err != nil {
			c.Table.Release()
			return fail(err)
		}
	}
	if err := it.Err(); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	switch {
	case out.Table != nil:
		return out, nil
	case first != nil:
		if first.Table.NumColumns() != numColumns {
			return fail(fmt.Errorf("cannot use table with %d columns as result with %d columns",
				first.Table.NumColumns(), numColumns))
		}
		if first.Vocab == nil {
			first.Vocab = vocab.NewLocalVocab()
		}
		return *first, nil
	}
	return Chunk{Table: NewIdTable(numColumns, alloc), Vocab: vocab.NewLocalVocab()}, nil
}

// moveInto appends the rows of c to out and releases c's table
func moveInto(out, c Chunk) error {
	if err := out.Table.InsertAtEnd(c.Table); err != nil {
		return err
	}
	c.Table.Release()
	out.Vocab.MergeWith(c.Vocab)
	return nil
}
