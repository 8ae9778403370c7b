// Package vocab holds the global vocabulary that maps words (IRIs and
// literals in N-Triples form) to dense indices, and the per-operation local
// vocabulary for words that are not part of it.
package vocab

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/aleksaelezovic/trigofed/internal/encoding"
	"github.com/aleksaelezovic/trigofed/pkg/store"
)

var ErrUnknownIndex = errors.New("vocabulary index not found")

var sizeKey = []byte("vocab-size")

// Vocabulary is the persistent global vocabulary. Indices are assigned in
// insertion order starting at 0 and never change.
type Vocabulary struct {
	storage store.Storage
	encoder *encoding.TermEncoder

	// serializes writers; readers use snapshot transactions
	mu sync.Mutex
}

// NewVocabulary creates a vocabulary on top of storage
func NewVocabulary(storage store.Storage) *Vocabulary {
	return &Vocabulary{
		storage: storage,
		encoder: encoding.NewTermEncoder(),
	}
}

// Add inserts words that are not yet contained and returns how many were new.
func (v *Vocabulary) Add(words ...string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	txn, err := v.storage.Begin(true)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()

	size, err := readSize(txn)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, word := range words {
		_, found, err := v.lookup(txn, word)
		if err != nil {
			return 0, err
		}
		if found {
			continue
		}

		hash := v.encoder.Hash128(word)
		idx := encodeIndex(size)
		if err := txn.Set(store.TableWord2ID, hash[:], idx); err != nil {
			return 0, fmt.Errorf("failed to store word %q: %w", word, err)
		}
		if err := txn.Set(store.TableID2Word, idx, []byte(word)); err != nil {
			return 0, fmt.Errorf("failed to store word %q: %w", word, err)
		}
		size++
		added++
	}

	if err := txn.Set(store.TableMeta, sizeKey, encodeIndex(size)); err != nil {
		return 0, err
	}
	return added, txn.Commit()
}

// Index returns the index of word if it is part of the vocabulary
func (v *Vocabulary) Index(word string) (uint64, bool, error) {
	txn, err := v.storage.Begin(false)
	if err != nil {
		return 0, false, err
	}
	defer txn.Rollback()
	return v.lookup(txn, word)
}

// Word returns the word stored at idx
func (v *Vocabulary) Word(idx uint64) (string, error) {
	txn, err := v.storage.Begin(false)
	if err != nil {
		return "", err
	}
	defer txn.Rollback()

	word, err := txn.Get(store.TableID2Word, encodeIndex(idx))
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %d", ErrUnknownIndex, idx)
	}
	if err != nil {
		return "", err
	}
	return string(word), nil
}

// Size returns the number of words in the vocabulary
func (v *Vocabulary) Size() (uint64, error) {
	txn, err := v.storage.Begin(false)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()
	return readSize(txn)
}

// Each calls fn for every word in index order. Iteration stops at the
// first error fn returns.
func (v *Vocabulary) Each(fn func(idx uint64, word string) error) error {
	txn, err := v.storage.Begin(false)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	it, err := txn.Scan(store.TableID2Word, nil)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		word, err := it.Value()
		if err != nil {
			return err
		}
		if err := fn(binary.BigEndian.Uint64(it.Key()), string(word)); err != nil {
			return err
		}
	}
	return nil
}

// Reset removes all words. Indices start at 0 again afterwards.
func (v *Vocabulary) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	txn, err := v.storage.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	for _, table := range []store.Table{store.TableWord2ID, store.TableID2Word, store.TableMeta} {
		keys, err := scanKeys(txn, table)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(table, key); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
	}
	return txn.Commit()
}

// Sync flushes the vocabulary to disk
func (v *Vocabulary) Sync() error {
	return v.storage.Sync()
}

func scanKeys(txn store.Transaction, table store.Table) ([][]byte, error) {
	it, err := txn.Scan(table, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var keys [][]byte
	for it.Next() {
		keys = append(keys, it.Key())
	}
	return keys, nil
}

func (v *Vocabulary) lookup(txn store.Transaction, word string) (uint64, bool, error) {
	hash := v.encoder.Hash128(word)
	raw, err := txn.Get(store.TableWord2ID, hash[:])
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	// Guard against hash collisions
	stored, err := txn.Get(store.TableID2Word, raw)
	if err != nil {
		return 0, false, fmt.Errorf("inconsistent vocabulary for %q: %w", word, err)
	}
	if string(stored) != word {
		return 0, false, nil
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func readSize(txn store.Transaction) (uint64, error) {
	raw, err := txn.Get(store.TableMeta, sizeKey)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

func encodeIndex(idx uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, idx)
	return buf
}
