package vocab

import (
	"sync/atomic"
)

// nextLocalIndex hands out process-wide unique local vocabulary indices, so
// merging local vocabularies never invalidates an index issued earlier.
var nextLocalIndex atomic.Uint64

// BlankNodeManager allocates blank node indices that are unique across all
// local vocabularies that share the manager.
type BlankNodeManager struct {
	next atomic.Uint64
}

func NewBlankNodeManager() *BlankNodeManager {
	return &BlankNodeManager{}
}

// Allocate returns a fresh blank node index
func (m *BlankNodeManager) Allocate() uint64 {
	return m.next.Add(1) - 1
}

// LocalVocab is an append-only store for words created while computing a
// single result that are not contained in the global vocabulary. It is not
// safe for concurrent use; ownership moves with the table it belongs to.
type LocalVocab struct {
	words   map[uint64]string
	indices map[string]uint64

	// blank node indices owned by this vocabulary
	blankNodes []uint64
}

func NewLocalVocab() *LocalVocab {
	return &LocalVocab{
		words:   make(map[uint64]string),
		indices: make(map[string]uint64),
	}
}

// IndexAndAddIfNotContained returns the index of word, inserting it first if
// it is new.
func (l *LocalVocab) IndexAndAddIfNotContained(word string) uint64 {
	if idx, ok := l.indices[word]; ok {
		return idx
	}
	idx := nextLocalIndex.Add(1) - 1
	l.indices[word] = idx
	l.words[idx] = word
	return idx
}

// Index returns the index of word if it is contained
func (l *LocalVocab) Index(word string) (uint64, bool) {
	idx, ok := l.indices[word]
	return idx, ok
}

// Word returns the word for idx
func (l *LocalVocab) Word(idx uint64) (string, bool) {
	word, ok := l.words[idx]
	return word, ok
}

// BlankNodeIndex allocates a new blank node owned by this vocabulary
func (l *LocalVocab) BlankNodeIndex(m *BlankNodeManager) uint64 {
	idx := m.Allocate()
	l.blankNodes = append(l.blankNodes, idx)
	return idx
}

// Size returns the number of words (not counting blank nodes)
func (l *LocalVocab) Size() int {
	return len(l.words)
}

// NumBlankNodes returns how many blank nodes this vocabulary owns
func (l *LocalVocab) NumBlankNodes() int {
	return len(l.blankNodes)
}

// Empty reports whether the vocabulary holds neither words nor blank nodes
func (l *LocalVocab) Empty() bool {
	return len(l.words) == 0 && len(l.blankNodes) == 0
}

// MergeWith adds all entries of others. Indices issued by any of the merged
// vocabularies stay resolvable through l.
func (l *LocalVocab) MergeWith(others ...*LocalVocab) {
	for _, o := range others {
		if o == nil || o == l {
			continue
		}
		for idx, word := range o.words {
			l.words[idx] = word
			if _, ok := l.indices[word]; !ok {
				l.indices[word] = idx
			}
		}
		l.blankNodes = append(l.blankNodes, o.blankNodes...)
	}
}
