package engine

import (
	"github.com/dgraph-io/ristretto/v2"
)

// ResultCache keeps materialized results by cache key. The cost of an entry
// is its number of Ids.
type ResultCache struct {
	cache *ristretto.Cache[string, *Result]
}

func NewResultCache(maxCost int64) (*ResultCache, error) {
	numCounters := maxCost / 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *Result]{
		NumCounters:        numCounters,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &ResultCache{cache: c}, nil
}

// Get returns the cached result for key. The result is shared.
func (c *ResultCache) Get(key string) (*Result, bool) {
	return c.cache.Get(key)
}

// Put stores a materialized result. Lazy results are ignored.
func (c *ResultCache) Put(key string, r *Result) bool {
	if !r.IsFullyMaterialized() {
		return false
	}
	t := r.IdTable()
	cost := int64(t.NumRows() * t.NumColumns())
	if cost < 1 {
		cost = 1
	}
	ok := c.cache.Set(key, r, cost)
	c.cache.Wait()
	return ok
}

func (c *ResultCache) Close() {
	c.cache.Close()
}
