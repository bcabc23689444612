package catalog

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// selectionCache memoizes Select results by (task_description, agent,
// strategy) so repeated tool-loading calls for the same triple under an
// unchanged snapshot skip recomputation. Cleared on every Refresh since a
// new snapshot invalidates all prior selections.
type selectionCache struct {
	lru *lru.Cache[string, Selection]
}

func newSelectionCache(size int) *selectionCache {
	c, err := lru.New[string, Selection](size)
	if err != nil {
		// Only returns an error for size <= 0, which never happens with
		// the constant the constructor passes.
		panic(err)
	}
	return &selectionCache{lru: c}
}

func (s *selectionCache) Get(key string) (Selection, bool) {
	return s.lru.Get(key)
}

func (s *selectionCache) Add(key string, sel Selection) {
	s.lru.Add(key, sel)
}

func (s *selectionCache) Clear() {
	s.lru.Purge()
}
