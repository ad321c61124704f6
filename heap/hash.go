package heap

import (
	"slices"

	"github.com/zeebo/xxh3"
)

// hashTable stores hash entries. Iteration follows the key hash, so the
// order is independent of insertion order but stable for a given key set.
type hashTable struct {
	items map[string]*Cell
}

func newHashTable() *hashTable {
	return &hashTable{items: make(map[string]*Cell)}
}

func (h *hashTable) len() int { return len(h.items) }

func (h *hashTable) keys() []string {
	keys := make([]string, 0, len(h.items))
	for k := range h.items {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ha, hb := xxh3.HashString(a), xxh3.HashString(b)
		switch {
		case ha < hb:
			return -1
		case ha > hb:
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return keys
}

// HashLen returns the number of keys.
func (e *Engine) HashLen(hv *Cell) int { return hv.hash.len() }

// HashFetch returns the value stored under key without changing its count.
// With lval set, a missing entry is created as an undefined scalar.
func (e *Engine) HashFetch(hv *Cell, key string, lval bool) *Cell {
	v, ok := hv.hash.items[key]
	if ok && v != nil {
		return v
	}
	if !lval {
		return nil
	}
	v = e.NewScalar()
	hv.hash.items[key] = v
	return v
}

// HashStore places c under key, taking over one reference to c and
// releasing the previous value.
func (e *Engine) HashStore(hv *Cell, key string, c *Cell) {
	old := hv.hash.items[key]
	hv.hash.items[key] = c
	if old != c {
		e.Dec(old)
	}
}

// HashExists reports whether key is present.
func (e *Engine) HashExists(hv *Cell, key string) bool {
	_, ok := hv.hash.items[key]
	return ok
}

// HashDelete removes key, releasing its value.
func (e *Engine) HashDelete(hv *Cell, key string) {
	old, ok := hv.hash.items[key]
	if !ok {
		return
	}
	delete(hv.hash.items, key)
	e.Dec(old)
}

// HashClear removes every entry.
func (e *Engine) HashClear(hv *Cell) {
	old := hv.hash
	hv.hash = newHashTable()
	for _, v := range old.items {
		e.Dec(v)
	}
}

// HashKeys returns the keys in the engine's iteration order.
func (e *Engine) HashKeys(hv *Cell) []string { return hv.hash.keys() }
