package hostbind

import (
	"fmt"
	"iter"

	"github.com/feather-lang/hostbind/heap"
)

// Hash owns one reference to a hash cell.
type Hash struct {
	e  *heap.Engine
	hv *heap.Cell
}

// NewHash allocates an empty hash.
func NewHash(e *heap.Engine) *Hash {
	return &Hash{e: e, hv: e.NewHash()}
}

// HashFrom returns a handle sharing the hash that h refers to.
func HashFrom(h Handle) (*Hash, error) {
	e := h.Engine()
	c := handleCell(h)
	switch {
	case c != nil && c.Type() == heap.TypeHash:
		return &Hash{e: e, hv: e.Inc(c)}, nil
	case c != nil && c.ROK() && c.RV().Type() == heap.TypeHash:
		return &Hash{e: e, hv: e.Inc(c.RV())}, nil
	}
	return nil, fmt.Errorf("%w: cannot build a hash from %s", ErrConversion, describe(c))
}

// AdoptHash takes over the caller's reference to a hash cell.
func AdoptHash(e *heap.Engine, hv *heap.Cell) (*Hash, error) {
	if hv == nil || hv.Type() != heap.TypeHash {
		return nil, fmt.Errorf("%w: %s is not a hash", ErrConversion, describe(hv))
	}
	return &Hash{e: e, hv: hv}, nil
}

func (h *Hash) Cell() *heap.Cell { return h.hv }
func (h *Hash) Engine() *heap.Engine { return h.e }

// Close releases the handle's reference. Closing twice is a no-op.
func (h *Hash) Close() {
	if h.hv != nil {
		h.e.Dec(h.hv)
		h.hv = nil
	}
}

// Clone returns a new hash with a copy of every value.
func (h *Hash) Clone() *Hash {
	out := NewHash(h.e)
	for _, k := range h.e.HashKeys(h.hv) {
		h.e.HashStore(out.hv, k, h.e.Copy(h.e.HashFetch(h.hv, k, false)))
	}
	return out
}

// Move transfers the cell to a new handle, leaving h with a fresh empty
// hash.
func (h *Hash) Move() *Hash {
	moved := &Hash{e: h.e, hv: h.hv}
	h.hv = h.e.NewHash()
	return moved
}

// Release gives up ownership of the cell and returns it.
func (h *Hash) Release() *heap.Cell {
	hv := h.hv
	h.hv = h.e.NewHash()
	return hv
}

// Reset releases the current cell and takes over the caller's reference to
// hv.
func (h *Hash) Reset(hv *heap.Cell) {
	old := h.hv
	if hv == nil {
		hv = h.e.NewHash()
	}
	h.hv = hv
	if old != hv {
		h.e.Dec(old)
	}
}

// Insert stores a copy of v under key, replacing any previous value.
func (h *Hash) Insert(key string, v any) error {
	c, err := newCell(h.e, v)
	if err != nil {
		return err
	}
	h.e.HashStore(h.hv, key, c)
	return nil
}

// At returns a proxy for an existing key.
func (h *Hash) At(key string) (Proxy, bool) {
	if !h.e.HashExists(h.hv, key) {
		return Proxy{}, false
	}
	return h.Index(key), true
}

// Index returns a proxy for key. Assigning through it creates the entry.
func (h *Hash) Index(key string) Proxy {
	return Proxy{e: h.e, container: h.hv, key: key, keyed: true}
}

func (h *Hash) Exists(key string) bool { return h.e.HashExists(h.hv, key) }
func (h *Hash) Remove(key string) { h.e.HashDelete(h.hv, key) }
func (h *Hash) Clear() { h.e.HashClear(h.hv) }
func (h *Hash) Len() int { return h.e.HashLen(h.hv) }

// Keys lists the keys in the engine's iteration order, which depends on the
// key set and not on insertion order.
func (h *Hash) Keys() []string { return h.e.HashKeys(h.hv) }

// All iterates over the entries in the engine's iteration order.
func (h *Hash) All() iter.Seq2[string, Proxy] {
	return func(yield func(string, Proxy) bool) {
		for _, k := range h.e.HashKeys(h.hv) {
			if !yield(k, h.Index(k)) {
				return
			}
		}
	}
}
