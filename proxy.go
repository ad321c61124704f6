package hostbind

import (
	"fmt"

	"github.com/feather-lang/hostbind/heap"
)

// Proxy addresses one element of an array or hash. It holds no reference
// of its own and is valid while the container is alive.
//
// Reading through a proxy either copies the element into a Go value (Int,
// Float, String, Bool) or returns a new handle that shares the element
// (Scalar, Reference, Array, Hash). Set assigns in place.
type Proxy struct {
	e         *heap.Engine
	container *heap.Cell
	index     int
	key       string
	keyed     bool
}

func (p Proxy) fetch(lval bool) *heap.Cell {
	if p.container == nil {
		return nil
	}
	if p.keyed {
		return p.e.HashFetch(p.container, p.key, lval)
	}
	return p.e.ArrayFetch(p.container, p.index, lval)
}

// Cell returns the element, creating it when missing. It is nil for a
// negative index before the first element.
func (p Proxy) Cell() *heap.Cell { return p.fetch(true) }
func (p Proxy) Engine() *heap.Engine { return p.e }

// Exists reports whether the element is present.
func (p Proxy) Exists() bool { return p.fetch(false) != nil }

// IsNull reports whether the element is missing or undefined.
func (p Proxy) IsNull() bool {
	c := p.fetch(false)
	return c == nil || !c.OK()
}

func (p Proxy) Int() int64 {
	if c := p.fetch(false); c != nil {
		return c.IV()
	}
	return 0
}

func (p Proxy) Float() float64 {
	if c := p.fetch(false); c != nil {
		return c.NV()
	}
	return 0
}

func (p Proxy) String() string {
	if c := p.fetch(false); c != nil {
		return c.PV()
	}
	return ""
}

func (p Proxy) Bool() bool {
	if c := p.fetch(false); c != nil {
		return c.True()
	}
	return false
}

// Scalar returns a handle sharing the element cell, creating it if needed.
func (p Proxy) Scalar() *Scalar {
	c := p.fetch(true)
	if c == nil {
		return Undef(p.e)
	}
	return &Scalar{e: p.e, sv: p.e.Inc(c)}
}

// Reference returns a handle sharing the element, which must hold a
// reference.
func (p Proxy) Reference() (*Reference, error) {
	c := p.fetch(false)
	if c == nil || !c.ROK() {
		return nil, fmt.Errorf("%w: cannot build a reference from %s", ErrConversion, describe(c))
	}
	return &Reference{Scalar{e: p.e, sv: p.e.Inc(c)}}, nil
}

// Array returns a handle to the array the element refers to.
func (p Proxy) Array() (*Array, error) { return ArrayFrom(p) }

// Hash returns a handle to the hash the element refers to.
func (p Proxy) Hash() (*Hash, error) { return HashFrom(p) }

// Set assigns v to the element in place, creating it when missing.
func (p Proxy) Set(v any) error {
	dst := p.fetch(true)
	if dst == nil {
		return fmt.Errorf("%w: modification of non-creatable array value attempted, subscript %d", ErrConversion, p.index)
	}
	return setCell(p.e, dst, v)
}
