package hostbind

import (
	"fmt"
	"iter"

	"github.com/feather-lang/hostbind/heap"
)

// Array owns one reference to an array cell.
type Array struct {
	e  *heap.Engine
	av *heap.Cell
}

// NewArray allocates an array holding copies of vals.
func NewArray(e *heap.Engine, vals ...any) (*Array, error) {
	a := &Array{e: e, av: e.NewArray()}
	if err := a.PushBack(vals...); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// ArrayFrom returns a handle sharing the array that h refers to. h may be
// an array reference, a proxy holding one, or an *Array.
func ArrayFrom(h Handle) (*Array, error) {
	e := h.Engine()
	c := handleCell(h)
	switch {
	case c != nil && c.Type() == heap.TypeArray:
		return &Array{e: e, av: e.Inc(c)}, nil
	case c != nil && c.ROK() && c.RV().Type() == heap.TypeArray:
		return &Array{e: e, av: e.Inc(c.RV())}, nil
	}
	return nil, fmt.Errorf("%w: cannot build an array from %s", ErrConversion, describe(c))
}

// AdoptArray takes over the caller's reference to an array cell.
func AdoptArray(e *heap.Engine, av *heap.Cell) (*Array, error) {
	if av == nil || av.Type() != heap.TypeArray {
		return nil, fmt.Errorf("%w: %s is not an array", ErrConversion, describe(av))
	}
	return &Array{e: e, av: av}, nil
}

func (a *Array) Cell() *heap.Cell { return a.av }
func (a *Array) Engine() *heap.Engine { return a.e }

// Close releases the handle's reference. Closing twice is a no-op.
func (a *Array) Close() {
	if a.av != nil {
		a.e.Dec(a.av)
		a.av = nil
	}
}

// Clone returns a new array with a copy of every element. Elements that are
// references share their referents with the original.
func (a *Array) Clone() *Array {
	out := &Array{e: a.e, av: a.e.NewArray()}
	for i := range a.e.ArrayLen(a.av) {
		el := a.e.ArrayFetch(a.av, i, false)
		a.e.ArrayPush(out.av, a.e.Copy(el))
	}
	return out
}

// Move transfers the cell to a new handle, leaving a with a fresh empty
// array.
func (a *Array) Move() *Array {
	moved := &Array{e: a.e, av: a.av}
	a.av = a.e.NewArray()
	return moved
}

// Release gives up ownership of the cell and returns it.
func (a *Array) Release() *heap.Cell {
	av := a.av
	a.av = a.e.NewArray()
	return av
}

// Reset releases the current cell and takes over the caller's reference to
// av.
func (a *Array) Reset(av *heap.Cell) {
	old := a.av
	if av == nil {
		av = a.e.NewArray()
	}
	a.av = av
	if old != av {
		a.e.Dec(old)
	}
}

// PushBack appends a copy of each value. Handles to containers are stored
// as references.
func (a *Array) PushBack(vals ...any) error {
	for _, v := range vals {
		c, err := newCell(a.e, v)
		if err != nil {
			return err
		}
		a.e.ArrayPush(a.av, c)
	}
	return nil
}

// Index returns a proxy for element i. Negative indexes count from the end
// when the element is accessed; one before the first element reads as
// missing and cannot be assigned.
func (a *Array) Index(i int) Proxy {
	return Proxy{e: a.e, container: a.av, index: i}
}

func (a *Array) Len() int { return a.e.ArrayLen(a.av) }

// Clear removes every element.
func (a *Array) Clear() { a.e.ArrayClear(a.av) }

// All iterates over the elements in order.
func (a *Array) All() iter.Seq2[int, Proxy] {
	return func(yield func(int, Proxy) bool) {
		for i := 0; i < a.e.ArrayLen(a.av); i++ {
			if !yield(i, a.Index(i)) {
				return
			}
		}
	}
}
