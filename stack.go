package hostbind

import (
	"fmt"
	"reflect"

	"github.com/feather-lang/hostbind/heap"
)

// -----------------------------------------------------------------------------
// Read path
// -----------------------------------------------------------------------------

// CallFrame is the view of one native sub invocation's arguments. It is
// only valid during that invocation.
type CallFrame struct {
	e      *heap.Engine
	ax     int
	items  int
	strict bool
}

func newCallFrame(e *heap.Engine, ax, items int) *CallFrame {
	return &CallFrame{e: e, ax: ax, items: items, strict: optionsOf(e).StrictNumeric}
}

// Engine returns the engine the call runs on.
func (f *CallFrame) Engine() *heap.Engine { return f.e }

// Len returns the argument count.
func (f *CallFrame) Len() int { return f.items }

// Arg returns argument i (0-based), borrowed from the stack.
func (f *CallFrame) Arg(i int) *heap.Cell {
	if i < 0 || i >= f.items {
		return nil
	}
	return f.e.ST(f.ax + i)
}

// compatible reports whether the arguments can be read as params, without
// side effects.
func (f *CallFrame) compatible(params []Param) bool {
	fixed := len(params)
	var capture *Param
	if fixed > 0 && params[fixed-1].captures() {
		fixed--
		capture = &params[fixed]
	}
	if capture == nil && f.items != fixed || f.items < fixed {
		return false
	}
	for i := range fixed {
		if !params[i].check(f.e, f.Arg(i), f.strict) {
			return false
		}
	}
	if capture == nil {
		return true
	}
	switch capture.Kind {
	case KindHash:
		return (f.items-fixed)%2 == 0
	case KindVariadic:
		for i := fixed; i < f.items; i++ {
			if !capture.Elem.check(f.e, f.Arg(i), f.strict) {
				return false
			}
		}
	}
	return true
}

// args reads every argument as params. The returned func closes the
// handles created for the call and must run once the call is done.
func (f *CallFrame) args(params []Param) ([]reflect.Value, func(), error) {
	var closers []func()
	done := func() { runAll(closers) }
	fail := func(err error) ([]reflect.Value, func(), error) {
		done()
		return nil, nil, err
	}

	fixed := len(params)
	var capture *Param
	if fixed > 0 && params[fixed-1].captures() {
		fixed--
		capture = &params[fixed]
	}
	switch {
	case capture == nil && f.items != fixed:
		return fail(fmt.Errorf("%w: wrong number of arguments: expected %d, got %d", ErrTypeMismatch, fixed, f.items))
	case f.items < fixed:
		return fail(fmt.Errorf("%w: wrong number of arguments: expected at least %d, got %d", ErrTypeMismatch, fixed, f.items))
	}

	out := make([]reflect.Value, 0, len(params))
	for i := range fixed {
		v, closer, err := params[i].get(f.e, f.Arg(i), f.strict)
		if err != nil {
			return fail(&ArgumentError{Pos: i + 1, Expected: params[i].expected(f.e, err), Err: err})
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		out = append(out, v)
	}
	if capture == nil {
		return out, done, nil
	}

	switch capture.Kind {
	case KindArray:
		a := &Array{e: f.e, av: f.e.NewArray()}
		for i := fixed; i < f.items; i++ {
			f.e.ArrayPush(a.av, f.e.Copy(f.Arg(i)))
		}
		closers = append(closers, a.Close)
		out = append(out, reflect.ValueOf(a))

	case KindHash:
		if (f.items-fixed)%2 != 0 {
			return fail(&ArgumentError{Pos: f.items, Expected: "an even number of key/value arguments", Err: ErrTypeMismatch})
		}
		h := NewHash(f.e)
		for i := fixed; i < f.items; i += 2 {
			f.e.HashStore(h.hv, f.Arg(i).PV(), f.e.Copy(f.Arg(i+1)))
		}
		closers = append(closers, h.Close)
		out = append(out, reflect.ValueOf(h))

	case KindVariadic:
		n := f.items - fixed
		rest := reflect.MakeSlice(capture.Type, n, n)
		for i := range n {
			v, closer, err := capture.Elem.get(f.e, f.Arg(fixed+i), f.strict)
			if err != nil {
				return fail(&ArgumentError{Pos: fixed + i + 1, Expected: capture.Elem.expected(f.e, err), Err: err})
			}
			if closer != nil {
				closers = append(closers, closer)
			}
			rest.Index(i).Set(v)
		}
		out = append(out, rest)
	}
	return out, done, nil
}

// -----------------------------------------------------------------------------
// Push path
// -----------------------------------------------------------------------------

// Push appends Go values to the engine stack and returns how many slots
// were pushed. Arrays and hashes are flattened, element by element or as
// key/value pairs; references, maps and pointers take one slot each.
// Pushed values are mortal: they live until the current scope is left.
func Push(e *heap.Engine, vals ...any) (int, error) {
	p := pusher{e: e}
	for _, v := range vals {
		if err := p.push(v); err != nil {
			return p.n, err
		}
	}
	return p.n, nil
}

type pusher struct {
	e *heap.Engine
	n int

	// owned is set on the return path of a bound function: returned handles
	// and cells belong to the pusher, which hands their references to the
	// stack as mortals and closes what is left.
	owned bool
}

func (p *pusher) slot(c *heap.Cell) {
	p.e.Push(c)
	p.n++
}

// shared pushes a cell that someone else owns, adding a mortal reference.
func (p *pusher) shared(c *heap.Cell) {
	if c == nil {
		p.slot(p.e.NewMortal())
		return
	}
	p.slot(p.e.Mortal(p.e.Inc(c)))
}

// scalar pushes the cell of a scalar or reference handle. On the return
// path the handle's own reference moves to the stack and the handle is left
// closed.
func (p *pusher) scalar(s *Scalar) {
	if s == nil || s.sv == nil {
		p.slot(p.e.NewMortal())
		return
	}
	if !p.owned {
		p.shared(s.sv)
		return
	}
	sv := s.sv
	s.sv = nil
	p.slot(p.e.Mortal(sv))
}

func (p *pusher) push(v any) error {
	e := p.e
	switch v := v.(type) {
	case *heap.Cell:
		switch {
		case v == nil:
			p.slot(e.NewMortal())
		case p.owned:
			p.slot(e.Mortal(v))
		default:
			p.slot(v)
		}
	case *Scalar:
		p.scalar(v)
	case *Reference:
		if v == nil {
			p.scalar(nil)
		} else {
			p.scalar(&v.Scalar)
		}
	case Proxy:
		p.shared(v.fetch(false))
	case *Array:
		if v == nil || v.av == nil {
			return nil
		}
		e.Extend(e.ArrayLen(v.av))
		for i := range e.ArrayLen(v.av) {
			p.shared(e.ArrayFetch(v.av, i, false))
		}
		if p.owned {
			v.Close()
		}
	case *Hash:
		if v == nil || v.hv == nil {
			return nil
		}
		for _, k := range e.HashKeys(v.hv) {
			p.slot(e.Mortal(e.NewString(k)))
			p.shared(e.HashFetch(v.hv, k, false))
		}
		if p.owned {
			v.Close()
		}
	case string, []byte:
		c, _ := newCell(e, v)
		p.slot(e.Mortal(c))
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := range rv.Len() {
				if err := p.push(rv.Index(i).Interface()); err != nil {
					return err
				}
			}
			return nil
		}
		c, err := newCell(e, v)
		if err != nil {
			return err
		}
		p.slot(e.Mortal(c))
	}
	return nil
}
