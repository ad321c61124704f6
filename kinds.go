package hostbind

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/feather-lang/hostbind/heap"
)

// Kind classifies how a parameter is read from the stack.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindUint
	KindFloat
	KindString
	KindBool
	KindScalar    // *Scalar, shares the argument cell
	KindReference // *Reference
	KindArray     // *Array, captures every remaining argument
	KindHash      // *Hash, captures every remaining argument as key/value pairs
	KindVariadic  // ...T, captures every remaining argument
	KindSlice     // []T, read from one array reference
	KindPointer   // registered Go pointer type
	KindNullable  // Nullable[T]
	KindCell      // *heap.Cell, borrows the stack slot
	KindAny       // any, receives a native Go copy
)

var (
	scalarType    = reflect.TypeFor[*Scalar]()
	referenceType = reflect.TypeFor[*Reference]()
	arrayType     = reflect.TypeFor[*Array]()
	hashType      = reflect.TypeFor[*Hash]()
	cellType      = reflect.TypeFor[*heap.Cell]()
	errorType     = reflect.TypeFor[error]()
)

// Param describes one parameter of a bound function.
type Param struct {
	Kind Kind
	Type reflect.Type
	// Elem describes the element of a variadic, slice or nullable parameter.
	Elem *Param
}

func paramOf(t reflect.Type) (Param, error) {
	switch t {
	case scalarType:
		return Param{Kind: KindScalar, Type: t}, nil
	case referenceType:
		return Param{Kind: KindReference, Type: t}, nil
	case arrayType:
		return Param{Kind: KindArray, Type: t}, nil
	case hashType:
		return Param{Kind: KindHash, Type: t}, nil
	case cellType:
		return Param{Kind: KindCell, Type: t}, nil
	}
	if t.Implements(nullableType) {
		elem, err := paramOf(reflect.Zero(t).Interface().(nullable).nullableElem())
		if err != nil {
			return Param{}, err
		}
		return Param{Kind: KindNullable, Type: t, Elem: &elem}, nil
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Param{Kind: KindInt, Type: t}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Param{Kind: KindUint, Type: t}, nil
	case reflect.Float32, reflect.Float64:
		return Param{Kind: KindFloat, Type: t}, nil
	case reflect.String:
		return Param{Kind: KindString, Type: t}, nil
	case reflect.Bool:
		return Param{Kind: KindBool, Type: t}, nil
	case reflect.Pointer:
		return Param{Kind: KindPointer, Type: t}, nil
	case reflect.Slice:
		elem, err := paramOf(t.Elem())
		if err != nil {
			return Param{}, err
		}
		if elem.captures() {
			return Param{}, fmt.Errorf("unsupported parameter type %s", t)
		}
		return Param{Kind: KindSlice, Type: t, Elem: &elem}, nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return Param{Kind: KindAny, Type: t}, nil
		}
	}
	return Param{}, fmt.Errorf("unsupported parameter type %s", t)
}

// captures reports whether the parameter consumes every remaining argument.
func (p Param) captures() bool {
	return p.Kind == KindArray || p.Kind == KindHash || p.Kind == KindVariadic
}

// String returns the name used in signatures.
func (p Param) String() string {
	switch p.Kind {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindScalar:
		return "scalar"
	case KindReference:
		return "reference"
	case KindArray:
		return "array"
	case KindHash:
		return "hash"
	case KindVariadic:
		return p.Elem.String() + "..."
	case KindSlice:
		return "[]" + p.Elem.String()
	case KindNullable:
		return "?" + p.Elem.String()
	case KindCell:
		return "sv"
	case KindAny:
		return "any"
	}
	return p.Type.String()
}

func (p Param) expected(e *heap.Engine, err error) string {
	switch p.Kind {
	case KindInt, KindUint:
		return "an integer"
	case KindFloat:
		return "a floating point"
	case KindString:
		return "a string"
	case KindBool:
		return "a boolean"
	case KindScalar:
		return "a scalar"
	case KindReference:
		return "a reference"
	case KindArray, KindSlice:
		return "a reference to an array"
	case KindHash:
		return "a reference to a hash"
	case KindVariadic:
		return p.Elem.expected(e, err)
	case KindNullable:
		return p.Elem.expected(e, err) + " or undef"
	case KindPointer:
		if errors.Is(err, ErrUnregisteredType) {
			return "a reference to an unregistered type (method unusable)"
		}
		class, _ := TypeMapOf(e).Class(p.Type)
		return fmt.Sprintf("a reference to an object of type '%s'", class)
	}
	return p.String()
}

// check reports whether c can be read as p. It has no side effects.
// In strict mode integers need the integer flag, floats the float flag and
// strings the string flag.
func (p Param) check(e *heap.Engine, c *heap.Cell, strict bool) bool {
	if c == nil {
		return false
	}
	switch p.Kind {
	case KindInt, KindUint:
		return c.IOK() || !strict && numeric(c)
	case KindFloat:
		return c.NOK() || !strict && numeric(c)
	case KindString:
		return c.POK() || !strict && c.OK() && !c.ROK() && c.Type() < heap.TypeArray
	case KindBool, KindScalar:
		return c.Type() < heap.TypeArray
	case KindReference:
		return c.ROK()
	case KindSlice:
		av := c.RV()
		if av == nil || av.Type() != heap.TypeArray {
			return false
		}
		for i := range e.ArrayLen(av) {
			el := e.ArrayFetch(av, i, false)
			if el == nil {
				if !p.Elem.acceptsUndef() {
					return false
				}
				continue
			}
			if !p.Elem.check(e, el, strict) {
				return false
			}
		}
		return true
	case KindPointer:
		_, err := readPointer(e, c, p.Type)
		return err == nil
	case KindNullable:
		return !c.True() || p.Elem.check(e, c, strict)
	case KindCell, KindAny:
		return true
	}
	return false
}

// get reads c as p. Handles created for the value are closed by the
// returned func.
func (p Param) get(e *heap.Engine, c *heap.Cell, strict bool) (reflect.Value, func(), error) {
	switch p.Kind {
	case KindPointer:
		v, err := readPointer(e, c, p.Type)
		return v, nil, err

	case KindNullable:
		out := reflect.New(p.Type).Elem()
		if c != nil && !c.True() {
			return out, nil, nil
		}
		v, done, err := p.Elem.get(e, c, strict)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		out.Field(0).Set(v)
		out.Field(1).SetBool(true)
		return out, done, nil
	}

	if !p.check(e, c, strict) {
		return reflect.Value{}, nil, ErrTypeMismatch
	}

	switch p.Kind {
	case KindInt:
		v := reflect.New(p.Type).Elem()
		v.SetInt(c.IV())
		return v, nil, nil

	case KindUint:
		v := reflect.New(p.Type).Elem()
		v.SetUint(c.UV())
		return v, nil, nil

	case KindFloat:
		v := reflect.New(p.Type).Elem()
		v.SetFloat(c.NV())
		return v, nil, nil

	case KindString:
		v := reflect.New(p.Type).Elem()
		v.SetString(c.PV())
		return v, nil, nil

	case KindBool:
		v := reflect.New(p.Type).Elem()
		v.SetBool(c.True())
		return v, nil, nil

	case KindScalar:
		sv := c
		// plain scalar references are dereferenced so the callee can
		// assign through them
		if rv := c.RV(); rv != nil && rv.Type() < heap.TypeArray && rv.Stash() == "" && rv.Ptr() == nil {
			sv = rv
		}
		s := &Scalar{e: e, sv: e.Inc(sv)}
		return reflect.ValueOf(s), s.Close, nil

	case KindReference:
		r := &Reference{Scalar{e: e, sv: e.Inc(c)}}
		return reflect.ValueOf(r), r.Close, nil

	case KindSlice:
		av := c.RV()
		n := e.ArrayLen(av)
		out := reflect.MakeSlice(p.Type, n, n)
		var closers []func()
		for i := range n {
			v, done, err := p.Elem.get(e, e.ArrayFetch(av, i, true), strict)
			if err != nil {
				runAll(closers)
				return reflect.Value{}, nil, err
			}
			out.Index(i).Set(v)
			if done != nil {
				closers = append(closers, done)
			}
		}
		return out, func() { runAll(closers) }, nil

	case KindCell:
		return reflect.ValueOf(c), nil, nil

	case KindAny:
		nv, err := nativeValue(e, c, 0)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		if nv == nil {
			return reflect.Zero(p.Type), nil, nil
		}
		return reflect.ValueOf(nv), nil, nil
	}
	return reflect.Value{}, nil, fmt.Errorf("%w: %s cannot be read from a single argument", ErrTypeMismatch, p)
}

// numeric reports whether a scalar reads as a number without loss of
// meaning.
func numeric(c *heap.Cell) bool {
	switch {
	case c.IOK(), c.NOK():
		return true
	case c.POK():
		_, err := strconv.ParseFloat(strings.TrimSpace(c.PV()), 64)
		return err == nil
	}
	return false
}

// acceptsUndef reports whether an undefined value passes check.
func (p Param) acceptsUndef() bool {
	switch p.Kind {
	case KindBool, KindScalar, KindNullable, KindAny, KindCell:
		return true
	}
	return false
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
