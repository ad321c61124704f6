package hostbind

import (
	"fmt"
	"reflect"

	"github.com/feather-lang/hostbind/heap"
)

var voidType = reflect.TypeFor[struct{}]()

// Call invokes the named sub with args and converts its result to T.
//
// The sub runs in scalar context, except for T = *Array, which collects the
// whole result list. Errors raised by the sub are returned as *ScriptError.
// Results are converted loosely: an integer result may be read as a string
// and the other way around. Use struct{} to ignore the result.
func Call[T any](i *Interp, name string, args ...any) (T, error) {
	return invoke[T](i, name, nil, args, func(flags heap.CallFlags) (int, error) {
		return i.e.Call(name, flags)
	})
}

// CallMethod invokes method on invocant, a bound object or a class name,
// searching base classes.
func CallMethod[T any](i *Interp, invocant any, method string, args ...any) (T, error) {
	return invoke[T](i, method, invocant, args, func(flags heap.CallFlags) (int, error) {
		return i.e.CallMethod(method, flags)
	})
}

// Call invokes the named sub and discards its results.
func (i *Interp) Call(name string, args ...any) error {
	_, err := Call[struct{}](i, name, args...)
	return err
}

func invoke[T any](i *Interp, op string, invocant any, args []any, call func(heap.CallFlags) (int, error)) (T, error) {
	var zero T
	e := i.e
	t := reflect.TypeFor[T]()

	e.Enter()
	defer e.Leave()

	base := e.SP()
	e.PushMark()
	if invocant != nil {
		args = append([]any{invocant}, args...)
	}
	if _, err := Push(e, args...); err != nil {
		e.PopMark()
		e.Truncate(base)
		return zero, fmt.Errorf("%s: %w", op, err)
	}

	flags := heap.CallScalar | heap.CallEval
	switch t {
	case arrayType:
		flags = heap.CallList | heap.CallEval
	case voidType:
		flags = heap.CallDiscard | heap.CallEval
	}
	n, err := call(flags)
	defer e.Truncate(base)
	if err != nil {
		return zero, &ScriptError{Op: op, Msg: err.Error()}
	}
	if errsv := e.ErrSV(); errsv.True() {
		return zero, &ScriptError{Op: op, Msg: errsv.PV()}
	}

	switch t {
	case voidType:
		return zero, nil
	case arrayType:
		a := &Array{e: e, av: e.NewArray()}
		for j := range n {
			e.ArrayPush(a.av, e.Copy(e.ST(base+j)))
		}
		return any(a).(T), nil
	}

	v, err := valueAs(e, e.ST(base), t)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	out, _ := v.Interface().(T)
	return out, nil
}

// As converts the value behind h to T with the loose rules used for call
// results. Array and hash results share the container; every handle
// result must be closed.
func As[T any](h Handle) (T, error) {
	var zero T
	v, err := valueAs(h.Engine(), handleCell(h), reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	out, _ := v.Interface().(T)
	return out, nil
}

func valueAs(e *heap.Engine, c *heap.Cell, t reflect.Type) (reflect.Value, error) {
	if c == nil {
		c = e.NewMortal()
	}
	borrowed := &Scalar{e: e, sv: c}
	switch t {
	case scalarType:
		return reflect.ValueOf(&Scalar{e: e, sv: e.Copy(c)}), nil
	case arrayType:
		a, err := ArrayFrom(borrowed)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(a), nil
	case hashType:
		h, err := HashFrom(borrowed)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(h), nil
	}

	p, err := paramOf(t)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	v, _, err := p.get(e, c, false)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %s is not %s: %w", ErrConversion, describe(c), p.expected(e, err), err)
	}
	return v, nil
}
