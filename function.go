package hostbind

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/feather-lang/hostbind/heap"
)

// Function is a Go function prepared for calls from the interpreter.
//
// Parameters are read from the stack according to their Go types:
//   - integer, float, string and bool parameters read scalars
//   - registered pointer types read blessed object references
//   - *Scalar shares the argument, *Reference requires a reference
//   - *Array and *Hash capture every remaining argument
//   - variadic parameters capture every remaining argument
//   - []T reads one array reference
//   - *heap.Cell borrows the stack slot unchanged
//
// Results are pushed back in order. A trailing error result, when non-nil,
// fails the call with its message.
type Function struct {
	fn        reflect.Value
	params    []Param
	variadic  bool
	hasErr    bool
	signature string
}

// NewFunction prepares fn for binding.
func NewFunction(fn any) (*Function, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected function, got %T", fn)
	}
	t := v.Type()
	f := &Function{fn: v, variadic: t.IsVariadic()}

	names := make([]string, 0, t.NumIn())
	for i := range t.NumIn() {
		var p Param
		if f.variadic && i == t.NumIn()-1 {
			elem, err := paramOf(t.In(i).Elem())
			if err != nil {
				return nil, fmt.Errorf("parameter %d: %w", i+1, err)
			}
			p = Param{Kind: KindVariadic, Type: t.In(i), Elem: &elem}
		} else {
			var err error
			if p, err = paramOf(t.In(i)); err != nil {
				return nil, fmt.Errorf("parameter %d: %w", i+1, err)
			}
		}
		if p.captures() && i != t.NumIn()-1 {
			return nil, fmt.Errorf("parameter %d: %s captures the remaining arguments and must come last", i+1, p)
		}
		f.params = append(f.params, p)
		names = append(names, p.String())
	}

	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		f.hasErr = true
	}
	f.signature = "(" + strings.Join(names, ", ") + ")"
	return f, nil
}

// Signature returns the parameter list, e.g. "(int, string)".
func (f *Function) Signature() string { return f.signature }

// Params returns the parameter descriptors.
func (f *Function) Params() []Param { return f.params }

// Matches reports whether the frame's arguments fit this function.
func (f *Function) Matches(frame *CallFrame) bool {
	return frame.compatible(f.params)
}

// call reads the arguments, invokes the function and pushes its results
// at the start of the frame. Argument errors name the called sub.
func (f *Function) call(name string, frame *CallFrame) (int, error) {
	args, done, err := frame.args(f.params)
	if err != nil {
		var ae *ArgumentError
		if errors.As(err, &ae) {
			ae.Name = name
			return 0, ae
		}
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	defer done()

	e := frame.e
	e.Truncate(frame.ax)

	var out []reflect.Value
	if f.variadic {
		out = f.fn.CallSlice(args)
	} else {
		out = f.fn.Call(args)
	}
	return f.pushResults(e, out)
}

// pushResults pushes the function's return values. Returned handles and
// cells are owned by the stack afterwards: a function that wants to keep a
// handle returns a Clone.
func (f *Function) pushResults(e *heap.Engine, out []reflect.Value) (int, error) {
	if f.hasErr {
		last := out[len(out)-1]
		if !last.IsNil() {
			return 0, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	p := pusher{e: e, owned: true}
	for _, v := range out {
		if v.Kind() == reflect.Interface && v.IsNil() {
			p.slot(e.NewMortal())
			continue
		}
		if err := p.push(v.Interface()); err != nil {
			return 0, err
		}
	}
	return p.n, nil
}
