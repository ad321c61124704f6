package script

import (
	"errors"
	"strings"

	"github.com/feather-lang/hostbind/heap"
)

// subName resolves a sub name as written in source. Unqualified names are
// looked up in the current package and then in main, where host bindings
// are usually registered. It returns "" when no such sub exists.
func (in *interp) subName(name string) string {
	if strings.HasPrefix(name, "::") {
		name = "main" + name
	}
	if strings.Contains(name, "::") {
		if in.e.GetSub(name) != nil {
			return name
		}
		return ""
	}
	for _, full := range []string{in.pkg + "::" + name, "main::" + name} {
		if in.e.GetSub(full) != nil {
			return full
		}
	}
	return ""
}

// args evaluates call arguments in list context before anything is pushed.
func (in *interp) args(nodes []Node, sc *scope) ([]*heap.Cell, error) {
	var out []*heap.Cell
	for _, n := range nodes {
		vals, err := in.list(n, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

// results moves n results from the stack into a slice. They stay mortal in
// the current scope.
func (in *interp) results(base, n int) []*heap.Cell {
	out := make([]*heap.Cell, n)
	copy(out, in.e.Stack()[base:base+n])
	for i, c := range out {
		if c == nil {
			out[i] = in.undef()
		}
	}
	in.e.Truncate(base)
	return out
}

func (in *interp) call(n *Call, sc *scope, w want) ([]*heap.Cell, error) {
	if !strings.Contains(n.Name, "::") {
		if b, ok := builtins[n.Name]; ok {
			return b(in, n, sc, w)
		}
	}
	full := in.subName(n.Name)
	if full == "" {
		full = n.Name
		if !strings.Contains(full, "::") {
			full = in.pkg + "::" + full
		}
	}
	args, err := in.args(n.Args, sc)
	if err != nil {
		return nil, err
	}
	return in.callSub(full, args, n.Line, w)
}

func (in *interp) callSub(full string, args []*heap.Cell, line int, w want) ([]*heap.Cell, error) {
	e := in.e
	base := e.SP()
	e.PushMark()
	for _, a := range args {
		e.Push(a)
	}
	n, err := e.Call(full, w.flags())
	if err != nil {
		return nil, in.locate(err, line)
	}
	return in.results(base, n), nil
}

// universal methods are available on every class.
var universal = map[string]bool{"isa": true, "can": true, "DOES": true}

func (in *interp) method(n *MethodCall, sc *scope, w want) ([]*heap.Cell, error) {
	e := in.e
	var inv *heap.Cell
	if b, ok := n.Invocant.(*Bareword); ok {
		inv = in.str(b.Name)
	} else {
		c, err := in.scalar(n.Invocant, sc)
		if err != nil {
			return nil, err
		}
		inv = c
	}
	args, err := in.args(n.Args, sc)
	if err != nil {
		return nil, err
	}

	name := n.Method
	class := inv.PV()
	if inv.ROK() {
		class = e.ClassOf(inv)
	}

	var sub *heap.Sub
	switch {
	case strings.HasPrefix(name, "SUPER::"):
		name = strings.TrimPrefix(name, "SUPER::")
		for _, parent := range e.ISA(in.pkg) {
			if sub = e.ResolveMethod(parent, name); sub != nil {
				break
			}
		}
		if sub == nil {
			return nil, in.fail(n.Line, "Can't locate object method %q via package %q", name, in.pkg)
		}
	case strings.Contains(name, "::"):
		if sub = e.GetSub(name); sub == nil {
			return nil, in.fail(n.Line, "Undefined subroutine &%s called", name)
		}
	case universal[name] && class != "" && e.ResolveMethod(class, name) == nil:
		return in.universal(name, class, args), nil
	}

	base := e.SP()
	e.PushMark()
	e.Push(inv)
	for _, a := range args {
		e.Push(a)
	}
	var count int
	if sub != nil {
		count, err = e.CallSub(sub, w.flags())
	} else {
		count, err = e.CallMethod(name, w.flags())
	}
	if err != nil {
		return nil, in.locate(err, n.Line)
	}
	return in.results(base, count), nil
}

func (in *interp) universal(name string, class string, args []*heap.Cell) []*heap.Cell {
	e := in.e
	if len(args) == 0 {
		return []*heap.Cell{in.boolean(false)}
	}
	arg := args[0].PV()
	switch name {
	case "can":
		return []*heap.Cell{in.boolean(e.ResolveMethod(class, arg) != nil)}
	default:
		for _, c := range e.Linearize(class) {
			if c == arg {
				return []*heap.Cell{in.boolean(true)}
			}
		}
		return []*heap.Cell{in.boolean(false)}
	}
}

// evalBlock traps errors raised by body into $@.
func (in *interp) evalBlock(n *EvalBlock, sc *scope, w want) ([]*heap.Cell, error) {
	e := in.e
	base := e.SP()
	e.Enter()
	vals, err := in.child(n.Body, sc, true)
	var ret *returnSignal
	if errors.As(err, &ret) {
		vals, err = ret.vals, nil
	}
	e.Leave()
	e.Truncate(base)

	var lc *loopSignal
	if errors.As(err, &lc) {
		return nil, err
	}
	if err != nil {
		log.Debugf("eval trapped: %s", err.Error())
		e.SetString(e.ErrSV(), err.Error())
		if w == wantScalar {
			return []*heap.Cell{in.undef()}, nil
		}
		return nil, nil
	}
	e.SetString(e.ErrSV(), "")
	for i, v := range vals {
		vals[i] = in.mortal(v)
	}
	return vals, nil
}
