package script

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/feather-lang/hostbind/heap"
)

type builtin func(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error)

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"print":   biPrint,
		"say":     biPrint,
		"warn":    biWarn,
		"die":     biDie,
		"return":  biReturn,
		"push":    biPush,
		"unshift": biPush,
		"pop":     biShift,
		"shift":   biShift,
		"scalar":  biScalar,
		"defined": biDefined,
		"undef":   biUndef,
		"ref":     biRef,
		"bless":   biBless,
		"exists":  biExists,
		"delete":  biDelete,
		"keys":    biKeys,
		"values":  biKeys,
		"join":    biJoin,
		"reverse": biReverse,
		"sort":    biSort,
		"sprintf": biSprintf,
		"do":      biDo,
		"eval":    biEvalString,
		"lc":      biString,
		"uc":      biString,
		"length":  biString,
		"chr":     biString,
		"ord":     biString,
		"int":     biNumeric,
		"abs":     biNumeric,
	}
}

func one(c *heap.Cell) []*heap.Cell { return []*heap.Cell{c} }

// topic returns the single argument of a named unary op, or $_.
func (in *interp) topic(c *Call, sc *scope) (*heap.Cell, error) {
	if len(c.Args) == 0 {
		return in.scalarVar("_", sc), nil
	}
	return in.scalar(c.Args[0], sc)
}

func biPrint(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	out := in.ev.Out
	args := c.Args
	if len(args) > 0 {
		if b, ok := args[0].(*Bareword); ok && (b.Name == "STDERR" || b.Name == "STDOUT") {
			if b.Name == "STDERR" {
				out = in.ev.Err
			}
			args = args[1:]
		}
	}
	var vals []*heap.Cell
	if len(args) == 0 {
		vals = one(in.scalarVar("_", sc))
	} else {
		var err error
		if vals, err = in.args(args, sc); err != nil {
			return nil, err
		}
	}
	var b strings.Builder
	for _, v := range vals {
		b.WriteString(v.PV())
	}
	if c.Name == "say" {
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(out, b.String()); err != nil {
		return nil, in.fail(c.Line, "print failed: %v", err)
	}
	return one(in.integer(1)), nil
}

func (in *interp) message(c *Call, sc *scope, def string) (string, error) {
	vals, err := in.args(c.Args, sc)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, v := range vals {
		b.WriteString(v.PV())
	}
	msg := b.String()
	if msg == "" {
		msg = def
	}
	if !strings.HasSuffix(msg, "\n") {
		msg += in.where(c.Line)
	}
	return msg, nil
}

func biDie(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	msg, err := in.message(c, sc, "Died")
	if err != nil {
		return nil, err
	}
	return nil, &heap.Croak{Msg: msg}
}

func biWarn(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	msg, err := in.message(c, sc, "Warning: something's wrong")
	if err != nil {
		return nil, err
	}
	log.Warning(strings.TrimSuffix(msg, "\n"))
	io.WriteString(in.ev.Err, msg)
	return one(in.integer(1)), nil
}

func biReturn(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	vals, err := in.args(c.Args, sc)
	if err != nil {
		return nil, err
	}
	return nil, &returnSignal{vals: in.copies(vals)}
}

func biPush(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	e := in.e
	if len(c.Args) == 0 {
		return nil, in.fail(c.Line, "Not enough arguments for %s", c.Name)
	}
	av, err := in.arrayOf(c.Args[0], sc)
	if err != nil {
		return nil, err
	}
	vals, err := in.args(c.Args[1:], sc)
	if err != nil {
		return nil, err
	}
	if c.Name == "unshift" {
		old := make([]*heap.Cell, 0, e.ArrayLen(av))
		for e.ArrayLen(av) > 0 {
			old = append(old, e.ArrayShift(av))
		}
		for _, v := range vals {
			e.ArrayPush(av, e.Copy(v))
		}
		for _, v := range old {
			e.ArrayPush(av, v)
		}
	} else {
		for _, v := range vals {
			e.ArrayPush(av, e.Copy(v))
		}
	}
	return one(in.integer(int64(e.ArrayLen(av)))), nil
}

func biShift(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	e := in.e
	var av *heap.Cell
	if len(c.Args) == 0 {
		if in.argv != nil {
			av = in.argv
		} else {
			av = e.GetArray("main::ARGV", true)
		}
	} else {
		var err error
		if av, err = in.arrayOf(c.Args[0], sc); err != nil {
			return nil, err
		}
	}
	var el *heap.Cell
	if c.Name == "pop" {
		el = e.ArrayPop(av)
	} else {
		el = e.ArrayShift(av)
	}
	if el == nil {
		return one(in.undef()), nil
	}
	return one(in.mortal(el)), nil
}

func biScalar(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	if len(c.Args) != 1 {
		return nil, in.fail(c.Line, "scalar takes exactly one argument")
	}
	v, err := in.scalar(c.Args[0], sc)
	if err != nil {
		return nil, err
	}
	return one(v), nil
}

func biDefined(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	if len(c.Args) == 1 {
		switch x := c.Args[0].(type) {
		case *ArrayVar:
			return one(in.boolean(in.e.ArrayLen(in.arrayVar(x.Name, sc)) > 0)), nil
		case *HashVar:
			return one(in.boolean(in.e.HashLen(in.hashVar(x.Name, sc)) > 0)), nil
		case *Bareword:
			return one(in.boolean(in.subName(x.Name) != "")), nil
		}
	}
	v, err := in.topic(c, sc)
	if err != nil {
		return nil, err
	}
	return one(in.boolean(v.OK())), nil
}

func biUndef(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	e := in.e
	if len(c.Args) == 0 {
		return one(in.undef()), nil
	}
	switch x := c.Args[0].(type) {
	case *ArrayVar:
		e.ArrayClear(in.arrayVar(x.Name, sc))
	case *HashVar:
		e.HashClear(in.hashVar(x.Name, sc))
	case *Deref:
		switch x.Sigil {
		case '@':
			av, err := in.arrayOf(x, sc)
			if err != nil {
				return nil, err
			}
			e.ArrayClear(av)
		case '%':
			hv, err := in.hashOf(x, sc)
			if err != nil {
				return nil, err
			}
			e.HashClear(hv)
		default:
			v, err := in.lvalue(x, sc)
			if err != nil {
				return nil, err
			}
			e.SetUndef(v)
		}
	default:
		v, err := in.lvalue(x, sc)
		if err != nil {
			return nil, err
		}
		e.SetUndef(v)
	}
	return one(in.undef()), nil
}

// refType names what a reference points at, or returns "" for a plain
// value.
func refType(e *heap.Engine, v *heap.Cell) string {
	if !v.ROK() {
		return ""
	}
	if class := e.ClassOf(v); class != "" {
		return class
	}
	switch rv := v.RV(); {
	case rv.Type() == heap.TypeArray:
		return "ARRAY"
	case rv.Type() == heap.TypeHash:
		return "HASH"
	case rv.ROK():
		return "REF"
	}
	return "SCALAR"
}

func biRef(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	v, err := in.topic(c, sc)
	if err != nil {
		return nil, err
	}
	return one(in.str(refType(in.e, v))), nil
}

func biBless(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	vals, err := in.args(c.Args, sc)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, in.fail(c.Line, "Not enough arguments for bless")
	}
	class := in.pkg
	if len(vals) > 1 {
		class = vals[1].PV()
		if vals[1].ROK() {
			class = in.e.ClassOf(vals[1])
		}
	}
	if err := in.e.Bless(vals[0], class); err != nil {
		return nil, in.fail(c.Line, "Can't bless non-reference value")
	}
	return one(vals[0]), nil
}

func (in *interp) elemArg(c *Call) (*Elem, error) {
	if len(c.Args) == 1 {
		if el, ok := c.Args[0].(*Elem); ok {
			if _, list := el.Base.(*ListExpr); !list {
				return el, nil
			}
		}
	}
	return nil, in.fail(c.Line, "%s argument is not a HASH or ARRAY element", c.Name)
}

func biExists(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	el, err := in.elemArg(c)
	if err != nil {
		if len(c.Args) == 1 {
			if b, ok := c.Args[0].(*Bareword); ok {
				return one(in.boolean(in.subName(b.Name) != "")), nil
			}
		}
		return nil, err
	}
	cont, err := in.container(el, sc)
	if err != nil {
		return nil, err
	}
	idx, err := in.scalar(el.Index, sc)
	if err != nil {
		return nil, err
	}
	if el.Keyed {
		return one(in.boolean(in.e.HashExists(cont, idx.PV()))), nil
	}
	return one(in.boolean(in.e.ArrayFetch(cont, int(idx.IV()), false) != nil)), nil
}

func biDelete(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	e := in.e
	el, err := in.elemArg(c)
	if err != nil {
		return nil, err
	}
	cont, err := in.container(el, sc)
	if err != nil {
		return nil, err
	}
	idx, err := in.scalar(el.Index, sc)
	if err != nil {
		return nil, err
	}
	if el.Keyed {
		old := e.HashFetch(cont, idx.PV(), false)
		if old == nil {
			return one(in.undef()), nil
		}
		out := in.mortal(e.Copy(old))
		e.HashDelete(cont, idx.PV())
		return one(out), nil
	}
	old := e.ArrayFetch(cont, int(idx.IV()), false)
	if old == nil {
		return one(in.undef()), nil
	}
	out := in.mortal(e.Copy(old))
	e.SetUndef(old)
	return one(out), nil
}

func biKeys(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	e := in.e
	if len(c.Args) != 1 {
		return nil, in.fail(c.Line, "%s takes exactly one argument", c.Name)
	}
	arg := c.Args[0]
	if av, ok := arg.(*ArrayVar); ok || isArrayDeref(arg) {
		var cont *heap.Cell
		if ok {
			cont = in.arrayVar(av.Name, sc)
		} else {
			var err error
			if cont, err = in.arrayOf(arg, sc); err != nil {
				return nil, err
			}
		}
		n := e.ArrayLen(cont)
		if w == wantScalar {
			return one(in.integer(int64(n))), nil
		}
		if c.Name == "values" {
			return in.elements(cont), nil
		}
		out := make([]*heap.Cell, n)
		for i := range n {
			out[i] = in.integer(int64(i))
		}
		return out, nil
	}

	var hv *heap.Cell
	if h, ok := arg.(*HashVar); ok {
		hv = in.hashVar(h.Name, sc)
	} else {
		var err error
		if hv, err = in.hashOf(arg, sc); err != nil {
			return nil, err
		}
	}
	keys := e.HashKeys(hv)
	if w == wantScalar {
		return one(in.integer(int64(len(keys)))), nil
	}
	out := make([]*heap.Cell, len(keys))
	for i, k := range keys {
		if c.Name == "values" {
			out[i] = e.HashFetch(hv, k, true)
		} else {
			out[i] = in.str(k)
		}
	}
	return out, nil
}

func isArrayDeref(n Node) bool {
	d, ok := n.(*Deref)
	return ok && d.Sigil == '@'
}

func biJoin(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	vals, err := in.args(c.Args, sc)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, in.fail(c.Line, "Not enough arguments for join")
	}
	parts := make([]string, len(vals)-1)
	for i, v := range vals[1:] {
		parts[i] = v.PV()
	}
	return one(in.str(strings.Join(parts, vals[0].PV()))), nil
}

func biReverse(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	vals, err := in.args(c.Args, sc)
	if err != nil {
		return nil, err
	}
	if w == wantScalar {
		var b strings.Builder
		for _, v := range vals {
			b.WriteString(v.PV())
		}
		r := []rune(b.String())
		slices.Reverse(r)
		return one(in.str(string(r))), nil
	}
	slices.Reverse(vals)
	return vals, nil
}

func biSort(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	vals, err := in.args(c.Args, sc)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(vals, func(a, b *heap.Cell) int { return strings.Compare(a.PV(), b.PV()) })
	if w == wantScalar {
		return one(in.integer(int64(len(vals)))), nil
	}
	return vals, nil
}

// biSprintf maps each conversion onto the fmt verb of the same name,
// converting the argument first so that %d of a string works.
func biSprintf(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	vals, err := in.args(c.Args, sc)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, in.fail(c.Line, "Not enough arguments for sprintf")
	}
	format, args := vals[0].PV(), vals[1:]
	var b strings.Builder
	next := func() *heap.Cell {
		if len(args) == 0 {
			return in.undef()
		}
		a := args[0]
		args = args[1:]
		return a
	}
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(format) && strings.IndexByte("-+ #0123456789.", format[j]) >= 0 {
			j++
		}
		if j >= len(format) {
			b.WriteString(format[i:])
			break
		}
		spec, verb := format[i:j], format[j]
		switch verb {
		case '%':
			b.WriteByte('%')
		case 'd', 'i':
			fmt.Fprintf(&b, spec+"d", next().IV())
		case 'u':
			fmt.Fprintf(&b, spec+"d", next().UV())
		case 'x', 'X', 'o', 'b':
			fmt.Fprintf(&b, spec+string(verb), next().IV())
		case 'e', 'E', 'f', 'F', 'g', 'G':
			fmt.Fprintf(&b, spec+string(verb), next().NV())
		case 'c':
			fmt.Fprintf(&b, spec+"c", rune(next().IV()))
		case 's':
			fmt.Fprintf(&b, spec+"s", next().PV())
		default:
			b.WriteString(format[i : j+1])
		}
		i = j
	}
	return one(in.str(b.String())), nil
}

func biDo(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	blk, ok := c.Args[0].(*EvalBlock)
	if !ok {
		return nil, in.fail(c.Line, "do FILE is not supported")
	}
	in.e.Enter()
	vals, err := in.child(blk.Body, sc, true)
	in.e.Leave()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		vals[i] = in.mortal(v)
	}
	return vals, nil
}

func biEvalString(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	src, err := in.topic(c, sc)
	if err != nil {
		return nil, err
	}
	// errors are trapped into $@ by the engine
	_ = in.e.Eval(src.PV(), in.pkg, fmt.Sprintf("(eval at %s line %d)", in.file, c.Line))
	if in.e.ErrSV().True() {
		return one(in.undef()), nil
	}
	return one(in.integer(1)), nil
}

func biString(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	v, err := in.topic(c, sc)
	if err != nil {
		return nil, err
	}
	s := v.PV()
	switch c.Name {
	case "lc":
		return one(in.str(strings.ToLower(s))), nil
	case "uc":
		return one(in.str(strings.ToUpper(s))), nil
	case "length":
		if !v.OK() {
			return one(in.undef()), nil
		}
		return one(in.integer(int64(utf8.RuneCountInString(s)))), nil
	case "chr":
		return one(in.str(string(rune(v.IV())))), nil
	default: // ord
		if s == "" {
			return one(in.integer(0)), nil
		}
		r, _ := utf8.DecodeRuneInString(s)
		return one(in.integer(int64(r))), nil
	}
}

func biNumeric(in *interp, c *Call, sc *scope, w want) ([]*heap.Cell, error) {
	v, err := in.topic(c, sc)
	if err != nil {
		return nil, err
	}
	i, f, isInt := number(v)
	switch c.Name {
	case "int":
		if isInt {
			return one(in.integer(i)), nil
		}
		if t := math.Trunc(f); t >= math.MinInt64 && t < math.MaxInt64 {
			return one(in.integer(int64(t))), nil
		}
		return one(in.mortal(in.e.NewFloat(math.Trunc(f)))), nil
	default: // abs
		if isInt && i != math.MinInt64 {
			if i < 0 {
				i = -i
			}
			return one(in.integer(i)), nil
		}
		if isInt {
			f = float64(i)
		}
		return one(in.mortal(in.e.NewFloat(math.Abs(f)))), nil
	}
}
