package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/feather-lang/hostbind/heap"
)

// Expression results are borrowed (variables and elements) or mortal in
// the innermost temporaries scope. Anything stored is copied first.

func (in *interp) mortal(c *heap.Cell) *heap.Cell { return in.e.Mortal(c) }

func (in *interp) undef() *heap.Cell { return in.e.NewMortal() }

func (in *interp) str(s string) *heap.Cell { return in.mortal(in.e.NewString(s)) }

func (in *interp) integer(v int64) *heap.Cell { return in.mortal(in.e.NewInt(v)) }

// boolean returns 1 or the empty string, like the comparison operators.
func (in *interp) boolean(b bool) *heap.Cell {
	if b {
		return in.integer(1)
	}
	return in.str("")
}

func lastOf(vals []*heap.Cell) *heap.Cell {
	if len(vals) == 0 {
		return nil
	}
	return vals[len(vals)-1]
}

// scalar evaluates n in scalar context.
func (in *interp) scalar(n Node, sc *scope) (*heap.Cell, error) {
	e := in.e
	switch n := n.(type) {
	case *IntLit:
		return in.integer(n.Val), nil
	case *NumLit:
		return in.mortal(e.NewFloat(n.Val)), nil
	case *StrLit:
		if n.Parts == nil {
			return in.str(n.Val), nil
		}
		var b strings.Builder
		for _, p := range n.Parts {
			c, err := in.scalar(p, sc)
			if err != nil {
				return nil, err
			}
			b.WriteString(c.PV())
		}
		return in.str(b.String()), nil
	case *WordList:
		if len(n.Words) == 0 {
			return in.undef(), nil
		}
		return in.str(n.Words[len(n.Words)-1]), nil
	case *ScalarVar:
		return in.scalarVar(n.Name, sc), nil
	case *ArrayVar:
		return in.integer(int64(e.ArrayLen(in.arrayVar(n.Name, sc)))), nil
	case *HashVar:
		return in.integer(int64(e.HashLen(in.hashVar(n.Name, sc)))), nil
	case *Elem:
		return in.elem(n, sc, false)
	case *Deref:
		switch n.Sigil {
		case '@':
			av, err := in.arrayOf(n, sc)
			if err != nil {
				return nil, err
			}
			return in.integer(int64(e.ArrayLen(av))), nil
		case '%':
			hv, err := in.hashOf(n, sc)
			if err != nil {
				return nil, err
			}
			return in.integer(int64(e.HashLen(hv))), nil
		}
		return in.lvalue(n, sc)
	case *RefGen:
		vals, err := in.refs(n, sc)
		if err != nil {
			return nil, err
		}
		if c := lastOf(vals); c != nil {
			return c, nil
		}
		return in.undef(), nil
	case *AnonArray, *AnonHash:
		vals, err := in.list(n, sc)
		if err != nil {
			return nil, err
		}
		return vals[0], nil
	case *ListExpr:
		// the comma operator yields its last operand
		var out *heap.Cell
		for _, it := range n.Items {
			c, err := in.scalar(it, sc)
			if err != nil {
				return nil, err
			}
			out = c
		}
		if out == nil {
			return in.undef(), nil
		}
		return out, nil
	case *My:
		cells := in.declare(n, sc)
		if len(cells) == 1 && !n.Paren {
			if _, ok := n.Vars[0].(*ScalarVar); ok {
				return cells[0], nil
			}
		}
		return in.integer(0), nil
	case *Assign:
		vals, count, err := in.assign(n, sc)
		if err != nil {
			return nil, err
		}
		if isListTarget(n.Left) {
			return in.integer(int64(count)), nil
		}
		return vals[0], nil
	case *Binary:
		return in.binary(n, sc)
	case *Unary:
		return in.unary(n, sc)
	case *IncDec:
		return in.incDec(n, sc)
	case *Ternary:
		ok, err := in.scalar(n.Cond, sc)
		if err != nil {
			return nil, err
		}
		if ok.True() {
			return in.scalar(n.Then, sc)
		}
		return in.scalar(n.Else, sc)
	}

	vals, err := in.eval(n, sc, wantScalar)
	if err != nil {
		return nil, err
	}
	if c := lastOf(vals); c != nil {
		return c, nil
	}
	return in.undef(), nil
}

// list evaluates n in list context, flattening arrays and hashes.
func (in *interp) list(n Node, sc *scope) ([]*heap.Cell, error) {
	e := in.e
	switch n := n.(type) {
	case *WordList:
		out := make([]*heap.Cell, len(n.Words))
		for i, w := range n.Words {
			out[i] = in.str(w)
		}
		return out, nil
	case *ArrayVar:
		return in.elements(in.arrayVar(n.Name, sc)), nil
	case *HashVar:
		return in.pairs(in.hashVar(n.Name, sc)), nil
	case *Deref:
		switch n.Sigil {
		case '@':
			av, err := in.arrayOf(n, sc)
			if err != nil {
				return nil, err
			}
			return in.elements(av), nil
		case '%':
			hv, err := in.hashOf(n, sc)
			if err != nil {
				return nil, err
			}
			return in.pairs(hv), nil
		}
	case *ListExpr:
		var out []*heap.Cell
		for _, it := range n.Items {
			vals, err := in.list(it, sc)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	case *RefGen:
		return in.refs(n, sc)
	case *AnonArray:
		av := e.NewArray()
		ref := in.mortal(e.NewRefNoInc(av))
		for _, it := range n.Elems {
			vals, err := in.list(it, sc)
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				e.ArrayPush(av, e.Copy(v))
			}
		}
		return []*heap.Cell{ref}, nil
	case *AnonHash:
		hv := e.NewHash()
		ref := in.mortal(e.NewRefNoInc(hv))
		var vals []*heap.Cell
		for _, it := range n.Elems {
			v, err := in.list(it, sc)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v...)
		}
		in.storePairs(hv, vals)
		return []*heap.Cell{ref}, nil
	case *My:
		cells := in.declare(n, sc)
		var out []*heap.Cell
		for _, c := range cells {
			switch c.Type() {
			case heap.TypeArray, heap.TypeHash:
			default:
				out = append(out, c)
			}
		}
		return out, nil
	case *Assign:
		vals, _, err := in.assign(n, sc)
		return vals, err
	case *Ternary:
		ok, err := in.scalar(n.Cond, sc)
		if err != nil {
			return nil, err
		}
		if ok.True() {
			return in.list(n.Then, sc)
		}
		return in.list(n.Else, sc)
	case *Elem:
		if l, ok := n.Base.(*ListExpr); ok {
			return in.slice(l, n.Index, sc)
		}
	case *Call, *MethodCall, *Bareword, *EvalBlock:
		return in.eval(n, sc, wantList)
	}

	c, err := in.scalar(n, sc)
	if err != nil {
		return nil, err
	}
	return []*heap.Cell{c}, nil
}

// eval runs the call-like nodes, which honour the caller's context.
func (in *interp) eval(n Node, sc *scope, w want) ([]*heap.Cell, error) {
	switch n := n.(type) {
	case *Call:
		return in.call(n, sc, w)
	case *MethodCall:
		return in.method(n, sc, w)
	case *Bareword:
		if full := in.subName(n.Name); full != "" {
			return in.callSub(full, nil, n.Line, w)
		}
		return []*heap.Cell{in.str(n.Name)}, nil
	case *EvalBlock:
		return in.evalBlock(n, sc, w)
	}
	return nil, fmt.Errorf("can't evaluate %T", n)
}

func (in *interp) elements(av *heap.Cell) []*heap.Cell {
	n := in.e.ArrayLen(av)
	out := make([]*heap.Cell, n)
	for i := range n {
		out[i] = in.e.ArrayFetch(av, i, true)
	}
	return out
}

func (in *interp) pairs(hv *heap.Cell) []*heap.Cell {
	keys := in.e.HashKeys(hv)
	out := make([]*heap.Cell, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, in.str(k), in.e.HashFetch(hv, k, true))
	}
	return out
}

// storePairs fills hv from a flat key/value list, copying the values.
func (in *interp) storePairs(hv *heap.Cell, vals []*heap.Cell) {
	for i := 0; i < len(vals); i += 2 {
		v := in.e.NewScalar()
		if i+1 < len(vals) {
			in.e.SetCell(v, vals[i+1])
		}
		in.e.HashStore(hv, vals[i].PV(), v)
	}
}

func (in *interp) slice(l *ListExpr, idx Node, sc *scope) ([]*heap.Cell, error) {
	vals, err := in.list(l, sc)
	if err != nil {
		return nil, err
	}
	ix, err := in.list(idx, sc)
	if err != nil {
		return nil, err
	}
	out := make([]*heap.Cell, 0, len(ix))
	for _, c := range ix {
		i := int(c.IV())
		if i < 0 {
			i += len(vals)
		}
		if i >= 0 && i < len(vals) {
			out = append(out, vals[i])
		} else {
			out = append(out, in.undef())
		}
	}
	return out, nil
}

// refs implements the backslash operator.
func (in *interp) refs(n *RefGen, sc *scope) ([]*heap.Cell, error) {
	e := in.e
	ref := func(c *heap.Cell) *heap.Cell { return in.mortal(e.NewRefInc(c)) }
	switch x := n.X.(type) {
	case *ArrayVar:
		return []*heap.Cell{ref(in.arrayVar(x.Name, sc))}, nil
	case *HashVar:
		return []*heap.Cell{ref(in.hashVar(x.Name, sc))}, nil
	case *Deref:
		switch x.Sigil {
		case '@':
			av, err := in.arrayOf(x, sc)
			if err != nil {
				return nil, err
			}
			return []*heap.Cell{ref(av)}, nil
		case '%':
			hv, err := in.hashOf(x, sc)
			if err != nil {
				return nil, err
			}
			return []*heap.Cell{ref(hv)}, nil
		}
	case *ListExpr:
		var out []*heap.Cell
		for _, it := range x.Items {
			vals, err := in.refs(&RefGen{pos: n.pos, X: it}, sc)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	case *My:
		cells := in.declare(x, sc)
		out := make([]*heap.Cell, len(cells))
		for i, c := range cells {
			out[i] = ref(c)
		}
		return out, nil
	case *ScalarVar, *Elem:
		c, err := in.lvalue(x, sc)
		if err != nil {
			return nil, err
		}
		return []*heap.Cell{ref(c)}, nil
	}
	c, err := in.scalar(n.X, sc)
	if err != nil {
		return nil, err
	}
	return []*heap.Cell{ref(in.e.Copy(c))}, nil
}

// -----------------------------------------------------------------------------
// Containers
// -----------------------------------------------------------------------------

// arrayOf resolves an array-valued node. An undefined reference is
// autovivified.
func (in *interp) arrayOf(n Node, sc *scope) (*heap.Cell, error) {
	switch n := n.(type) {
	case *ArrayVar:
		return in.arrayVar(n.Name, sc), nil
	case *My:
		cells := in.declare(n, sc)
		if len(cells) == 1 && cells[0].Type() == heap.TypeArray {
			return cells[0], nil
		}
	case *Deref:
		if n.Sigil == '@' {
			r, err := in.refTarget(n.X, sc)
			if err != nil {
				return nil, err
			}
			return in.derefArray(r, n.Line)
		}
	}
	return nil, in.fail(n.line(), "Not an ARRAY expression")
}

func (in *interp) hashOf(n Node, sc *scope) (*heap.Cell, error) {
	switch n := n.(type) {
	case *HashVar:
		return in.hashVar(n.Name, sc), nil
	case *My:
		cells := in.declare(n, sc)
		if len(cells) == 1 && cells[0].Type() == heap.TypeHash {
			return cells[0], nil
		}
	case *Deref:
		if n.Sigil == '%' {
			r, err := in.refTarget(n.X, sc)
			if err != nil {
				return nil, err
			}
			return in.derefHash(r, n.Line)
		}
	}
	return nil, in.fail(n.line(), "Not a HASH expression")
}

// refTarget evaluates the expression holding a reference. Elements are
// fetched as lvalues so that they can be autovivified.
func (in *interp) refTarget(n Node, sc *scope) (*heap.Cell, error) {
	switch n := n.(type) {
	case *Elem:
		if _, ok := n.Base.(*ListExpr); !ok {
			return in.elem(n, sc, true)
		}
	case *Deref:
		if n.Sigil == '$' {
			return in.lvalue(n, sc)
		}
	}
	return in.scalar(n, sc)
}

func (in *interp) derefArray(r *heap.Cell, line int) (*heap.Cell, error) {
	e := in.e
	switch {
	case r.Type() == heap.TypeArray:
		return r, nil
	case r.ROK():
		if rv := r.RV(); rv.Type() == heap.TypeArray {
			return rv, nil
		}
		return nil, in.fail(line, "Not an ARRAY reference")
	case !r.OK():
		av := e.NewArray()
		e.SetRef(r, av)
		e.Dec(av)
		return av, nil
	}
	return nil, in.fail(line, "Can't use string (%q) as an ARRAY ref", r.PV())
}

func (in *interp) derefHash(r *heap.Cell, line int) (*heap.Cell, error) {
	e := in.e
	switch {
	case r.Type() == heap.TypeHash:
		return r, nil
	case r.ROK():
		if rv := r.RV(); rv.Type() == heap.TypeHash {
			return rv, nil
		}
		return nil, in.fail(line, "Not a HASH reference")
	case !r.OK():
		hv := e.NewHash()
		e.SetRef(r, hv)
		e.Dec(hv)
		return hv, nil
	}
	return nil, in.fail(line, "Can't use string (%q) as a HASH ref", r.PV())
}

// container returns the array or hash an element expression indexes.
func (in *interp) container(n *Elem, sc *scope) (*heap.Cell, error) {
	switch b := n.Base.(type) {
	case *ArrayVar:
		if !n.Keyed {
			return in.arrayVar(b.Name, sc), nil
		}
	case *HashVar:
		if n.Keyed {
			return in.hashVar(b.Name, sc), nil
		}
	}
	r, err := in.refTarget(n.Base, sc)
	if err != nil {
		return nil, err
	}
	if n.Keyed {
		return in.derefHash(r, n.Line)
	}
	return in.derefArray(r, n.Line)
}

// elem fetches an element. With lval set a missing element is created;
// otherwise it reads as undef.
func (in *interp) elem(n *Elem, sc *scope, lval bool) (*heap.Cell, error) {
	e := in.e
	if l, ok := n.Base.(*ListExpr); ok {
		vals, err := in.slice(l, n.Index, sc)
		if err != nil {
			return nil, err
		}
		if c := lastOf(vals); c != nil {
			return c, nil
		}
		return in.undef(), nil
	}
	cont, err := in.container(n, sc)
	if err != nil {
		return nil, err
	}
	idx, err := in.scalar(n.Index, sc)
	if err != nil {
		return nil, err
	}
	var c *heap.Cell
	if n.Keyed {
		c = e.HashFetch(cont, idx.PV(), lval)
	} else {
		c = e.ArrayFetch(cont, int(idx.IV()), lval)
	}
	if c == nil {
		if lval {
			return nil, in.fail(n.Line, "Modification of non-creatable array value attempted, subscript %d", idx.IV())
		}
		return in.undef(), nil
	}
	return c, nil
}

// -----------------------------------------------------------------------------
// Assignment
// -----------------------------------------------------------------------------

func isListTarget(n Node) bool {
	switch n := n.(type) {
	case *ArrayVar, *HashVar, *ListExpr:
		return true
	case *Deref:
		return n.Sigil != '$'
	case *My:
		if n.Paren {
			return true
		}
		_, scalar := n.Vars[0].(*ScalarVar)
		return !scalar
	}
	return false
}

// lvalue resolves a scalar assignment target.
func (in *interp) lvalue(n Node, sc *scope) (*heap.Cell, error) {
	e := in.e
	switch n := n.(type) {
	case *ScalarVar:
		return in.scalarVar(n.Name, sc), nil
	case *Elem:
		return in.elem(n, sc, true)
	case *My:
		cells := in.declare(n, sc)
		return cells[0], nil
	case *Deref:
		if n.Sigil != '$' {
			break
		}
		r, err := in.refTarget(n.X, sc)
		if err != nil {
			return nil, err
		}
		switch {
		case r.ROK():
			rv := r.RV()
			if rv.Type() >= heap.TypeArray {
				return nil, in.fail(n.Line, "Not a SCALAR reference")
			}
			return rv, nil
		case !r.OK():
			sv := e.NewScalar()
			e.SetRef(r, sv)
			e.Dec(sv)
			return sv, nil
		}
		return nil, in.fail(n.Line, "Can't use string (%q) as a SCALAR ref", r.PV())
	case *Ternary:
		ok, err := in.scalar(n.Cond, sc)
		if err != nil {
			return nil, err
		}
		if ok.True() {
			return in.lvalue(n.Then, sc)
		}
		return in.lvalue(n.Else, sc)
	}
	return nil, in.fail(n.line(), "Can't modify non-lvalue subexpression")
}

// assign returns the assigned cells and, for list assignment, the number
// of values on the right.
func (in *interp) assign(n *Assign, sc *scope) ([]*heap.Cell, int, error) {
	e := in.e
	if n.Op != "=" {
		dst, err := in.compound(n, sc)
		if err != nil {
			return nil, 0, err
		}
		return []*heap.Cell{dst}, 1, nil
	}

	if !isListTarget(n.Left) {
		src, err := in.scalar(n.Right, sc)
		if err != nil {
			return nil, 0, err
		}
		dst, err := in.lvalue(n.Left, sc)
		if err != nil {
			return nil, 0, err
		}
		e.SetCell(dst, src)
		return []*heap.Cell{dst}, 1, nil
	}

	rhs, err := in.list(n.Right, sc)
	if err != nil {
		return nil, 0, err
	}
	// copy first: the right side may alias the targets
	vals := in.copies(rhs)
	defer func() {
		for _, v := range vals {
			e.Dec(v)
		}
	}()

	var targets []Node
	switch l := n.Left.(type) {
	case *ListExpr:
		targets = l.Items
	case *My:
		cells := in.declare(l, sc)
		return in.distribute(cellTargets(cells), &vals, len(rhs))
	default:
		targets = []Node{l}
	}

	var dst []target
	for _, t := range targets {
		switch t := t.(type) {
		case *ArrayVar, *Deref, *My:
			if d, ok := t.(*Deref); ok && d.Sigil == '$' {
				c, err := in.lvalue(t, sc)
				if err != nil {
					return nil, 0, err
				}
				dst = append(dst, target{cell: c})
				continue
			}
			if my, ok := t.(*My); ok {
				dst = append(dst, cellTargets(in.declare(my, sc))...)
				continue
			}
			if d, ok := t.(*Deref); ok && d.Sigil == '%' {
				hv, err := in.hashOf(t, sc)
				if err != nil {
					return nil, 0, err
				}
				dst = append(dst, target{cell: hv})
				continue
			}
			av, err := in.arrayOf(t, sc)
			if err != nil {
				return nil, 0, err
			}
			dst = append(dst, target{cell: av})
		case *HashVar:
			dst = append(dst, target{cell: in.hashVar(t.Name, sc)})
		case *Bareword:
			if t.Name != "undef" {
				return nil, 0, in.fail(t.Line, "Can't modify constant item in list assignment")
			}
			dst = append(dst, target{})
		case *Call:
			if t.Name != "undef" || len(t.Args) > 0 {
				return nil, 0, in.fail(t.Line, "Can't modify non-lvalue subroutine call in list assignment")
			}
			dst = append(dst, target{})
		default:
			c, err := in.lvalue(t, sc)
			if err != nil {
				return nil, 0, err
			}
			dst = append(dst, target{cell: c})
		}
	}
	return in.distribute(dst, &vals, len(rhs))
}

// target is one slot of a list assignment; a nil cell skips a value.
type target struct {
	cell *heap.Cell
}

func cellTargets(cells []*heap.Cell) []target {
	out := make([]target, len(cells))
	for i, c := range cells {
		out[i] = target{cell: c}
	}
	return out
}

// distribute hands owned values to the targets. Arrays and hashes swallow
// the rest of the list; values taken over are removed from vals.
func (in *interp) distribute(dst []target, vals *[]*heap.Cell, count int) ([]*heap.Cell, int, error) {
	e := in.e
	rest := *vals
	var out []*heap.Cell
	for _, t := range dst {
		switch {
		case t.cell == nil:
			if len(rest) > 0 {
				rest = rest[1:]
			}
		case t.cell.Type() == heap.TypeArray:
			e.ArrayClear(t.cell)
			for i, v := range rest {
				e.ArrayPush(t.cell, v)
				rest[i] = nil
			}
			out = append(out, in.elements(t.cell)...)
			rest = nil
		case t.cell.Type() == heap.TypeHash:
			e.HashClear(t.cell)
			in.storePairs(t.cell, rest)
			out = append(out, in.pairs(t.cell)...)
			rest = nil
		default:
			if len(rest) > 0 {
				e.SetCell(t.cell, rest[0])
				rest = rest[1:]
			} else {
				e.SetUndef(t.cell)
			}
			out = append(out, t.cell)
		}
	}
	return out, count, nil
}

var compoundOps = map[string]TokenType{
	"+=": PLUS, "-=": MINUS, "*=": STAR, "/=": SLASH, "%=": MOD,
	"**=": POW, ".=": DOT,
}

func (in *interp) compound(n *Assign, sc *scope) (*heap.Cell, error) {
	dst, err := in.lvalue(n.Left, sc)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "||=", "&&=", "//=":
		keep := dst.True()
		switch n.Op {
		case "&&=":
			keep = !dst.True()
		case "//=":
			keep = dst.OK()
		}
		if keep {
			return dst, nil
		}
		src, err := in.scalar(n.Right, sc)
		if err != nil {
			return nil, err
		}
		in.e.SetCell(dst, src)
		return dst, nil
	}
	op, ok := compoundOps[n.Op]
	if !ok {
		return nil, in.fail(n.Line, "unsupported operator %s", n.Op)
	}
	rhs, err := in.scalar(n.Right, sc)
	if err != nil {
		return nil, err
	}
	res, err := in.apply(op, "", dst, rhs, n.Line)
	if err != nil {
		return nil, err
	}
	in.e.SetCell(dst, res)
	return dst, nil
}

// -----------------------------------------------------------------------------
// Operators
// -----------------------------------------------------------------------------

func (in *interp) binary(n *Binary, sc *scope) (*heap.Cell, error) {
	l, err := in.scalar(n.L, sc)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case ANDAND:
		if !l.True() {
			return l, nil
		}
		return in.scalar(n.R, sc)
	case OROR:
		if l.True() {
			return l, nil
		}
		return in.scalar(n.R, sc)
	case DOR:
		if l.OK() {
			return l, nil
		}
		return in.scalar(n.R, sc)
	}
	r, err := in.scalar(n.R, sc)
	if err != nil {
		return nil, err
	}
	return in.apply(n.Op, n.Word, l, r, n.Line)
}

// number reads a scalar for arithmetic. Integral values stay integers.
func number(c *heap.Cell) (int64, float64, bool) {
	switch {
	case c.IOK() && !c.IsUnsigned():
		return c.IV(), 0, true
	case c.NOK():
		return 0, c.NV(), false
	case c.POK():
		s := strings.TrimSpace(c.PV())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, 0, true
		}
		return 0, c.NV(), false
	case c.IOK():
		return 0, c.NV(), false
	case c.ROK():
		return c.IV(), 0, true
	}
	return 0, 0, true
}

func (in *interp) apply(op TokenType, word string, l, r *heap.Cell, line int) (*heap.Cell, error) {
	e := in.e
	if word != "" {
		switch word {
		case "x":
			n := int(r.IV())
			if n < 0 {
				n = 0
			}
			return in.str(strings.Repeat(l.PV(), n)), nil
		case "eq":
			return in.boolean(l.PV() == r.PV()), nil
		case "ne":
			return in.boolean(l.PV() != r.PV()), nil
		case "lt":
			return in.boolean(l.PV() < r.PV()), nil
		case "gt":
			return in.boolean(l.PV() > r.PV()), nil
		case "le":
			return in.boolean(l.PV() <= r.PV()), nil
		case "ge":
			return in.boolean(l.PV() >= r.PV()), nil
		case "cmp":
			return in.integer(int64(strings.Compare(l.PV(), r.PV()))), nil
		}
	}
	if op == DOT {
		return in.str(l.PV() + r.PV()), nil
	}

	li, lf, lint := number(l)
	ri, rf, rint := number(r)
	if lint && rint {
		switch op {
		case PLUS:
			if s := li + ri; (s > li) == (ri > 0) {
				return in.integer(s), nil
			}
		case MINUS:
			if d := li - ri; (d < li) == (ri > 0) {
				return in.integer(d), nil
			}
		case STAR:
			if li == 0 || ri == 0 {
				return in.integer(0), nil
			}
			if p := li * ri; p/ri == li && !(li == -1 && ri == math.MinInt64) && !(ri == -1 && li == math.MinInt64) {
				return in.integer(p), nil
			}
		case SLASH:
			if ri == 0 {
				return nil, in.fail(line, "Illegal division by zero")
			}
			if li%ri == 0 {
				return in.integer(li / ri), nil
			}
		case MOD:
			if ri == 0 {
				return nil, in.fail(line, "Illegal modulus zero")
			}
			m := li % ri
			if m != 0 && (m < 0) != (ri < 0) {
				m += ri
			}
			return in.integer(m), nil
		case POW:
			if ri >= 0 {
				if p, ok := ipow(li, ri); ok {
					return in.integer(p), nil
				}
			}
		case EQ:
			return in.boolean(li == ri), nil
		case NE:
			return in.boolean(li != ri), nil
		case LT:
			return in.boolean(li < ri), nil
		case GT:
			return in.boolean(li > ri), nil
		case LE:
			return in.boolean(li <= ri), nil
		case GE:
			return in.boolean(li >= ri), nil
		case CMP:
			switch {
			case li < ri:
				return in.integer(-1), nil
			case li > ri:
				return in.integer(1), nil
			}
			return in.integer(0), nil
		}
	}
	if lint {
		lf = float64(li)
	}
	if rint {
		rf = float64(ri)
	}
	float := func(f float64) *heap.Cell { return in.mortal(e.NewFloat(f)) }
	switch op {
	case PLUS:
		return float(lf + rf), nil
	case MINUS:
		return float(lf - rf), nil
	case STAR:
		return float(lf * rf), nil
	case SLASH:
		if rf == 0 {
			return nil, in.fail(line, "Illegal division by zero")
		}
		return float(lf / rf), nil
	case MOD:
		a, b := int64(lf), int64(rf)
		if b == 0 {
			return nil, in.fail(line, "Illegal modulus zero")
		}
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return in.integer(m), nil
	case POW:
		return float(math.Pow(lf, rf)), nil
	case EQ:
		return in.boolean(lf == rf), nil
	case NE:
		return in.boolean(lf != rf), nil
	case LT:
		return in.boolean(lf < rf), nil
	case GT:
		return in.boolean(lf > rf), nil
	case LE:
		return in.boolean(lf <= rf), nil
	case GE:
		return in.boolean(lf >= rf), nil
	case CMP:
		switch {
		case lf < rf:
			return in.integer(-1), nil
		case lf > rf:
			return in.integer(1), nil
		}
		return in.integer(0), nil
	}
	return nil, in.fail(line, "unsupported operator %s", op)
}

func ipow(base, exp int64) (int64, bool) {
	result := int64(1)
	for range exp {
		next := result * base
		if base != 0 && next/base != result {
			return 0, false
		}
		result = next
	}
	return result, true
}

func (in *interp) unary(n *Unary, sc *scope) (*heap.Cell, error) {
	if b, ok := n.X.(*Bareword); ok && n.Op == MINUS {
		return in.str("-" + b.Name), nil
	}
	c, err := in.scalar(n.X, sc)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case NOT:
		return in.boolean(!c.True()), nil
	case MINUS:
		if c.POK() && !c.IOK() && !c.NOK() {
			s := c.PV()
			if s != "" && isAlpha(s[0]) {
				return in.str("-" + s), nil
			}
		}
		i, f, isInt := number(c)
		if isInt && i != math.MinInt64 {
			return in.integer(-i), nil
		}
		if isInt {
			f = float64(i)
		}
		return in.mortal(in.e.NewFloat(-f)), nil
	}
	return nil, in.fail(n.Line, "unsupported operator %s", n.Op)
}

func (in *interp) incDec(n *IncDec, sc *scope) (*heap.Cell, error) {
	e := in.e
	c, err := in.lvalue(n.X, sc)
	if err != nil {
		return nil, err
	}
	var old *heap.Cell
	if !n.Prefix {
		old = in.mortal(e.Copy(c))
		if !old.OK() && n.Op == INC {
			e.SetInt(old, 0)
		}
	}
	i, f, isInt := number(c)
	delta := int64(1)
	if n.Op == DEC {
		delta = -1
	}
	if isInt {
		e.SetInt(c, i+delta)
	} else {
		e.SetFloat(c, f+float64(delta))
	}
	if n.Prefix {
		return c, nil
	}
	return old, nil
}
