// Package script is the built-in source evaluator: a small Perl-flavoured
// dialect with packages, subs, lexicals, references, blessed objects and
// method calls, executed directly against a heap.Engine.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/feather-lang/hostbind/heap"
)

var log = commonlog.GetLogger("hostbind.script")

// Evaluator implements heap.Evaluator.
type Evaluator struct {
	// Out receives print and say output.
	Out io.Writer
	// Err receives warnings and print STDERR output.
	Err io.Writer
}

// New returns an evaluator writing to the process's standard streams.
func New() *Evaluator {
	return &Evaluator{Out: os.Stdout, Err: os.Stderr}
}

// Eval parses src and runs it in package pkg. Named subs are installed
// before any statement runs, so a file may call subs it defines later.
func (ev *Evaluator) Eval(e *heap.Engine, src, pkg, file string) error {
	prog, err := Parse(src, file, pkg)
	if err != nil {
		return err
	}
	in := &interp{ev: ev, e: e, file: file, pkg: pkg}
	in.hoist(prog.Body, pkg)

	top := newScope(nil)
	defer top.close(e)
	_, err = in.block(prog.Body, top, false)

	var ret *returnSignal
	if errors.As(err, &ret) {
		ret.release(e)
		return nil
	}
	var lc *loopSignal
	if errors.As(err, &lc) {
		return fmt.Errorf("can't %q outside a loop block", lc.word())
	}
	return err
}

// want is the context an expression is evaluated in.
type want int

const (
	wantScalar want = iota
	wantList
)

func (w want) flags() heap.CallFlags {
	if w == wantScalar {
		return heap.CallScalar
	}
	return heap.CallList
}

// interp is the state of one running file or sub body.
type interp struct {
	ev   *Evaluator
	e    *heap.Engine
	file string
	pkg  string
	argv *heap.Cell // @_ of the running sub
}

// -----------------------------------------------------------------------------
// Control flow
// -----------------------------------------------------------------------------

type returnSignal struct {
	vals []*heap.Cell // owned
}

func (*returnSignal) Error() string { return "can't return outside a subroutine" }

func (r *returnSignal) release(e *heap.Engine) {
	for _, v := range r.vals {
		e.Dec(v)
	}
	r.vals = nil
}

type loopSignal struct {
	last bool
}

func (l *loopSignal) Error() string { return fmt.Sprintf("can't %q outside a loop block", l.word()) }

func (l *loopSignal) word() string {
	if l.last {
		return "last"
	}
	return "next"
}

// located appends a source position to an error raised without one.
type located struct {
	err error
	at  string
}

func (l *located) Error() string { return strings.TrimSuffix(l.err.Error(), "\n") + l.at }
func (l *located) Unwrap() error { return l.err }

func (in *interp) where(line int) string {
	return fmt.Sprintf(" at %s line %d.\n", in.file, line)
}

func (in *interp) locate(err error, line int) error {
	if err == nil {
		return nil
	}
	var r *returnSignal
	var l *loopSignal
	if errors.As(err, &r) || errors.As(err, &l) {
		return err
	}
	if strings.HasSuffix(err.Error(), "\n") {
		return err
	}
	return &located{err: err, at: in.where(line)}
}

func (in *interp) fail(line int, format string, args ...any) error {
	return &heap.Croak{Msg: fmt.Sprintf(format, args...) + in.where(line)}
}

// -----------------------------------------------------------------------------
// Scopes
// -----------------------------------------------------------------------------

// scope holds the lexicals of one block. Each entry owns a reference.
type scope struct {
	parent *scope
	vars   map[string]*heap.Cell
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: make(map[string]*heap.Cell)}
}

func (s *scope) lookup(key string) *heap.Cell {
	for ; s != nil; s = s.parent {
		if c, ok := s.vars[key]; ok {
			return c
		}
	}
	return nil
}

// declare binds key to c, taking over one reference to c.
func (s *scope) declare(e *heap.Engine, key string, c *heap.Cell) {
	if old, ok := s.vars[key]; ok {
		e.Dec(old)
	}
	s.vars[key] = c
}

func (s *scope) close(e *heap.Engine) {
	for k, c := range s.vars {
		delete(s.vars, k)
		e.Dec(c)
	}
}

// -----------------------------------------------------------------------------
// Subs
// -----------------------------------------------------------------------------

func (in *interp) hoist(body []Stmt, pkg string) {
	for _, s := range body {
		switch s := s.(type) {
		case *PackageStmt:
			if s.Body == nil {
				pkg = s.Name
			} else {
				in.hoist(s.Body, s.Name)
			}
		case *SubDef:
			in.defineSub(pkg, s)
		}
	}
}

func (in *interp) defineSub(pkg string, d *SubDef) {
	full := d.Name
	if !strings.Contains(full, "::") {
		full = pkg + "::" + full
	}
	ev, file, body := in.ev, in.file, d.Body
	in.e.DefineSub(full, func(e *heap.Engine, cv *heap.Sub, ax, items int) (int, error) {
		call := &interp{ev: ev, e: e, file: file, pkg: pkg}
		return call.runSub(body, ax, items)
	}, file)
	log.Debugf("defined %s", full)
}

// runSub executes a sub body. The arguments are aliased into @_; results
// are copied out before the sub's temporaries are released.
func (in *interp) runSub(body []Stmt, ax, items int) (int, error) {
	e := in.e
	argv := e.NewArray()
	for _, c := range e.Stack()[ax : ax+items] {
		if c == nil {
			c = e.NewMortal()
		}
		e.ArrayPush(argv, e.Inc(c))
	}
	e.Truncate(ax)
	in.argv = argv

	sc := newScope(nil)
	e.Enter()
	vals, err := in.block(body, sc, true)
	var ret *returnSignal
	if errors.As(err, &ret) {
		vals, err = ret.vals, nil
	}
	sc.close(e)
	e.Leave()
	e.Dec(argv)

	if err != nil {
		return 0, err
	}
	for _, v := range vals {
		e.Push(e.Mortal(v))
	}
	return len(vals), nil
}

// -----------------------------------------------------------------------------
// Statements
// -----------------------------------------------------------------------------

// block runs body in sc. With last set, the values of the final statement
// are returned as owned copies.
func (in *interp) block(body []Stmt, sc *scope, last bool) ([]*heap.Cell, error) {
	for i, s := range body {
		final := last && i == len(body)-1
		vals, err := in.stmt(s, sc, final)
		if err != nil {
			return nil, err
		}
		if final {
			return vals, nil
		}
	}
	return nil, nil
}

func (in *interp) child(body []Stmt, sc *scope, last bool) ([]*heap.Cell, error) {
	inner := newScope(sc)
	defer inner.close(in.e)
	return in.block(body, inner, last)
}

func (in *interp) copies(vals []*heap.Cell) []*heap.Cell {
	out := make([]*heap.Cell, len(vals))
	for i, v := range vals {
		out[i] = in.e.Copy(v)
	}
	return out
}

func (in *interp) stmt(s Stmt, sc *scope, last bool) ([]*heap.Cell, error) {
	e := in.e
	switch s := s.(type) {
	case *ExprStmt:
		e.Enter()
		defer e.Leave()
		vals, err := in.list(s.X, sc)
		if err != nil {
			return nil, in.locate(err, s.Line)
		}
		if last {
			return in.copies(vals), nil
		}
		return nil, nil

	case *PackageStmt:
		if s.Body == nil {
			in.pkg = s.Name
			return nil, nil
		}
		outer := in.pkg
		in.pkg = s.Name
		defer func() { in.pkg = outer }()
		return in.child(s.Body, sc, last)

	case *SubDef:
		in.defineSub(in.pkg, s)
		return nil, nil

	case *Return:
		e.Enter()
		defer e.Leave()
		var vals []*heap.Cell
		if s.X != nil {
			var err error
			if vals, err = in.list(s.X, sc); err != nil {
				return nil, in.locate(err, s.Line)
			}
		}
		return nil, &returnSignal{vals: in.copies(vals)}

	case *If:
		for i, cond := range s.Conds {
			ok, err := in.truth(cond, sc)
			if err != nil {
				return nil, in.locate(err, s.Line)
			}
			if i == 0 && s.Unless {
				ok = !ok
			}
			if ok {
				return in.child(s.Blocks[i], sc, last)
			}
		}
		if s.Else != nil {
			return in.child(s.Else, sc, last)
		}
		return nil, nil

	case *While:
		for {
			ok, err := in.truth(s.Cond, sc)
			if err != nil {
				return nil, in.locate(err, s.Line)
			}
			if ok == s.Until {
				return nil, nil
			}
			if _, err := in.child(s.Body, sc, false); err != nil {
				var lc *loopSignal
				if !errors.As(err, &lc) {
					return nil, err
				}
				if lc.last {
					return nil, nil
				}
			}
		}

	case *Foreach:
		return nil, in.foreach(s, sc)

	case *LoopCtl:
		return nil, &loopSignal{last: s.Last}

	case *Block:
		return in.child(s.Body, sc, last)
	}
	return nil, fmt.Errorf("unsupported statement %T", s)
}

func (in *interp) truth(n Node, sc *scope) (bool, error) {
	in.e.Enter()
	defer in.e.Leave()
	c, err := in.scalar(n, sc)
	if err != nil {
		return false, err
	}
	return c.True(), nil
}

// foreach aliases the loop variable to each element within the body. A
// package loop variable is also given a copy, visible to called subs, and
// gets its old value back afterwards.
func (in *interp) foreach(s *Foreach, sc *scope) error {
	e := in.e
	e.Enter()
	defer e.Leave()
	items, err := in.list(s.List, sc)
	if err != nil {
		return in.locate(err, s.Line)
	}
	for _, it := range items {
		e.Inc(it)
	}
	defer func() {
		for _, it := range items {
			e.Dec(it)
		}
	}()

	var global *heap.Cell
	if !s.My && sc.lookup("$"+s.Var) == nil {
		global = e.GetScalar(in.qualify(s.Var), true)
		saved := e.Copy(global)
		defer func() {
			e.SetCell(global, saved)
			e.Dec(saved)
		}()
	}

	for _, it := range items {
		inner := newScope(sc)
		inner.declare(e, "$"+s.Var, e.Inc(it))
		if global != nil {
			e.SetCell(global, it)
		}
		_, err := in.block(s.Body, inner, false)
		inner.close(e)
		if err != nil {
			var lc *loopSignal
			if !errors.As(err, &lc) {
				return err
			}
			if lc.last {
				return nil
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Variables
// -----------------------------------------------------------------------------

// globals always live in main.
var globals = map[string]bool{
	"_": true, "0": true, "ARGV": true, "ENV": true, "INC": true,
	"STDIN": true, "STDOUT": true, "STDERR": true,
}

func (in *interp) qualify(name string) string {
	if strings.Contains(name, "::") {
		return name
	}
	if globals[name] {
		return "main::" + name
	}
	return in.pkg + "::" + name
}

func (in *interp) scalarVar(name string, sc *scope) *heap.Cell {
	if name == "@" {
		return in.e.ErrSV()
	}
	if c := sc.lookup("$" + name); c != nil {
		return c
	}
	return in.e.GetScalar(in.qualify(name), true)
}

func (in *interp) arrayVar(name string, sc *scope) *heap.Cell {
	if name == "_" && in.argv != nil {
		return in.argv
	}
	if c := sc.lookup("@" + name); c != nil {
		return c
	}
	return in.e.GetArray(in.qualify(name), true)
}

func (in *interp) hashVar(name string, sc *scope) *heap.Cell {
	if c := sc.lookup("%" + name); c != nil {
		return c
	}
	return in.e.GetHash(in.qualify(name), true)
}

// declare introduces the variables of a my or our declaration and returns
// their cells.
func (in *interp) declare(d *My, sc *scope) []*heap.Cell {
	e := in.e
	out := make([]*heap.Cell, 0, len(d.Vars))
	for _, v := range d.Vars {
		var key string
		var c *heap.Cell
		switch v := v.(type) {
		case *ScalarVar:
			key = "$" + v.Name
			if d.Our {
				c = e.Inc(e.GetScalar(in.qualify(v.Name), true))
			} else {
				c = e.NewScalar()
			}
		case *ArrayVar:
			key = "@" + v.Name
			if d.Our {
				c = e.Inc(e.GetArray(in.qualify(v.Name), true))
			} else {
				c = e.NewArray()
			}
		case *HashVar:
			key = "%" + v.Name
			if d.Our {
				c = e.Inc(e.GetHash(in.qualify(v.Name), true))
			} else {
				c = e.NewHash()
			}
		}
		sc.declare(e, key, c)
		out = append(out, c)
	}
	return out
}
