package hostbind

import (
	"fmt"
	"slices"

	"github.com/feather-lang/hostbind/heap"
)

const (
	packagesSlot = "hostbind.packages"
	// bindingFile marks subs whose entry point is dispatch.
	bindingFile = "hostbind"
)

// Package binds Go functions into one interpreter namespace.
//
// Each name starts with a single binding that is called directly. Adding a
// second binding under the same name turns it into an overload set: every
// call then tries the bindings in registration order and runs the first
// whose parameters accept the arguments. Order is the only priority, so a
// binding that captures all arguments shadows everything registered after
// it.
//
// The bindings for pkg::name are kept in the interpreter array @pkg::name,
// one element per binding; an element owns its Function and releases it
// when the element is freed.
type Package struct {
	e    *heap.Engine
	name string
}

func packagesOf(e *heap.Engine) map[string]*Package {
	if v, ok := e.Ext(packagesSlot); ok {
		if m, ok := v.(map[string]*Package); ok {
			return m
		}
	}
	m := make(map[string]*Package)
	e.SetExt(packagesSlot, m)
	return m
}

// NewPackage returns the package called name, creating it on first use.
func NewPackage(e *heap.Engine, name string) *Package {
	pkgs := packagesOf(e)
	if p, ok := pkgs[name]; ok {
		return p
	}
	e.Stash(name, true)
	p := &Package{e: e, name: name}
	pkgs[name] = p
	return p
}

// Name returns the package name.
func (p *Package) Name() string { return p.name }

func (p *Package) qualify(name string) string { return p.name + "::" + name }

// Add binds fn under name. See [Function] for how parameters and results
// are converted.
func (p *Package) Add(name string, fn any) error {
	f, err := NewFunction(fn)
	if err != nil {
		return fmt.Errorf("%s: %w", p.qualify(name), err)
	}
	p.AddFunction(name, f)
	return nil
}

// AddFunction binds a prepared function under name.
func (p *Package) AddFunction(name string, f *Function) {
	e := p.e
	full := p.qualify(name)

	list := e.GetArray(full, true)
	entry := e.NewString(f.signature)
	e.AddMagic(entry, f, func(any) {
		log.Debugf("released binding %s%s", full, f.signature)
	})
	e.ArrayPush(list, entry)

	sub := e.GetSub(full)
	if e.ArrayLen(list) == 1 || sub == nil || sub.File != bindingFile {
		sub = e.DefineSub(full, dispatch, bindingFile)
	}
	if e.ArrayLen(list) == 1 {
		sub.Any = f
	} else {
		sub.Any = nil
	}
	log.Debugf("bound %s%s (%d binding(s))", full, f.signature, e.ArrayLen(list))
}

// AddConst defines name as a constant returning a copy of v. A constant
// replaces any bindings under the same name.
func (p *Package) AddConst(name string, v any) error {
	c, err := newCell(p.e, v)
	if err != nil {
		return fmt.Errorf("%s: %w", p.qualify(name), err)
	}
	full := p.qualify(name)
	if list := p.e.GetArray(full, false); list != nil {
		p.e.ArrayClear(list)
	}
	p.e.DefineConst(full, c)
	return nil
}

// AddBaseClass appends base to the package's @ISA. Methods missing here are
// looked up in base classes depth-first, in the order they were added.
func (p *Package) AddBaseClass(base string) {
	if slices.Contains(p.e.ISA(p.name), base) {
		return
	}
	p.e.Stash(base, true)
	p.e.ArrayPush(p.e.GetArray(p.qualify("ISA"), true), p.e.NewString(base))
}

// BaseClasses returns the package's direct base classes.
func (p *Package) BaseClasses() []string { return p.e.ISA(p.name) }

// Bindings returns the functions bound under name, in registration order.
func (p *Package) Bindings(name string) []*Function {
	list := p.e.GetArray(p.qualify(name), false)
	if list == nil {
		return nil
	}
	out := make([]*Function, 0, p.e.ArrayLen(list))
	for i := range p.e.ArrayLen(list) {
		if f := functionOf(p.e.ArrayFetch(list, i, false)); f != nil {
			out = append(out, f)
		}
	}
	return out
}

func functionOf(c *heap.Cell) *Function {
	if c == nil {
		return nil
	}
	for _, mg := range c.Magic() {
		if f, ok := mg.Data.(*Function); ok {
			return f
		}
	}
	return nil
}

// dispatch is the native entry point shared by every bound name.
func dispatch(e *heap.Engine, cv *heap.Sub, ax, items int) (int, error) {
	frame := newCallFrame(e, ax, items)
	if f, ok := cv.Any.(*Function); ok {
		return f.call(cv.FullName(), frame)
	}

	list := e.GetArray(cv.FullName(), false)
	if list == nil {
		return 0, fmt.Errorf("%w: %s has no bindings", ErrNoOverload, cv.FullName())
	}
	// hold the list so a binding that rebinds the name cannot free it
	// mid-call
	e.Inc(list)
	defer e.Dec(list)

	n := e.ArrayLen(list)
	for i := range n {
		f := functionOf(e.ArrayFetch(list, i, false))
		if f != nil && f.Matches(frame) {
			return f.call(cv.FullName(), frame)
		}
	}

	candidates := make([]string, 0, n)
	for i := range n {
		if f := functionOf(e.ArrayFetch(list, i, false)); f != nil {
			candidates = append(candidates, cv.FullName()+f.signature)
		}
	}
	err := &OverloadError{Name: cv.FullName(), Args: items, Candidates: candidates}
	log.Debugf("%s", err.Error())
	return 0, err
}
