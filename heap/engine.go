// Package heap is an in-process, reference-counted value engine: the
// substrate an embedded interpreter stores its values in. It provides
// scalar, array and hash cells with explicit Inc/Dec, named package
// variables, a shared argument stack with marks, mortal temporaries scoped
// by Enter/Leave, an error channel and per-engine extension data.
//
// The engine is not safe for concurrent use.
package heap

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hostbind.heap")

var nextCellID atomic.Uint64

// Evaluator compiles and runs source text on behalf of the engine.
type Evaluator interface {
	Eval(e *Engine, src, pkg, file string) error
}

// Engine owns every cell it allocates.
type Engine struct {
	live      int
	destroyed bool

	stashes map[string]*Stash

	stack []*Cell
	marks []int

	tmps      []*Cell
	tmpsFloor []int

	errsv *Cell

	ext map[string]any

	evaluator Evaluator

	depth          int
	RecursionLimit int
}

// DefaultRecursionLimit bounds nested sub calls.
const DefaultRecursionLimit = 1000

// New creates an empty engine with the main package in place.
func New() *Engine {
	e := &Engine{
		stashes:        make(map[string]*Stash),
		ext:            make(map[string]any),
		RecursionLimit: DefaultRecursionLimit,
	}
	e.Stash("main", true)
	e.errsv = e.NewScalar()
	return e
}

// Live returns the number of allocated cells that have not been freed.
func (e *Engine) Live() int { return e.live }

func (e *Engine) alloc(t Type) *Cell {
	e.live++
	return &Cell{id: nextCellID.Add(1), engine: e, refcnt: 1, typ: t}
}

// NewScalar allocates an undefined scalar (refcount 1).
func (e *Engine) NewScalar() *Cell { return e.alloc(TypeNull) }

// NewInt allocates an integer scalar.
func (e *Engine) NewInt(v int64) *Cell {
	c := e.alloc(TypeScalar)
	c.iv, c.flags = v, FlagInt
	return c
}

// NewUint allocates an unsigned integer scalar.
func (e *Engine) NewUint(v uint64) *Cell {
	c := e.alloc(TypeScalar)
	c.iv, c.flags = int64(v), FlagInt|FlagUnsigned
	return c
}

// NewFloat allocates a floating point scalar.
func (e *Engine) NewFloat(v float64) *Cell {
	c := e.alloc(TypeScalar)
	c.nv, c.flags = v, FlagFloat
	return c
}

// NewString allocates a string scalar.
func (e *Engine) NewString(s string) *Cell {
	c := e.alloc(TypeScalar)
	c.pv, c.flags = s, FlagString
	return c
}

// NewBool allocates the integer 1 or 0.
func (e *Engine) NewBool(b bool) *Cell {
	if b {
		return e.NewInt(1)
	}
	return e.NewInt(0)
}

// NewArray allocates an empty array.
func (e *Engine) NewArray() *Cell { return e.alloc(TypeArray) }

// NewHash allocates an empty hash.
func (e *Engine) NewHash() *Cell {
	c := e.alloc(TypeHash)
	c.hash = newHashTable()
	return c
}

// NewRefInc allocates a reference to target and increments target.
func (e *Engine) NewRefInc(target *Cell) *Cell {
	return e.NewRefNoInc(e.Inc(target))
}

// NewRefNoInc allocates a reference that takes over one existing reference
// to target.
func (e *Engine) NewRefNoInc(target *Cell) *Cell {
	c := e.alloc(TypeScalar)
	c.rv, c.flags = target, FlagRef
	return c
}

// NewPtrRef stores ptr in a new scalar and returns a reference to it,
// blessed into class unless class is empty.
func (e *Engine) NewPtrRef(class string, ptr any) *Cell {
	c := e.NewScalar()
	e.SetPtrRef(c, class, ptr)
	return c
}

// Copy allocates a new scalar holding a copy of src's value.
func (e *Engine) Copy(src *Cell) *Cell {
	c := e.NewScalar()
	e.SetCell(c, src)
	return c
}

// Inc increments c and returns it.
func (e *Engine) Inc(c *Cell) *Cell {
	if c != nil {
		if c.freed {
			panic(fmt.Sprintf("heap: increment of freed cell %d", c.id))
		}
		c.refcnt++
	}
	return c
}

// Dec decrements c, freeing it when the count reaches zero.
func (e *Engine) Dec(c *Cell) {
	if c == nil || c.freed {
		return
	}
	c.refcnt--
	if c.refcnt > 0 {
		return
	}
	e.free(c)
}

func (e *Engine) free(c *Cell) {
	c.freed = true
	c.refcnt = 0
	e.live--
	for _, mg := range c.magic {
		if mg.Free != nil {
			mg.Free(mg.Data)
		}
	}
	c.magic = nil
	if c.ROK() && c.rv != nil {
		rv := c.rv
		c.rv = nil
		e.Dec(rv)
	}
	elems := c.elems
	c.elems = nil
	for _, el := range elems {
		e.Dec(el)
	}
	if c.hash != nil {
		h := c.hash
		c.hash = newHashTable()
		for _, v := range h.items {
			e.Dec(v)
		}
	}
	c.flags = 0
}

// AddMagic attaches host data to c.
func (e *Engine) AddMagic(c *Cell, data any, free func(any)) *Magic {
	mg := &Magic{Data: data, Free: free}
	c.magic = append(c.magic, mg)
	return mg
}

// -----------------------------------------------------------------------------
// Scalar assignment
// -----------------------------------------------------------------------------

// SetCell copies src's value into dst, like a scalar assignment.
func (e *Engine) SetCell(dst, src *Cell) {
	if dst == src || dst == nil {
		return
	}
	if src == nil || src.typ == TypeNull && !src.OK() {
		dst.clearScalar()
		return
	}
	switch src.typ {
	case TypeArray, TypeHash:
		// containers assign as a reference to themselves
		e.SetRef(dst, src)
		return
	}
	var rv *Cell
	if src.ROK() {
		rv = e.Inc(src.rv)
	}
	dst.clearScalar()
	dst.upgrade()
	dst.iv, dst.nv, dst.pv, dst.ptr = src.iv, src.nv, src.pv, src.ptr
	dst.flags = src.flags
	dst.rv = rv
}

// SetInt stores an integer.
func (e *Engine) SetInt(c *Cell, v int64) {
	c.clearScalar()
	c.upgrade()
	c.iv, c.flags = v, FlagInt
}

// SetUint stores an unsigned integer.
func (e *Engine) SetUint(c *Cell, v uint64) {
	c.clearScalar()
	c.upgrade()
	c.iv, c.flags = int64(v), FlagInt|FlagUnsigned
}

// SetFloat stores a floating point number.
func (e *Engine) SetFloat(c *Cell, v float64) {
	c.clearScalar()
	c.upgrade()
	c.nv, c.flags = v, FlagFloat
}

// SetString stores a string.
func (e *Engine) SetString(c *Cell, s string) {
	c.clearScalar()
	c.upgrade()
	c.pv, c.flags = s, FlagString
}

// SetUndef clears a scalar's value without changing its storage class.
func (e *Engine) SetUndef(c *Cell) { c.clearScalar() }

// SetRef makes c a reference to target, incrementing target.
func (e *Engine) SetRef(c *Cell, target *Cell) {
	e.Inc(target)
	c.clearScalar()
	c.upgrade()
	c.rv, c.flags = target, FlagRef
}

// SetPtrRef makes c a reference to a new scalar holding ptr, blessed into
// class unless class is empty.
func (e *Engine) SetPtrRef(c *Cell, class string, ptr any) {
	inner := e.alloc(TypeScalar)
	inner.ptr = ptr
	inner.flags = FlagInt
	inner.iv = int64(inner.id)
	inner.stash = class
	c.clearScalar()
	c.upgrade()
	c.rv, c.flags = inner, FlagRef
}

// -----------------------------------------------------------------------------
// Blessing and class ancestry
// -----------------------------------------------------------------------------

// Bless marks the referent of ref as an instance of class.
func (e *Engine) Bless(ref *Cell, class string) error {
	if !ref.ROK() || ref.rv == nil {
		return errors.New("can't bless non-reference value")
	}
	ref.rv.stash = class
	e.Stash(class, true)
	return nil
}

// ClassOf returns the class a reference's referent is blessed into.
func (e *Engine) ClassOf(ref *Cell) string {
	if ref == nil || !ref.ROK() || ref.rv == nil {
		return ""
	}
	return ref.rv.stash
}

// ISA returns the base class list of a package, in registration order.
func (e *Engine) ISA(class string) []string {
	av := e.GetArray(class+"::ISA", false)
	if av == nil {
		return nil
	}
	out := make([]string, 0, len(av.elems))
	for _, el := range av.elems {
		if el != nil {
			out = append(out, el.PV())
		}
	}
	return out
}

// Linearize returns class followed by its ancestors, depth-first in
// registration order, each package listed once.
func (e *Engine) Linearize(class string) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
		for _, base := range e.ISA(name) {
			walk(base)
		}
	}
	walk(class)
	return out
}

// DerivedFrom reports whether sv is a blessed reference (or class name)
// that is, or inherits from, class.
func (e *Engine) DerivedFrom(sv *Cell, class string) bool {
	var from string
	switch {
	case sv == nil:
		return false
	case sv.ROK():
		from = e.ClassOf(sv)
	case sv.POK():
		from = sv.pv
	}
	if from == "" {
		return false
	}
	for _, name := range e.Linearize(from) {
		if name == class {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Extension data and error channel
// -----------------------------------------------------------------------------

// Ext returns the value stored in the named extension slot.
func (e *Engine) Ext(key string) (any, bool) {
	v, ok := e.ext[key]
	return v, ok
}

// SetExt stores v in the named extension slot, replacing any previous value.
func (e *Engine) SetExt(key string, v any) { e.ext[key] = v }

// DeleteExt clears the named extension slot.
func (e *Engine) DeleteExt(key string) { delete(e.ext, key) }

// ErrSV is the engine's error variable. It is empty after a successful
// trapped call and holds the message after a failed one.
func (e *Engine) ErrSV() *Cell { return e.errsv }

// SetEvaluator installs the source evaluator.
func (e *Engine) SetEvaluator(ev Evaluator) { e.evaluator = ev }

// Evaluator returns the installed evaluator, if any.
func (e *Engine) Evaluator() Evaluator { return e.evaluator }

// Eval runs src in package pkg through the installed evaluator. Any error
// is also recorded in ErrSV.
func (e *Engine) Eval(src, pkg, file string) error {
	if e.evaluator == nil {
		return errors.New("heap: no evaluator installed")
	}
	if pkg == "" {
		pkg = "main"
	}
	e.Enter()
	defer e.Leave()
	err := e.evaluator.Eval(e, src, pkg, file)
	if err != nil {
		e.SetString(e.errsv, err.Error())
		return err
	}
	e.SetString(e.errsv, "")
	return nil
}

// Destroy frees every package variable. The engine must not be used after.
func (e *Engine) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	for len(e.tmpsFloor) > 0 {
		e.Leave()
	}
	e.FreeTmps()
	for len(e.stack) > 0 {
		e.stack = e.stack[:len(e.stack)-1]
	}
	for _, name := range e.StashNames() {
		e.stashes[name].clear(e)
	}
	e.Dec(e.errsv)
	log.Infof("engine destroyed, %d cells still live", e.live)
}
