package heap

import (
	"sort"
	"strings"
)

// XSub is the native entry point of a subroutine. Arguments occupy
// stack[ax:ax+items]; the sub places its n results at stack[ax:ax+n] and
// returns n.
type XSub func(e *Engine, cv *Sub, ax, items int) (int, error)

// Sub is a named subroutine.
type Sub struct {
	Package string
	Name    string
	XSub    XSub
	// Any is host data for the entry point.
	Any any
	// Const, when set, makes the sub return a copy of this value.
	Const *Cell
	File  string
}

// FullName returns the package-qualified name.
func (s *Sub) FullName() string { return s.Package + "::" + s.Name }

// Stash is a package namespace.
type Stash struct {
	Name    string
	scalars map[string]*Cell
	arrays  map[string]*Cell
	hashes  map[string]*Cell
	subs    map[string]*Sub
}

func newStash(name string) *Stash {
	return &Stash{
		Name:    name,
		scalars: make(map[string]*Cell),
		arrays:  make(map[string]*Cell),
		hashes:  make(map[string]*Cell),
		subs:    make(map[string]*Sub),
	}
}

// SubNames lists the subroutines defined in the package.
func (s *Stash) SubNames() []string {
	names := make([]string, 0, len(s.subs))
	for n := range s.subs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Stash) clear(e *Engine) {
	for k, c := range s.scalars {
		delete(s.scalars, k)
		e.Dec(c)
	}
	for k, c := range s.arrays {
		delete(s.arrays, k)
		e.Dec(c)
	}
	for k, c := range s.hashes {
		delete(s.hashes, k)
		e.Dec(c)
	}
	for k, sub := range s.subs {
		delete(s.subs, k)
		if sub.Const != nil {
			e.Dec(sub.Const)
		}
	}
}

// SplitName splits "a::b::name" into package "a::b" and "name". Names
// without a package qualifier belong to def.
func SplitName(full, def string) (pkg, name string) {
	full = strings.TrimPrefix(full, "::")
	idx := strings.LastIndex(full, "::")
	if idx < 0 {
		if def == "" {
			def = "main"
		}
		return def, full
	}
	pkg = full[:idx]
	if pkg == "" {
		pkg = "main"
	}
	return strings.TrimPrefix(pkg, "main::"), full[idx+2:]
}

// Stash returns the named package, creating it when create is set.
func (e *Engine) Stash(name string, create bool) *Stash {
	name = strings.TrimPrefix(name, "::")
	if name == "" {
		name = "main"
	}
	name = strings.TrimPrefix(name, "main::")
	st, ok := e.stashes[name]
	if !ok && create {
		st = newStash(name)
		e.stashes[name] = st
	}
	return st
}

// StashNames lists every known package.
func (e *Engine) StashNames() []string {
	names := make([]string, 0, len(e.stashes))
	for n := range e.stashes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetScalar returns the package scalar with the qualified name. The engine
// keeps ownership of the returned cell.
func (e *Engine) GetScalar(full string, create bool) *Cell {
	pkg, name := SplitName(full, "main")
	st := e.Stash(pkg, create)
	if st == nil {
		return nil
	}
	c, ok := st.scalars[name]
	if !ok && create {
		c = e.NewScalar()
		st.scalars[name] = c
	}
	return c
}

// GetArray returns the package array with the qualified name.
func (e *Engine) GetArray(full string, create bool) *Cell {
	pkg, name := SplitName(full, "main")
	st := e.Stash(pkg, create)
	if st == nil {
		return nil
	}
	c, ok := st.arrays[name]
	if !ok && create {
		c = e.NewArray()
		st.arrays[name] = c
	}
	return c
}

// GetHash returns the package hash with the qualified name.
func (e *Engine) GetHash(full string, create bool) *Cell {
	pkg, name := SplitName(full, "main")
	st := e.Stash(pkg, create)
	if st == nil {
		return nil
	}
	c, ok := st.hashes[name]
	if !ok && create {
		c = e.NewHash()
		st.hashes[name] = c
	}
	return c
}

// GetSub returns the subroutine with the qualified name, or nil.
func (e *Engine) GetSub(full string) *Sub {
	pkg, name := SplitName(full, "main")
	st := e.Stash(pkg, false)
	if st == nil {
		return nil
	}
	return st.subs[name]
}

// DefineSub installs fn as the native entry point for the qualified name,
// replacing any previous definition.
func (e *Engine) DefineSub(full string, fn XSub, file string) *Sub {
	pkg, name := SplitName(full, "main")
	st := e.Stash(pkg, true)
	sub := &Sub{Package: pkg, Name: name, XSub: fn, File: file}
	if old, ok := st.subs[name]; ok && old.Const != nil {
		e.Dec(old.Const)
	}
	st.subs[name] = sub
	return sub
}

// DefineConst installs a sub returning a copy of value. The sub takes over
// one reference to value.
func (e *Engine) DefineConst(full string, value *Cell) *Sub {
	pkg, name := SplitName(full, "main")
	st := e.Stash(pkg, true)
	sub := &Sub{Package: pkg, Name: name, Const: value}
	if old, ok := st.subs[name]; ok && old.Const != nil {
		e.Dec(old.Const)
	}
	st.subs[name] = sub
	return sub
}
