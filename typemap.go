package hostbind

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/feather-lang/hostbind/heap"
)

const typeMapSlot = "hostbind.typemap"

// TypeMap associates Go pointer types with class names. One TypeMap lives
// in each engine's extension data, so every package binding into the same
// engine sees the same classes and ids.
type TypeMap struct {
	classes map[reflect.Type]string
	types   map[string]reflect.Type
	ids     map[reflect.Type]uint64
	nextID  uint64
}

// TypeMapOf returns the engine's type map, creating it on first use.
func TypeMapOf(e *heap.Engine) *TypeMap {
	if v, ok := e.Ext(typeMapSlot); ok {
		if m, ok := v.(*TypeMap); ok {
			return m
		}
	}
	m := &TypeMap{
		classes: make(map[reflect.Type]string),
		types:   make(map[string]reflect.Type),
		ids:     make(map[reflect.Type]uint64),
	}
	e.SetExt(typeMapSlot, m)
	return m
}

// Register maps t to class. Registering the same pair again is a no-op;
// remapping a type or a class is an error.
func (m *TypeMap) Register(t reflect.Type, class string) error {
	if t.Kind() != reflect.Pointer {
		return fmt.Errorf("register %s: class types must be pointers", t)
	}
	if prev, ok := m.classes[t]; ok {
		if prev == class {
			return nil
		}
		return fmt.Errorf("register %s: already registered as %q", t, prev)
	}
	if prev, ok := m.types[class]; ok {
		return fmt.Errorf("register %s: class %q already belongs to %s", t, class, prev)
	}
	m.classes[t] = class
	m.types[class] = t
	m.ID(t)
	log.Debugf("registered %s as %s", t, class)
	return nil
}

// Class returns the class name registered for t.
func (m *TypeMap) Class(t reflect.Type) (string, bool) {
	class, ok := m.classes[t]
	return class, ok
}

// Type returns the Go type registered for class.
func (m *TypeMap) Type(class string) (reflect.Type, bool) {
	t, ok := m.types[class]
	return t, ok
}

// ID returns the id issued for t, issuing the next one on first request.
// Ids start at 1 and are never reused within an engine.
func (m *TypeMap) ID(t reflect.Type) uint64 {
	if id, ok := m.ids[t]; ok {
		return id
	}
	m.nextID++
	m.ids[t] = m.nextID
	return m.nextID
}

// Classes lists the registered class names.
func (m *TypeMap) Classes() []string {
	out := make([]string, 0, len(m.types))
	for c := range m.types {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// TypeID returns the engine-wide id of T.
func TypeID[T any](e *heap.Engine) uint64 {
	return TypeMapOf(e).ID(reflect.TypeFor[T]())
}

// RegisterType maps the pointer type T to class, so values of T pushed to
// the interpreter are blessed into class and can be read back as T.
func RegisterType[T any](e *heap.Engine, class string) error {
	return TypeMapOf(e).Register(reflect.TypeFor[T](), class)
}

// NewClass registers T as class and returns the class package, ready for
// methods.
//
//	type Counter struct{ n int }
//
//	pkg, _ := hostbind.NewClass[*Counter](e, "Counter")
//	pkg.Add("new", func(class string) *Counter { return &Counter{} })
//	pkg.Add("incr", func(c *Counter) int { c.n++; return c.n })
func NewClass[T any](e *heap.Engine, class string) (*Package, error) {
	if err := RegisterType[T](e, class); err != nil {
		return nil, err
	}
	return NewPackage(e, class), nil
}

// readPointer extracts a Go pointer of type t from an object reference.
// The object's class must be t's class or derive from it. An object of a
// derived class is accepted when its Go value embeds t.
func readPointer(e *heap.Engine, c *heap.Cell, t reflect.Type) (reflect.Value, error) {
	class, ok := TypeMapOf(e).Class(t)
	if !ok {
		return reflect.Value{}, ErrUnregisteredType
	}
	if c == nil || !c.ROK() || c.RV().Ptr() == nil {
		return reflect.Value{}, ErrTypeMismatch
	}
	if !e.DerivedFrom(c, class) {
		return reflect.Value{}, ErrTypeMismatch
	}
	v := reflect.ValueOf(c.RV().Ptr())
	if v.Type() == t {
		return v, nil
	}
	if up, ok := embedded(v, t, 0); ok {
		return up, nil
	}
	return reflect.Value{}, ErrTypeMismatch
}

// embedded searches the exported embedded fields of the struct v points to
// for a value of type t, or an addressable t.Elem().
func embedded(v reflect.Value, t reflect.Type, depth int) (reflect.Value, bool) {
	if depth > 8 || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	s := v.Elem()
	for i := 0; i < s.NumField(); i++ {
		sf := s.Type().Field(i)
		if !sf.Anonymous || !sf.IsExported() {
			continue
		}
		f := s.Field(i)
		switch {
		case f.Type() == t:
			if f.Kind() == reflect.Pointer && f.IsNil() {
				continue
			}
			return f, true
		case f.Type() == t.Elem():
			return f.Addr(), true
		}
		next := f
		if f.Kind() == reflect.Struct {
			next = f.Addr()
		}
		if up, ok := embedded(next, t, depth+1); ok {
			return up, true
		}
	}
	return reflect.Value{}, false
}
