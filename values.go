package hostbind

import (
	"fmt"
	"reflect"

	"github.com/feather-lang/hostbind/heap"
)

// Handle is implemented by every value wrapper in this package.
type Handle interface {
	// Cell returns the underlying heap cell. The handle keeps ownership.
	Cell() *heap.Cell
	// Engine returns the engine the cell belongs to.
	Engine() *heap.Engine
}

// newCell converts a Go value into a new cell owned by the caller.
//
// Containers become references: *Array, *Hash, slices and maps with string
// keys all produce a single reference cell. Scalars and proxies are copied.
func newCell(e *heap.Engine, v any) (*heap.Cell, error) {
	switch v := v.(type) {
	case nil:
		return e.NewScalar(), nil
	case *heap.Cell:
		return e.Copy(v), nil
	case *Scalar:
		return e.Copy(v.sv), nil
	case *Reference:
		return e.Copy(v.sv), nil
	case *Array:
		return e.NewRefInc(v.av), nil
	case *Hash:
		return e.NewRefInc(v.hv), nil
	case Proxy:
		return e.Copy(v.fetch(false)), nil
	case bool:
		return e.NewBool(v), nil
	case string:
		return e.NewString(v), nil
	case []byte:
		return e.NewString(string(v)), nil
	case int:
		return e.NewInt(int64(v)), nil
	case int64:
		return e.NewInt(v), nil
	case uint64:
		return e.NewUint(v), nil
	case float64:
		return e.NewFloat(v), nil
	}
	return reflectCell(e, reflect.ValueOf(v))
}

func reflectCell(e *heap.Engine, rv reflect.Value) (*heap.Cell, error) {
	if rv.Type().Implements(nullableType) {
		if !rv.Field(1).Bool() {
			return e.NewScalar(), nil
		}
		return reflectCell(e, rv.Field(0))
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.NewInt(rv.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return e.NewUint(rv.Uint()), nil

	case reflect.Float32, reflect.Float64:
		return e.NewFloat(rv.Float()), nil

	case reflect.String:
		return e.NewString(rv.String()), nil

	case reflect.Bool:
		return e.NewBool(rv.Bool()), nil

	case reflect.Pointer:
		if rv.IsNil() {
			return e.NewScalar(), nil
		}
		return pointerCell(e, rv), nil

	case reflect.Interface:
		if rv.IsNil() {
			return e.NewScalar(), nil
		}
		return newCell(e, rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		av := e.NewArray()
		for j := 0; j < rv.Len(); j++ {
			c, err := newCell(e, rv.Index(j).Interface())
			if err != nil {
				e.Dec(av)
				return nil, fmt.Errorf("element %d: %w", j, err)
			}
			e.ArrayPush(av, c)
		}
		return e.NewRefNoInc(av), nil

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		hv := e.NewHash()
		iter := rv.MapRange()
		for iter.Next() {
			c, err := newCell(e, iter.Value().Interface())
			if err != nil {
				e.Dec(hv)
				return nil, fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
			e.HashStore(hv, iter.Key().String(), c)
		}
		return e.NewRefNoInc(hv), nil
	}

	return nil, fmt.Errorf("%w: unsupported Go type %s", ErrConversion, rv.Type())
}

// pointerCell wraps a non-nil Go pointer in a reference blessed into the
// class registered for its type. Unregistered pointers stay unblessed.
func pointerCell(e *heap.Engine, rv reflect.Value) *heap.Cell {
	class, ok := TypeMapOf(e).Class(rv.Type())
	if !ok {
		log.Debugf("pushing unregistered pointer type %s unblessed", rv.Type())
	}
	return e.NewPtrRef(class, rv.Interface())
}

// setCell assigns a Go value to an existing cell in place.
func setCell(e *heap.Engine, dst *heap.Cell, v any) error {
	c, err := newCell(e, v)
	if err != nil {
		return err
	}
	e.SetCell(dst, c)
	e.Dec(c)
	return nil
}

// handleCell returns the cell behind h without creating missing container
// elements.
func handleCell(h Handle) *heap.Cell {
	if p, ok := h.(Proxy); ok {
		return p.fetch(false)
	}
	return h.Cell()
}

// describe names the kind of a cell for error messages.
func describe(c *heap.Cell) string {
	switch {
	case c == nil || !c.OK() && c.Type() < heap.TypeArray:
		return "undef"
	case c.Type() == heap.TypeArray:
		return "an array"
	case c.Type() == heap.TypeHash:
		return "a hash"
	case c.ROK():
		rv := c.RV()
		kind := "scalar"
		switch rv.Type() {
		case heap.TypeArray:
			kind = "array"
		case heap.TypeHash:
			kind = "hash"
		}
		if rv.Stash() != "" {
			return fmt.Sprintf("a reference to a %s object", rv.Stash())
		}
		return "a reference to a " + kind
	case c.IOK():
		return "an integer"
	case c.NOK():
		return "a floating point"
	default:
		return "a string"
	}
}
