package hostbind

import "reflect"

// Nullable is a parameter or result that may be absent. As a parameter it
// accepts undef, the empty string or 0 as "not set", and otherwise reads T.
//
//	pkg.Add("attach", func(c *Counter, parent hostbind.Nullable[*Counter]) {
//	    if parent.Valid {
//	        c.parent = parent.Value
//	    }
//	})
type Nullable[T any] struct {
	Value T
	Valid bool
}

// Some returns a set Nullable holding v.
func Some[T any](v T) Nullable[T] { return Nullable[T]{Value: v, Valid: true} }

func (Nullable[T]) nullableElem() reflect.Type { return reflect.TypeFor[T]() }

type nullable interface {
	nullableElem() reflect.Type
}

var nullableType = reflect.TypeFor[nullable]()
