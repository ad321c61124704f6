package hostbind

import (
	"github.com/feather-lang/hostbind/heap"
)

// Scalar owns one reference to a scalar cell.
//
// Close releases that reference. A Scalar is never left without a cell
// while open: Move and Release hand the cell off and replace it with a
// fresh undefined one.
type Scalar struct {
	e  *heap.Engine
	sv *heap.Cell
}

// NewScalar allocates a scalar holding v. Accepted values are booleans,
// signed and unsigned integers (including named integer types), floats,
// strings, registered pointers, other handles and nil for undef.
func NewScalar(e *heap.Engine, v any) (*Scalar, error) {
	c, err := newCell(e, v)
	if err != nil {
		return nil, err
	}
	return &Scalar{e: e, sv: c}, nil
}

// Undef allocates an undefined scalar.
func Undef(e *heap.Engine) *Scalar {
	return &Scalar{e: e, sv: e.NewScalar()}
}

// CopyScalar allocates an independent copy of sv.
func CopyScalar(e *heap.Engine, sv *heap.Cell) *Scalar {
	return &Scalar{e: e, sv: e.Copy(sv)}
}

// AdoptScalar takes over the caller's reference to sv without incrementing
// it.
func AdoptScalar(e *heap.Engine, sv *heap.Cell) *Scalar {
	if sv == nil {
		sv = e.NewScalar()
	}
	return &Scalar{e: e, sv: sv}
}

func (s *Scalar) Cell() *heap.Cell { return s.sv }
func (s *Scalar) Engine() *heap.Engine { return s.e }

// Close releases the handle's reference. Closing twice is a no-op.
func (s *Scalar) Close() {
	if s.sv != nil {
		s.e.Dec(s.sv)
		s.sv = nil
	}
}

// Clone returns a handle to an independent copy of the value. Cloning a
// reference shares the referent.
func (s *Scalar) Clone() *Scalar {
	return CopyScalar(s.e, s.sv)
}

// Move transfers the cell to a new handle, leaving s with a fresh undefined
// cell. No reference count changes.
func (s *Scalar) Move() *Scalar {
	moved := &Scalar{e: s.e, sv: s.sv}
	s.sv = s.e.NewScalar()
	return moved
}

// Release gives up ownership of the cell and returns it; the caller now
// owns that reference.
func (s *Scalar) Release() *heap.Cell {
	sv := s.sv
	s.sv = s.e.NewScalar()
	return sv
}

// Reset releases the current cell and takes over the caller's reference to
// sv without incrementing it.
func (s *Scalar) Reset(sv *heap.Cell) {
	old := s.sv
	if sv == nil {
		sv = s.e.NewScalar()
	}
	s.sv = sv
	if old != sv {
		s.e.Dec(old)
	}
}

func (s *Scalar) IsNull() bool { return !s.sv.OK() }
func (s *Scalar) IsInteger() bool { return s.sv.IOK() }
func (s *Scalar) IsFloat() bool { return s.sv.NOK() }
func (s *Scalar) IsString() bool { return s.sv.POK() }
func (s *Scalar) IsReference() bool { return s.sv.ROK() }

// IsScalarRef reports whether the value references a scalar.
func (s *Scalar) IsScalarRef() bool {
	return s.sv.ROK() && s.sv.RV().Type() < heap.TypeArray
}

// IsArrayRef reports whether the value references an array.
func (s *Scalar) IsArrayRef() bool {
	return s.sv.ROK() && s.sv.RV().Type() == heap.TypeArray
}

// IsHashRef reports whether the value references a hash.
func (s *Scalar) IsHashRef() bool {
	return s.sv.ROK() && s.sv.RV().Type() == heap.TypeHash
}

func (s *Scalar) Int() int64 { return s.sv.IV() }
func (s *Scalar) Uint() uint64 { return s.sv.UV() }
func (s *Scalar) Float() float64 { return s.sv.NV() }
func (s *Scalar) String() string { return s.sv.PV() }
func (s *Scalar) Bool() bool { return s.sv.True() }
func (s *Scalar) Refcount() int { return s.sv.Refcnt() }
func (s *Scalar) ClassName() string {
	return s.e.ClassOf(s.sv)
}

// Set assigns v to the cell in place. Every handle sharing the cell sees
// the new value.
func (s *Scalar) Set(v any) error {
	return setCell(s.e, s.sv, v)
}
