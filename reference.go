package hostbind

import (
	"fmt"

	"github.com/feather-lang/hostbind/heap"
)

// Reference is a Scalar whose value points at another cell.
type Reference struct {
	Scalar
}

// NewReference returns a reference to the cell behind h. The referent's
// count rises by exactly one; h keeps its own reference.
func NewReference(h Handle) *Reference {
	e := h.Engine()
	return &Reference{Scalar{e: e, sv: e.NewRefInc(h.Cell())}}
}

// AdoptReference takes over the caller's reference to an existing
// reference cell. The referent's count is not touched.
func AdoptReference(e *heap.Engine, rv *heap.Cell) (*Reference, error) {
	if rv == nil || !rv.ROK() {
		return nil, fmt.Errorf("%w: cannot build a reference from %s", ErrConversion, describe(rv))
	}
	return &Reference{Scalar{e: e, sv: rv}}, nil
}

// Referent returns the referenced cell. The reference keeps ownership.
func (r *Reference) Referent() *heap.Cell { return r.sv.RV() }

// Clone returns a new reference to the same referent.
func (r *Reference) Clone() *Reference {
	return &Reference{Scalar{e: r.e, sv: r.e.Copy(r.sv)}}
}

// Move transfers the reference cell to a new handle.
func (r *Reference) Move() *Reference {
	return &Reference{*r.Scalar.Move()}
}

// Deref returns a handle sharing the referenced scalar. Assigning through
// it is observed by every reference to the same cell.
func (r *Reference) Deref() (*Scalar, error) {
	rv := r.sv.RV()
	if rv == nil || rv.Type() >= heap.TypeArray {
		return nil, fmt.Errorf("%w: %s is not a scalar reference", ErrConversion, describe(r.sv))
	}
	return &Scalar{e: r.e, sv: r.e.Inc(rv)}, nil
}

// Bless marks the referent as an instance of class.
func (r *Reference) Bless(class string) error {
	return r.e.Bless(r.sv, class)
}
