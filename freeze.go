package hostbind

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/feather-lang/hostbind/heap"
)

// maxDepth bounds nesting when converting cell trees, which also stops
// reference cycles.
const maxDepth = 64

var (
	freezeMode cbor.EncMode
	thawMode   cbor.DecMode
)

func init() {
	var err error
	freezeMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	thawMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeFor[map[string]any](),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Freeze snapshots the value behind h as CBOR. Arrays and hashes, and
// references to them, are encoded recursively; blessed Go objects cannot be
// frozen.
func Freeze(h Handle) ([]byte, error) {
	v, err := plainValue(h.Engine(), handleCell(h), 0, false)
	if err != nil {
		return nil, err
	}
	return freezeMode.Marshal(v)
}

// Thaw rebuilds a frozen value. Containers come back as references, so the
// result is always a single scalar.
func Thaw(e *heap.Engine, data []byte) (*Scalar, error) {
	var v any
	if err := thawMode.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConversion, err)
	}
	return NewScalar(e, v)
}

// nativeValue converts a cell into plain Go values, keeping Go object
// pointers as they are.
func nativeValue(e *heap.Engine, c *heap.Cell, depth int) (any, error) {
	return plainValue(e, c, depth, true)
}

func plainValue(e *heap.Engine, c *heap.Cell, depth int, keepPtr bool) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: value nested more than %d levels", ErrConversion, maxDepth)
	}
	if c == nil {
		return nil, nil
	}

	switch c.Type() {
	case heap.TypeArray:
		out := make([]any, e.ArrayLen(c))
		for i := range out {
			v, err := plainValue(e, e.ArrayFetch(c, i, false), depth+1, keepPtr)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case heap.TypeHash:
		out := make(map[string]any, e.HashLen(c))
		for _, k := range e.HashKeys(c) {
			v, err := plainValue(e, e.HashFetch(c, k, false), depth+1, keepPtr)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}

	switch {
	case c.ROK():
		rv := c.RV()
		if ptr := rv.Ptr(); ptr != nil {
			if keepPtr {
				return ptr, nil
			}
			return nil, fmt.Errorf("%w: cannot freeze %s", ErrConversion, describe(c))
		}
		return plainValue(e, rv, depth+1, keepPtr)
	case c.IOK():
		if c.IsUnsigned() {
			return c.UV(), nil
		}
		return c.IV(), nil
	case c.NOK():
		return c.NV(), nil
	case c.POK():
		return c.PV(), nil
	}
	return nil, nil
}
