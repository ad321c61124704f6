package hostbind_test

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/feather-lang/hostbind"
	"github.com/feather-lang/hostbind/config"
	"github.com/feather-lang/hostbind/heap"
	"github.com/feather-lang/hostbind/internal/script"
)

func newInterp(t *testing.T, opts ...hostbind.Option) *hostbind.Interp {
	t.Helper()
	interp, err := hostbind.New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { interp.Close() })
	return interp
}

// =============================================================================
// Handles
// =============================================================================

func TestScalarRoundTrip(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	t.Run("int", func(t *testing.T) {
		s, _ := hostbind.NewScalar(e, -42)
		defer s.Close()
		if !s.IsInteger() || s.Int() != -42 {
			t.Errorf("got %d (integer=%v), want -42", s.Int(), s.IsInteger())
		}
	})
	t.Run("named int", func(t *testing.T) {
		type port uint16
		s, _ := hostbind.NewScalar(e, port(8080))
		defer s.Close()
		if s.Uint() != 8080 {
			t.Errorf("got %d, want 8080", s.Uint())
		}
	})
	t.Run("uint64", func(t *testing.T) {
		s, _ := hostbind.NewScalar(e, uint64(math.MaxUint64))
		defer s.Close()
		if s.Uint() != math.MaxUint64 {
			t.Errorf("got %d, want %d", s.Uint(), uint64(math.MaxUint64))
		}
	})
	t.Run("float", func(t *testing.T) {
		s, _ := hostbind.NewScalar(e, 2.5)
		defer s.Close()
		if !s.IsFloat() || s.Float() != 2.5 {
			t.Errorf("got %v, want 2.5", s.Float())
		}
	})
	t.Run("string", func(t *testing.T) {
		s, _ := hostbind.NewScalar(e, "héllo")
		defer s.Close()
		if !s.IsString() || s.String() != "héllo" {
			t.Errorf("got %q, want %q", s.String(), "héllo")
		}
	})
	t.Run("bool", func(t *testing.T) {
		yes, _ := hostbind.NewScalar(e, true)
		no, _ := hostbind.NewScalar(e, false)
		defer yes.Close()
		defer no.Close()
		if !yes.Bool() || no.Bool() {
			t.Errorf("got %v/%v, want true/false", yes.Bool(), no.Bool())
		}
	})
	t.Run("undef", func(t *testing.T) {
		s, _ := hostbind.NewScalar(e, nil)
		defer s.Close()
		if !s.IsNull() {
			t.Errorf("nil should produce undef")
		}
	})
	t.Run("unsupported", func(t *testing.T) {
		_, err := hostbind.NewScalar(e, make(chan int))
		if !errors.Is(err, hostbind.ErrConversion) {
			t.Errorf("err = %v, want ErrConversion", err)
		}
	})
}

func TestReferenceCounts(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	s, _ := hostbind.NewScalar(e, 1)
	defer s.Close()
	if s.Refcount() != 1 {
		t.Fatalf("new scalar refcount = %d, want 1", s.Refcount())
	}

	r := hostbind.NewReference(s)
	if s.Refcount() != 2 {
		t.Errorf("after NewReference refcount = %d, want 2", s.Refcount())
	}
	clone := r.Clone()
	if s.Refcount() != 3 {
		t.Errorf("after Clone refcount = %d, want 3", s.Refcount())
	}
	clone.Close()
	clone.Close()
	if s.Refcount() != 2 {
		t.Errorf("after double Close refcount = %d, want 2", s.Refcount())
	}

	moved := r.Move()
	if s.Refcount() != 2 || moved.Referent() != s.Cell() {
		t.Errorf("Move changed counts: refcount = %d", s.Refcount())
	}
	if r.IsReference() {
		t.Errorf("moved-from handle should hold undef")
	}
	r.Close()
	moved.Close()
	if s.Refcount() != 1 {
		t.Errorf("after closing references refcount = %d, want 1", s.Refcount())
	}

	cell := s.Release()
	if cell.Refcnt() != 1 || s.Cell() == cell {
		t.Errorf("Release should hand the cell over untouched")
	}
	adopted := hostbind.AdoptScalar(e, cell)
	adopted.Close()
	if !cell.Freed() {
		t.Errorf("closing the adopting handle should free the cell")
	}
}

func TestDerefSharesReferent(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	s, _ := hostbind.NewScalar(e, "old")
	defer s.Close()
	r := hostbind.NewReference(s)
	defer r.Close()

	d, err := r.Deref()
	if err != nil {
		t.Fatalf("Deref: %v", err)
	}
	defer d.Close()
	d.Set("new")
	if s.String() != "new" {
		t.Errorf("assignment through Deref not visible: %q", s.String())
	}

	a, _ := hostbind.NewArray(e)
	defer a.Close()
	ar := hostbind.NewReference(a)
	defer ar.Close()
	if _, err := ar.Deref(); !errors.Is(err, hostbind.ErrConversion) {
		t.Errorf("Deref of array reference: err = %v, want ErrConversion", err)
	}
}

func TestArrayFromReference(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	h := hostbind.NewHash(e)
	defer h.Close()
	hr := hostbind.NewReference(h)
	defer hr.Close()
	if _, err := hostbind.ArrayFrom(hr); !errors.Is(err, hostbind.ErrConversion) {
		t.Fatalf("ArrayFrom(hash ref): err = %v, want ErrConversion", err)
	}

	a, _ := hostbind.NewArray(e, 1, 2)
	defer a.Close()
	ar := hostbind.NewReference(a)
	defer ar.Close()
	b, err := hostbind.ArrayFrom(ar)
	if err != nil {
		t.Fatalf("ArrayFrom(array ref): %v", err)
	}
	defer b.Close()
	if b.Cell() != a.Cell() {
		t.Errorf("ArrayFrom should share the referenced array")
	}
	if n := a.Cell().Refcnt(); n != 3 {
		t.Errorf("array refcount = %d, want 3", n)
	}
}

func TestContainers(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	a, _ := hostbind.NewArray(e, 1, "two")
	defer a.Close()
	a.Index(4).Set(3.5)
	if a.Len() != 5 {
		t.Fatalf("Len = %d, want 5", a.Len())
	}
	if !a.Index(2).IsNull() || a.Index(-1).Float() != 3.5 {
		t.Errorf("unexpected elements: [2] null=%v, [-1]=%v", a.Index(2).IsNull(), a.Index(-1).Float())
	}
	var got []string
	for _, p := range a.All() {
		got = append(got, p.String())
	}
	if strings.Join(got, ",") != "1,two,,,3.5" {
		t.Errorf("All = %q", got)
	}

	h := hostbind.NewHash(e)
	defer h.Close()
	h.Insert("list", a)
	h.Index("name").Set("x")
	if _, ok := h.At("missing"); ok {
		t.Errorf("At should not find a missing key")
	}
	if h.Exists("missing") {
		t.Errorf("At should not create entries")
	}
	inner, err := h.Index("list").Array()
	if err != nil {
		t.Fatalf("Array(): %v", err)
	}
	defer inner.Close()
	if inner.Cell() != a.Cell() {
		t.Errorf("stored array handle should be kept by reference")
	}

	elem := a.Index(0).Scalar()
	elem.Set(10)
	elem.Close()
	if a.Index(0).Int() != 10 {
		t.Errorf("proxy scalar should share the element")
	}

	h.Remove("name")
	if h.Len() != 1 {
		t.Errorf("Len after Remove = %d, want 1", h.Len())
	}
}

func TestHandlesReleaseCells(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()
	base := e.Live()

	a, _ := hostbind.NewArray(e, 1, []string{"x", "y"}, map[string]int{"k": 1})
	h := hostbind.NewHash(e)
	h.Insert("a", a)
	r := hostbind.NewReference(h)
	clone := a.Clone()

	for _, c := range []interface{ Close() }{clone, r, h, a} {
		c.Close()
	}
	if e.Live() != base {
		t.Errorf("live cells = %d, want %d", e.Live(), base)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	t.Run("scalar", func(t *testing.T) {
		s, _ := hostbind.NewScalar(e, "a")
		defer s.Close()
		c := s.Clone()
		defer c.Close()
		c.Set("b")
		if c.Cell() == s.Cell() || s.String() != "a" {
			t.Errorf("original = %q after changing the clone", s.String())
		}
	})

	inner, _ := hostbind.NewArray(e, 1)
	defer inner.Close()

	tests := []struct {
		name   string
		make   func() (orig, clone hostbind.Handle, closeAll func())
		nested func(h hostbind.Handle) hostbind.Proxy
		plain  func(h hostbind.Handle) hostbind.Proxy
	}{
		{
			name: "array",
			make: func() (hostbind.Handle, hostbind.Handle, func()) {
				a, _ := hostbind.NewArray(e, inner, "x")
				c := a.Clone()
				return a, c, func() { c.Close(); a.Close() }
			},
			nested: func(h hostbind.Handle) hostbind.Proxy { return h.(*hostbind.Array).Index(0) },
			plain:  func(h hostbind.Handle) hostbind.Proxy { return h.(*hostbind.Array).Index(1) },
		},
		{
			name: "hash",
			make: func() (hostbind.Handle, hostbind.Handle, func()) {
				h := hostbind.NewHash(e)
				h.Insert("inner", inner)
				h.Insert("s", "x")
				c := h.Clone()
				return h, c, func() { c.Close(); h.Close() }
			},
			nested: func(h hostbind.Handle) hostbind.Proxy { return h.(*hostbind.Hash).Index("inner") },
			plain:  func(h hostbind.Handle) hostbind.Proxy { return h.(*hostbind.Hash).Index("s") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig, clone, closeAll := tt.make()
			defer closeAll()
			if orig.Cell() == clone.Cell() {
				t.Fatalf("clone shares the container cell")
			}
			got, err := tt.nested(clone).Array()
			if err != nil {
				t.Fatalf("nested element: %v", err)
			}
			defer got.Close()
			if got.Cell() != inner.Cell() {
				t.Errorf("nested reference should share its referent")
			}
			tt.plain(clone).Set("y")
			if v := tt.plain(orig).String(); v != "x" {
				t.Errorf("original element = %q after changing the clone", v)
			}
		})
	}
}

// container is the part of the Array and Hash handle APIs shared by the
// ownership tests.
type container interface {
	Cell() *heap.Cell
	Len() int
	Close()
	Release() *heap.Cell
	Reset(*heap.Cell)
}

func TestContainerOwnership(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	tests := []struct {
		name  string
		make  func() container
		empty func() container
		move  func(c container) container
	}{
		{
			name: "array",
			make: func() container {
				a, _ := hostbind.NewArray(e, 1, 2)
				return a
			},
			empty: func() container {
				a, _ := hostbind.NewArray(e)
				return a
			},
			move: func(c container) container { return c.(*hostbind.Array).Move() },
		},
		{
			name: "hash",
			make: func() container {
				h := hostbind.NewHash(e)
				h.Insert("a", 1)
				h.Insert("b", 2)
				return h
			},
			empty: func() container { return hostbind.NewHash(e) },
			move:  func(c container) container { return c.(*hostbind.Hash).Move() },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := e.Live()
			orig := tt.make()
			cell := orig.Cell()

			moved := tt.move(orig)
			if moved.Cell() != cell || cell.Refcnt() != 1 || orig.Len() != 0 {
				t.Errorf("Move: refcount = %d, moved-from Len = %d", cell.Refcnt(), orig.Len())
			}

			released := moved.Release()
			if released != cell || cell.Refcnt() != 1 || moved.Len() != 0 {
				t.Errorf("Release: refcount = %d", cell.Refcnt())
			}

			adopter := tt.empty()
			adopter.Reset(released)
			if adopter.Cell() != cell || cell.Refcnt() != 1 || adopter.Len() != 2 {
				t.Errorf("Reset: refcount = %d, Len = %d", cell.Refcnt(), adopter.Len())
			}

			adopter.Reset(nil)
			if !cell.Freed() {
				t.Errorf("Reset(nil) should release the previous container")
			}
			if adopter.Len() != 0 {
				t.Errorf("Reset(nil) should leave an empty container, Len = %d", adopter.Len())
			}

			for _, c := range []container{orig, moved, adopter} {
				c.Close()
			}
			if e.Live() != base {
				t.Errorf("live cells = %d, want %d", e.Live(), base)
			}
		})
	}
}

func TestNegativeIndex(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	a, _ := hostbind.NewArray(e, 10, 20, 30)
	defer a.Close()

	before := a.Index(-4)
	if before.Exists() || before.Int() != 0 || !before.IsNull() {
		t.Errorf("index -4 of 3 elements: exists=%v int=%d", before.Exists(), before.Int())
	}
	if err := before.Set(99); !errors.Is(err, hostbind.ErrConversion) {
		t.Errorf("Set(-4): err = %v, want ErrConversion", err)
	}
	s := before.Scalar()
	s.Close()

	var got []string
	for _, p := range a.All() {
		got = append(got, p.String())
	}
	if strings.Join(got, ",") != "10,20,30" {
		t.Errorf("array = %v after writing before the start", got)
	}

	last := a.Index(-1)
	if last.Int() != 30 {
		t.Errorf("index -1 = %d, want 30", last.Int())
	}
	a.PushBack(40)
	if last.Int() != 40 {
		t.Errorf("index -1 after PushBack = %d, want 40", last.Int())
	}
}

// =============================================================================
// Bindings
// =============================================================================

func TestCombineOverloads(t *testing.T) {
	interp := newInterp(t)
	interp.Add("combine", func(a, b int) int { return a + b })
	interp.Add("combine", func(s string) int { return 100 + len(s) })

	if n, err := hostbind.Call[int](interp, "combine", 2, 3); err != nil || n != 5 {
		t.Errorf("combine(2, 3) = %d, %v; want 5", n, err)
	}
	if n, err := hostbind.Call[int](interp, "combine", "abcd"); err != nil || n != 104 {
		t.Errorf("combine(\"abcd\") = %d, %v; want 104", n, err)
	}

	_, err := hostbind.Call[int](interp, "combine", 1)
	if !errors.Is(err, hostbind.ErrScript) {
		t.Fatalf("combine(1): err = %v, want a script error", err)
	}
	for _, want := range []string{"no overload of 'main::combine'", "main::combine(int, int)", "main::combine(string)"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}

	if n := len(interp.NewPackage("main").Bindings("combine")); n != 2 {
		t.Errorf("bindings = %d, want 2", n)
	}
}

func TestVarargShadowing(t *testing.T) {
	catchAll := func(rest *hostbind.Array) string { return "catch-all" }
	single := func(n int) string { return "int" }

	tests := []struct {
		name  string
		first any
		last  any
		one   string
		two   string
	}{
		{"catch-all first", catchAll, single, "catch-all", "catch-all"},
		{"catch-all last", single, catchAll, "int", "catch-all"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interp := newInterp(t)
			interp.Add("pick", tt.first)
			interp.Add("pick", tt.last)

			if got, err := hostbind.Call[string](interp, "pick", 1); err != nil || got != tt.one {
				t.Errorf("pick(1) = %q, %v; want %q", got, err, tt.one)
			}
			if got, err := hostbind.Call[string](interp, "pick", "a", "b"); err != nil || got != tt.two {
				t.Errorf("pick(a, b) = %q, %v; want %q", got, err, tt.two)
			}
		})
	}
}

func TestFailedDispatchDoesNotLeak(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()
	interp.Add("sum", func(a, b int) int { return a + b })
	interp.Add("sum", func(xs []int) int { return len(xs) })
	interp.Add("join", func(sep string, parts *hostbind.Array) string {
		var s []string
		for _, p := range parts.All() {
			s = append(s, p.String())
		}
		return strings.Join(s, sep)
	})
	mixed, _ := hostbind.NewArray(e, 1, "x")
	defer mixed.Close()
	bad := hostbind.NewReference(mixed)
	defer bad.Close()
	nums, _ := hostbind.NewArray(e, 1, 2, 3)
	defer nums.Close()
	good := hostbind.NewReference(nums)
	defer good.Close()
	base := e.Live()

	for range 3 {
		if _, err := hostbind.Call[int](interp, "sum", "x", "y"); err == nil {
			t.Fatal("expected dispatch to fail")
		}
		if _, err := hostbind.Call[int](interp, "sum", bad); err == nil {
			t.Fatal("expected slice element mismatch to fail")
		}
	}
	if n, err := hostbind.Call[int](interp, "sum", good); err != nil || n != 3 {
		t.Errorf("sum(array ref) = %d, %v; want 3", n, err)
	}
	if got, err := hostbind.Call[string](interp, "join", "-", "a", "b"); err != nil || got != "a-b" {
		t.Errorf("join = %q, %v", got, err)
	}
	if e.Live() != base {
		t.Errorf("live cells = %d, want %d", e.Live(), base)
	}
}

func TestArgumentErrors(t *testing.T) {
	interp := newInterp(t)
	interp.Add("repeat", func(s string, n int) string { return strings.Repeat(s, n) })

	_, err := hostbind.Call[string](interp, "repeat", "ab", "x")
	if err == nil || !strings.Contains(err.Error(), "main::repeat: expected argument 2 to be an integer") {
		t.Errorf("err = %v", err)
	}
	_, err = hostbind.Call[string](interp, "repeat", "ab")
	if err == nil || !strings.Contains(err.Error(), "main::repeat: type mismatch: wrong number of arguments") {
		t.Errorf("err = %v", err)
	}
}

func TestHashCaptureNeedsPairs(t *testing.T) {
	interp := newInterp(t)
	interp.Add("opts", func(name string, o *hostbind.Hash) int { return o.Len() })

	if n, err := hostbind.Call[int](interp, "opts", "x", "a", 1, "b", 2); err != nil || n != 2 {
		t.Errorf("opts with pairs = %d, %v; want 2", n, err)
	}
	_, err := hostbind.Call[int](interp, "opts", "x", "a", 1, "b")
	if !errors.Is(err, hostbind.ErrScript) || !strings.Contains(err.Error(), "main::opts: expected argument 4 to be an even number of key/value arguments") {
		t.Errorf("odd pairs: err = %v", err)
	}
}

func TestReturnedHandlesAreReleased(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	bindings := []struct {
		name string
		fn   any
		args []any
	}{
		{"scalar", func() *hostbind.Scalar {
			s, _ := hostbind.NewScalar(e, 7)
			return s
		}, nil},
		{"cell", func() *heap.Cell { return e.NewInt(7) }, nil},
		{"ref", func() *hostbind.Reference {
			s, _ := hostbind.NewScalar(e, 7)
			defer s.Close()
			return hostbind.NewReference(s)
		}, nil},
		{"array", func() *hostbind.Array {
			a, _ := hostbind.NewArray(e, 1, "two", 3.0)
			return a
		}, nil},
		{"hash", func() *hostbind.Hash {
			h := hostbind.NewHash(e)
			h.Insert("k", 1)
			return h
		}, nil},
		{"same", func(s *hostbind.Scalar) *hostbind.Scalar { return s }, []any{5}},
	}
	for _, b := range bindings {
		if err := interp.Add(b.name, b.fn); err != nil {
			t.Fatalf("Add(%s): %v", b.name, err)
		}
	}

	for _, b := range bindings {
		t.Run(b.name, func(t *testing.T) {
			if err := interp.Call(b.name, b.args...); err != nil {
				t.Fatalf("first call: %v", err)
			}
			base := e.Live()
			for range 10 {
				if err := interp.Call(b.name, b.args...); err != nil {
					t.Fatalf("call: %v", err)
				}
			}
			if e.Live() != base {
				t.Errorf("live cells = %d after 10 calls, want %d", e.Live(), base)
			}
		})
	}

	for _, name := range []string{"scalar", "cell"} {
		if n, err := hostbind.Call[int](interp, name); err != nil || n != 7 {
			t.Errorf("%s = %d, %v; want 7", name, n, err)
		}
	}
	if n, err := hostbind.Call[int](interp, "same", 5); err != nil || n != 5 {
		t.Errorf("same = %d, %v; want 5", n, err)
	}
	list, err := hostbind.Call[*hostbind.Array](interp, "array")
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	defer list.Close()
	if list.Len() != 3 || list.Index(1).String() != "two" {
		t.Errorf("array result has %d elements", list.Len())
	}
}

func TestStrictNumeric(t *testing.T) {
	inc := func(n int) int { return n + 1 }

	t.Run("strict", func(t *testing.T) {
		interp := newInterp(t)
		interp.Add("inc", inc)
		if _, err := hostbind.Call[int](interp, "inc", "41"); err == nil {
			t.Errorf("a string should not be read as an integer")
		}
	})
	t.Run("loose", func(t *testing.T) {
		interp := newInterp(t, hostbind.WithStrictNumeric(false))
		interp.Add("inc", inc)
		if n, err := hostbind.Call[int](interp, "inc", "41"); err != nil || n != 42 {
			t.Errorf("inc(\"41\") = %d, %v; want 42", n, err)
		}
		if _, err := hostbind.Call[int](interp, "inc", "forty"); err == nil {
			t.Errorf("a non-numeric string should still be rejected")
		}
	})
}

func TestPushArraySemantics(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()
	interp.Add("kinds", func(items ...*heap.Cell) []string {
		out := make([]string, len(items))
		for i, c := range items {
			switch {
			case c.IOK():
				out[i] = "int:" + c.PV()
			case c.NOK():
				out[i] = "float:" + c.PV()
			default:
				out[i] = "string:" + c.PV()
			}
		}
		return out
	})

	a, _ := hostbind.NewArray(e, 1, "two", 3.0)
	defer a.Close()
	res, err := hostbind.Call[*hostbind.Array](interp, "kinds", a)
	if err != nil {
		t.Fatalf("kinds: %v", err)
	}
	defer res.Close()

	var got []string
	for _, p := range res.All() {
		got = append(got, p.String())
	}
	if strings.Join(got, " ") != "int:1 string:two float:3" {
		t.Errorf("kinds = %v", got)
	}

	interp.Eval(`sub count { return scalar(@_) }`)
	if n, err := hostbind.Call[int](interp, "count", a, []int{4, 5}); err != nil || n != 5 {
		t.Errorf("count = %d, %v; want 5", n, err)
	}
}

func TestScalarParamAssignsThrough(t *testing.T) {
	interp := newInterp(t)
	interp.Add("bump", func(s *hostbind.Scalar) { s.Set(s.Int() + 1) })

	if err := interp.Eval(`our $x = 1; bump(\$x); bump($x);`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	x := interp.Var("main::x")
	defer x.Close()
	if x.Int() != 3 {
		t.Errorf("$x = %d, want 3", x.Int())
	}
}

func TestNullable(t *testing.T) {
	interp := newInterp(t)
	interp.Add("greet", func(name hostbind.Nullable[string]) string {
		if !name.Valid {
			return "hello, stranger"
		}
		return "hello, " + name.Value
	})
	interp.Add("lookup", func(key string) hostbind.Nullable[int] {
		if key == "answer" {
			return hostbind.Some(42)
		}
		return hostbind.Nullable[int]{}
	})

	if got, _ := hostbind.Call[string](interp, "greet", nil); got != "hello, stranger" {
		t.Errorf("greet(undef) = %q", got)
	}
	if got, _ := hostbind.Call[string](interp, "greet", "ann"); got != "hello, ann" {
		t.Errorf("greet(ann) = %q", got)
	}
	if got, err := hostbind.Call[hostbind.Nullable[int]](interp, "lookup", "answer"); err != nil || !got.Valid || got.Value != 42 {
		t.Errorf("lookup(answer) = %+v, %v", got, err)
	}
	if got, err := hostbind.Call[hostbind.Nullable[int]](interp, "lookup", "other"); err != nil || got.Valid {
		t.Errorf("lookup(other) = %+v, %v", got, err)
	}
}

func TestConstAndErrors(t *testing.T) {
	interp := newInterp(t)
	pkg := interp.NewPackage("Math")
	pkg.AddConst("PI", 3.25)
	pkg.Add("div", func(a, b int) (int, error) {
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a / b, nil
	})

	if pi, err := hostbind.Call[float64](interp, "Math::PI"); err != nil || pi != 3.25 {
		t.Errorf("Math::PI = %v, %v", pi, err)
	}
	if n, err := hostbind.Call[int](interp, "Math::div", 9, 3); err != nil || n != 3 {
		t.Errorf("div(9, 3) = %d, %v", n, err)
	}
	_, err := hostbind.Call[int](interp, "Math::div", 1, 0)
	var se *hostbind.ScriptError
	if !errors.As(err, &se) || se.Op != "Math::div" || !strings.Contains(se.Msg, "division by zero") {
		t.Errorf("div(1, 0): err = %v", err)
	}
	if err := interp.Eval(`my $r = eval { Math::div(1, 0) }; die "trapped: $@" unless defined $r;`); err == nil ||
		!strings.Contains(err.Error(), "trapped: division by zero") {
		t.Errorf("script should trap binding errors, got %v", err)
	}
}

// =============================================================================
// Classes
// =============================================================================

type Point struct{ X, Y int }

type Animal struct{ Name string }

type Puppy struct {
	Animal
	Tricks int
}

func TestPointerRoundTrip(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()
	hostbind.RegisterType[*Point](e, "Point")
	hostbind.RegisterType[*Animal](e, "Animal")

	p := &Point{1, 2}
	s, err := hostbind.NewScalar(e, p)
	if err != nil {
		t.Fatalf("NewScalar: %v", err)
	}
	defer s.Close()
	if s.ClassName() != "Point" {
		t.Errorf("class = %q, want Point", s.ClassName())
	}

	got, err := hostbind.As[*Point](s)
	if err != nil || got != p {
		t.Errorf("As[*Point] = %p, %v; want %p", got, err, p)
	}
	if _, err := hostbind.As[*Animal](s); !errors.Is(err, hostbind.ErrTypeMismatch) {
		t.Errorf("As[*Animal] on a Point: err = %v, want ErrTypeMismatch", err)
	}
	if _, err := hostbind.As[*Puppy](s); !errors.Is(err, hostbind.ErrUnregisteredType) {
		t.Errorf("As[*Puppy]: err = %v, want ErrUnregisteredType", err)
	}

	loose, _ := hostbind.NewScalar(e, &Puppy{})
	defer loose.Close()
	if !loose.IsReference() || loose.ClassName() != "" {
		t.Errorf("unregistered pointer should be an unblessed reference, class %q", loose.ClassName())
	}

	if err := hostbind.RegisterType[*Point](e, "Other"); err == nil {
		t.Errorf("remapping a type should fail")
	}
	if hostbind.TypeID[*Point](e) == hostbind.TypeID[*Animal](e) {
		t.Errorf("distinct types should get distinct ids")
	}
}

func TestPointerParamMismatch(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()
	points, _ := hostbind.NewClass[*Point](e, "Point")
	points.Add("x", func(p *Point) int { return p.X })
	hostbind.RegisterType[*Animal](e, "Animal")

	if n, err := hostbind.CallMethod[int](interp, &Point{X: 7}, "x"); err != nil || n != 7 {
		t.Errorf("x = %d, %v; want 7", n, err)
	}
	_, err := hostbind.Call[int](interp, "Point::x", &Animal{})
	if err == nil || !strings.Contains(err.Error(), "expected argument 1 to be a reference to an object of type 'Point'") {
		t.Errorf("err = %v", err)
	}
}

func TestBaseClassChain(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	animals, _ := hostbind.NewClass[*Animal](e, "Animal")
	animals.Add("name", func(a *Animal) string { return a.Name })
	dogs := interp.NewPackage("Dog")
	dogs.AddBaseClass("Animal")
	dogs.Add("speak", func(a *Animal) string { return a.Name + " says woof" })
	puppies, _ := hostbind.NewClass[*Puppy](e, "Puppy")
	puppies.AddBaseClass("Dog")
	puppies.AddBaseClass("Dog")

	if got := puppies.BaseClasses(); len(got) != 1 || got[0] != "Dog" {
		t.Errorf("BaseClasses = %v", got)
	}

	pup := &Puppy{Animal: Animal{Name: "Rex"}}
	if got, err := hostbind.CallMethod[string](interp, pup, "name"); err != nil || got != "Rex" {
		t.Errorf("grandparent method = %q, %v", got, err)
	}
	if got, err := hostbind.CallMethod[string](interp, pup, "speak"); err != nil || got != "Rex says woof" {
		t.Errorf("parent method = %q, %v", got, err)
	}
	if _, err := hostbind.CallMethod[string](interp, pup, "fetch"); err == nil ||
		!strings.Contains(err.Error(), `Can't locate object method "fetch" via package "Puppy"`) {
		t.Errorf("missing method: err = %v", err)
	}
}

func TestDiamondBaseClasses(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	root := interp.NewPackage("Shape")
	root.Add("kind", func(class string) string { return "shape" })
	root.Add("sides", func(class string) int { return 0 })
	left := interp.NewPackage("Rect")
	left.AddBaseClass("Shape")
	right := interp.NewPackage("Rhombus")
	right.AddBaseClass("Shape")
	right.Add("kind", func(class string) string { return "rhombus" })
	right.Add("equal", func(class string) bool { return true })
	leaf := interp.NewPackage("Square")
	leaf.AddBaseClass("Rect")
	leaf.AddBaseClass("Rhombus")

	if got := strings.Join(e.Linearize("Square"), " "); got != "Square Rect Shape Rhombus" {
		t.Errorf("Linearize = %q", got)
	}

	tests := []struct {
		method string
		want   string
	}{
		{"kind", "shape"},
		{"sides", "0"},
		{"equal", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, err := hostbind.CallMethod[string](interp, "Square", tt.method)
			if err != nil || got != tt.want {
				t.Errorf("Square->%s = %q, %v; want %q", tt.method, got, err, tt.want)
			}
		})
	}
}

// =============================================================================
// Sessions
// =============================================================================

func TestCallScriptSubs(t *testing.T) {
	interp := newInterp(t)
	err := interp.Eval(`
sub add { return $_[0] + $_[1] }
sub pair { return (1, 2) }
sub boom { die "bad\n" }
package Greeter;
sub new { my ($class, $name) = @_; return bless { name => $name }, $class }
sub hello { "hi " . $_[0]{name} }
`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}

	if n, err := hostbind.Call[int](interp, "add", 2, 3); err != nil || n != 5 {
		t.Errorf("add = %d, %v", n, err)
	}
	if s, err := hostbind.Call[string](interp, "add", 2, 3); err != nil || s != "5" {
		t.Errorf("add as string = %q, %v", s, err)
	}
	if n, err := hostbind.Call[int](interp, "pair"); err != nil || n != 2 {
		t.Errorf("pair in scalar context = %d, %v; want 2", n, err)
	}
	list, err := hostbind.Call[*hostbind.Array](interp, "pair")
	if err != nil || list.Len() != 2 {
		t.Fatalf("pair in list context: %v", err)
	}
	list.Close()

	_, err = hostbind.Call[int](interp, "boom")
	var se *hostbind.ScriptError
	if !errors.As(err, &se) || se.Msg != "bad\n" {
		t.Errorf("boom: err = %#v", err)
	}

	obj, err := hostbind.CallMethod[*hostbind.Scalar](interp, "Greeter", "new", "ann")
	if err != nil {
		t.Fatalf("Greeter->new: %v", err)
	}
	defer obj.Close()
	if obj.ClassName() != "Greeter" {
		t.Errorf("class = %q", obj.ClassName())
	}
	if got, err := hostbind.CallMethod[string](interp, obj, "hello"); err != nil || got != "hi ann" {
		t.Errorf("hello = %q, %v", got, err)
	}
	if err := interp.Call("add", 1, 1); err != nil {
		t.Errorf("Call: %v", err)
	}
}

func TestEvalOutput(t *testing.T) {
	var out bytes.Buffer
	interp := newInterp(t, hostbind.WithEvaluator(&script.Evaluator{Out: &out, Err: &out}))
	interp.Add("double", func(x int) int { return x * 2 })
	interp.SetVar("main::name", "World")

	if err := interp.Eval(`print "Hello, $main::name! ", double(21), "\n";`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if out.String() != "Hello, World! 42\n" {
		t.Errorf("output = %q", out.String())
	}

	err := interp.Eval(`nosuch();`)
	if !errors.Is(err, hostbind.ErrScript) || !strings.Contains(err.Error(), "undefined subroutine &main::nosuch") {
		t.Errorf("err = %v", err)
	}
}

func TestSingleOwningSession(t *testing.T) {
	interp, err := hostbind.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := hostbind.New(); !errors.Is(err, hostbind.ErrSessionActive) {
		t.Errorf("second New: err = %v, want ErrSessionActive", err)
	}

	view := hostbind.Attach(interp.Engine())
	if view.Owner() {
		t.Errorf("attached session should not own the engine")
	}
	view.Close()
	if err := interp.Eval(`1;`); err != nil {
		t.Errorf("closing a view should leave the engine usable: %v", err)
	}

	interp.Close()
	again, err := hostbind.New()
	if err != nil {
		t.Fatalf("New after Close: %v", err)
	}
	again.Close()
}

func TestConfigPrelude(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "prelude.pl"), []byte(`sub greeting { "hello from the prelude" }`), 0o644)
	os.WriteFile(filepath.Join(dir, "hostbind.toml"), []byte(`
[session]
strict-numeric = false
recursion-limit = 50

[[session.prelude]]
package = "Setup"
file = "prelude.pl"
`), 0o644)

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	interp := newInterp(t, hostbind.WithConfig(cfg))
	if got, err := hostbind.Call[string](interp, "Setup::greeting"); err != nil || got != "hello from the prelude" {
		t.Errorf("greeting = %q, %v", got, err)
	}
	if interp.Engine().RecursionLimit != 50 {
		t.Errorf("recursion limit = %d, want 50", interp.Engine().RecursionLimit)
	}
	interp.Add("inc", func(n int) int { return n + 1 })
	if n, err := hostbind.Call[int](interp, "inc", "1"); err != nil || n != 2 {
		t.Errorf("loose numeric reads should be enabled: %d, %v", n, err)
	}
}

func TestFreezeThaw(t *testing.T) {
	interp := newInterp(t)
	e := interp.Engine()

	h := hostbind.NewHash(e)
	defer h.Close()
	list, _ := hostbind.NewArray(e, 1, "two", 3.5)
	defer list.Close()
	h.Insert("list", list)
	h.Insert("name", "x")

	data, err := hostbind.Freeze(h)
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	again, _ := hostbind.Freeze(h)
	if !bytes.Equal(data, again) {
		t.Errorf("Freeze should be deterministic")
	}

	s, err := hostbind.Thaw(e, data)
	if err != nil {
		t.Fatalf("Thaw: %v", err)
	}
	defer s.Close()
	back, err := hostbind.HashFrom(s)
	if err != nil {
		t.Fatalf("HashFrom: %v", err)
	}
	defer back.Close()
	if back.Index("name").String() != "x" {
		t.Errorf("name = %q", back.Index("name").String())
	}
	l, err := back.Index("list").Array()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer l.Close()
	if l.Len() != 3 || l.Index(0).Int() != 1 || l.Index(1).String() != "two" || l.Index(2).Float() != 3.5 {
		t.Errorf("list = %d elements", l.Len())
	}

	hostbind.RegisterType[*Point](e, "Point")
	obj, _ := hostbind.NewScalar(e, &Point{})
	defer obj.Close()
	if _, err := hostbind.Freeze(obj); !errors.Is(err, hostbind.ErrConversion) {
		t.Errorf("freezing an object: err = %v, want ErrConversion", err)
	}
}
