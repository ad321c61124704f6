package heap_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/feather-lang/hostbind/heap"
)

func TestRefcountFreesChildren(t *testing.T) {
	e := heap.New()
	base := e.Live()

	inner := e.NewInt(7)
	av := e.NewArray()
	e.ArrayPush(av, e.Inc(inner))
	ref := e.NewRefInc(av)

	if inner.Refcnt() != 2 {
		t.Fatalf("inner refcnt = %d, want 2", inner.Refcnt())
	}
	if av.Refcnt() != 2 {
		t.Fatalf("array refcnt = %d, want 2", av.Refcnt())
	}

	e.Dec(av)
	e.Dec(ref)
	if !av.Freed() {
		t.Errorf("array should be freed after last reference is dropped")
	}
	if inner.Refcnt() != 1 {
		t.Errorf("inner refcnt = %d, want 1", inner.Refcnt())
	}
	e.Dec(inner)
	if e.Live() != base {
		t.Errorf("live cells = %d, want %d", e.Live(), base)
	}
}

func TestMagicFreeRunsOnce(t *testing.T) {
	e := heap.New()
	calls := 0
	c := e.NewInt(1)
	e.AddMagic(c, "payload", func(data any) {
		calls++
		if data != "payload" {
			t.Errorf("magic data = %v", data)
		}
	})
	e.Inc(c)
	e.Dec(c)
	if calls != 0 {
		t.Fatalf("magic freed early")
	}
	e.Dec(c)
	e.Dec(c)
	if calls != 1 {
		t.Errorf("magic free ran %d times, want 1", calls)
	}
}

func TestScalarFlags(t *testing.T) {
	e := heap.New()
	tests := []struct {
		name string
		cell *heap.Cell
		iok  bool
		nok  bool
		pok  bool
	}{
		{"int", e.NewInt(3), true, false, false},
		{"float", e.NewFloat(1.5), false, true, false},
		{"string", e.NewString("10"), false, false, true},
		{"undef", e.NewScalar(), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cell.IOK() != tt.iok || tt.cell.NOK() != tt.nok || tt.cell.POK() != tt.pok {
				t.Errorf("flags = %b", tt.cell.Flags())
			}
		})
	}
	if got := e.NewString("42abc").IV(); got != 42 {
		t.Errorf("IV of \"42abc\" = %d, want 42", got)
	}
	if got := e.NewFloat(2.5).PV(); got != "2.5" {
		t.Errorf("PV of 2.5 = %q", got)
	}
}

func TestSetCellSharesReferent(t *testing.T) {
	e := heap.New()
	target := e.NewString("x")
	ref := e.NewRefInc(target)
	cp := e.Copy(ref)
	if target.Refcnt() != 3 {
		t.Errorf("target refcnt = %d, want 3", target.Refcnt())
	}
	e.SetInt(cp, 5)
	if target.Refcnt() != 2 {
		t.Errorf("target refcnt after overwrite = %d, want 2", target.Refcnt())
	}
	e.Dec(cp)
	e.Dec(ref)
	e.Dec(target)
}

func TestHashOrderIndependentOfInsertion(t *testing.T) {
	e := heap.New()
	a, b := e.NewHash(), e.NewHash()
	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for _, k := range keys {
		e.HashStore(a, k, e.NewInt(1))
	}
	for i := len(keys) - 1; i >= 0; i-- {
		e.HashStore(b, keys[i], e.NewInt(1))
	}
	if !slices.Equal(e.HashKeys(a), e.HashKeys(b)) {
		t.Errorf("iteration order differs: %v vs %v", e.HashKeys(a), e.HashKeys(b))
	}
	if e.HashLen(a) != len(keys) {
		t.Errorf("len = %d", e.HashLen(a))
	}
	e.HashDelete(a, "beta")
	if e.HashExists(a, "beta") {
		t.Errorf("beta should be deleted")
	}
}

func TestStackCallScalarContext(t *testing.T) {
	e := heap.New()
	e.DefineSub("main::three", func(e *heap.Engine, cv *heap.Sub, ax, items int) (int, error) {
		e.Truncate(ax)
		for i := int64(1); i <= 3; i++ {
			e.Push(e.Mortal(e.NewInt(i)))
		}
		return 3, nil
	}, "")

	e.Enter()
	defer e.Leave()

	e.PushMark()
	n, err := e.Call("three", heap.CallList)
	if err != nil || n != 3 {
		t.Fatalf("list call = %d, %v", n, err)
	}
	e.Truncate(e.SP() - n)

	e.PushMark()
	n, err = e.Call("three", heap.CallScalar)
	if err != nil || n != 1 {
		t.Fatalf("scalar call = %d, %v", n, err)
	}
	if got := e.Pop().IV(); got != 3 {
		t.Errorf("scalar context result = %d, want last value 3", got)
	}
}

func TestCallEvalTrapsError(t *testing.T) {
	e := heap.New()
	e.DefineSub("main::boom", func(e *heap.Engine, cv *heap.Sub, ax, items int) (int, error) {
		return 0, heap.Croakf("boom at %s", cv.FullName())
	}, "")

	e.PushMark()
	if _, err := e.Call("boom", heap.CallScalar); err == nil {
		t.Fatalf("expected error without eval flag")
	}

	e.PushMark()
	n, err := e.Call("boom", heap.CallScalar|heap.CallEval)
	if err != nil || n != 1 {
		t.Fatalf("eval call = %d, %v", n, err)
	}
	if e.Pop().OK() {
		t.Errorf("trapped call should leave undef on the stack")
	}
	if !strings.Contains(e.ErrSV().PV(), "boom at main::boom") {
		t.Errorf("ErrSV = %q", e.ErrSV().PV())
	}

	e.PushMark()
	_, err = e.Call("missing", heap.CallList)
	if !errors.Is(err, heap.ErrNoSub) {
		t.Errorf("missing sub error = %v", err)
	}
}

func TestMethodResolutionDiamond(t *testing.T) {
	e := heap.New()
	isa := func(class string, bases ...string) {
		av := e.GetArray(class+"::ISA", true)
		for _, b := range bases {
			e.ArrayPush(av, e.NewString(b))
		}
	}
	isa("Left", "Top")
	isa("Right", "Top")
	isa("Bottom", "Left", "Right")

	got := e.Linearize("Bottom")
	want := []string{"Bottom", "Left", "Top", "Right"}
	if !slices.Equal(got, want) {
		t.Errorf("Linearize = %v, want %v", got, want)
	}

	called := 0
	e.DefineSub("Right::hello", func(e *heap.Engine, cv *heap.Sub, ax, items int) (int, error) {
		called++
		e.Truncate(ax)
		e.Push(e.Mortal(e.NewString("right")))
		return 1, nil
	}, "")

	obj := e.NewPtrRef("Bottom", &struct{}{})
	defer e.Dec(obj)
	if !e.DerivedFrom(obj, "Top") {
		t.Errorf("Bottom should derive from Top")
	}

	e.Enter()
	defer e.Leave()
	e.PushMark()
	e.Push(obj)
	n, err := e.CallMethod("hello", heap.CallScalar)
	if err != nil || n != 1 {
		t.Fatalf("CallMethod = %d, %v", n, err)
	}
	if got := e.Pop().PV(); got != "right" || called != 1 {
		t.Errorf("method result = %q, called %d times", got, called)
	}
}

func TestMortalsReleasedOnLeave(t *testing.T) {
	e := heap.New()
	base := e.Live()
	e.Enter()
	e.Mortal(e.NewInt(1))
	e.NewMortal()
	e.Leave()
	if e.Live() != base {
		t.Errorf("live = %d, want %d", e.Live(), base)
	}
}

func TestConstSub(t *testing.T) {
	e := heap.New()
	e.DefineConst("consts::answer", e.NewInt(42))
	e.Enter()
	defer e.Leave()
	e.PushMark()
	n, err := e.Call("consts::answer", heap.CallScalar)
	if err != nil || n != 1 {
		t.Fatalf("const call = %d, %v", n, err)
	}
	if got := e.Pop().IV(); got != 42 {
		t.Errorf("const = %d", got)
	}
}

func TestDestroyReleasesPackageVariables(t *testing.T) {
	e := heap.New()
	freed := false
	av := e.GetArray("pkg::list", true)
	c := e.NewInt(1)
	e.AddMagic(c, nil, func(any) { freed = true })
	e.ArrayPush(av, c)
	e.Destroy()
	if !freed {
		t.Errorf("destroy should free package arrays and their elements")
	}
}
