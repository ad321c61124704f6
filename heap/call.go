package heap

import (
	"errors"
	"fmt"
)

// CallFlags select the context and error trapping of a call.
type CallFlags uint8

const (
	// CallList keeps every returned value.
	CallList CallFlags = 0
	// CallScalar reduces the results to exactly one value.
	CallScalar CallFlags = 1 << iota
	// CallDiscard drops every result.
	CallDiscard
	// CallEval traps errors into ErrSV instead of returning them.
	CallEval
)

// Croak is an error raised by a subroutine.
type Croak struct {
	Msg string
	// Value is the raised object, when something other than a string was
	// raised.
	Value *Cell
}

func (c *Croak) Error() string { return c.Msg }

// Croakf returns a formatted *Croak.
func Croakf(format string, args ...any) error {
	return &Croak{Msg: fmt.Sprintf(format, args...)}
}

// ErrNoSub is wrapped by errors for calls to undefined subroutines.
var ErrNoSub = errors.New("undefined subroutine")

// Call invokes the named subroutine with the arguments pushed since the
// last PushMark. On return the results sit on the stack above the mark and
// their count is returned.
func (e *Engine) Call(name string, flags CallFlags) (int, error) {
	ax := e.PopMark()
	sub := e.GetSub(name)
	if sub == nil {
		pkg, short := SplitName(name, "main")
		err := fmt.Errorf("%w &%s::%s called", ErrNoSub, pkg, short)
		return e.finishCall(ax, 0, err, flags)
	}
	n, err := e.invoke(sub, ax)
	return e.finishCall(ax, n, err, flags)
}

// CallSub invokes sub directly, with the same stack protocol as Call.
func (e *Engine) CallSub(sub *Sub, flags CallFlags) (int, error) {
	ax := e.PopMark()
	n, err := e.invoke(sub, ax)
	return e.finishCall(ax, n, err, flags)
}

// CallMethod resolves name against the invocant in the first argument
// slot, searching base classes, and invokes it.
func (e *Engine) CallMethod(name string, flags CallFlags) (int, error) {
	ax := e.PopMark()
	invocant := e.ST(ax)
	if invocant == nil {
		err := Croakf("Can't call method \"%s\" without a package or object reference", name)
		return e.finishCall(ax, 0, err, flags)
	}
	class := invocant.PV()
	if invocant.ROK() {
		class = e.ClassOf(invocant)
		if class == "" {
			err := Croakf("Can't call method \"%s\" on unblessed reference", name)
			return e.finishCall(ax, 0, err, flags)
		}
	}
	sub := e.ResolveMethod(class, name)
	if sub == nil {
		err := Croakf("Can't locate object method \"%s\" via package \"%s\"", name, class)
		return e.finishCall(ax, 0, err, flags)
	}
	n, err := e.invoke(sub, ax)
	return e.finishCall(ax, n, err, flags)
}

// ResolveMethod finds name in class or the first base class that defines
// it.
func (e *Engine) ResolveMethod(class, name string) *Sub {
	for _, pkg := range e.Linearize(class) {
		if st := e.Stash(pkg, false); st != nil {
			if sub, ok := st.subs[name]; ok {
				return sub
			}
		}
	}
	return nil
}

func (e *Engine) invoke(sub *Sub, ax int) (n int, err error) {
	if e.destroyed {
		return 0, errors.New("heap: engine destroyed")
	}
	items := len(e.stack) - ax
	if sub.Const != nil {
		e.Truncate(ax)
		e.Push(e.Mortal(e.Copy(sub.Const)))
		return 1, nil
	}
	if sub.XSub == nil {
		return 0, fmt.Errorf("%w &%s called", ErrNoSub, sub.FullName())
	}
	limit := e.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}
	if e.depth >= limit {
		return 0, Croakf("Deep recursion limit %d exceeded in \"%s\"", limit, sub.FullName())
	}
	e.depth++
	defer func() { e.depth-- }()
	return sub.XSub(e, sub, ax, items)
}

func (e *Engine) finishCall(ax, n int, err error, flags CallFlags) (int, error) {
	if err != nil {
		e.Truncate(ax)
		log.Debugf("call failed: %s", err.Error())
		if flags&CallEval == 0 {
			return 0, err
		}
		e.SetString(e.errsv, err.Error())
		if flags&CallScalar != 0 {
			e.Push(e.NewMortal())
			return 1, nil
		}
		return 0, nil
	}
	if flags&CallEval != 0 {
		e.SetString(e.errsv, "")
	}
	switch {
	case flags&CallDiscard != 0:
		n = 0
	case flags&CallScalar != 0:
		switch {
		case n == 0:
			e.Truncate(ax)
			e.Push(e.NewMortal())
			n = 1
		case n > 1:
			e.stack[ax] = e.stack[ax+n-1]
			n = 1
		}
	}
	e.Truncate(ax + n)
	return n, nil
}
