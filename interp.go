package hostbind

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/feather-lang/hostbind/config"
	"github.com/feather-lang/hostbind/heap"
	"github.com/feather-lang/hostbind/internal/script"
)

var log = commonlog.GetLogger("hostbind")

// ownerActive is set while an owning session exists in the process.
var ownerActive atomic.Bool

const optionsSlot = "hostbind.options"

// sessionOptions are engine-wide settings read by every call frame.
type sessionOptions struct {
	StrictNumeric bool
}

func optionsOf(e *heap.Engine) *sessionOptions {
	if v, ok := e.Ext(optionsSlot); ok {
		if o, ok := v.(*sessionOptions); ok {
			return o
		}
	}
	o := &sessionOptions{StrictNumeric: true}
	e.SetExt(optionsSlot, o)
	return o
}

// Interp is an interpreter session.
//
// Create an owning session with [New] and always call [Interp.Close] when
// done. Only one owning session may be open per process; [Attach] gives
// additional non-owning views of an existing engine. A session is not safe
// for concurrent use from multiple goroutines.
//
//	interp, err := hostbind.New()
//	if err != nil {
//	    return err
//	}
//	defer interp.Close()
//	interp.Add("greet", func(name string) string { return "Hello, " + name })
//	msg, err := hostbind.Call[string](interp, "greet", "world")
type Interp struct {
	e      *heap.Engine
	owner  bool
	closed bool
	cfg    *config.Config
}

// Option configures a session created by New.
type Option func(*Interp) error

// WithConfig applies a loaded configuration: numeric strictness, the
// recursion limit, logging and the prelude scripts.
func WithConfig(c *config.Config) Option {
	return func(i *Interp) error {
		i.cfg = c
		return nil
	}
}

// WithStrictNumeric overrides numeric strictness for parameter reads.
func WithStrictNumeric(strict bool) Option {
	return func(i *Interp) error {
		optionsOf(i.e).StrictNumeric = strict
		return nil
	}
}

// WithEvaluator replaces the built-in script evaluator.
func WithEvaluator(ev heap.Evaluator) Option {
	return func(i *Interp) error {
		i.e.SetEvaluator(ev)
		return nil
	}
}

// New creates an owning session with a fresh engine. It fails with
// ErrSessionActive while another owning session is open.
func New(opts ...Option) (*Interp, error) {
	if !ownerActive.CompareAndSwap(false, true) {
		return nil, ErrSessionActive
	}

	e := heap.New()
	e.SetEvaluator(script.New())
	i := &Interp{e: e, owner: true}
	TypeMapOf(e)
	optionsOf(e)

	for _, opt := range opts {
		if err := opt(i); err != nil {
			i.Close()
			return nil, err
		}
	}
	if i.cfg != nil {
		if err := i.applyConfig(i.cfg); err != nil {
			i.Close()
			return nil, err
		}
	}

	log.Info("session started")
	return i, nil
}

func (i *Interp) applyConfig(c *config.Config) error {
	c.ConfigureLogging()
	optionsOf(i.e).StrictNumeric = c.Strict()
	if c.Session.RecursionLimit > 0 {
		i.e.RecursionLimit = c.Session.RecursionLimit
	}
	for _, s := range c.PreludeScripts() {
		if err := i.LoadScript(s.Package, s.File); err != nil {
			return fmt.Errorf("prelude: %w", err)
		}
	}
	return nil
}

// Attach returns a non-owning session over an existing engine. Closing it
// leaves the engine alive.
func Attach(e *heap.Engine) *Interp {
	TypeMapOf(e)
	optionsOf(e)
	return &Interp{e: e}
}

// Engine returns the session's engine.
func (i *Interp) Engine() *heap.Engine { return i.e }

// Owner reports whether closing the session destroys the engine.
func (i *Interp) Owner() bool { return i.owner }

// Close ends the session. An owning session destroys its engine, releasing
// every package variable and binding.
func (i *Interp) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	if i.owner {
		i.e.Destroy()
		ownerActive.Store(false)
		log.Info("session closed")
	}
	return nil
}

// Eval runs source in package main.
func (i *Interp) Eval(src string) error {
	return i.EvalIn("main", src)
}

// EvalIn runs source in the given package.
func (i *Interp) EvalIn(pkg, src string) error {
	if err := i.e.Eval(src, pkg, "(eval)"); err != nil {
		return &ScriptError{Op: "eval", Msg: err.Error()}
	}
	return nil
}

// LoadScript reads a script file and runs it in package pkg.
func (i *Interp) LoadScript(pkg, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("load %s: %w", file, err)
	}
	if err := i.e.Eval(string(data), pkg, file); err != nil {
		return &ScriptError{Op: file, Msg: err.Error()}
	}
	log.Debugf("loaded %s into %s", file, pkg)
	return nil
}

// NewPackage returns the package called name, creating it on first use.
func (i *Interp) NewPackage(name string) *Package { return NewPackage(i.e, name) }

// Add binds fn under name in package main.
func (i *Interp) Add(name string, fn any) error {
	return NewPackage(i.e, "main").Add(name, fn)
}

// Var returns a handle sharing the package scalar with the qualified name,
// creating it if needed.
func (i *Interp) Var(name string) *Scalar {
	return &Scalar{e: i.e, sv: i.e.Inc(i.e.GetScalar(name, true))}
}

// SetVar assigns a Go value to the package scalar with the qualified name.
func (i *Interp) SetVar(name string, v any) error {
	return setCell(i.e, i.e.GetScalar(name, true), v)
}
