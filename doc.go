// Package hostbind binds Go functions and types into an embedded
// interpreter and converts values between the two sides.
//
// # Overview
//
// The interpreter state lives in a [heap.Engine]: reference-counted cells
// for scalars, arrays and hashes, package namespaces holding variables and
// subs, and an argument stack shared by every call. hostbind layers a Go
// API on top of it:
//
//   - Handles ([Scalar], [Reference], [Array], [Hash]) own one reference to
//     a cell and release it on Close
//   - [Proxy] addresses a single array or hash element
//   - [Package] binds Go functions under interpreter names, with overloads
//   - [TypeMap] associates Go pointer types with class names
//   - [Interp] is a session: it owns the engine and runs source code
//
// # Quick Start
//
//	interp, err := hostbind.New()
//	if err != nil {
//	    return err
//	}
//	defer interp.Close()
//
//	interp.Add("double", func(x int) int { return x * 2 })
//	n, err := hostbind.Call[int](interp, "double", 21) // 42
//
//	interp.Eval(`print double(4), "\n";`) // 8
//
// # Overloads
//
// Adding a second function under a name turns the name into an overload
// set. A call tries the candidates in registration order and runs the first
// one whose parameters accept the arguments:
//
//	interp.Add("combine", func(a, b int) int { return a + b })
//	interp.Add("combine", func(s string) int { return len(s) })
//
// Registration order is the only priority. A candidate that captures every
// argument (a trailing *Array, *Hash or variadic parameter) shadows
// everything added after it, so register catch-all overloads last.
//
// When no candidate matches, the call fails with an [*OverloadError] that
// lists every signature.
//
// # Classes
//
// Go pointer types become classes with [NewClass]. Pushing a registered
// pointer produces a reference blessed into the class; reading a parameter
// of that type accepts objects of the class and of classes derived from it
// with [Package.AddBaseClass]:
//
//	pkg, _ := hostbind.NewClass[*Counter](interp.Engine(), "Counter")
//	pkg.Add("new", func(class string, start int) *Counter { return &Counter{n: start} })
//	pkg.Add("incr", func(c *Counter) int { c.n++; return c.n })
//
//	interp.Eval(`my $c = Counter->new(5); print $c->incr, "\n";`) // 6
//
// # Reference Counts
//
// Every constructor that returns a handle gives the caller one reference,
// which Close gives back. Move hands a cell to a new handle without
// touching any count. Values pushed onto the stack are mortal: they live
// until the enclosing scope is left.
//
// A bound function that returns a handle or a *heap.Cell gives its
// reference to the stack; the handle is closed once its value is pushed.
// Return a Clone to keep a handle that is also stored elsewhere.
//
// # Configuration
//
// Sessions read their settings from a hostbind.toml or hostbind.yaml file
// loaded by the config package. See [WithConfig].
package hostbind
