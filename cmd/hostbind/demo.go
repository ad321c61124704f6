package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/feather-lang/hostbind"
)

// Counter is a small class used by the harness scripts.
type Counter struct {
	value int
}

func registerDemo(interp *hostbind.Interp) error {
	if err := interp.SetVar("main::milestone", "m1"); err != nil {
		return err
	}

	top := interp.NewPackage("main")
	bindings := []struct {
		name string
		fn   any
	}{
		{"say_hello", func() { fmt.Println("hello") }},
		{"echo", func(args ...*hostbind.Scalar) {
			words := make([]string, len(args))
			for i, a := range args {
				words[i] = a.String()
			}
			fmt.Println(strings.Join(words, " "))
		}},
		{"count", func(args *hostbind.Array) int { return args.Len() }},
		{"getenv", func(name string) hostbind.Nullable[string] {
			if v, ok := os.LookupEnv(name); ok {
				return hostbind.Some(v)
			}
			return hostbind.Nullable[string]{}
		}},
	}
	for _, b := range bindings {
		if err := top.Add(b.name, b.fn); err != nil {
			return err
		}
	}

	pkg, err := hostbind.NewClass[*Counter](interp.Engine(), "Counter")
	if err != nil {
		return err
	}
	methods := []struct {
		name string
		fn   any
	}{
		{"new", func(class string) *Counter { return &Counter{} }},
		{"new", func(class string, start int) *Counter { return &Counter{value: start} }},
		{"get", func(c *Counter) int { return c.value }},
		{"set", func(c *Counter, v int) { c.value = v }},
		{"incr", func(c *Counter) int {
			c.value++
			return c.value
		}},
		{"add", func(c *Counter, amount int) int {
			c.value += amount
			return c.value
		}},
	}
	for _, m := range methods {
		if err := pkg.Add(m.name, m.fn); err != nil {
			return err
		}
	}
	return nil
}
