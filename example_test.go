package hostbind_test

import (
	"fmt"
	"strings"

	"github.com/feather-lang/hostbind"
)

func Example() {
	interp, err := hostbind.New()
	if err != nil {
		panic(err)
	}
	defer interp.Close()

	interp.Add("double", func(x int) int { return x * 2 })

	n, _ := hostbind.Call[int](interp, "double", 21)
	fmt.Println(n)

	interp.Eval(`print "double(4) = ", double(4), "\n";`)
	// Output:
	// 42
	// double(4) = 8
}

func Example_overloads() {
	interp, _ := hostbind.New()
	defer interp.Close()

	interp.Add("combine", func(a, b int) int { return a + b })
	interp.Add("combine", func(s string) int { return len(s) })

	sum, _ := hostbind.Call[int](interp, "combine", 2, 3)
	length, _ := hostbind.Call[int](interp, "combine", "four")
	fmt.Println(sum, length)

	_, err := hostbind.Call[int](interp, "combine", 1)
	fmt.Println(err)
	// Output:
	// 5 4
	// combine: no overload of 'main::combine' matched the 1 argument(s), candidates:
	//   main::combine(int, int)
	//   main::combine(string)
}

type Counter struct {
	n    int
	name string
}

func Example_classes() {
	interp, _ := hostbind.New()
	defer interp.Close()

	pkg, _ := hostbind.NewClass[*Counter](interp.Engine(), "Counter")
	pkg.Add("new", func(class string, start int) *Counter { return &Counter{n: start} })
	pkg.Add("incr", func(c *Counter) int { c.n++; return c.n })
	pkg.Add("name", func(c *Counter) string { return c.name })
	pkg.Add("name", func(c *Counter, name string) { c.name = name })

	interp.Eval(`
package Stopwatch;
our @ISA = ('Counter');
sub lap { my $self = shift; return "lap " . $self->incr }

package main;
my $c = Counter->new(5);
$c->incr;
$c->name("clicks");
print $c->name, " = ", $c->incr, "\n";

my $w = bless Counter->new(0), 'Stopwatch';
print ref($w), " ", $w->lap, ", ", $w->lap, "\n";
`)
	// Output:
	// clicks = 7
	// Stopwatch lap 1, lap 2
}

func Example_containers() {
	interp, _ := hostbind.New()
	defer interp.Close()
	e := interp.Engine()

	interp.Add("describe", func(words []string, opts *hostbind.Hash) string {
		sep := " "
		if p, ok := opts.At("sep"); ok {
			sep = p.String()
		}
		return strings.Join(words, sep)
	})

	words, _ := hostbind.NewArray(e, "a", "b", "c")
	defer words.Close()
	ref := hostbind.NewReference(words)
	defer ref.Close()

	s, _ := hostbind.Call[string](interp, "describe", ref, "sep", "-")
	fmt.Println(s)

	interp.Eval(`print describe([qw(x y)]), "\n";`)
	// Output:
	// a-b-c
	// x y
}
