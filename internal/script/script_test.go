package script

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/feather-lang/hostbind/heap"
)

func newEngine() (*heap.Engine, *bytes.Buffer) {
	e := heap.New()
	var out bytes.Buffer
	e.SetEvaluator(&Evaluator{Out: &out, Err: &out})
	return e, &out
}

func TestLexer(t *testing.T) {
	tests := []struct {
		src  string
		want []TokenType
	}{
		{"%h % 2", []TokenType{HASH, MOD, INTEGER, EOF}},
		{"keys %$r", []TokenType{IDENT, DEREF, SCALAR, EOF}},
		{"$a->[0] => 1", []TokenType{SCALAR, ARROW, LSQUARE, INTEGER, RSQUARE, FATCOMMA, INTEGER, EOF}},
		{"1.5e3 0x1F 10", []TokenType{NUMBER, INTEGER, INTEGER, EOF}},
		{"$x //= 'a' # comment", []TokenType{SCALAR, ASSIGN, STRING, EOF}},
		{"@_ $_ $@", []TokenType{ARRAY, SCALAR, SCALAR, EOF}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks, err := NewLexer(tt.src, "t").Scan()
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			var got []TokenType
			for _, tok := range toks {
				got = append(got, tok.Type)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	toks, err := NewLexer("qw(a b  c) 0x1F", "t").Scan()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(toks[0].Words, []string{"a", "b", "c"}) {
		t.Errorf("qw words = %v", toks[0].Words)
	}
	if toks[1].Lit != "31" {
		t.Errorf("hex literal = %q", toks[1].Lit)
	}
}

func TestParseChainedSubscripts(t *testing.T) {
	prog, err := Parse("$a->{b}[0];", "t", "main")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	outer, ok := prog.Body[0].(*ExprStmt).X.(*Elem)
	if !ok || outer.Keyed {
		t.Fatalf("outer = %#v", prog.Body[0].(*ExprStmt).X)
	}
	inner, ok := outer.Base.(*Elem)
	if !ok || !inner.Keyed {
		t.Fatalf("inner = %#v", outer.Base)
	}
	if v, ok := inner.Base.(*ScalarVar); !ok || v.Name != "a" {
		t.Errorf("base = %#v", inner.Base)
	}
}

func TestSyntaxError(t *testing.T) {
	_, err := Parse("my $x = 1;\nmy $y = ;", "bad.pl", "main")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SyntaxError", err)
	}
	if se.File != "bad.pl" || se.Line != 2 {
		t.Errorf("error position = %s:%d", se.File, se.Line)
	}
	if se.Incomplete {
		t.Errorf("a misplaced token is not incomplete input")
	}

	for _, src := range []string{"sub f {", "print \"abc", "foo(1,"} {
		_, err := Parse(src, "t", "main")
		if !errors.As(err, &se) || !se.Incomplete {
			t.Errorf("Parse(%q): err = %v, want incomplete input", src, err)
		}
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "arithmetic",
			src:  `print 1 + 2, " ", 7 / 2, " ", 2 ** 10, " ", 7 % 3, " ", -7 % 3, "\n";`,
			want: "3 3.5 1024 1 2\n",
		},
		{
			name: "interpolation",
			src:  `my $name = "World"; print "Hello, $name!\n";`,
			want: "Hello, World!\n",
		},
		{
			name: "string operators",
			src:  `print "a" . "b" x 3, " ", ("b" lt "c" ? "yes" : "no"), "\n";`,
			want: "abbb yes\n",
		},
		{
			name: "arrays",
			src:  `my @a = (1, 2, 3); push @a, 4; print scalar(@a), " $a[0] $a[-1]\n";`,
			want: "4 1 4\n",
		},
		{
			name: "hashes",
			src:  `my %h = (one => 1, two => 2); $h{three} = 3; print join(",", sort keys %h), "\n";`,
			want: "one,three,two\n",
		},
		{
			name: "references",
			src: `my $r = { list => [1, 2, 3], name => 'x' };
push @{$r->{list}}, 4;
print scalar(@{$r->{list}}), " $r->{name} $$r{name} ", ref($r), " ", ref($r->{list}), "\n";`,
			want: "4 x x HASH ARRAY\n",
		},
		{
			name: "autovivification",
			src:  `my %h; $h{a}{b}[2] = 'deep'; print scalar(@{$h{a}{b}}), " ", exists $h{a}{c} ? 1 : 0, "\n";`,
			want: "3 0\n",
		},
		{
			name: "interpolated containers",
			src:  `my @l = (1, 2, 3); my %h = (k => 'v'); my $r = [10, 20]; print "@l|$h{k}|$r->[1]|\$x\n";`,
			want: "1 2 3|v|20|$x\n",
		},
		{
			name: "subs",
			src: `sub add { my ($a, $b) = @_; return $a + $b; }
sub fact { my $n = shift; return $n <= 1 ? 1 : $n * fact($n - 1); }
sub double { $_[0] * 2 }
print add(2, 3), " ", fact(10), " ", double(21), "\n";`,
			want: "5 3628800 42\n",
		},
		{
			name: "list and scalar context",
			src:  `sub pair { return (1, 2) } my @p = pair(); my $last = pair(); print "@p $last\n";`,
			want: "1 2 2\n",
		},
		{
			name: "objects",
			src: `package Counter;
sub new { my ($class, %args) = @_; my $self = { count => $args{start} // 0 }; return bless $self, $class; }
sub inc { my $self = shift; $self->{count}++; return $self; }
sub count { $_[0]{count} }
package main;
my $c = Counter->new(start => 5);
$c->inc->inc;
print $c->count, " ", ref($c), "\n";`,
			want: "7 Counter\n",
		},
		{
			name: "inheritance",
			src: `package Animal;
sub new { my ($class, $name) = @_; return bless { name => $name }, $class; }
sub speak { my $self = shift; return $self->{name} . " makes " . $self->sound; }
sub sound { "a noise" }
package Dog;
our @ISA = ('Animal');
sub sound { "woof" }
sub speak { my $self = shift; return uc($self->SUPER::speak()); }
package main;
print Dog->new("Rex")->speak, "\n";`,
			want: "REX MAKES WOOF\n",
		},
		{
			name: "use parent and universal methods",
			src: `package Base; sub hello { "hi from " . ref(shift) }
package Derived; use parent -norequire, 'Base';
package main;
my $o = bless {}, 'Derived';
print $o->hello, " ", ($o->isa('Base') ? 1 : 0), " ", (Derived->can('hello') ? 1 : 0), "\n";`,
			want: "hi from Derived 1 1\n",
		},
		{
			name: "eval traps die",
			src: `my $r = eval { die "boom\n"; 1 };
print defined($r) ? "def" : "undef", " $@";
my $ok = eval { 1 };
print "ok=$ok err=[$@]\n";`,
			want: "undef boom\nok=1 err=[]\n",
		},
		{
			name: "die location",
			src:  "eval { die \"bad\" };\nprint $@;",
			want: "bad at test.pl line 1.\n",
		},
		{
			name: "loops",
			src: `my $sum = 0;
foreach my $i (1, 2, 3, 4) { next if $i == 2; $sum += $i; }
my $n = 0;
while (1) { $n++; last if $n >= 5; }
for (qw(a b)) { print; }
print " $sum $n\n";`,
			want: "ab 8 5\n",
		},
		{
			name: "foreach aliases elements",
			src:  `my @a = (1, 2, 3); $_ *= 10 for @a; foreach my $x (@a) { $x++ } print "@a\n";`,
			want: "11 21 31\n",
		},
		{
			name: "sprintf",
			src:  `print sprintf("%05.1f|%-3s|%x|%d", 3.14159, "ab", 255, "42"), "\n";`,
			want: "003.1|ab |ff|42\n",
		},
		{
			name: "shift pop delete",
			src: `my @a = (1, 2, 3); my $f = shift @a; my $l = pop @a;
my %h = (a => 1, b => 2); my $d = delete $h{a};
print "$f $l @a $d ", join(",", keys %h), "\n";`,
			want: "1 3 2 1 b\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, out := newEngine()
			defer e.Destroy()
			if err := e.Eval(tt.src, "main", "test.pl"); err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got := out.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"die", `die "stop\n";`, "stop\n"},
		{"undefined sub", `nosuch(1);`, "undefined subroutine &main::nosuch called at test.pl line 1."},
		{"missing method", `my $o = bless {}, 'Thing'; $o->frob;`, `Can't locate object method "frob" via package "Thing"`},
		{"unblessed invocant", `my $r = {}; $r->frob;`, "unblessed reference"},
		{"not an array", `my $r = {}; push @$r, 1;`, "Not an ARRAY reference"},
		{"division by zero", `my $x = 1 / 0;`, "Illegal division by zero at test.pl line 1."},
		{"last outside loop", `last;`, "outside a loop block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine()
			defer e.Destroy()
			err := e.Eval(tt.src, "main", "test.pl")
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.want)
			}
			if e.ErrSV().PV() != err.Error() {
				t.Errorf("$@ = %q, want %q", e.ErrSV().PV(), err.Error())
			}
		})
	}
}

func TestNativeSubsAreCallable(t *testing.T) {
	e, out := newEngine()
	defer e.Destroy()
	e.DefineSub("main::twice", func(e *heap.Engine, cv *heap.Sub, ax, items int) (int, error) {
		v := e.ST(ax).IV()
		e.Truncate(ax)
		e.Push(e.Mortal(e.NewInt(v * 2)))
		return 1, nil
	}, "test")

	if err := e.Eval(`package Foo; print twice(21), "\n";`, "main", "test.pl"); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if out.String() != "42\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestScriptSubsAreCallableFromGo(t *testing.T) {
	e, _ := newEngine()
	defer e.Destroy()
	if err := e.Eval(`sub triple { return $_[0] * 3 }`, "main", "test.pl"); err != nil {
		t.Fatalf("Eval: %v", err)
	}

	e.Enter()
	defer e.Leave()
	base := e.SP()
	e.PushMark()
	e.Push(e.Mortal(e.NewInt(14)))
	n, err := e.Call("main::triple", heap.CallScalar)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if n != 1 || e.ST(base).IV() != 42 {
		t.Errorf("triple(14) = %v (n=%d)", e.ST(base), n)
	}
	e.Truncate(base)
}

func TestLexicalsAreReleased(t *testing.T) {
	e, _ := newEngine()
	defer e.Destroy()
	if err := e.Eval(`sub make { my %args = @_; return bless { %args }, 'Obj' }`, "main", "test.pl"); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	base := e.Live()

	src := `{
	my @a = (1, 2, 3);
	my %h = (a => [1, 2], b => { c => 1 });
	my $r = \@a;
	my $o = make(x => $r, y => \%h);
	$o->{self} = [$o->{x}];
	my $s = eval { die "x\n" };
}`
	if err := e.Eval(src, "main", "test.pl"); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got := e.Live(); got != base {
		t.Errorf("live cells = %d after the block, want %d", got, base)
	}
}
