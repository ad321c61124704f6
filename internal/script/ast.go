package script

// Node is an expression.
type Node interface {
	line() int
}

// Stmt is a statement.
type Stmt interface {
	stmtLine() int
}

type pos struct{ Line int }

func (p pos) line() int     { return p.Line }
func (p pos) stmtLine() int { return p.Line }

// Expressions
type (
	IntLit struct {
		pos
		Val int64
	}
	NumLit struct {
		pos
		Val float64
	}
	// StrLit is a string literal; Parts is set for interpolated strings.
	StrLit struct {
		pos
		Val   string
		Parts []Node
	}
	WordList struct {
		pos
		Words []string
	}
	ScalarVar struct {
		pos
		Name string
	}
	ArrayVar struct {
		pos
		Name string
	}
	HashVar struct {
		pos
		Name string
	}
	// Elem indexes an array or hash. Base is an ArrayVar or HashVar for
	// direct access, or an expression yielding a reference.
	Elem struct {
		pos
		Base  Node
		Index Node
		Keyed bool
	}
	// Deref applies a sigil to a reference: $$r, @$r, %$r.
	Deref struct {
		pos
		Sigil byte
		X     Node
	}
	RefGen struct {
		pos
		X Node
	}
	AnonArray struct {
		pos
		Elems []Node
	}
	AnonHash struct {
		pos
		Elems []Node
	}
	ListExpr struct {
		pos
		Items []Node
	}
	// My declares lexicals; Our aliases package variables.
	My struct {
		pos
		Vars  []Node
		Our   bool
		Paren bool
	}
	Assign struct {
		pos
		Op    string
		Left  Node
		Right Node
	}
	Binary struct {
		pos
		Op   TokenType
		Word string // eq, lt, and, ...
		L, R Node
	}
	Unary struct {
		pos
		Op TokenType
		X  Node
	}
	IncDec struct {
		pos
		Op     TokenType
		Prefix bool
		X      Node
	}
	Ternary struct {
		pos
		Cond, Then, Else Node
	}
	Call struct {
		pos
		Name  string
		Args  []Node
		Paren bool
	}
	MethodCall struct {
		pos
		Invocant Node
		Method   string
		Args     []Node
	}
	Bareword struct {
		pos
		Name string
	}
	EvalBlock struct {
		pos
		Body []Stmt
	}
)

// Statements
type (
	ExprStmt struct {
		pos
		X Node
	}
	PackageStmt struct {
		pos
		Name string
		Body []Stmt // package NAME { ... }
	}
	SubDef struct {
		pos
		Name string
		Body []Stmt
	}
	Return struct {
		pos
		X Node
	}
	If struct {
		pos
		Conds  []Node
		Blocks [][]Stmt
		Else   []Stmt
		Unless bool
	}
	While struct {
		pos
		Cond  Node
		Body  []Stmt
		Until bool
	}
	Foreach struct {
		pos
		Var  string
		My   bool
		List Node
		Body []Stmt
	}
	LoopCtl struct {
		pos
		Last bool
	}
	Block struct {
		pos
		Body []Stmt
	}
)
