package script

import (
	"fmt"
	"strconv"
	"strings"
)

// Program is a parsed source file.
type Program struct {
	File string
	Body []Stmt
}

// Parse parses src. pkg is the package in effect at the start of the file
// and is only used to resolve __PACKAGE__.
func Parse(src, file, pkg string) (*Program, error) {
	toks, err := NewLexer(src, file).Scan()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, file: file, pkg: pkg}
	body, err := p.stmts(EOF)
	if err != nil {
		return nil, err
	}
	return &Program{File: file, Body: body}, nil
}

type parser struct {
	toks []Token
	i    int
	file string
	pkg  string
}

// -----------------------------------------------------------------------------
// Token basics and helpers
// -----------------------------------------------------------------------------

func (p *parser) atEnd() bool { return p.peek().Type == EOF }

func (p *parser) peek() Token {
	if p.i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i]
}

func (p *parser) peekAt(n int) Token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) prev() Token { return p.toks[p.i-1] }

func (p *parser) next() Token {
	t := p.peek()
	if p.i < len(p.toks) {
		p.i++
	}
	return t
}

func (p *parser) match(tt ...TokenType) bool {
	if p.atEnd() {
		return false
	}
	for _, t := range tt {
		if p.peek().Type == t {
			p.i++
			return true
		}
	}
	return false
}

func (p *parser) isWord(w string) bool {
	t := p.peek()
	return t.Type == IDENT && t.Lit == w
}

func (p *parser) matchWord(words ...string) bool {
	for _, w := range words {
		if p.isWord(w) {
			p.i++
			return true
		}
	}
	return false
}

func (p *parser) errAt(t Token, format string, args ...any) error {
	return &SyntaxError{File: p.file, Line: t.Line, Msg: fmt.Sprintf(format, args...), Incomplete: t.Type == EOF}
}

func (p *parser) need(t TokenType, msg string) (Token, error) {
	if p.match(t) {
		return p.prev(), nil
	}
	g := p.peek()
	if g.Type == EOF {
		return Token{}, p.errAt(g, "%s, got end of input", msg)
	}
	return Token{}, p.errAt(g, "%s, got %s %q", msg, g.Type, g.Lit)
}

// startsTerm reports whether t can begin an operand.
func startsTerm(t Token) bool {
	switch t.Type {
	case SCALAR, ARRAY, HASH, DEREF, INTEGER, NUMBER, STRING, QW,
		LROUND, LSQUARE, LCURLY, BACKSLASH, MINUS, NOT:
		return true
	case IDENT:
		switch t.Lit {
		case "eq", "ne", "lt", "gt", "le", "ge", "cmp", "and", "or", "x", "if", "unless", "foreach", "for", "while":
			return false
		}
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Statements
// -----------------------------------------------------------------------------

func (p *parser) stmts(end TokenType) ([]Stmt, error) {
	var out []Stmt
	for p.peek().Type != end {
		if p.atEnd() {
			return nil, p.errAt(p.peek(), "missing closing %s", end)
		}
		if p.match(SEMI) {
			continue
		}
		s, err := p.stmt()
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *parser) block() ([]Stmt, error) {
	if _, err := p.need(LCURLY, "expected '{'"); err != nil {
		return nil, err
	}
	body, err := p.stmts(RCURLY)
	if err != nil {
		return nil, err
	}
	p.next()
	return body, nil
}

// endStmt consumes a statement terminator; the last statement of a block
// may omit it.
func (p *parser) endStmt() error {
	if p.match(SEMI) {
		return nil
	}
	switch p.peek().Type {
	case RCURLY, EOF:
		return nil
	}
	_, err := p.need(SEMI, "expected ';'")
	return err
}

func (p *parser) stmt() (Stmt, error) {
	t := p.peek()
	at := pos{t.Line}
	if t.Type == LCURLY {
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		return &Block{pos: at, Body: body}, nil
	}
	if t.Type != IDENT {
		return p.simpleStmt()
	}

	switch t.Lit {
	case "package":
		p.next()
		name, err := p.need(IDENT, "expected package name")
		if err != nil {
			return nil, err
		}
		if p.peek().Type == LCURLY {
			outer := p.pkg
			p.pkg = name.Lit
			body, err := p.block()
			p.pkg = outer
			if err != nil {
				return nil, err
			}
			return &PackageStmt{pos: at, Name: name.Lit, Body: body}, nil
		}
		p.pkg = name.Lit
		return &PackageStmt{pos: at, Name: name.Lit}, p.endStmt()

	case "use", "no":
		return p.useStmt()

	case "sub":
		if p.peekAt(1).Type != IDENT {
			break
		}
		p.next()
		name := p.next().Lit
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		return &SubDef{pos: at, Name: name, Body: body}, nil

	case "if", "unless":
		p.next()
		return p.ifStmt(at, t.Lit == "unless")

	case "while", "until":
		p.next()
		cond, err := p.parenExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		return &While{pos: at, Cond: cond, Body: body, Until: t.Lit == "until"}, nil

	case "foreach", "for":
		p.next()
		return p.foreachStmt(at)
	}
	return p.simpleStmt()
}

func (p *parser) parenExpr() (Node, error) {
	if _, err := p.need(LROUND, "expected '('"); err != nil {
		return nil, err
	}
	x, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RROUND, "expected ')'"); err != nil {
		return nil, err
	}
	return x, nil
}

func (p *parser) ifStmt(at pos, unless bool) (Stmt, error) {
	s := &If{pos: at, Unless: unless}
	for {
		cond, err := p.parenExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		s.Conds = append(s.Conds, cond)
		s.Blocks = append(s.Blocks, body)
		if !p.matchWord("elsif") {
			break
		}
	}
	if p.matchWord("else") {
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		s.Else = body
	}
	return s, nil
}

func (p *parser) foreachStmt(at pos) (Stmt, error) {
	s := &Foreach{pos: at, Var: "_"}
	if p.matchWord("my") {
		s.My = true
	}
	if p.peek().Type == SCALAR {
		s.Var = p.next().Lit
	} else if s.My {
		return nil, p.errAt(p.peek(), "expected loop variable")
	}
	list, err := p.parenExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	s.List, s.Body = list, body
	return s, nil
}

// useStmt handles `use parent`/`use base`, which extend @ISA; every other
// pragma is accepted and ignored.
func (p *parser) useStmt() (Stmt, error) {
	t := p.next()
	at := pos{t.Line}
	if t.Lit == "use" && (p.isWord("parent") || p.isWord("base")) {
		p.next()
		var bases []Node
		if p.peek().Type != SEMI {
			x, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			for _, item := range flatten(x) {
				if u, ok := item.(*Unary); ok && u.Op == MINUS {
					continue // -norequire
				}
				bases = append(bases, item)
			}
		}
		isa := &ArrayVar{pos: at, Name: p.pkg + "::ISA"}
		call := &Call{pos: at, Name: "push", Args: append([]Node{isa}, bases...), Paren: true}
		return &ExprStmt{pos: at, X: call}, p.endStmt()
	}
	for !p.atEnd() && p.peek().Type != SEMI {
		p.next()
	}
	return nil, p.endStmt()
}

func (p *parser) simpleStmt() (Stmt, error) {
	t := p.peek()
	at := pos{t.Line}
	var s Stmt
	switch {
	case p.matchWord("return"):
		r := &Return{pos: at}
		if startsTerm(p.peek()) {
			x, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			r.X = x
		}
		s = r
	case p.isWord("last") || p.isWord("next"):
		s = &LoopCtl{pos: at, Last: p.next().Lit == "last"}
	default:
		x, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		s = &ExprStmt{pos: at, X: x}
	}

	switch {
	case p.isWord("if"), p.isWord("unless"):
		unless := p.next().Lit == "unless"
		cond, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		s = &If{pos: at, Conds: []Node{cond}, Blocks: [][]Stmt{{s}}, Unless: unless}
	case p.isWord("foreach"), p.isWord("for"):
		p.next()
		list, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		s = &Foreach{pos: at, Var: "_", List: list, Body: []Stmt{s}}
	}
	return s, p.endStmt()
}

// -----------------------------------------------------------------------------
// Expressions
// -----------------------------------------------------------------------------

var wordOps = map[string]struct {
	bp int
	op TokenType
}{
	"or": {2, OROR}, "and": {4, ANDAND},
	"eq": {60, EQ}, "ne": {60, NE}, "cmp": {60, CMP},
	"lt": {70, LT}, "gt": {70, GT}, "le": {70, LE}, "ge": {70, GE},
	"x": {100, STAR},
}

func infixBP(t Token) int {
	switch t.Type {
	case COMMA, FATCOMMA:
		return 10
	case ASSIGN:
		return 20
	case QUESTION:
		return 30
	case OROR, DOR:
		return 40
	case ANDAND:
		return 50
	case EQ, NE, CMP:
		return 60
	case LT, GT, LE, GE:
		return 70
	case PLUS, MINUS, DOT:
		return 90
	case STAR, SLASH, MOD:
		return 100
	case POW:
		return 120
	case INC, DEC:
		return 130
	case ARROW, LSQUARE, LCURLY:
		return 140
	case IDENT:
		if w, ok := wordOps[t.Lit]; ok {
			return w.bp
		}
	}
	return -1
}

func (p *parser) expr(minBP int) (Node, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		bp := infixBP(t)
		if bp < 0 || bp <= minBP {
			return left, nil
		}
		// subscripts chain only onto element or arrow expressions
		if (t.Type == LSQUARE || t.Type == LCURLY) && !subscriptable(left) {
			return left, nil
		}
		left, err = p.infix(left, t, bp)
		if err != nil {
			return nil, err
		}
	}
}

func subscriptable(n Node) bool {
	switch n := n.(type) {
	case *Elem:
		return true
	case *MethodCall:
		return false
	case *Deref:
		return n.Sigil == '$'
	}
	return false
}

func (p *parser) infix(left Node, t Token, bp int) (Node, error) {
	at := pos{t.Line}
	switch t.Type {
	case COMMA, FATCOMMA:
		p.next()
		if t.Type == FATCOMMA {
			if b, ok := left.(*Bareword); ok {
				left = &StrLit{pos: b.pos, Val: b.Name}
			}
		}
		items := flatten(left)
		switch p.peek().Type {
		case RROUND, RSQUARE, RCURLY, SEMI, EOF:
			return &ListExpr{pos: at, Items: items}, nil
		}
		right, err := p.expr(bp)
		if err != nil {
			return nil, err
		}
		return &ListExpr{pos: at, Items: append(items, flatten(right)...)}, nil

	case ASSIGN:
		p.next()
		right, err := p.expr(bp - 1)
		if err != nil {
			return nil, err
		}
		return &Assign{pos: at, Op: t.Lit, Left: left, Right: right}, nil

	case QUESTION:
		p.next()
		then, err := p.expr(bp - 1)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(COLON, "expected ':'"); err != nil {
			return nil, err
		}
		els, err := p.expr(bp - 1)
		if err != nil {
			return nil, err
		}
		return &Ternary{pos: at, Cond: left, Then: then, Else: els}, nil

	case INC, DEC:
		p.next()
		return &IncDec{pos: at, Op: t.Type, X: left}, nil

	case ARROW:
		p.next()
		return p.arrow(left, at)

	case LSQUARE, LCURLY:
		return p.subscript(left, at)

	case POW:
		p.next()
		right, err := p.expr(bp - 1)
		if err != nil {
			return nil, err
		}
		return &Binary{pos: at, Op: POW, L: left, R: right}, nil
	}

	p.next()
	op, word := t.Type, ""
	if t.Type == IDENT {
		op, word = wordOps[t.Lit].op, t.Lit
	}
	right, err := p.expr(bp)
	if err != nil {
		return nil, err
	}
	return &Binary{pos: at, Op: op, Word: word, L: left, R: right}, nil
}

func (p *parser) arrow(left Node, at pos) (Node, error) {
	switch p.peek().Type {
	case LSQUARE, LCURLY:
		return p.subscript(left, at)
	case IDENT:
		m := &MethodCall{pos: at, Invocant: left, Method: p.next().Lit}
		if p.peek().Type == LROUND {
			args, err := p.parenArgs()
			if err != nil {
				return nil, err
			}
			m.Args = args
		}
		return m, nil
	}
	return nil, p.errAt(p.peek(), "expected method name or subscript after '->'")
}

// subscript parses [index] or {key} applied to a reference expression.
func (p *parser) subscript(base Node, at pos) (Node, error) {
	keyed := p.next().Type == LCURLY
	idx, err := p.index(keyed)
	if err != nil {
		return nil, err
	}
	return &Elem{pos: at, Base: base, Index: idx, Keyed: keyed}, nil
}

// index parses the inside of a subscript whose opening bracket was
// consumed. A lone bareword hash key is a string.
func (p *parser) index(keyed bool) (Node, error) {
	if keyed {
		t := p.peek()
		if t.Type == IDENT && p.peekAt(1).Type == RCURLY {
			p.i += 2
			return &StrLit{pos: pos{t.Line}, Val: t.Lit}, nil
		}
		if t.Type == MINUS && p.peekAt(1).Type == IDENT && p.peekAt(2).Type == RCURLY {
			p.i += 3
			return &StrLit{pos: pos{t.Line}, Val: "-" + p.peekAt(-2).Lit}, nil
		}
	}
	x, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	closer := RSQUARE
	if keyed {
		closer = RCURLY
	}
	if _, err := p.need(closer, "expected closing "+closer.String()); err != nil {
		return nil, err
	}
	return x, nil
}

func (p *parser) parenArgs() ([]Node, error) {
	p.next() // (
	if p.match(RROUND) {
		return nil, nil
	}
	x, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RROUND, "expected ')'"); err != nil {
		return nil, err
	}
	return flatten(x), nil
}

func flatten(n Node) []Node {
	if l, ok := n.(*ListExpr); ok {
		return l.Items
	}
	return []Node{n}
}

func (p *parser) prefix() (Node, error) {
	t := p.next()
	at := pos{t.Line}
	switch t.Type {
	case INTEGER:
		v, err := strconv.ParseInt(t.Lit, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(t.Lit, 64)
			if ferr != nil {
				return nil, p.errAt(t, "bad number %q", t.Lit)
			}
			return &NumLit{pos: at, Val: f}, nil
		}
		return &IntLit{pos: at, Val: v}, nil

	case NUMBER:
		f, err := strconv.ParseFloat(t.Lit, 64)
		if err != nil {
			return nil, p.errAt(t, "bad number %q", t.Lit)
		}
		return &NumLit{pos: at, Val: f}, nil

	case STRING:
		if !t.Interp {
			return &StrLit{pos: at, Val: t.Lit}, nil
		}
		return p.interpolate(t)

	case QW:
		return &WordList{pos: at, Words: t.Words}, nil

	case SCALAR:
		switch p.peek().Type {
		case LSQUARE:
			p.next()
			idx, err := p.index(false)
			if err != nil {
				return nil, err
			}
			return &Elem{pos: at, Base: &ArrayVar{pos: at, Name: t.Lit}, Index: idx}, nil
		case LCURLY:
			p.next()
			idx, err := p.index(true)
			if err != nil {
				return nil, err
			}
			return &Elem{pos: at, Base: &HashVar{pos: at, Name: t.Lit}, Index: idx, Keyed: true}, nil
		}
		return &ScalarVar{pos: at, Name: t.Lit}, nil

	case ARRAY:
		return &ArrayVar{pos: at, Name: t.Lit}, nil

	case HASH:
		return &HashVar{pos: at, Name: t.Lit}, nil

	case DEREF:
		x, err := p.derefTarget()
		if err != nil {
			return nil, err
		}
		d := &Deref{pos: at, Sigil: t.Lit[0], X: x}
		if d.Sigil == '$' && (p.peek().Type == LSQUARE || p.peek().Type == LCURLY) {
			// $$r[0] is $r->[0]
			return p.subscript(x, at)
		}
		return d, nil

	case BACKSLASH:
		x, err := p.expr(110)
		if err != nil {
			return nil, err
		}
		return &RefGen{pos: at, X: x}, nil

	case MINUS, NOT:
		if t.Type == MINUS && p.peek().Type == IDENT && !startsCall(p.peekAt(1)) {
			// -bareword is the string "-bareword"
			return &Unary{pos: at, Op: MINUS, X: &Bareword{pos: at, Name: p.next().Lit}}, nil
		}
		x, err := p.expr(110)
		if err != nil {
			return nil, err
		}
		return &Unary{pos: at, Op: t.Type, X: x}, nil

	case INC, DEC:
		x, err := p.expr(130)
		if err != nil {
			return nil, err
		}
		return &IncDec{pos: at, Op: t.Type, Prefix: true, X: x}, nil

	case LROUND:
		if p.match(RROUND) {
			return &ListExpr{pos: at}, nil
		}
		x, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RROUND, "expected ')'"); err != nil {
			return nil, err
		}
		if _, ok := x.(*ListExpr); !ok {
			x = &ListExpr{pos: at, Items: []Node{x}}
		}
		if p.peek().Type == LSQUARE {
			// (list)[i]
			p.next()
			idx, err := p.index(false)
			if err != nil {
				return nil, err
			}
			return &Elem{pos: at, Base: x, Index: idx}, nil
		}
		return x, nil

	case LSQUARE:
		items, err := p.bracketed(RSQUARE)
		if err != nil {
			return nil, err
		}
		return &AnonArray{pos: at, Elems: items}, nil

	case LCURLY:
		items, err := p.bracketed(RCURLY)
		if err != nil {
			return nil, err
		}
		return &AnonHash{pos: at, Elems: items}, nil

	case IDENT:
		return p.word(t)
	}
	if t.Type == EOF {
		return nil, p.errAt(t, "unexpected end of input")
	}
	return nil, p.errAt(t, "unexpected %s %q", t.Type, t.Lit)
}

func startsCall(t Token) bool { return t.Type == LROUND || t.Type == ARROW }

func (p *parser) derefTarget() (Node, error) {
	t := p.next()
	switch t.Type {
	case SCALAR:
		return &ScalarVar{pos: pos{t.Line}, Name: t.Lit}, nil
	case DEREF:
		x, err := p.derefTarget()
		if err != nil {
			return nil, err
		}
		return &Deref{pos: pos{t.Line}, Sigil: t.Lit[0], X: x}, nil
	case LCURLY:
		x, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RCURLY, "expected '}'"); err != nil {
			return nil, err
		}
		return x, nil
	}
	return nil, p.errAt(t, "expected reference after sigil")
}

func (p *parser) bracketed(closer TokenType) ([]Node, error) {
	if p.match(closer) {
		return nil, nil
	}
	x, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(closer, "expected closing "+closer.String()); err != nil {
		return nil, err
	}
	return flatten(x), nil
}

// listOps take a comma separated argument list without parentheses.
var listOps = map[string]bool{
	"print": true, "say": true, "push": true, "unshift": true, "die": true,
	"warn": true, "join": true, "bless": true, "sprintf": true,
	"reverse": true, "sort": true, "return": true,
}

// namedUnary take at most one argument and bind tighter than comparisons.
var namedUnary = map[string]bool{
	"defined": true, "ref": true, "scalar": true, "shift": true, "pop": true,
	"keys": true, "values": true, "exists": true, "delete": true, "lc": true,
	"uc": true, "length": true, "int": true, "abs": true, "undef": true,
	"chr": true, "ord": true,
}

func (p *parser) word(t Token) (Node, error) {
	at := pos{t.Line}
	name := t.Lit

	if p.peek().Type == FATCOMMA {
		return &StrLit{pos: at, Val: name}, nil
	}

	switch name {
	case "__PACKAGE__":
		return &StrLit{pos: at, Val: p.pkg}, nil
	case "my", "our":
		return p.decl(at, name == "our")
	case "not":
		x, err := p.expr(5)
		if err != nil {
			return nil, err
		}
		return &Unary{pos: at, Op: NOT, X: x}, nil
	case "eval":
		if p.peek().Type == LCURLY {
			body, err := p.block()
			if err != nil {
				return nil, err
			}
			return &EvalBlock{pos: at, Body: body}, nil
		}
	case "do":
		if p.peek().Type == LCURLY {
			body, err := p.block()
			if err != nil {
				return nil, err
			}
			return &Call{pos: at, Name: "do", Args: []Node{&EvalBlock{pos: at, Body: body}}, Paren: true}, nil
		}
	}

	if p.peek().Type == LROUND {
		args, err := p.parenArgs()
		if err != nil {
			return nil, err
		}
		return &Call{pos: at, Name: name, Args: args, Paren: true}, nil
	}
	if p.peek().Type == ARROW && !namedUnary[name] && !listOps[name] {
		return &Bareword{pos: at, Name: name}, nil
	}

	switch {
	case listOps[name]:
		c := &Call{pos: at, Name: name}
		if (name == "print" || name == "say") && (p.isWord("STDERR") || p.isWord("STDOUT")) && startsTerm(p.peekAt(1)) {
			c.Args = append(c.Args, &Bareword{pos: at, Name: p.next().Lit})
		}
		if startsTerm(p.peek()) {
			x, err := p.expr(9)
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, flatten(x)...)
		}
		return c, nil
	case namedUnary[name], name == "eval":
		c := &Call{pos: at, Name: name}
		if startsTerm(p.peek()) && p.peek().Type != MINUS {
			x, err := p.expr(80)
			if err != nil {
				return nil, err
			}
			c.Args = []Node{x}
		}
		return c, nil
	}
	return &Bareword{pos: at, Name: name}, nil
}

func (p *parser) decl(at pos, our bool) (Node, error) {
	d := &My{pos: at, Our: our}
	single := func() (Node, error) {
		t := p.next()
		switch t.Type {
		case SCALAR:
			return &ScalarVar{pos: pos{t.Line}, Name: t.Lit}, nil
		case ARRAY:
			return &ArrayVar{pos: pos{t.Line}, Name: t.Lit}, nil
		case HASH:
			return &HashVar{pos: pos{t.Line}, Name: t.Lit}, nil
		}
		return nil, p.errAt(t, "expected variable after declaration")
	}
	if !p.match(LROUND) {
		v, err := single()
		if err != nil {
			return nil, err
		}
		d.Vars = []Node{v}
		return d, nil
	}
	d.Paren = true
	for !p.match(RROUND) {
		v, err := single()
		if err != nil {
			return nil, err
		}
		d.Vars = append(d.Vars, v)
		if !p.match(COMMA) {
			if _, err := p.need(RROUND, "expected ')'"); err != nil {
				return nil, err
			}
			break
		}
	}
	return d, nil
}

// -----------------------------------------------------------------------------
// Interpolation
// -----------------------------------------------------------------------------

// interpolate splits a double-quoted string into literal text and embedded
// variable expressions.
func (p *parser) interpolate(t Token) (Node, error) {
	at := pos{t.Line}
	s := t.Lit
	var parts []Node
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, &StrLit{pos: at, Val: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			i++
			lit.WriteString(unescape(s[i]))
			continue
		}
		if (c == '$' || c == '@') && i+1 < len(s) {
			n := varExtent(s, i)
			if n > 1 {
				src := s[i : i+n]
				if strings.HasPrefix(src, "${") && !strings.ContainsAny(src[2:], "$[{-") {
					src = "$" + src[2:len(src)-1]
				}
				if strings.HasPrefix(src, "@{") && !strings.ContainsAny(src[2:], "$[{-") {
					src = "@" + src[2:len(src)-1]
				}
				sub := &parser{file: p.file, pkg: p.pkg}
				toks, err := (&Lexer{src: src, file: p.file, line: t.Line}).Scan()
				if err != nil {
					return nil, err
				}
				sub.toks = toks
				x, err := sub.expr(0)
				if err != nil {
					return nil, err
				}
				flush()
				if c == '@' {
					x = &Call{pos: at, Name: "join", Args: []Node{&StrLit{pos: at, Val: " "}, x}, Paren: true}
				}
				parts = append(parts, x)
				i += n - 1
				continue
			}
		}
		lit.WriteByte(c)
	}
	flush()
	if len(parts) == 1 {
		if sl, ok := parts[0].(*StrLit); ok {
			return sl, nil
		}
	}
	if len(parts) == 0 {
		return &StrLit{pos: at}, nil
	}
	return &StrLit{pos: at, Parts: parts}, nil
}

func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	case 'e':
		return "\x1b"
	case 'a':
		return "\a"
	}
	return string(c)
}

// varExtent returns the length of the variable expression starting at
// s[i], or 0 when the sigil is literal text.
func varExtent(s string, i int) int {
	j := i + 1
	switch {
	case j < len(s) && s[j] == '{':
		end := matchBracket(s, j)
		if end < 0 {
			return 0
		}
		j = end + 1
	case j < len(s) && s[i] == '$' && s[j] == '$' && j+1 < len(s) && isAlpha(s[j+1]):
		j++
		for j < len(s) && (isAlphaNum(s[j]) || s[j] == ':' && j+2 < len(s) && s[j+1] == ':' && isAlpha(s[j+2])) {
			if s[j] == ':' {
				j++
			}
			j++
		}
	case j < len(s) && isAlpha(s[j]):
		for j < len(s) && (isAlphaNum(s[j]) || s[j] == ':' && j+2 < len(s) && s[j+1] == ':' && isAlpha(s[j+2])) {
			if s[j] == ':' {
				j++
			}
			j++
		}
	case j < len(s) && s[i] == '$' && (s[j] == '@' || s[j] == '_'):
		return 2
	default:
		return 0
	}
	if s[i] == '@' {
		return j - i
	}
	// trailing subscripts and arrow subscripts
	for j < len(s) {
		k := j
		if strings.HasPrefix(s[k:], "->") && k+2 < len(s) && (s[k+2] == '[' || s[k+2] == '{') {
			k += 2
		}
		if k >= len(s) || s[k] != '[' && s[k] != '{' {
			break
		}
		end := matchBracket(s, k)
		if end < 0 {
			break
		}
		j = end + 1
	}
	return j - i
}

func matchBracket(s string, open int) int {
	closeCh := closing(s[open])
	depth := 0
	for k := open; k < len(s); k++ {
		switch s[k] {
		case s[open]:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return k
			}
		}
	}
	return -1
}
