package script

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenType represents the kind of token.
type TokenType int

const (
	EOF TokenType = iota

	// Variables
	SCALAR // $name
	ARRAY  // @name
	HASH   // %name
	DEREF  // a sigil ($ @ %) followed by $ or {

	// Literals & identifiers
	IDENT
	INTEGER
	NUMBER
	STRING // Lit holds the raw text; Interp marks double quotes
	QW     // qw(...) word list

	// Punctuation
	LROUND
	RROUND
	LSQUARE
	RSQUARE
	LCURLY
	RCURLY
	SEMI
	COMMA
	FATCOMMA // =>
	ARROW    // ->
	BACKSLASH
	QUESTION
	COLON

	// Operators
	ASSIGN // = += -= *= /= .= ||= &&= //= **= %=
	OROR   // ||
	DOR    // //
	ANDAND // &&
	NOT    // !
	EQ
	NE
	CMP // <=>
	LT
	GT
	LE
	GE
	PLUS
	MINUS
	STAR
	SLASH
	MOD
	POW
	DOT
	INC // ++
	DEC // --
)

var tokenNames = map[TokenType]string{
	EOF: "end of input", SCALAR: "scalar", ARRAY: "array", HASH: "hash",
	DEREF: "dereference", IDENT: "identifier", INTEGER: "integer",
	NUMBER: "number", STRING: "string", QW: "qw list", LROUND: "'('",
	RROUND: "')'", LSQUARE: "'['", RSQUARE: "']'", LCURLY: "'{'",
	RCURLY: "'}'", SEMI: "';'", COMMA: "','", FATCOMMA: "'=>'",
	ARROW: "'->'", BACKSLASH: "'\\'", QUESTION: "'?'", COLON: "':'",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("operator(%d)", int(t))
}

// Token is a lexical token.
type Token struct {
	Type   TokenType
	Lit    string
	Words  []string // QW only
	Interp bool     // STRING only
	Line   int
}

// SyntaxError reports a lexing or parsing failure.
type SyntaxError struct {
	File string
	Line int
	Msg  string
	// Incomplete is set when the source ended early, e.g. inside a block
	// or a string. More input may make it parse.
	Incomplete bool
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %s line %d: %s", e.File, e.Line, e.Msg)
}

// Lexer turns source text into tokens.
type Lexer struct {
	src  string
	file string
	cur  int
	line int
	toks []Token
}

// NewLexer creates a lexer over src; file is used in error messages.
func NewLexer(src, file string) *Lexer {
	return &Lexer{src: src, file: file, line: 1}
}

func (l *Lexer) err(format string, args ...any) error {
	return &SyntaxError{File: l.file, Line: l.line, Msg: fmt.Sprintf(format, args...)}
}

func (l *Lexer) unterminated(format string, args ...any) error {
	return &SyntaxError{File: l.file, Line: l.line, Msg: fmt.Sprintf(format, args...), Incomplete: true}
}

func (l *Lexer) peekAt(n int) byte {
	if l.cur+n >= len(l.src) {
		return 0
	}
	return l.src[l.cur+n]
}

func isDigit(b byte) bool    { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool    { return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_' }
func isAlphaNum(b byte) bool { return isAlpha(b) || isDigit(b) }

func (l *Lexer) emit(t TokenType, lit string) {
	l.toks = append(l.toks, Token{Type: t, Lit: lit, Line: l.line})
}

// prevIsOperand reports whether the previous token ends a value, which
// makes a following '%' the modulo operator.
func (l *Lexer) prevIsOperand() bool {
	if len(l.toks) == 0 {
		return false
	}
	switch l.toks[len(l.toks)-1].Type {
	case SCALAR, ARRAY, HASH, INTEGER, NUMBER, STRING, RROUND, RSQUARE, RCURLY, QW:
		return true
	}
	return false
}

// Scan returns every token, ending with EOF.
func (l *Lexer) Scan() ([]Token, error) {
	for {
		l.skipSpace()
		if l.cur >= len(l.src) {
			break
		}
		if l.atLineStart() && strings.HasPrefix(l.src[l.cur:], "__END__") {
			break
		}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
	l.emit(EOF, "")
	return l.toks, nil
}

func (l *Lexer) atLineStart() bool {
	return l.cur == 0 || l.src[l.cur-1] == '\n'
}

func (l *Lexer) skipSpace() {
	for l.cur < len(l.src) {
		c := l.src[l.cur]
		switch {
		case c == '\n':
			l.line++
			l.cur++
		case c == ' ' || c == '\t' || c == '\r':
			l.cur++
		case c == '#':
			for l.cur < len(l.src) && l.src[l.cur] != '\n' {
				l.cur++
			}
		case c == '=' && l.atLineStart() && isAlpha(l.peekAt(1)):
			// POD block, up to =cut
			end := strings.Index(l.src[l.cur:], "\n=cut")
			if end < 0 {
				l.cur = len(l.src)
				return
			}
			l.line += strings.Count(l.src[l.cur:l.cur+end+5], "\n")
			l.cur += end + 5
		default:
			return
		}
	}
}

func (l *Lexer) scanName() string {
	start := l.cur
	for l.cur < len(l.src) {
		c := l.src[l.cur]
		if isAlphaNum(c) {
			l.cur++
			continue
		}
		if c == ':' && l.peekAt(1) == ':' && isAlpha(l.peekAt(2)) {
			l.cur += 2
			continue
		}
		break
	}
	return l.src[start:l.cur]
}

func (l *Lexer) scanToken() error {
	c := l.src[l.cur]
	switch {
	case c == '$' || c == '@' || c == '%' && !l.prevIsOperand():
		return l.scanVariable(c)
	case isDigit(c):
		return l.scanNumber()
	case isAlpha(c):
		name := l.scanName()
		if name == "qw" {
			return l.scanQW()
		}
		if name == "q" || name == "qq" {
			if d := l.peekAt(0); d == '(' || d == '{' || d == '[' || d == '/' || d == '|' {
				return l.scanQuoteLike(name == "qq")
			}
		}
		l.emit(IDENT, name)
		return nil
	case c == '"' || c == '\'':
		return l.scanString(c)
	}
	return l.scanPunct()
}

func (l *Lexer) scanVariable(sigil byte) error {
	l.cur++
	next := l.peekAt(0)
	types := map[byte]TokenType{'$': SCALAR, '@': ARRAY, '%': HASH}
	switch {
	case next == '$' || next == '{':
		l.emit(DEREF, string(sigil))
		return nil
	case sigil == '$' && (next == '@' || next == '_' && !isAlphaNum(l.peekAt(1)) || next == '0' || next == '!'):
		l.cur++
		l.emit(SCALAR, string(next))
		return nil
	case sigil == '@' && next == '_' && !isAlphaNum(l.peekAt(1)):
		l.cur++
		l.emit(ARRAY, "_")
		return nil
	case next == ':' && l.peekAt(1) == ':':
		l.cur += 2
		name := l.scanName()
		l.emit(types[sigil], "main::"+name)
		return nil
	case isAlpha(next):
		l.emit(types[sigil], l.scanName())
		return nil
	}
	if sigil == '%' {
		l.emit(MOD, "%")
		return nil
	}
	return l.err("unexpected character after %q", string(sigil))
}

func (l *Lexer) scanNumber() error {
	start := l.cur
	if l.src[l.cur] == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		l.cur += 2
		for l.cur < len(l.src) && strings.IndexByte("0123456789abcdefABCDEF_", l.src[l.cur]) >= 0 {
			l.cur++
		}
		v, err := strconv.ParseInt(strings.ReplaceAll(l.src[start+2:l.cur], "_", ""), 16, 64)
		if err != nil {
			return l.err("bad hex literal %q", l.src[start:l.cur])
		}
		l.emit(INTEGER, strconv.FormatInt(v, 10))
		return nil
	}
	float := false
	for l.cur < len(l.src) {
		c := l.src[l.cur]
		switch {
		case isDigit(c) || c == '_':
			l.cur++
		case c == '.' && isDigit(l.peekAt(1)) && !float:
			float = true
			l.cur++
		case (c == 'e' || c == 'E') && (isDigit(l.peekAt(1)) || (l.peekAt(1) == '-' || l.peekAt(1) == '+') && isDigit(l.peekAt(2))):
			float = true
			l.cur += 2
		default:
			goto done
		}
	}
done:
	lit := strings.ReplaceAll(l.src[start:l.cur], "_", "")
	if float {
		l.emit(NUMBER, lit)
	} else {
		l.emit(INTEGER, lit)
	}
	return nil
}

func (l *Lexer) scanString(quote byte) error {
	line := l.line
	l.cur++
	var b strings.Builder
	for {
		if l.cur >= len(l.src) {
			l.line = line
			return l.unterminated("unterminated string")
		}
		c := l.src[l.cur]
		if c == quote {
			l.cur++
			break
		}
		if c == '\n' {
			l.line++
		}
		if c == '\\' && l.cur+1 < len(l.src) {
			next := l.src[l.cur+1]
			if quote == '\'' {
				// only \\ and \' are escapes in single quotes
				if next == '\\' || next == '\'' {
					b.WriteByte(next)
					l.cur += 2
					continue
				}
			} else {
				// keep the escape for the interpolator
				b.WriteByte(c)
				b.WriteByte(next)
				l.cur += 2
				continue
			}
		}
		b.WriteByte(c)
		l.cur++
	}
	l.toks = append(l.toks, Token{Type: STRING, Lit: b.String(), Interp: quote == '"', Line: line})
	return nil
}

func closing(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	case '{':
		return '}'
	case '<':
		return '>'
	}
	return open
}

func (l *Lexer) delimited() (string, error) {
	for l.cur < len(l.src) && (l.src[l.cur] == ' ' || l.src[l.cur] == '\t') {
		l.cur++
	}
	if l.cur >= len(l.src) {
		return "", l.err("missing delimiter")
	}
	open := l.src[l.cur]
	end := strings.IndexByte(l.src[l.cur+1:], closing(open))
	if end < 0 {
		return "", l.unterminated("unterminated %q", string(open))
	}
	body := l.src[l.cur+1 : l.cur+1+end]
	l.line += strings.Count(body, "\n")
	l.cur += end + 2
	return body, nil
}

func (l *Lexer) scanQW() error {
	line := l.line
	body, err := l.delimited()
	if err != nil {
		return err
	}
	l.toks = append(l.toks, Token{Type: QW, Words: strings.Fields(body), Line: line})
	return nil
}

func (l *Lexer) scanQuoteLike(interp bool) error {
	line := l.line
	body, err := l.delimited()
	if err != nil {
		return err
	}
	l.toks = append(l.toks, Token{Type: STRING, Lit: body, Interp: interp, Line: line})
	return nil
}

// punctuation, longest first
var puncts = []struct {
	text string
	typ  TokenType
}{
	{"<=>", CMP}, {"**=", ASSIGN}, {"||=", ASSIGN}, {"&&=", ASSIGN}, {"//=", ASSIGN},
	{"=>", FATCOMMA}, {"->", ARROW}, {"++", INC}, {"--", DEC}, {"**", POW},
	{"==", EQ}, {"!=", NE}, {"<=", LE}, {">=", GE}, {"||", OROR}, {"&&", ANDAND},
	{"//", DOR}, {"+=", ASSIGN}, {"-=", ASSIGN}, {"*=", ASSIGN}, {"/=", ASSIGN},
	{".=", ASSIGN}, {"%=", ASSIGN},
	{"(", LROUND}, {")", RROUND}, {"[", LSQUARE}, {"]", RSQUARE}, {"{", LCURLY},
	{"}", RCURLY}, {";", SEMI}, {",", COMMA}, {"\\", BACKSLASH}, {"?", QUESTION},
	{":", COLON}, {"=", ASSIGN}, {"!", NOT}, {"<", LT}, {">", GT}, {"+", PLUS},
	{"-", MINUS}, {"*", STAR}, {"/", SLASH}, {"%", MOD}, {".", DOT},
}

func (l *Lexer) scanPunct() error {
	rest := l.src[l.cur:]
	for _, p := range puncts {
		if strings.HasPrefix(rest, p.text) {
			l.cur += len(p.text)
			l.emit(p.typ, p.text)
			return nil
		}
	}
	return l.err("unexpected character %q", rest[:1])
}
