package compiler

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	eofRune     = '\x00'
	commentRune = '#'
)

// operators is matched longest first, so "==" wins over "=".
var operators = []struct {
	text string
	tt   TokenType
}{
	{"::", METHOD_SEP},
	{"==", EQUALS},
	{"!=", NOT_EQ},
	{"(", LPAREN},
	{")", RPAREN},
	{"[", LBRACKET},
	{"]", RBRACKET},
	{"{", LBRACE},
	{"}", RBRACE},
	{",", COMMA},
	{".", DOT},
	{">", GREATER},
	{"<", LESS},
	{"=", ASSIGN},
	{"+", PLUS},
	{"-", MINUS},
	{"*", STAR},
	{"/", SLASH},
}

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"int":    INT_TYPE,
	"float":  FLOAT_TYPE,
	"bool":   BOOL_TYPE,
	"string": STRING_TYPE,
	"void":   VOID_TYPE,
	"call":   CALL,
	"from":   FROM,
	"using":  USING,
	"if":     IF,
	"else":   ELSE,
	"and":    AND,
	"or":     OR,
	"true":   BOOL_LIT,
	"false":  BOOL_LIT,
}

// keywordOrder lists keywords longest first for prefix matching.
var keywordOrder = func() []string {
	ks := make([]string, 0, len(keywords))
	for k := range keywords {
		ks = append(ks, k)
	}
	sort.Slice(ks, func(i, j int) bool {
		if len(ks[i]) != len(ks[j]) {
			return len(ks[i]) > len(ks[j])
		}
		return ks[i] < ks[j]
	})
	return ks
}()

// Lexer is a cursor over preprocessed lines. The cursor reads '\n' at the
// end of every line and eofRune past the last one.
type Lexer struct {
	lines  [][]rune
	nums   []int // original line numbers
	line   int
	col    int
	delim  rune
	tokens []Token
}

func newLexer(lines []CodeLine, delim rune) *Lexer {
	l := &Lexer{delim: delim}
	for _, cl := range lines {
		l.lines = append(l.lines, []rune(cl.Text))
		l.nums = append(l.nums, cl.Number)
	}
	return l
}

func (l *Lexer) charAt(col int) rune {
	if l.line >= len(l.lines) {
		return eofRune
	}
	if col < 0 {
		return ' '
	}
	if col >= len(l.lines[l.line]) {
		return '\n'
	}
	return l.lines[l.line][col]
}

func (l *Lexer) current() rune { return l.charAt(l.col) }
func (l *Lexer) peek() rune    { return l.charAt(l.col + 1) }
func (l *Lexer) prev() rune    { return l.charAt(l.col - 1) }

func (l *Lexer) srcLine() int {
	if l.line >= len(l.nums) {
		if len(l.nums) == 0 {
			return 1
		}
		return l.nums[len(l.nums)-1] + 1
	}
	return l.nums[l.line]
}

func (l *Lexer) emit(tt TokenType, lexeme string, col int) {
	l.tokens = append(l.tokens, Token{Type: tt, Lexeme: lexeme, Line: l.srcLine(), Col: col + 1})
}

// negativeLiteralAhead reports whether the cursor sits on "(-<number>)".
// Anything else after "(-" is a parenthesised group.
func (l *Lexer) negativeLiteralAhead() bool {
	if l.peek() != '-' || !unicode.IsDigit(l.charAt(l.col+2)) {
		return false
	}
	i := l.col + 2
	for isIdentRune(l.charAt(i)) || l.charAt(i) == '.' {
		i++
	}
	return l.charAt(i) == ')'
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// hasPrefix reports whether the current line continues with s at the cursor.
func (l *Lexer) hasPrefix(s string) bool {
	rest := l.lines[l.line][l.col:]
	if len(rest) < len([]rune(s)) {
		return false
	}
	return strings.HasPrefix(string(rest), s)
}

// next scans one token. It returns false once EOF has been emitted.
func (l *Lexer) next() (bool, error) {
	ch := l.current()
	start := l.col

	switch {
	case ch == eofRune:
		l.emit(EOF, "", start)
		return false, nil

	case ch == '\n':
		l.emit(NEWLINE, "\\n", start)
		l.line++
		l.col = 0
		return true, nil

	case ch == l.delim && l.prev() != '\\':
		return true, l.scanString()

	case unicode.IsSpace(ch):
		l.emit(WHITESPACE, " ", start)
		l.col++
		return true, nil

	case ch == commentRune:
		l.col = len(l.lines[l.line])
		return true, nil

	case unicode.IsDigit(ch) && !isIdentRune(l.prev()):
		return true, l.scanNumber(false)

	case ch == '(' && l.negativeLiteralAhead():
		return true, l.scanNumber(true)
	}

	for _, op := range operators {
		if l.hasPrefix(op.text) {
			l.emit(op.tt, op.text, start)
			l.col += len(op.text)
			return true, nil
		}
	}

	if !isIdentRune(l.prev()) {
		for _, kw := range keywordOrder {
			if !l.hasPrefix(kw) || isIdentRune(l.charAt(l.col+len(kw))) {
				continue
			}
			tt := keywords[kw]
			l.emit(tt, kw, start)
			if tt == BOOL_LIT {
				last := &l.tokens[len(l.tokens)-1]
				last.Value = kw == "true"
				last.Data = TypeBool
			}
			l.col += len(kw)
			return true, nil
		}
	}

	l.emit(UNKNOWN, string(ch), start)
	l.col++
	return true, nil
}

// scanString reads a delimited literal up to the next unescaped delimiter on
// the same line. The payload keeps escapes as written.
func (l *Lexer) scanString() error {
	start := l.col
	l.col++
	var payload []rune
	for {
		ch := l.current()
		if ch == '\n' || ch == eofRune {
			return &Error{
				Stage:  StageLex,
				Kind:   ErrUnterminatedString,
				Lexeme: string(l.delim) + string(payload),
				Line:   l.srcLine(),
				Col:    start + 1,
			}
		}
		if ch == '\\' && l.peek() != '\n' {
			payload = append(payload, ch, l.peek())
			l.col += 2
			continue
		}
		l.col++
		if ch == l.delim {
			break
		}
		payload = append(payload, ch)
	}

	s := string(payload)
	l.tokens = append(l.tokens, Token{
		Type:   STRING_LIT,
		Lexeme: string(l.delim) + s + string(l.delim),
		Value:  s,
		Data:   TypeString,
		Line:   l.srcLine(),
		Col:    start + 1,
	})
	return nil
}

// scanNumber reads a decimal, 0x hex or 0b binary literal. With negative
// set the cursor sits on "(-" and the closing ")" is consumed as well.
func (l *Lexer) scanNumber(negative bool) error {
	start := l.col
	if negative {
		l.col += 2
	}

	fail := func(text string) error {
		return &Error{
			Stage:  StageLex,
			Kind:   ErrMalformedNumber,
			Lexeme: text,
			Line:   l.srcLine(),
			Col:    start + 1,
		}
	}

	base := 10
	prefix := ""
	if l.current() == '0' {
		switch unicode.ToLower(l.peek()) {
		case 'x':
			base, prefix = 16, string(l.lines[l.line][l.col:l.col+2])
		case 'b':
			base, prefix = 2, string(l.lines[l.line][l.col:l.col+2])
		}
	}
	l.col += len(prefix)

	var digits []rune
	sawDot := false
	for {
		ch := l.current()
		if base == 10 && ch == '.' {
			if sawDot {
				return fail(string(digits) + ".")
			}
			sawDot = true
			digits = append(digits, ch)
			l.col++
			continue
		}
		if !validDigit(ch, base) {
			break
		}
		digits = append(digits, ch)
		l.col++
	}

	text := prefix + string(digits)
	if negative {
		text = "-" + text
	}
	if len(digits) == 0 || isIdentRune(l.current()) {
		return fail(text + string(l.current()))
	}
	if negative {
		if l.current() != ')' {
			return fail("(" + text)
		}
		l.col++
	}

	tok := Token{Lexeme: text, Line: l.srcLine(), Col: start + 1}
	switch {
	case sawDot:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return fail(text)
		}
		tok.Type, tok.Value, tok.Data = FLOAT_LIT, float32(f), TypeFloat32
	case base == 10:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return fail(text)
		}
		tok.Type, tok.Value, tok.Data = INT_LIT, int32(n), TypeInt32
	default:
		u, err := strconv.ParseUint(string(digits), base, 32)
		if err != nil {
			return fail(text)
		}
		n := int32(uint32(u))
		if negative {
			n = -n
		}
		tok.Type, tok.Value, tok.Data = INT_LIT, n, TypeInt32
	}
	l.tokens = append(l.tokens, tok)
	return nil
}

func validDigit(ch rune, base int) bool {
	switch base {
	case 2:
		return ch == '0' || ch == '1'
	case 16:
		return unicode.IsDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
	}
	return unicode.IsDigit(ch)
}

// Lex scans preprocessed lines into the raw token stream, which ends with
// EOF. Whitespace tokens and single-character UNKNOWN tokens are left for
// Normalize.
func Lex(lines []CodeLine, delim rune) ([]Token, error) {
	l := newLexer(lines, delim)
	for {
		more, err := l.next()
		if err != nil {
			return l.tokens, err
		}
		if !more {
			return l.tokens, nil
		}
	}
}

// Normalize merges each run of adjacent UNKNOWN tokens into one identifier
// token and then drops WHITESPACE tokens.
func Normalize(tokens []Token) []Token {
	merged := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Type == UNKNOWN && len(merged) > 0 && merged[len(merged)-1].Type == UNKNOWN {
			merged[len(merged)-1].Lexeme += tok.Lexeme
			continue
		}
		merged = append(merged, tok)
	}

	out := merged[:0]
	for _, tok := range merged {
		if tok.Type != WHITESPACE {
			out = append(out, tok)
		}
	}
	return out
}

// Tokenize runs the preprocessor, the lexer and the normalizer.
func Tokenize(src string, delim rune) ([]Token, error) {
	lines, err := Preprocess(src, delim)
	if err != nil {
		return nil, err
	}
	raw, err := Lex(lines, delim)
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}
