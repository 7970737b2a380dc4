package compiler

import (
	"math"
	"strconv"
	"strings"
)

// Fold collapses constant windows (literal, literal, operator) inside every
// postfix expression span. After a fold the scan steps back one window, so
// chains of literals fold completely and a second call changes nothing.
// Only + - * / over numeric literals fold. Integer results that overflow
// int32 are left for the checked runtime instruction.
func Fold(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for i := 0; i < len(tokens); {
		if !tokens[i].InExpr {
			out = append(out, tokens[i])
			i++
			continue
		}
		j := i
		for j < len(tokens) && tokens[j].InExpr {
			j++
		}
		out = append(out, foldSpan(append([]Token(nil), tokens[i:j]...))...)
		i = j
	}
	return out
}

func foldSpan(span []Token) []Token {
	for i := 0; i+2 < len(span); {
		folded, ok := foldWindow(span[i], span[i+1], span[i+2])
		if !ok {
			i++
			continue
		}
		span[i] = folded
		span = append(span[:i+1], span[i+3:]...)
		if i > 0 {
			i--
		}
	}
	return span
}

func isNumericLiteral(tok Token) bool {
	return tok.Type == INT_LIT || tok.Type == FLOAT_LIT
}

func foldWindow(a, b, op Token) (Token, bool) {
	if !isNumericLiteral(a) || !isNumericLiteral(b) {
		return Token{}, false
	}
	switch op.Type {
	case PLUS, MINUS, STAR, SLASH:
	default:
		return Token{}, false
	}

	res := Token{InExpr: true, Line: a.Line, Col: a.Col}

	if a.Type == INT_LIT && b.Type == INT_LIT && op.Type != SLASH {
		x, y := int64(a.Value.(int32)), int64(b.Value.(int32))
		var v int64
		switch op.Type {
		case PLUS:
			v = x + y
		case MINUS:
			v = x - y
		case STAR:
			v = x * y
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return Token{}, false
		}
		res.Type, res.Value, res.Data = INT_LIT, int32(v), TypeInt32
		res.Lexeme = strconv.FormatInt(v, 10)
		return res, true
	}

	x, y := asFloat32(a), asFloat32(b)
	var v float32
	switch op.Type {
	case PLUS:
		v = x + y
	case MINUS:
		v = x - y
	case STAR:
		v = x * y
	case SLASH:
		v = x / y
	}
	if math.IsInf(float64(v), 0) || math.IsNaN(float64(v)) {
		return Token{}, false
	}
	res.Type, res.Value, res.Data = FLOAT_LIT, v, TypeFloat32
	res.Lexeme = formatFloat32(v)
	return res, true
}

func asFloat32(tok Token) float32 {
	switch v := tok.Value.(type) {
	case int32:
		return float32(v)
	case float32:
		return v
	}
	return 0
}

// formatFloat32 renders f in the shortest form that round-trips through
// float32, always with a decimal point.
func formatFloat32(f float32) string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
