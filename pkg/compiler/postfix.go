package compiler

// priority is the binding strength of a binary operator. Higher binds
// tighter.
func priority(tt TokenType) int {
	switch tt {
	case STAR, SLASH:
		return 2
	case PLUS, MINUS, EQUALS, NOT_EQ, GREATER, LESS, AND, OR:
		return 1
	}
	return 0
}

func isOperand(tok Token) bool {
	return tok.Type.IsLiteral() || tok.Type == VARIABLE
}

// toPostfix reorders one infix expression into postfix order with the
// shunting-yard algorithm. Operators of equal priority associate to the
// left. Parentheses never reach the output. A '-' opening a group negates
// it: "(-a * 2)" is read as "(0 - a * 2)".
func toPostfix(span []Token) ([]Token, error) {
	out := make([]Token, 0, len(span))
	var ops []Token

	for i, tok := range span {
		if tok.Type == MINUS && i > 0 && span[i-1].Type == LPAREN {
			out = append(out, zeroLike(tok))
		}

		switch {
		case isOperand(tok):
			out = append(out, tok)

		case tok.Type.IsOperator():
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top.Type == LPAREN || priority(top.Type) < priority(tok.Type) {
					break
				}
				out = append(out, top)
				ops = ops[:len(ops)-1]
			}
			ops = append(ops, tok)

		case tok.Type == LPAREN:
			ops = append(ops, tok)

		case tok.Type == RPAREN:
			matched := false
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if top.Type == LPAREN {
					matched = true
					break
				}
				out = append(out, top)
			}
			if !matched {
				return nil, errAt(StageResolve, ErrUnbalancedParens, tok, "no matching '('")
			}

		case tok.Type == UNKNOWN:
			return nil, errAt(StageResolve, ErrUndeclaredVariable, tok, "%s is not declared", tok.Lexeme)

		default:
			return nil, errAt(StageResolve, ErrMalformedStatement, tok, "%s is not allowed in an expression", tok.Type)
		}
	}

	for len(ops) > 0 {
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if top.Type == LPAREN {
			return nil, errAt(StageResolve, ErrUnbalancedParens, top, "no matching ')'")
		}
		out = append(out, top)
	}

	if err := checkArity(out); err != nil {
		return nil, err
	}
	return out, nil
}

func zeroLike(at Token) Token {
	return Token{Type: INT_LIT, Lexeme: "0", Value: int32(0), Data: TypeInt32, InExpr: at.InExpr, Line: at.Line, Col: at.Col}
}

// checkArity walks a postfix sequence with a depth counter and rejects
// sequences that would underflow or leave more than one value.
func checkArity(postfix []Token) error {
	depth := 0
	for _, tok := range postfix {
		if isOperand(tok) {
			depth++
			continue
		}
		if depth < 2 {
			return errAt(StageResolve, ErrMalformedStatement, tok, "operator %q is missing an operand", tok.Lexeme)
		}
		depth--
	}
	if depth != 1 && len(postfix) > 0 {
		return errAt(StageResolve, ErrMalformedStatement, postfix[len(postfix)-1], "expression leaves %d values", depth)
	}
	return nil
}
