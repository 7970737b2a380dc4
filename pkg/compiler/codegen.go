package compiler

import (
	"fmt"
	"strings"

	"silc/pkg/metadata"
)

// CodeGen lowers a resolved token stream to CIL assembly text. It holds the
// locals table, library set and condition counter of one compilation.
type CodeGen struct {
	meta      MetadataQuery
	templates Templates
	externals *ExternalTable
	core      metadata.Library

	locals   *LocalTable
	libs     *LibrarySet
	out      strings.Builder
	nextCond int
}

// NewCodeGen returns a generator for one compilation. core is the library
// that defines System.String and System.Object; it is always referenced.
func NewCodeGen(meta MetadataQuery, templates Templates, externals *ExternalTable, core metadata.Library) *CodeGen {
	return &CodeGen{
		meta:      meta,
		templates: templates,
		externals: externals,
		core:      core,
		locals:    NewLocalTable(),
		libs:      NewLibrarySet(),
	}
}

// Locals is the locals table built by Generate.
func (cg *CodeGen) Locals() *LocalTable { return cg.locals }

// Libraries is the set of libraries emitted in the header.
func (cg *CodeGen) Libraries() *LibrarySet { return cg.libs }

func (cg *CodeGen) ins(format string, args ...any) {
	cg.out.WriteString("    ")
	fmt.Fprintf(&cg.out, format, args...)
	cg.out.WriteByte('\n')
}

func (cg *CodeGen) label(name string) {
	cg.out.WriteString(name)
	cg.out.WriteString(":\n")
}

func (cg *CodeGen) newCondition() int {
	cg.nextCond++
	return cg.nextCond
}

// Generate emits, in order: extern declarations, the prologue template, the
// locals list, the lowered body and the two epilogue templates.
func (cg *CodeGen) Generate(tokens []Token) (string, error) {
	if err := checkBraces(tokens); err != nil {
		return "", err
	}

	for _, tok := range tokens {
		if tok.Type == CREATED_VARIABLE {
			if _, ok := cg.locals.Declare(tok.Lexeme, tok.Data); !ok {
				return "", errAt(StageCodegen, ErrRedeclaredVariable, tok, "%s is already declared", tok.Lexeme)
			}
		}
	}

	cg.libs.Add(cg.core)
	for _, tok := range tokens {
		if tok.Type != EXTERN {
			continue
		}
		lib, ok := cg.meta.Library(tok.Lexeme)
		if !ok {
			lib = metadata.Library{Name: tok.Lexeme, Version: metadata.DefaultVersion}
		}
		cg.libs.Add(lib)
	}

	if err := cg.genBlock(tokens); err != nil {
		return "", err
	}
	body := cg.out.String()

	var sb strings.Builder
	for _, lib := range cg.libs.All() {
		fmt.Fprintf(&sb, ".assembly extern %s { .ver %s }\n", lib.Name, lib.Version)
	}
	sb.WriteByte('\n')
	sb.WriteString(cg.templates.Prologue())
	locals := cg.locals.All()
	for i, l := range locals {
		fmt.Fprintf(&sb, "      [%d] %s %s", l.Index, l.Type.ILName(), l.Name)
		if i < len(locals)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("    )\n")
	sb.WriteString(body)
	sb.WriteString(cg.templates.EpilogueStart())
	sb.WriteString(cg.templates.EpilogueEnd())
	return sb.String(), nil
}

// checkBraces rejects streams whose { } do not nest.
func checkBraces(tokens []Token) error {
	var open []Token
	for _, tok := range tokens {
		switch tok.Type {
		case LBRACE:
			open = append(open, tok)
		case RBRACE:
			if len(open) == 0 {
				return errAt(StageCodegen, ErrUnbalancedBraces, tok, "'}' without '{'")
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return errAt(StageCodegen, ErrUnbalancedBraces, open[len(open)-1], "'{' is never closed")
	}
	return nil
}

// genBlock lowers a statement sequence. pending is the variable that the
// next call or expression result is stored to.
func (cg *CodeGen) genBlock(toks []Token) error {
	var pending *Token
	for i := 0; i < len(toks); {
		tok := toks[i]
		switch {
		case tok.InExpr:
			end, typ, err := cg.genExpression(toks, i)
			if err != nil {
				return err
			}
			if pending != nil {
				if err := cg.storeTo(*pending, typ); err != nil {
					return err
				}
				pending = nil
			} else {
				cg.ins("pop")
			}
			i = end

		case tok.Type == ASSIGN:
			if i == 0 || (toks[i-1].Type != VARIABLE && toks[i-1].Type != CREATED_VARIABLE) {
				return errAt(StageCodegen, ErrMalformedStatement, tok, "assignment needs a variable on the left")
			}
			if i+1 >= len(toks) {
				return errAt(StageCodegen, ErrMalformedStatement, tok, "assignment without a value")
			}
			lhs, rhs := toks[i-1], toks[i+1]
			switch {
			case rhs.InExpr, rhs.Type == CALL, rhs.Type == FROM:
				pending = &lhs
				i++
			case rhs.Type.IsLiteral(), rhs.Type == VARIABLE:
				if err := cg.genAssignment(lhs, rhs); err != nil {
					return err
				}
				i += 2
			default:
				return errAt(StageCodegen, ErrMalformedStatement, rhs, "cannot assign %s", rhs.Type)
			}

		case tok.Type == CALL:
			end, err := cg.genCall(toks, i, pending)
			if err != nil {
				return err
			}
			pending = nil
			i = end

		case tok.Type == IF:
			end, err := cg.genCondition(toks, i)
			if err != nil {
				return err
			}
			i = end

		case tok.Type == ELSE:
			return errAt(StageCodegen, ErrMalformedStatement, tok, "else without if")

		default:
			i++
		}
	}
	if pending != nil {
		return errAt(StageCodegen, ErrMalformedStatement, *pending, "nothing assigned to %s", pending.Lexeme)
	}
	return nil
}

// genAssignment stores a literal or another variable into lhs.
func (cg *CodeGen) genAssignment(lhs, rhs Token) error {
	if rhs.Type == VARIABLE {
		cg.ins("ldloc.s %s", rhs.Lexeme)
	} else {
		cg.pushLiteral(rhs)
	}
	return cg.storeTo(lhs, rhs.Data)
}

func (cg *CodeGen) pushLiteral(tok Token) {
	switch v := tok.Value.(type) {
	case int32:
		cg.ins("ldc.i4 %d", v)
	case float32:
		cg.ins("ldc.r4 %s", formatFloat32(v))
	case bool:
		if v {
			cg.ins("ldc.i4.1")
		} else {
			cg.ins("ldc.i4.0")
		}
	case string:
		cg.ins("ldstr %s", ilString(v))
	}
}

// ilString quotes a raw payload for ldstr. Escapes are kept; bare double
// quotes, possible with another delimiter, are escaped.
func ilString(payload string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	rs := []rune(payload)
	for i := 0; i < len(rs); i++ {
		switch {
		case rs[i] == '\\' && i+1 < len(rs):
			sb.WriteRune(rs[i])
			sb.WriteRune(rs[i+1])
			i++
		case rs[i] == '"':
			sb.WriteString(`\"`)
		default:
			sb.WriteRune(rs[i])
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// storeTo converts the value on the stack, of type typ, to the declared
// type of target and stores it.
func (cg *CodeGen) storeTo(target Token, typ DataType) error {
	local, ok := cg.locals.Lookup(target.Lexeme)
	if !ok {
		return errAt(StageCodegen, ErrUndeclaredVariable, target, "%s is not declared", target.Lexeme)
	}
	if err := cg.convert(typ, local.Type, target); err != nil {
		return err
	}
	cg.ins("stloc.s %s", local.Name)
	return nil
}

// convert emits the conversion from one stack type to another.
func (cg *CodeGen) convert(from, to DataType, at Token) error {
	switch {
	case from == to:
	case from == TypeNull:
		return errAt(StageCodegen, ErrTypeMismatch, at, "the call returns nothing")
	case to == TypeInt32 && from == TypeFloat32:
		cg.ins("conv.i4")
	case to == TypeFloat32 && (from == TypeInt32 || from == TypeBool):
		cg.ins("conv.r4")
	case (to == TypeInt32 && from == TypeBool) || (to == TypeBool && from == TypeInt32):
	default:
		return errAt(StageCodegen, ErrTypeMismatch, at, "cannot use %s as %s", from, to)
	}
	return nil
}

// spanDomain classifies an expression: float if it divides or touches a
// float, else string, else bool, else int.
func spanDomain(span []Token) DataType {
	has := map[DataType]bool{}
	for _, t := range span {
		if t.Type == SLASH {
			has[TypeFloat32] = true
		}
		has[t.Data] = true
	}
	switch {
	case has[TypeFloat32]:
		return TypeFloat32
	case has[TypeString]:
		return TypeString
	case has[TypeBool]:
		return TypeBool
	}
	return TypeInt32
}

// exprEnd returns the index just past the span starting at start.
func exprEnd(toks []Token, start int) int {
	end := start
	for end < len(toks) && toks[end].InExpr {
		end++
	}
	return end
}

// genExpression evaluates the postfix span starting at start and returns
// the index after it and the type left on the stack.
func (cg *CodeGen) genExpression(toks []Token, start int) (int, DataType, error) {
	end := exprEnd(toks, start)
	span := toks[start:end]
	domain := spanDomain(span)

	var stack []DataType
	for _, tok := range span {
		if isOperand(tok) {
			if (domain == TypeString) != (tok.Data == TypeString) {
				return 0, 0, errAt(StageCodegen, ErrTypeMismatch, tok, "cannot mix %s into a %s expression", tok.Data, domain)
			}
			if tok.Type == VARIABLE {
				cg.ins("ldloc.s %s", tok.Lexeme)
			} else {
				cg.pushLiteral(tok)
			}
			typ := tok.Data
			// bools stay int32 so that and/or see integer operands
			if domain == TypeFloat32 && typ != TypeBool {
				cg.ins("conv.r4")
				typ = TypeFloat32
			}
			stack = append(stack, typ)
			continue
		}

		if len(stack) < 2 {
			return 0, 0, errAt(StageCodegen, ErrMalformedStatement, tok, "operator %q is missing an operand", tok.Lexeme)
		}
		left, right := stack[len(stack)-2], stack[len(stack)-1]
		stack = stack[:len(stack)-2]
		if domain == TypeFloat32 && !isLogical(tok) && (left == TypeBool) != (right == TypeBool) {
			return 0, 0, errAt(StageCodegen, ErrTypeMismatch, tok, "cannot apply %q to bool and float32", tok.Lexeme)
		}

		var result DataType
		var err error
		if domain == TypeString && !(isLogical(tok) && left == TypeBool && right == TypeBool) {
			result, err = cg.stringOp(tok)
		} else {
			result, err = cg.numericOp(tok, domain)
		}
		if err != nil {
			return 0, 0, err
		}
		stack = append(stack, result)
	}
	if len(stack) != 1 {
		return 0, 0, errAt(StageCodegen, ErrMalformedStatement, toks[start], "expression leaves %d values", len(stack))
	}
	return end, stack[0], nil
}

func (cg *CodeGen) numericOp(tok Token, domain DataType) (DataType, error) {
	arith := TypeInt32
	if domain == TypeFloat32 {
		arith = TypeFloat32
	}
	checked := func(op string) {
		if arith == TypeFloat32 {
			cg.ins("%s", op)
		} else {
			cg.ins("%s.ovf", op)
		}
	}

	switch tok.Type {
	case PLUS:
		checked("add")
	case MINUS:
		checked("sub")
	case STAR:
		checked("mul")
	case SLASH:
		cg.ins("div")
	case EQUALS:
		cg.ins("ceq")
		return TypeBool, nil
	case NOT_EQ:
		cg.ins("ceq")
		cg.ins("ldc.i4.0")
		cg.ins("ceq")
		return TypeBool, nil
	case GREATER:
		cg.ins("cgt")
		return TypeBool, nil
	case LESS:
		cg.ins("clt")
		return TypeBool, nil
	case AND:
		cg.ins("and")
		return TypeBool, nil
	case OR:
		cg.ins("or")
		return TypeBool, nil
	default:
		return TypeNull, errAt(StageCodegen, ErrUnsupportedOperator, tok, "%s", tok.Type)
	}
	return arith, nil
}

func isLogical(tok Token) bool {
	return tok.Type == AND || tok.Type == OR
}

func (cg *CodeGen) stringOp(tok Token) (DataType, error) {
	lib := cg.core.Name
	switch tok.Type {
	case PLUS:
		cg.ins("call string [%s]System.String::Concat(string, string)", lib)
		return TypeString, nil
	case EQUALS:
		cg.ins("call bool [%s]System.String::op_Equality(string, string)", lib)
		return TypeBool, nil
	case NOT_EQ:
		cg.ins("call bool [%s]System.String::op_Inequality(string, string)", lib)
		return TypeBool, nil
	}
	return TypeNull, errAt(StageCodegen, ErrUnsupportedOperator, tok, "%q is not defined for strings", tok.Lexeme)
}

// argType infers the type of a call argument expression: bool if any token
// is bool or a boolean operator, else string, else float32 when any token
// is float or the span divides, else int32.
func argType(span []Token) DataType {
	var hasString, hasFloat bool
	for _, t := range span {
		if t.Data == TypeBool || t.Type.IsBoolOperator() {
			return TypeBool
		}
		hasString = hasString || t.Data == TypeString
		hasFloat = hasFloat || t.Data == TypeFloat32 || t.Type == SLASH
	}
	switch {
	case hasString:
		return TypeString
	case hasFloat:
		return TypeFloat32
	}
	return TypeInt32
}

type callArg struct {
	start, end int
	typ        DataType
}

// genCall lowers `[from v] call [Lib]Type::Method(args)` starting at the
// CALL token and returns the index after the closing parenthesis.
func (cg *CodeGen) genCall(toks []Token, i int, pending *Token) (int, error) {
	if i+2 >= len(toks) || toks[i+1].Type != METHOD || toks[i+2].Type != LPAREN {
		return 0, errAt(StageCodegen, ErrMalformedStatement, toks[i], "call expects a resolved target and '('")
	}
	method := toks[i+1]
	_, key, ok := splitTarget(method.Lexeme)
	if !ok {
		return 0, errAt(StageCodegen, ErrUnresolvedCall, method, "target was not resolved")
	}
	sym, ok := cg.externals.Lookup(key)
	if !ok {
		return 0, errAt(StageCodegen, ErrUnresolvedCall, method, "%s is not in the external table", key)
	}

	var receiver *Token
	if i >= 2 && toks[i-2].Type == FROM && toks[i-1].Type == VARIABLE {
		receiver = &toks[i-1]
	}

	var args []callArg
	j := i + 3
	for {
		if j >= len(toks) {
			return 0, errAt(StageCodegen, ErrUnbalancedParens, toks[i+2], "argument list is never closed")
		}
		if toks[j].Type == RPAREN && len(args) == 0 {
			break
		}
		a := callArg{start: j, end: j + 1}
		switch {
		case toks[j].InExpr:
			a.end = exprEnd(toks, j)
			a.typ = argType(toks[j:a.end])
		case toks[j].Type.IsLiteral(), toks[j].Type == VARIABLE:
			a.typ = toks[j].Data
		default:
			return 0, errAt(StageCodegen, ErrMalformedStatement, toks[j], "unexpected %s in argument list", toks[j].Type)
		}
		args = append(args, a)
		j = a.end
		if j < len(toks) && toks[j].Type == COMMA {
			j++
			continue
		}
		if j < len(toks) && toks[j].Type == RPAREN {
			break
		}
		if j >= len(toks) {
			continue
		}
		return 0, errAt(StageCodegen, ErrMalformedStatement, toks[j], "expected ',' or ')'")
	}
	end := j + 1

	argTypes := make([]DataType, len(args))
	for k, a := range args {
		argTypes[k] = a.typ
	}
	sig, err := sym.Resolve(argTypes)
	if err != nil {
		return 0, errAt(StageCodegen, ErrNoOverload, method, "%s(%s)", key, typeList(argTypes))
	}
	if sig.Instance && receiver == nil {
		return 0, errAt(StageCodegen, ErrMalformedStatement, method, "%s is an instance method; use 'from variable call'", key)
	}

	if receiver != nil {
		if receiver.Data == TypeString {
			cg.ins("ldloc.s %s", receiver.Lexeme)
		} else {
			cg.ins("ldloca.s %s", receiver.Lexeme)
		}
	}
	for k, a := range args {
		tok := toks[a.start]
		switch {
		case tok.InExpr:
			if _, _, err := cg.genExpression(toks, a.start); err != nil {
				return 0, err
			}
		case tok.Type == VARIABLE:
			cg.ins("ldloc.s %s", tok.Lexeme)
		default:
			cg.pushLiteral(tok)
		}
		if err := cg.convert(a.typ, sig.Params[k], tok); err != nil {
			return 0, err
		}
	}

	instance := ""
	if receiver != nil {
		instance = "instance "
	}
	cg.ins("call %s%s %s(%s)", instance, sig.Returns.ILName(), sym.Target(), sig.paramList())

	switch {
	case pending != nil:
		if err := cg.storeTo(*pending, sig.Returns); err != nil {
			return 0, err
		}
	case sig.Returns != TypeNull:
		cg.ins("pop")
	}
	return end, nil
}

func typeList(ts []DataType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.ILName()
	}
	return strings.Join(names, ", ")
}

func skipNewlines(toks []Token, i int) int {
	for i < len(toks) && toks[i].Type == NEWLINE {
		i++
	}
	return i
}

// matchBrace returns the index of the '}' closing the '{' at open.
func matchBrace(toks []Token, open int) (int, error) {
	depth := 0
	for k := open; k < len(toks); k++ {
		switch toks[k].Type {
		case LBRACE:
			depth++
		case RBRACE:
			depth--
			if depth == 0 {
				return k, nil
			}
		}
	}
	return 0, errAt(StageCodegen, ErrUnbalancedBraces, toks[open], "'{' is never closed")
}

// genBody lowers the brace-delimited block starting at or after i (after
// any newlines) and returns the index after its '}'.
func (cg *CodeGen) genBody(toks []Token, i int, owner Token) (int, error) {
	open := skipNewlines(toks, i)
	if open >= len(toks) || toks[open].Type != LBRACE {
		return 0, errAt(StageCodegen, ErrMalformedStatement, owner, "%s expects a '{' block", owner.Lexeme)
	}
	closing, err := matchBrace(toks, open)
	if err != nil {
		return 0, err
	}
	if err := cg.genBlock(toks[open+1 : closing]); err != nil {
		return 0, err
	}
	return closing + 1, nil
}

// genCondition lowers `if guard { } [else { } | else if ...]`. Labels are
// numbered from a counter that only grows within one compilation.
func (cg *CodeGen) genCondition(toks []Token, i int) (int, error) {
	n := cg.newCondition()
	elseLabel := fmt.Sprintf("else%d", n)
	outLabel := fmt.Sprintf("out%d", n)

	if i+1 >= len(toks) || !toks[i+1].InExpr {
		return 0, errAt(StageCodegen, ErrMalformedStatement, toks[i], "if without a condition")
	}
	end, typ, err := cg.genExpression(toks, i+1)
	if err != nil {
		return 0, err
	}
	if typ == TypeString || typ == TypeFloat32 {
		return 0, errAt(StageCodegen, ErrTypeMismatch, toks[i+1], "condition is %s, not bool", typ)
	}
	cg.ins("brfalse %s", elseLabel)

	end, err = cg.genBody(toks, end, toks[i])
	if err != nil {
		return 0, err
	}
	cg.ins("br %s", outLabel)
	cg.label(elseLabel)

	if k := skipNewlines(toks, end); k < len(toks) && toks[k].Type == ELSE {
		next := skipNewlines(toks, k+1)
		if next < len(toks) && toks[next].Type == IF {
			end, err = cg.genCondition(toks, next)
		} else {
			end, err = cg.genBody(toks, k+1, toks[k])
		}
		if err != nil {
			return 0, err
		}
	}
	cg.label(outLabel)
	return end, nil
}
