package compiler

import (
	"strings"

	"silc/pkg/metadata"
)

// MetadataQuery is the type-metadata service consulted during call
// resolution. *metadata.Index implements it.
type MetadataQuery interface {
	Query(fqn string) (metadata.Match, bool)
	Overloads(typeName, method string) []metadata.Method
	Library(name string) (metadata.Library, bool)
}

// Resolver annotates a normalized token stream: declarations, variable
// references, expression spans in postfix order and resolved call targets.
// A Resolver holds the scratch state of one compilation.
type Resolver struct {
	meta      MetadataQuery
	usings    []string
	declared  map[string]DataType
	externals *ExternalTable
	libs      *LibrarySet
}

func NewResolver(meta MetadataQuery) *Resolver {
	return &Resolver{
		meta:      meta,
		declared:  make(map[string]DataType),
		externals: NewExternalTable(),
		libs:      NewLibrarySet(),
	}
}

// Usings returns the namespaces named by `using` declarations, in order.
func (r *Resolver) Usings() []string { return r.usings }

// Externals is the table of call targets resolved so far.
func (r *Resolver) Externals() *ExternalTable { return r.externals }

// Libraries is the set of libraries the resolved calls live in.
func (r *Resolver) Libraries() *LibrarySet { return r.libs }

// Resolve runs every resolution pass over tokens and returns the annotated
// stream. EXTERN tokens for the referenced libraries are placed first.
func (r *Resolver) Resolve(tokens []Token) ([]Token, error) {
	passes := []func([]Token) ([]Token, error){
		r.collectUsings,
		r.groupCallTargets,
		r.declareVariables,
		r.markExpressions,
		r.resolveCalls,
		r.linearize,
	}
	var err error
	for _, pass := range passes {
		if tokens, err = pass(tokens); err != nil {
			return nil, err
		}
	}

	externs := make([]Token, 0, len(tokens)+len(r.libs.All()))
	for _, lib := range r.libs.All() {
		externs = append(externs, Token{Type: EXTERN, Lexeme: lib.Name})
	}
	return append(externs, tokens...), nil
}

// collectUsings records `using A.B` declarations and removes them from the
// stream.
func (r *Resolver) collectUsings(tokens []Token) ([]Token, error) {
	out := make([]Token, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if tokens[i].Type != USING {
			out = append(out, tokens[i])
			continue
		}
		j := i + 1
		var path strings.Builder
		for j < len(tokens) && (tokens[j].Type == UNKNOWN || tokens[j].Type == DOT) {
			path.WriteString(tokens[j].Lexeme)
			j++
		}
		ns := path.String()
		endsLine := j >= len(tokens) || tokens[j].Type == NEWLINE || tokens[j].Type == EOF
		if ns == "" || strings.HasPrefix(ns, ".") || strings.HasSuffix(ns, ".") || !endsLine {
			return nil, errAt(StageResolve, ErrMalformedStatement, tokens[i], "using expects a namespace")
		}
		r.usings = append(r.usings, ns)
		i = j - 1
	}
	return out, nil
}

// groupCallTargets folds the target after `call` (A.B::M, B.M or M) into a
// single METHOD token holding the path as written.
func (r *Resolver) groupCallTargets(tokens []Token) ([]Token, error) {
	out := make([]Token, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		out = append(out, tokens[i])
		if tokens[i].Type != CALL {
			continue
		}
		j := i + 1
		var path strings.Builder
		seps := 0
		for j < len(tokens) {
			tt := tokens[j].Type
			if tt != UNKNOWN && tt != DOT && tt != METHOD_SEP {
				break
			}
			if tt == METHOD_SEP {
				seps++
			}
			path.WriteString(tokens[j].Lexeme)
			j++
		}
		if j == i+1 || j >= len(tokens) || tokens[j].Type != LPAREN || seps > 1 {
			return nil, errAt(StageResolve, ErrMalformedStatement, tokens[i], "call expects Type::Method(...)")
		}
		if _, method := splitCallPath(path.String()); method == "" {
			return nil, errAt(StageResolve, ErrMalformedStatement, tokens[i+1], "call target %q has no method name", path.String())
		}
		out = append(out, Token{
			Type:   METHOD,
			Lexeme: path.String(),
			Line:   tokens[i+1].Line,
			Col:    tokens[i+1].Col,
		})
		i = j - 1
	}
	return out, nil
}

// splitCallPath splits a written call target into its type path and method
// name. Without "::" the last dotted segment is the method.
func splitCallPath(path string) (typePath, method string) {
	if k := strings.Index(path, "::"); k >= 0 {
		return path[:k], path[k+2:]
	}
	if k := strings.LastIndexByte(path, '.'); k >= 0 {
		return path[:k], path[k+1:]
	}
	return "", path
}

// declareVariables marks `type name =` declarations and every later
// reference to a declared name. Any identifier left over is undeclared.
func (r *Resolver) declareVariables(tokens []Token) ([]Token, error) {
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok.Type.IsTypeKeyword():
			typ, err := declaredType(tok)
			if err != nil {
				return nil, err
			}
			if i+2 >= len(tokens) || tokens[i+1].Type != UNKNOWN || tokens[i+2].Type != ASSIGN {
				return nil, errAt(StageResolve, ErrMalformedStatement, tok, "expected '%s name = value'", tok.Lexeme)
			}
			name := tokens[i+1].Lexeme
			if _, exists := r.declared[name]; exists {
				return nil, errAt(StageResolve, ErrRedeclaredVariable, tokens[i+1], "%s is already declared", name)
			}
			r.declared[name] = typ
			tokens[i+1].Type = CREATED_VARIABLE
			tokens[i+1].Data = typ
			i++

		case tok.Type == UNKNOWN:
			typ, ok := r.declared[tok.Lexeme]
			if !ok {
				return nil, errAt(StageResolve, ErrUndeclaredVariable, tok, "%s is not declared", tok.Lexeme)
			}
			tokens[i].Type = VARIABLE
			tokens[i].Data = typ
		}
	}
	return tokens, nil
}

func declaredType(tok Token) (DataType, error) {
	var typ DataType
	switch tok.Type {
	case INT_TYPE:
		typ = TypeInt32
	case FLOAT_TYPE:
		typ = TypeFloat32
	case BOOL_TYPE:
		typ = TypeBool
	case STRING_TYPE:
		typ = TypeString
	default:
		return TypeNull, errAt(StageResolve, ErrUnknownType, tok, "variables cannot be %s", tok.Lexeme)
	}
	if _, ok := realTypeName(typ); !ok {
		return TypeNull, errAt(StageResolve, ErrUnknownType, tok, "no runtime type for %s", tok.Lexeme)
	}
	return typ, nil
}

// markExpressions removes `[` `]` markers and flags the tokens between them
// as one expression span. A parenthesised `if` guard becomes a span too.
func (r *Resolver) markExpressions(tokens []Token) ([]Token, error) {
	out := make([]Token, 0, len(tokens))
	open := false
	var opener Token
	spanStart := 0

	for _, tok := range tokens {
		switch {
		case tok.Type == LBRACKET:
			if open {
				return nil, errAt(StageResolve, ErrUnbalancedBrackets, tok, "'[' inside an open expression")
			}
			open, opener, spanStart = true, tok, len(out)
			continue
		case tok.Type == RBRACKET:
			if !open {
				return nil, errAt(StageResolve, ErrUnbalancedBrackets, tok, "']' without '['")
			}
			if len(out) == spanStart {
				return nil, errAt(StageResolve, ErrMalformedStatement, tok, "empty expression")
			}
			open = false
			continue
		case open && tok.Type == NEWLINE:
			continue
		case open && tok.Type == EOF:
			return nil, errAt(StageResolve, ErrUnbalancedBrackets, opener, "'[' is never closed")
		}
		tok.InExpr = open
		out = append(out, tok)
	}
	if open {
		return nil, errAt(StageResolve, ErrUnbalancedBrackets, opener, "'[' is never closed")
	}

	for i := 0; i < len(out); i++ {
		if out[i].Type != IF {
			continue
		}
		if i+1 >= len(out) {
			return nil, errAt(StageResolve, ErrMalformedStatement, out[i], "if without a condition")
		}
		next := out[i+1]
		if next.InExpr {
			continue
		}
		if next.Type != LPAREN {
			return nil, errAt(StageResolve, ErrMalformedStatement, next, "if expects [expr] or (expr)")
		}
		depth := 0
		j := i + 1
		for ; j < len(out); j++ {
			switch out[j].Type {
			case LPAREN:
				depth++
			case RPAREN:
				depth--
			case NEWLINE, LBRACE, EOF:
				return nil, errAt(StageResolve, ErrUnbalancedParens, next, "condition is never closed")
			}
			out[j].InExpr = true
			if depth == 0 {
				break
			}
		}
		if j >= len(out) {
			return nil, errAt(StageResolve, ErrUnbalancedParens, next, "condition is never closed")
		}
		if j == i+2 {
			return nil, errAt(StageResolve, ErrMalformedStatement, next, "empty condition")
		}
		i = j
	}
	return out, nil
}

// resolveCalls rewrites every METHOD token to [Library]Type::Method and
// records the target in the external table. Candidate types are tried in
// `using` order and the first match wins.
func (r *Resolver) resolveCalls(tokens []Token) ([]Token, error) {
	for i, tok := range tokens {
		if tok.Type == FROM {
			if i+2 >= len(tokens) || tokens[i+1].Type != VARIABLE || tokens[i+2].Type != CALL {
				return nil, errAt(StageResolve, ErrMalformedStatement, tok, "expected 'from variable call ...'")
			}
		}
		if tok.Type != CALL {
			continue
		}

		var receiver *Token
		if i >= 2 && tokens[i-2].Type == FROM {
			receiver = &tokens[i-1]
		}

		target := &tokens[i+1]
		typePath, method := splitCallPath(target.Lexeme)
		candidates, err := r.candidateTypes(typePath, receiver)
		if err != nil {
			return nil, err
		}

		match, found := metadata.Match{}, false
		for _, cand := range candidates {
			if m, ok := r.meta.Query(cand + "." + method); ok && m.Kind == metadata.KindMethod {
				match, found = m, true
				break
			}
		}
		if !found {
			return nil, errAt(StageResolve, ErrUnresolvedCall, *target, "tried %s", strings.Join(candidates, ", "))
		}

		lib, ok := r.meta.Library(match.Library)
		if !ok {
			return nil, errAt(StageResolve, ErrUnresolvedCall, *target, "library %s is not in the manifest", match.Library)
		}

		sym := &ExternalSymbol{Library: lib.Name, Type: match.Type, Method: match.Method}
		for _, m := range r.meta.Overloads(match.Type, match.Method) {
			sig, err := signatureOf(m)
			if err != nil {
				return nil, errAt(StageResolve, ErrUnknownType, *target, "%s.%s: %v", match.Type, m.Name, err)
			}
			sym.Overloads = append(sym.Overloads, sig)
		}
		sym = r.externals.Add(sym)
		r.libs.Add(lib)

		target.Lexeme = sym.Target()
		target.Data = sym.ReturnType()
	}
	return tokens, nil
}

// candidateTypes lists the qualified types to try for a call target. A bare
// method on a receiver only looks at the receiver's runtime type.
func (r *Resolver) candidateTypes(typePath string, receiver *Token) ([]string, error) {
	if typePath == "" && receiver != nil {
		rt, ok := realTypeName(receiver.Data)
		if !ok {
			return nil, errAt(StageResolve, ErrUnknownType, *receiver, "no runtime type for %s", receiver.Data)
		}
		return []string{rt}, nil
	}
	base := typePath

	var out []string
	for _, ns := range r.usings {
		if base == "" {
			out = append(out, ns)
		} else {
			out = append(out, ns+"."+base)
		}
	}
	if base != "" {
		out = append(out, base)
	}
	return out, nil
}

func signatureOf(m metadata.Method) (Signature, error) {
	ret, ok := ParseDataType(m.Returns)
	if !ok {
		return Signature{}, ErrUnknownType
	}
	sig := Signature{Returns: ret, Instance: m.Instance}
	for _, p := range m.Params {
		pt, ok := ParseDataType(p)
		if !ok || pt == TypeNull {
			return Signature{}, ErrUnknownType
		}
		sig.Params = append(sig.Params, pt)
	}
	return sig, nil
}

// linearize reorders every expression span into postfix.
func (r *Resolver) linearize(tokens []Token) ([]Token, error) {
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
		postfix, err := toPostfix(tokens[i:j])
		if err != nil {
			return nil, err
		}
		if len(postfix) == 0 {
			return nil, errAt(StageResolve, ErrMalformedStatement, tokens[i], "empty expression")
		}
		out = append(out, postfix...)
		i = j
	}
	return out, nil
}
