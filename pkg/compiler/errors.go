package compiler

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step that rejected the input.
type Stage int

const (
	StageLex Stage = iota
	StageResolve
	StageFold
	StageCodegen
)

func (s Stage) String() string {
	switch s {
	case StageLex:
		return "lex"
	case StageResolve:
		return "resolve"
	case StageFold:
		return "fold"
	case StageCodegen:
		return "codegen"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Error kinds. Match them with errors.Is on the returned error.
var (
	ErrUnterminatedString  = errors.New("unterminated string literal")
	ErrUnterminatedComment = errors.New("unterminated block comment")
	ErrMalformedNumber     = errors.New("malformed numeric literal")
	ErrUnresolvedCall      = errors.New("unresolved call target")
	ErrUnknownType         = errors.New("unknown type")
	ErrUndeclaredVariable  = errors.New("undeclared variable")
	ErrRedeclaredVariable  = errors.New("variable already declared")
	ErrUnbalancedBraces    = errors.New("unbalanced braces")
	ErrUnbalancedBrackets  = errors.New("unbalanced brackets")
	ErrUnbalancedParens    = errors.New("unbalanced parentheses")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrNoOverload          = errors.New("no matching overload")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrMalformedStatement  = errors.New("malformed statement")
)

var errorCodes = map[error]string{
	ErrUnterminatedString:  "UnterminatedString",
	ErrUnterminatedComment: "UnterminatedComment",
	ErrMalformedNumber:     "MalformedNumber",
	ErrUnresolvedCall:      "UnresolvedCall",
	ErrUnknownType:         "UnknownType",
	ErrUndeclaredVariable:  "UndeclaredVariable",
	ErrRedeclaredVariable:  "RedeclaredVariable",
	ErrUnbalancedBraces:    "UnbalancedBraces",
	ErrUnbalancedBrackets:  "UnbalancedBrackets",
	ErrUnbalancedParens:    "UnbalancedParens",
	ErrUnsupportedOperator: "UnsupportedOperator",
	ErrNoOverload:          "NoOverload",
	ErrTypeMismatch:        "TypeMismatch",
	ErrMalformedStatement:  "MalformedStatement",
}

// Error is the structured failure returned by every stage. Compilation
// stops at the first one.
type Error struct {
	Stage  Stage
	Kind   error
	Lexeme string // offending token text, if any
	Line   int
	Col    int
	Detail string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Stage)
	if e.Line > 0 {
		msg += fmt.Sprintf(" at %d:%d", e.Line, e.Col)
	}
	if e.Lexeme != "" {
		msg += fmt.Sprintf(" near %q", e.Lexeme)
	}
	msg += ": " + e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

// Code is a stable identifier for the error kind, used as a message
// catalog key.
func (e *Error) Code() string {
	if c, ok := errorCodes[e.Kind]; ok {
		return c
	}
	return "Unknown"
}

func errAt(stage Stage, kind error, tok Token, format string, args ...any) *Error {
	return &Error{
		Stage:  stage,
		Kind:   kind,
		Lexeme: tok.Lexeme,
		Line:   tok.Line,
		Col:    tok.Col,
		Detail: fmt.Sprintf(format, args...),
	}
}
