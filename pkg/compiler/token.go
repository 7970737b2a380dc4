package compiler

import "fmt"

// TokenType identifies the category of a token. Later stages reclassify
// tokens in place (UNKNOWN -> VARIABLE, UNKNOWN -> CREATED_VARIABLE, ...).
type TokenType int

const (
	EOF        TokenType = iota // sentinel: end of input
	NEWLINE                     // end of a source line
	WHITESPACE                  // removed by Normalize
	UNKNOWN                     // identifier character(s), merged by Normalize

	// Literals
	INT_LIT    // 42, 0x2a, 0b101010, (-42)
	FLOAT_LIT  // 4.2
	BOOL_LIT   // true / false
	STRING_LIT // "..."

	// Type keywords
	INT_TYPE    // "int"
	FLOAT_TYPE  // "float"
	BOOL_TYPE   // "bool"
	STRING_TYPE // "string"
	VOID_TYPE   // "void"

	// Keywords
	CALL  // "call"
	FROM  // "from"
	USING // "using"
	IF    // "if"
	ELSE  // "else"

	// Paired delimiters
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	LBRACE   // {
	RBRACE   // }

	// Punctuation
	COMMA      // ,
	DOT        // .
	METHOD_SEP // ::

	// Operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	EQUALS  // ==
	NOT_EQ  // !=
	GREATER // >
	LESS    // <
	AND     // "and"
	OR      // "or"

	ASSIGN // =

	// Markers produced by the resolver
	CREATED_VARIABLE // identifier introduced by a declaration
	VARIABLE         // reference to a declared variable
	METHOD           // call target, "[library]Type::Method" once resolved
	EXTERN           // library the program depends on
)

var tokenNames = [...]string{
	EOF:              "EOF",
	NEWLINE:          "NEWLINE",
	WHITESPACE:       "WHITESPACE",
	UNKNOWN:          "UNKNOWN",
	INT_LIT:          "INT_LIT",
	FLOAT_LIT:        "FLOAT_LIT",
	BOOL_LIT:         "BOOL_LIT",
	STRING_LIT:       "STRING_LIT",
	INT_TYPE:         "INT_TYPE",
	FLOAT_TYPE:       "FLOAT_TYPE",
	BOOL_TYPE:        "BOOL_TYPE",
	STRING_TYPE:      "STRING_TYPE",
	VOID_TYPE:        "VOID_TYPE",
	CALL:             "CALL",
	FROM:             "FROM",
	USING:            "USING",
	IF:               "IF",
	ELSE:             "ELSE",
	LPAREN:           "LPAREN",
	RPAREN:           "RPAREN",
	LBRACKET:         "LBRACKET",
	RBRACKET:         "RBRACKET",
	LBRACE:           "LBRACE",
	RBRACE:           "RBRACE",
	COMMA:            "COMMA",
	DOT:              "DOT",
	METHOD_SEP:       "METHOD_SEP",
	PLUS:             "PLUS",
	MINUS:            "MINUS",
	STAR:             "STAR",
	SLASH:            "SLASH",
	EQUALS:           "EQUALS",
	NOT_EQ:           "NOT_EQ",
	GREATER:          "GREATER",
	LESS:             "LESS",
	AND:              "AND",
	OR:               "OR",
	ASSIGN:           "ASSIGN",
	CREATED_VARIABLE: "CREATED_VARIABLE",
	VARIABLE:         "VARIABLE",
	METHOD:           "METHOD",
	EXTERN:           "EXTERN",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// IsLiteral reports whether tokens of this type carry a decoded Value.
func (tt TokenType) IsLiteral() bool {
	switch tt {
	case INT_LIT, FLOAT_LIT, BOOL_LIT, STRING_LIT:
		return true
	}
	return false
}

// IsTypeKeyword reports whether tt names a scalar type.
func (tt TokenType) IsTypeKeyword() bool {
	switch tt {
	case INT_TYPE, FLOAT_TYPE, BOOL_TYPE, STRING_TYPE, VOID_TYPE:
		return true
	}
	return false
}

// IsOperator reports whether tt is a binary operator usable inside expressions.
func (tt TokenType) IsOperator() bool {
	switch tt {
	case PLUS, MINUS, STAR, SLASH, EQUALS, NOT_EQ, GREATER, LESS, AND, OR:
		return true
	}
	return false
}

// IsBoolOperator reports whether tt yields a boolean.
func (tt TokenType) IsBoolOperator() bool {
	switch tt {
	case EQUALS, NOT_EQ, GREATER, LESS, AND, OR:
		return true
	}
	return false
}

// DataType is the scalar type carried by value tokens.
type DataType int

const (
	TypeNull DataType = iota
	TypeInt32
	TypeFloat32
	TypeBool
	TypeString
)

func (d DataType) String() string {
	switch d {
	case TypeInt32:
		return "int32"
	case TypeFloat32:
		return "float32"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeNull:
		return "null"
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// ILName is the type's spelling in assembly signatures; null is void.
func (d DataType) ILName() string {
	if d == TypeNull {
		return "void"
	}
	return d.String()
}

// ParseDataType maps an assembly type name back to a DataType.
func ParseDataType(name string) (DataType, bool) {
	switch name {
	case "void":
		return TypeNull, true
	case "int32":
		return TypeInt32, true
	case "float32":
		return TypeFloat32, true
	case "bool":
		return TypeBool, true
	case "string":
		return TypeString, true
	}
	return TypeNull, false
}

// realTypeName is the fully qualified runtime type that backs a scalar,
// used to resolve calls on a receiver.
func realTypeName(d DataType) (string, bool) {
	switch d {
	case TypeInt32:
		return "System.Int32", true
	case TypeFloat32:
		return "System.Single", true
	case TypeString:
		return "System.String", true
	case TypeBool:
		return "System.Boolean", true
	}
	return "", false
}

// Token is a single lexical unit. Value is set only for literal types and
// holds an int32, float32, bool or the raw string payload.
type Token struct {
	Type   TokenType
	Lexeme string
	Value  any
	Data   DataType
	InExpr bool // inside a bracketed expression span
	Line   int  // 1-based source line
	Col    int  // 1-based column
}

func (t Token) String() string {
	expr := ""
	if t.InExpr {
		expr = " expr"
	}
	return fmt.Sprintf("%-16s %-20q %-7s line %d:%d%s", t.Type, t.Lexeme, t.Data, t.Line, t.Col, expr)
}
