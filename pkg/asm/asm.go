// Package asm checks CIL assembly listings before they are handed to the
// external assembler. It is a two-pass reader: pass 1 collects labels and
// the locals table, pass 2 validates every instruction against them.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var zeroOperandOps = map[string]bool{
	"nop":       true,
	"ret":       true,
	"pop":       true,
	"dup":       true,
	"add":       true,
	"add.ovf":   true,
	"sub":       true,
	"sub.ovf":   true,
	"mul":       true,
	"mul.ovf":   true,
	"div":       true,
	"rem":       true,
	"neg":       true,
	"and":       true,
	"or":        true,
	"xor":       true,
	"not":       true,
	"ceq":       true,
	"cgt":       true,
	"clt":       true,
	"conv.i4":   true,
	"conv.r4":   true,
	"ldc.i4.m1": true,
	"ldc.i4.0":  true,
	"ldc.i4.1":  true,
	"ldc.i4.2":  true,
	"ldc.i4.3":  true,
	"ldc.i4.4":  true,
	"ldc.i4.5":  true,
	"ldc.i4.6":  true,
	"ldc.i4.7":  true,
	"ldc.i4.8":  true,
}

var localOps = map[string]bool{
	"ldloc":    true,
	"ldloc.s":  true,
	"stloc":    true,
	"stloc.s":  true,
	"ldloca":   true,
	"ldloca.s": true,
}

var branchOps = map[string]bool{
	"br":        true,
	"br.s":      true,
	"brfalse":   true,
	"brfalse.s": true,
	"brtrue":    true,
	"brtrue.s":  true,
}

var callOps = map[string]bool{
	"call":     true,
	"callvirt": true,
}

// Local is one slot of the `.locals init` list.
type Local struct {
	Index int
	Type  string
	Name  string
}

// Instruction is one checked body instruction.
type Instruction struct {
	Line     int
	Mnemonic string
	Operand  string
}

// Listing is the checked structure of an assembly text.
type Listing struct {
	Externs      []string
	Locals       []Local
	Instructions []Instruction
	Labels       map[string]int // label -> index of the next instruction
	SourceMap    map[int]int    // instruction index -> source line
}

// Checker holds the state of one check.
type Checker struct {
	labels  map[string]int
	locals  map[string]Local
	externs map[string]bool
	listing *Listing
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operand  string
}

func NewChecker() *Checker {
	return &Checker{
		labels:  make(map[string]int),
		locals:  make(map[string]Local),
		externs: make(map[string]bool),
		listing: &Listing{Labels: make(map[string]int), SourceMap: make(map[int]int)},
	}
}

// Check validates code and returns its listing.
func Check(code string) (*Listing, error) {
	return NewChecker().Check(code)
}

func (c *Checker) Check(code string) (*Listing, error) {
	lines := strings.Split(code, "\n")

	body, err := c.pass1(lines)
	if err != nil {
		return nil, err
	}
	if err := c.pass2(lines, body); err != nil {
		return nil, err
	}
	return c.listing, nil
}

// pass1 records externs, locals and label positions, and returns the line
// numbers that belong to the method body.
func (c *Checker) pass1(lines []string) ([]int, error) {
	var body []int
	inMethod, inLocals := false, false
	count := 0

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(stripComments(raw))
		if line == "" {
			continue
		}

		if inLocals {
			rest, closed := strings.CutSuffix(line, ")")
			if err := c.addLocals(rest, lineNo); err != nil {
				return nil, err
			}
			inLocals = !closed
			continue
		}

		if strings.HasPrefix(line, ".") {
			switch {
			case strings.HasPrefix(line, ".assembly extern "):
				fields := strings.Fields(line)
				if len(fields) < 3 || !isDottedName(fields[2]) {
					return nil, fmt.Errorf("invalid extern declaration on line %d", lineNo)
				}
				if !c.externs[fields[2]] {
					c.externs[fields[2]] = true
					c.listing.Externs = append(c.listing.Externs, fields[2])
				}
			case strings.HasPrefix(line, ".method"):
				inMethod = true
			case strings.HasPrefix(line, ".locals"):
				open := strings.Index(line, "(")
				if open < 0 {
					return nil, fmt.Errorf("malformed .locals on line %d", lineNo)
				}
				rest, closed := strings.CutSuffix(strings.TrimSpace(line[open+1:]), ")")
				if err := c.addLocals(rest, lineNo); err != nil {
					return nil, err
				}
				inLocals = !closed
			}
			continue
		}

		if !inMethod {
			continue
		}
		if line == "{" {
			continue
		}
		if line == "}" {
			inMethod = false
			continue
		}

		p, err := parseLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		for _, lbl := range p.labels {
			if _, exists := c.labels[lbl]; exists {
				return nil, fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			c.labels[lbl] = count
			c.listing.Labels[lbl] = count
		}
		if p.mnemonic != "" {
			count++
		}
		body = append(body, i)
	}

	if inLocals {
		return nil, fmt.Errorf(".locals list is never closed")
	}
	return body, nil
}

// addLocals parses comma-separated "[i] type name" entries.
func (c *Checker) addLocals(list string, lineNo int) error {
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Fields(entry)
		if len(fields) != 3 || !strings.HasPrefix(fields[0], "[") || !strings.HasSuffix(fields[0], "]") {
			return fmt.Errorf("invalid local '%s' on line %d", entry, lineNo)
		}
		idx, err := strconv.Atoi(strings.Trim(fields[0], "[]"))
		if err != nil || idx != len(c.listing.Locals) {
			return fmt.Errorf("local '%s' on line %d is out of order", entry, lineNo)
		}
		name := fields[2]
		if !isIdentifier(name) {
			return fmt.Errorf("invalid local name '%s' on line %d", name, lineNo)
		}
		if _, exists := c.locals[name]; exists {
			return fmt.Errorf("duplicate local '%s' on line %d", name, lineNo)
		}
		l := Local{Index: idx, Type: fields[1], Name: name}
		c.locals[name] = l
		c.listing.Locals = append(c.listing.Locals, l)
	}
	return nil
}

func (c *Checker) pass2(lines []string, body []int) error {
	for _, i := range body {
		lineNo := i + 1
		p, err := parseLine(strings.TrimSpace(stripComments(lines[i])), lineNo)
		if err != nil {
			return err
		}
		if p.mnemonic == "" {
			continue
		}
		if err := c.checkInstruction(p); err != nil {
			return err
		}
		c.listing.SourceMap[len(c.listing.Instructions)] = lineNo
		c.listing.Instructions = append(c.listing.Instructions, Instruction{
			Line:     lineNo,
			Mnemonic: p.mnemonic,
			Operand:  p.operand,
		})
	}
	return nil
}

func (c *Checker) checkInstruction(p parsedLine) error {
	m, op, lineNo := p.mnemonic, p.operand, p.lineNo

	switch {
	case zeroOperandOps[m]:
		if op != "" {
			return fmt.Errorf("%s expects 0 operands on line %d", m, lineNo)
		}

	case localOps[m]:
		if _, ok := c.locals[op]; !ok {
			return fmt.Errorf("undefined local '%s' on line %d", op, lineNo)
		}

	case branchOps[m]:
		if _, ok := c.labels[op]; !ok {
			return fmt.Errorf("undefined label '%s' on line %d", op, lineNo)
		}

	case m == "ldc.i4" || m == "ldc.i4.s":
		if _, err := strconv.ParseInt(op, 0, 32); err != nil {
			return fmt.Errorf("invalid int32 '%s' on line %d", op, lineNo)
		}

	case m == "ldc.r4":
		if _, err := strconv.ParseFloat(op, 32); err != nil {
			return fmt.Errorf("invalid float32 '%s' on line %d", op, lineNo)
		}

	case m == "ldstr":
		if _, err := parseQuoted(op); err != nil {
			return fmt.Errorf("invalid string on line %d: %v", lineNo, err)
		}

	case callOps[m]:
		return c.checkCall(op, lineNo)

	default:
		return fmt.Errorf("unknown instruction on line %d: %s", lineNo, m)
	}
	return nil
}

// checkCall validates "[instance] ret [Lib]Type::Method(params)" and that
// Lib was declared extern.
func (c *Checker) checkCall(op string, lineNo int) error {
	op = strings.TrimPrefix(op, "instance ")
	sp := strings.IndexByte(op, ' ')
	if sp < 0 {
		return fmt.Errorf("call without return type on line %d", lineNo)
	}
	target := strings.TrimSpace(op[sp+1:])
	if !strings.HasPrefix(target, "[") {
		return fmt.Errorf("call target without library on line %d", lineNo)
	}
	end := strings.IndexByte(target, ']')
	if end < 0 {
		return fmt.Errorf("call target without library on line %d", lineNo)
	}
	lib := target[1:end]
	if !c.externs[lib] {
		return fmt.Errorf("library '%s' is not declared extern (line %d)", lib, lineNo)
	}
	rest := target[end+1:]
	if !strings.Contains(rest, "::") || !strings.Contains(rest, "(") || !strings.HasSuffix(rest, ")") {
		return fmt.Errorf("malformed call target '%s' on line %d", target, lineNo)
	}
	return nil
}

// parseLine splits "label: mnemonic operand" where the label is optional.
func parseLine(line string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 || (colon+1 < len(line) && line[colon+1] == ':') {
			break
		}
		before := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(before, " \t[") {
			break
		}
		if !isIdentifier(before) {
			return p, fmt.Errorf("invalid label '%s' on line %d", before, lineNo)
		}
		p.labels = append(p.labels, before)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	fields := strings.SplitN(line, " ", 2)
	p.mnemonic = fields[0]
	if len(fields) > 1 {
		p.operand = strings.TrimSpace(fields[1])
	}
	return p, nil
}

// stripComments drops a trailing "//" comment that is not inside a string.
func stripComments(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && inString:
			i++
		case line[i] == '"':
			inString = !inString
		case !inString && line[i] == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

func parseQuoted(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected a quoted string, got %s", s)
	}
	inner := s[1 : len(s)-1]
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' {
			i++
			continue
		}
		if inner[i] == '"' {
			return "", fmt.Errorf("unescaped quote in %s", s)
		}
	}
	return inner, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

func isDottedName(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if !isIdentifier(part) {
			return false
		}
	}
	return true
}
