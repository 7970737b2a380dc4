package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"silc/pkg/asm"
)

func compileOpts(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	res, err := New(testIndex(t), nil, opts).Compile(src)
	if err != nil {
		t.Fatalf("Compile failed: %v\nsource:\n%s", err, src)
	}
	return res
}

func compileSrc(t *testing.T, src string, optimize bool) *Result {
	t.Helper()
	opts := DefaultOptions()
	opts.Optimize = optimize
	return compileOpts(t, src, opts)
}

// instructions renders the checked body as "mnemonic operand" lines.
func instructions(res *Result) []string {
	out := make([]string, len(res.Listing.Instructions))
	for i, in := range res.Listing.Instructions {
		out[i] = strings.TrimSpace(in.Mnemonic + " " + in.Operand)
	}
	return out
}

func assertContains(t *testing.T, code, expected string) {
	t.Helper()
	if !strings.Contains(code, expected) {
		t.Errorf("Expected code to contain:\n%s\n\nGot:\n%s", expected, code)
	}
}

// assertSequence checks that want appears as a contiguous run in got.
func assertSequence(t *testing.T, got []string, want ...string) {
	t.Helper()
	for i := 0; i+len(want) <= len(got); i++ {
		match := true
		for j := range want {
			if got[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return
		}
	}
	t.Errorf("Expected instruction run:\n  %s\n\nGot:\n  %s", strings.Join(want, "\n  "), strings.Join(got, "\n  "))
}

func TestCodeGenDeclaration(t *testing.T) {
	res := compileSrc(t, "int a = 5", true)

	assertSequence(t, instructions(res), "ldc.i4 5", "stloc.s a", "ret")
	assertContains(t, res.Assembly, "      [0] int32 a\n    )\n")
	if !strings.HasPrefix(res.Assembly, ".assembly extern System.Runtime { .ver 8:0:0:0 }\n\n.assembly Program") {
		t.Errorf("unexpected header:\n%s", res.Assembly)
	}
	if len(res.Locals) != 1 || res.Locals[0].Name != "a" || res.Locals[0].Type != TypeInt32 {
		t.Errorf("Locals = %v", res.Locals)
	}
}

func TestCodeGenArithmetic(t *testing.T) {
	src := "int a = 0\na = [1 + 2]"

	assertSequence(t, instructions(compileSrc(t, src, false)), "ldc.i4 1", "ldc.i4 2", "add.ovf", "stloc.s a")
	assertSequence(t, instructions(compileSrc(t, src, true)), "ldc.i4 3", "stloc.s a")
}

func TestCodeGenExpressions(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Checked Int Ops",
			input:    "int a = 4\nint b = [a * 2 - a]",
			expected: []string{"ldloc.s a", "ldc.i4 2", "mul.ovf", "ldloc.s a", "sub.ovf", "stloc.s b"},
		},
		{
			name:     "Float Domain Converts Every Operand",
			input:    "float f = [1 + 2.5]",
			expected: []string{"ldc.i4 1", "conv.r4", "ldc.r4 2.5", "conv.r4", "add", "stloc.s f"},
		},
		{
			name:     "Division Is Float",
			input:    "int i = 3\nfloat g = [i / 2]",
			expected: []string{"ldloc.s i", "conv.r4", "ldc.i4 2", "conv.r4", "div", "stloc.s g"},
		},
		{
			name:     "Float Stored To Int",
			input:    "int i = 7\nint k = [i / 2]",
			expected: []string{"div", "conv.i4", "stloc.s k"},
		},
		{
			name:     "Int Variable To Float",
			input:    "int i = 2\nfloat f = i",
			expected: []string{"ldloc.s i", "conv.r4", "stloc.s f"},
		},
		{
			name:     "Int Literal To Float",
			input:    "float f = 2",
			expected: []string{"ldc.i4 2", "conv.r4", "stloc.s f"},
		},
		{
			name:     "Numeric Not Equal",
			input:    "int a = 1\nbool n = [a != 2]",
			expected: []string{"ldloc.s a", "ldc.i4 2", "ceq", "ldc.i4.0", "ceq", "stloc.s n"},
		},
		{
			name:     "Comparisons And Logic",
			input:    "int a = 1\nbool b = [(a > 0) and (a < 9)]",
			expected: []string{"ldloc.s a", "ldc.i4 0", "cgt", "ldloc.s a", "ldc.i4 9", "clt", "and", "stloc.s b"},
		},
		{
			name:     "Bool Literals",
			input:    "bool t = true\nbool f = false\nbool o = [t or f]",
			expected: []string{"ldc.i4.1", "stloc.s t", "ldc.i4.0", "stloc.s f", "ldloc.s t", "ldloc.s f", "or", "stloc.s o"},
		},
		{
			name:     "Minus Opening A Group",
			input:    "int x = 5\nint y = [x * (-2 + 3)]",
			expected: []string{"ldloc.s x", "ldc.i4 0", "ldc.i4 2", "sub.ovf", "ldc.i4 3", "add.ovf", "mul.ovf", "stloc.s y"},
		},
		{
			name:     "Bare Expression Is Popped",
			input:    "int a = 1\n[a + 1]",
			expected: []string{"ldloc.s a", "ldc.i4 1", "add.ovf", "pop"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := compileSrc(t, tc.input, false)
			assertSequence(t, instructions(res), tc.expected...)
		})
	}
}

func TestCodeGenLogicInFloatSpan(t *testing.T) {
	src := "float f = 1.5\nbool g = true\nbool b = [(f > 1.0) and g]"
	for _, optimize := range []bool{false, true} {
		ins := instructions(compileSrc(t, src, optimize))
		assertSequence(t, ins, "cgt", "ldloc.s g", "and", "stloc.s b")
		assertSequence(t, ins, "ldloc.s f", "conv.r4")
	}
}

func TestCodeGenLogicOverStringComparisons(t *testing.T) {
	src := "string s = \"a\"\nbool b = [(s == \"a\") and (s != \"b\")]"
	assertSequence(t, instructions(compileSrc(t, src, true)),
		"call bool [System.Runtime]System.String::op_Inequality(string, string)", "and", "stloc.s b")
}

func TestCodeGenStrings(t *testing.T) {
	src := `string a = "x"
string b = [a + "y"]
bool e = [a == "y"]
bool n = [a != "y"]
string q = "say \"hi\""`
	res := compileSrc(t, src, true)
	ins := instructions(res)

	assertSequence(t, ins, "ldstr \"x\"", "stloc.s a")
	assertSequence(t, ins, "ldloc.s a", "ldstr \"y\"", "call string [System.Runtime]System.String::Concat(string, string)", "stloc.s b")
	assertSequence(t, ins, "call bool [System.Runtime]System.String::op_Equality(string, string)", "stloc.s e")
	assertSequence(t, ins, "call bool [System.Runtime]System.String::op_Inequality(string, string)", "stloc.s n")
	assertSequence(t, ins, `ldstr "say \"hi\""`, "stloc.s q")
}

func TestCodeGenStringDelimiter(t *testing.T) {
	opts := DefaultOptions()
	opts.StringDelimiter = '\''
	res := compileOpts(t, `string s = 'a "b"'`, opts)
	assertSequence(t, instructions(res), `ldstr "a \"b\""`, "stloc.s s")
}

func TestCodeGenCalls(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Receiver Forces Instance",
			input:    "string s = \"hi\"\nfrom s call System.Console::WriteLine(s)",
			expected: []string{"ldloc.s s", "ldloc.s s", "call instance void [System.Console]System.Console::WriteLine(string)", "ret"},
		},
		{
			name:     "Result Stored",
			input:    "using System\nstring line = call Console::ReadLine()",
			expected: []string{"call string [System.Console]System.Console::ReadLine()", "stloc.s line"},
		},
		{
			name:     "Unused Result Popped",
			input:    "using System\ncall Console::ReadLine()",
			expected: []string{"call string [System.Console]System.Console::ReadLine()", "pop"},
		},
		{
			name:     "Value Receiver By Address",
			input:    "using System\nint n = 5\nstring s = from n call ToString()",
			expected: []string{"ldloca.s n", "call instance string [System.Runtime]System.Int32::ToString()", "stloc.s s"},
		},
		{
			name:     "Expression Argument",
			input:    "using System\nint a = 2\ncall Console::WriteLine([a * 3])",
			expected: []string{"ldloc.s a", "ldc.i4 3", "mul.ovf", "call void [System.Console]System.Console::WriteLine(int32)"},
		},
		{
			name:     "Bool Argument Picks Bool Overload",
			input:    "using System\nint a = 2\ncall Console::WriteLine([a > 1])",
			expected: []string{"cgt", "call void [System.Console]System.Console::WriteLine(bool)"},
		},
		{
			name:     "Float Overload",
			input:    "using System\nfloat m = call Math::Max(1.5, 2.5)",
			expected: []string{"ldc.r4 1.5", "ldc.r4 2.5", "call float32 [System.Runtime]System.Math::Max(float32, float32)", "stloc.s m"},
		},
		{
			name:     "Instance Method With Args",
			input:    "string s = \"abc\"\nstring t = from s call Substring(1, 2)",
			expected: []string{"ldloc.s s", "ldc.i4 1", "ldc.i4 2", "call instance string [System.Runtime]System.String::Substring(int32, int32)", "stloc.s t"},
		},
		{
			name:     "No Arguments",
			input:    "using System\ncall Console::WriteLine()",
			expected: []string{"call void [System.Console]System.Console::WriteLine()", "ret"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := compileSrc(t, tc.input, true)
			assertSequence(t, instructions(res), tc.expected...)
		})
	}
}

func TestCodeGenLibraries(t *testing.T) {
	res := compileSrc(t, "using System\ncall Console::WriteLine(\"x\")\ncall Console::WriteLine(1)", true)

	want := ".assembly extern System.Runtime { .ver 8:0:0:0 }\n.assembly extern System.Console { .ver 8:0:0:0 }\n\n"
	if !strings.HasPrefix(res.Assembly, want) {
		t.Errorf("header:\n%s\nwant prefix:\n%s", res.Assembly, want)
	}
	if strings.Count(res.Assembly, ".assembly extern System.Console") != 1 {
		t.Errorf("System.Console declared more than once")
	}
	if len(res.Libraries) != 2 || len(res.Externals) != 1 {
		t.Errorf("Libraries = %v, Externals = %v", res.Libraries, res.Externals)
	}
}

func TestCodeGenCondition(t *testing.T) {
	src := "int a = 1\nint b = 0\nif (a == 1) { b = 2 } else { b = 3 }"
	res := compileSrc(t, src, true)
	ins := instructions(res)

	assertSequence(t, ins,
		"ldloc.s a", "ldc.i4 1", "ceq", "brfalse else1",
		"ldc.i4 2", "stloc.s b", "br out1",
		"ldc.i4 3", "stloc.s b", "ret")
	assertContains(t, res.Assembly, "else1:\n    ldc.i4 3\n")
	assertContains(t, res.Assembly, "out1:\n    ret\n")

	if ins[res.Listing.Labels["else1"]] != "ldc.i4 3" {
		t.Errorf("else1 points at %q", ins[res.Listing.Labels["else1"]])
	}
	if ins[res.Listing.Labels["out1"]] != "ret" {
		t.Errorf("out1 points at %q", ins[res.Listing.Labels["out1"]])
	}
}

func TestCodeGenConditionForms(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		labels int
		want   []string
	}{
		{
			name:   "No Else",
			input:  "int a = 1\nif (a == 1) { a = 2 }",
			labels: 2,
			want:   []string{"else1:\nout1:\n    ret"},
		},
		{
			name:   "Braces On Own Lines",
			input:  "int a = 1\nint b = 0\nif (a == 1)\n{\n    b = 2\n}\nelse\n{\n    b = 3\n}",
			labels: 2,
			want:   []string{"brfalse else1", "br out1", "else1:\n    ldc.i4 3"},
		},
		{
			name:   "Else If Chain",
			input:  "int a = 2\nif (a == 1) { a = 10 } else if (a == 2) { a = 20 } else { a = 30 }",
			labels: 4,
			want:   []string{"brfalse else1", "brfalse else2", "else2:\n    ldc.i4 30", "out2:\nout1:\n    ret"},
		},
		{
			name:   "Bool Variable Guard",
			input:  "bool f = true\nif [f] { f = false }",
			labels: 2,
			want:   []string{"ldloc.s f\n    brfalse else1"},
		},
		{
			name: "Nested",
			input: `int a = 1
if (a == 1) {
    if (a > 0) { a = 2 } else { a = 3 }
} else {
    if (a < 0) { a = 4 }
}
if (a == 2) { a = 5 }`,
			labels: 8,
			want:   []string{"brfalse else2", "brfalse else3", "brfalse else4"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := compileSrc(t, tc.input, true)
			if len(res.Listing.Labels) != tc.labels {
				t.Errorf("got %d labels %v, want %d", len(res.Listing.Labels), res.Listing.Labels, tc.labels)
			}
			for _, w := range tc.want {
				assertContains(t, res.Assembly, w)
			}
		})
	}
}

func TestCompileIsReentrant(t *testing.T) {
	c := New(testIndex(t), nil, DefaultOptions())
	prog := "int a = 1\nif (a == 1) { a = 2 } else { a = 3 }"

	first, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	other, err := c.Compile("int y = 2\nif [y > 1] { y = 0 }")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if first.Assembly != second.Assembly {
		t.Errorf("recompiling changed the output:\n%s\n---\n%s", first.Assembly, second.Assembly)
	}
	if len(other.Locals) != 1 || other.Locals[0].Name != "y" {
		t.Errorf("locals leaked between compilations: %v", other.Locals)
	}
	if _, ok := other.Listing.Labels["else1"]; !ok {
		t.Errorf("label counter was not reset: %v", other.Listing.Labels)
	}
}

func TestCodeGenErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  error
	}{
		{"Unclosed Brace", "int a = 1\nif (a == 1) { a = 2", ErrUnbalancedBraces},
		{"Stray Brace", "int a = 1\n}", ErrUnbalancedBraces},
		{"String Plus Int", `string s = ["a" + 1]`, ErrTypeMismatch},
		{"String Greater", `bool b = ["a" > "b"]`, ErrUnsupportedOperator},
		{"Logic On Strings", `bool b = ["a" or "b"]`, ErrUnsupportedOperator},
		{"Bool Plus Float", "bool g = true\nfloat f = [g + 1.5]", ErrTypeMismatch},
		{"String Into Int", "string s = \"x\"\nint a = s", ErrTypeMismatch},
		{"Void Result Stored", "using System\nint a = call Console::WriteLine()", ErrTypeMismatch},
		{"Instance Without Receiver", "using System\ncall String::ToUpper()", ErrMalformedStatement},
		{"No Overload", "using System\ncall Console::WriteLine(1, 2)", ErrNoOverload},
		{"Float Guard", "float f = 1.5\nif [f] { f = 2.0 }", ErrTypeMismatch},
		{"Else Without If", "int a = 1\nelse { a = 2 }", ErrMalformedStatement},
		{"If Without Block", "int a = 1\nif (a == 1) a = 2", ErrMalformedStatement},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(testIndex(t), nil, DefaultOptions()).Compile(tc.input)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("err = %v, want %v", err, tc.kind)
			}
			var cerr *Error
			if !errors.As(err, &cerr) || cerr.Stage != StageCodegen {
				t.Errorf("err = %#v, want a codegen-stage *Error", err)
			}
		})
	}
}

func TestCompileCustomTemplates(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0.il": ".assembly Demo { }\n.class Demo extends [System.Runtime]System.Object\n{\n  .method static void Main() cil managed\n  {\n    .entrypoint\n    .locals init (\n",
		"1.il": "    ret\n  }\n",
		"2.il": "}\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	tpl, err := DirTemplates(dir)
	if err != nil {
		t.Fatalf("DirTemplates failed: %v", err)
	}

	res, err := New(testIndex(t), tpl, DefaultOptions()).Compile("int a = 1")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	assertContains(t, res.Assembly, ".assembly Demo { }")

	if _, err := DirTemplates(t.TempDir()); err == nil {
		t.Errorf("DirTemplates on an empty directory succeeded")
	}
}

// runBody runs a straight-line body up to the first store and returns the
// value being stored.
func runBody(t *testing.T, body []asm.Instruction) any {
	t.Helper()
	var stack []any
	pop2 := func() (any, any) {
		a, b := stack[len(stack)-2], stack[len(stack)-1]
		stack = stack[:len(stack)-2]
		return a, b
	}

	for _, in := range body {
		switch in.Mnemonic {
		case "ldc.i4":
			v, err := strconv.ParseInt(in.Operand, 0, 32)
			if err != nil {
				t.Fatalf("bad operand %q", in.Operand)
			}
			stack = append(stack, int32(v))
		case "ldc.r4":
			v, err := strconv.ParseFloat(in.Operand, 32)
			if err != nil {
				t.Fatalf("bad operand %q", in.Operand)
			}
			stack = append(stack, float32(v))
		case "conv.r4":
			if v, ok := stack[len(stack)-1].(int32); ok {
				stack[len(stack)-1] = float32(v)
			}
		case "conv.i4":
			if v, ok := stack[len(stack)-1].(float32); ok {
				stack[len(stack)-1] = int32(v)
			}
		case "add.ovf", "sub.ovf", "mul.ovf":
			a, b := pop2()
			x, y := a.(int32), b.(int32)
			switch in.Mnemonic {
			case "add.ovf":
				stack = append(stack, x+y)
			case "sub.ovf":
				stack = append(stack, x-y)
			default:
				stack = append(stack, x*y)
			}
		case "add", "sub", "mul", "div":
			a, b := pop2()
			x, y := a.(float32), b.(float32)
			switch in.Mnemonic {
			case "add":
				stack = append(stack, x+y)
			case "sub":
				stack = append(stack, x-y)
			case "mul":
				stack = append(stack, x*y)
			default:
				stack = append(stack, x/y)
			}
		case "stloc.s":
			return stack[len(stack)-1]
		default:
			t.Fatalf("runBody: unexpected %s", in.Mnemonic)
		}
	}
	t.Fatalf("runBody: no store")
	return nil
}

// Folding never changes the value a program computes.
func TestFoldMatchesExecution(t *testing.T) {
	programs := []string{
		"int r = [7 * 6 - 2]",
		"float r = [2 / 3.0]",
		"float r = [1 + 2 * 3.5]",
		"int r = [7 / 2]",
		"float r = [(1 + 2) * (0.5 - 0.25)]",
		"int r = [100 - 3 * 3 * 3]",
		"float r = [(-2) * 1.5 + 4 / 8]",
		"int r = [0x10 + 0b11]",
	}

	for _, src := range programs {
		t.Run(src, func(t *testing.T) {
			plain := compileSrc(t, src, false)
			folded := compileSrc(t, src, true)

			want := runBody(t, plain.Listing.Instructions)
			got := runBody(t, folded.Listing.Instructions)
			if got != want {
				t.Errorf("folded value %v (%T), unfolded %v (%T)", got, got, want, want)
			}
			if len(folded.Listing.Instructions) >= len(plain.Listing.Instructions) {
				t.Errorf("folding did not shorten the body")
			}
		})
	}
}
