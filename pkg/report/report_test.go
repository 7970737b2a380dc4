package report

import (
	"bytes"
	"strings"
	"testing"

	"silc/pkg/compiler"
	"silc/pkg/diag"
	"silc/pkg/metadata"
)

func compile(t *testing.T, src string) (*compiler.Result, error) {
	t.Helper()
	ix, err := metadata.Default()
	if err != nil {
		t.Fatal(err)
	}
	return compiler.New(ix, nil, compiler.DefaultOptions()).Compile(src)
}

func TestNewPage(t *testing.T) {
	src := "using System\nint a = 5\nif (a < 10) { call Console::WriteLine(\"small\") }\n"
	res, err := compile(t, src)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	p := NewPage("demo.silc", src, res, nil, nil)
	if len(p.Source) != 3 || p.Source[1].Number != 2 || p.Source[1].Text != "int a = 5" {
		t.Errorf("Source = %+v", p.Source)
	}
	if len(p.Locals) != 1 || p.Locals[0].Name != "a" || p.Locals[0].Type != "int32" {
		t.Errorf("Locals = %+v", p.Locals)
	}
	if len(p.Libraries) != 2 || p.Libraries[0].Name != "System.Runtime" {
		t.Errorf("Libraries = %+v", p.Libraries)
	}
	if len(p.Tokens) != len(res.Tokens) {
		t.Errorf("got %d token rows, want %d", len(p.Tokens), len(res.Tokens))
	}

	labels := 0
	for _, l := range p.Assembly {
		if l.Label {
			labels++
			if !strings.HasSuffix(l.Text, ":") {
				t.Errorf("%q marked as a label", l.Text)
			}
		}
	}
	if labels != 2 {
		t.Errorf("got %d label lines, want 2", labels)
	}
}

func TestNewPageWithError(t *testing.T) {
	src := `string s = "abc`
	res, err := compile(t, src)
	if err == nil {
		t.Fatal("expected a compile error")
	}

	p := NewPage("bad.silc", src, res, err, diag.MustNew("en"))
	if !strings.Contains(p.Error, "unterminated string literal") {
		t.Errorf("Error = %q", p.Error)
	}
	if p.Assembly != nil || p.Tokens != nil {
		t.Errorf("failed compile should have no assembly or tokens")
	}
}

func TestRender(t *testing.T) {
	src := "using System\nbool b = [1 < 2]\nstring s = \"<b>&\"\n"
	res, err := compile(t, src)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, NewPage("<script>x</script>", src, res, nil, nil)); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	html := buf.String()

	if strings.Contains(html, "<script>x</script>") || strings.Contains(html, "<b>&") {
		t.Errorf("user text was not escaped:\n%s", html)
	}
	for _, want := range []string{"&lt;script&gt;", "&lt;b&gt;&amp;", "clt", "<h2>Assembly</h2>", "<h2>Locals</h2>"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page lacks %q", want)
		}
	}
}

func TestNumbered(t *testing.T) {
	if got := numbered(""); got != nil {
		t.Errorf("numbered(\"\") = %v", got)
	}
	got := numbered("a\r\nb\n")
	if len(got) != 2 || got[0].Text != "a" || got[1] != (Line{Number: 2, Text: "b"}) {
		t.Errorf("numbered = %+v", got)
	}
}
