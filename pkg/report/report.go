// Package report renders a compilation as a standalone HTML page: the
// source, the final token stream, locals, libraries and the generated
// assembly.
package report

import (
	"embed"
	"fmt"
	"io"
	"strings"

	"github.com/google/safehtml/template"

	"silc/pkg/compiler"
	"silc/pkg/diag"
)

//go:embed templates/*
var templateFS embed.FS

// Line is a numbered line of text.
type Line struct {
	Number int
	Text   string
	Label  bool
}

// TokenRow is one token of the final stream.
type TokenRow struct {
	Type     string
	Lexeme   string
	Data     string
	Position string
}

// LibraryRow is one referenced library.
type LibraryRow struct {
	Name    string
	Version string
}

// LocalRow is one declared local.
type LocalRow struct {
	Index int
	Name  string
	Type  string
}

// Page is the view model of the listing template.
type Page struct {
	Title     string
	Error     string
	Source    []Line
	Tokens    []TokenRow
	Libraries []LibraryRow
	Locals    []LocalRow
	Assembly  []Line
}

// Renderer renders listing pages.
type Renderer struct {
	listing *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	trustedFS := template.TrustedFSFromEmbed(templateFS)
	listing, err := template.New("listing.html").ParseFS(trustedFS, "templates/listing.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{listing: listing}, nil
}

// Render writes p as HTML.
func (r *Renderer) Render(w io.Writer, p Page) error {
	return r.listing.Execute(w, p)
}

// NewPage builds the view model for src. res may be nil when compilation
// failed; compileErr is then rendered through msgs.
func NewPage(title, src string, res *compiler.Result, compileErr error, msgs *diag.Catalog) Page {
	p := Page{Title: title, Source: numbered(src)}
	if compileErr != nil {
		if msgs != nil {
			p.Error = msgs.Error(compileErr)
		} else {
			p.Error = compileErr.Error()
		}
	}
	if res == nil {
		return p
	}

	for _, t := range res.Tokens {
		row := TokenRow{Type: t.Type.String(), Lexeme: t.Lexeme, Data: t.Data.String()}
		if t.Line > 0 {
			row.Position = fmt.Sprintf("%d:%d", t.Line, t.Col)
		}
		p.Tokens = append(p.Tokens, row)
	}
	for _, lib := range res.Libraries {
		p.Libraries = append(p.Libraries, LibraryRow{Name: lib.Name, Version: lib.Version})
	}
	for _, l := range res.Locals {
		p.Locals = append(p.Locals, LocalRow{Index: l.Index, Name: l.Name, Type: l.Type.String()})
	}
	p.Assembly = numbered(res.Assembly)
	for i, l := range p.Assembly {
		trimmed := strings.TrimSpace(l.Text)
		p.Assembly[i].Label = strings.HasSuffix(trimmed, ":") && !strings.HasPrefix(l.Text, " ")
	}
	return p
}

func numbered(text string) []Line {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = Line{Number: i + 1, Text: strings.TrimRight(l, "\r")}
	}
	return out
}
