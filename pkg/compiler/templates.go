package compiler

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

// Templates supplies the fixed text around generated code: the entry-point
// prologue (ending inside the locals list), the text after the body that
// closes the entry point, and the text that closes the program.
type Templates interface {
	Prologue() string
	EpilogueStart() string
	EpilogueEnd() string
}

//go:embed templates/*.il
var templateFS embed.FS

var templateFiles = [3]string{"0.il", "1.il", "2.il"}

type textTemplates [3]string

func (t textTemplates) Prologue() string      { return t[0] }
func (t textTemplates) EpilogueStart() string { return t[1] }
func (t textTemplates) EpilogueEnd() string   { return t[2] }

// DefaultTemplates returns the built-in program templates.
func DefaultTemplates() Templates {
	var t textTemplates
	for i, name := range templateFiles {
		data, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			panic(fmt.Sprintf("embedded template %s: %v", name, err))
		}
		t[i] = string(data)
	}
	return t
}

// DirTemplates reads 0.il, 1.il and 2.il from dir.
func DirTemplates(dir string) (Templates, error) {
	var t textTemplates
	for i, name := range templateFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template: %w", err)
		}
		t[i] = string(data)
	}
	return t, nil
}
