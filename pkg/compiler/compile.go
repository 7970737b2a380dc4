package compiler

import (
	"fmt"

	"silc/pkg/asm"
	"silc/pkg/metadata"
)

// CoreLibrary is the library that defines System.Object and System.String.
var CoreLibrary = metadata.Library{Name: "System.Runtime", Version: "8:0:0:0"}

// Options controls one Compiler.
type Options struct {
	Optimize        bool // run the constant folder
	StringDelimiter rune
	CoreLibrary     metadata.Library
}

// DefaultOptions enables folding and uses '"' as the string delimiter.
func DefaultOptions() Options {
	return Options{
		Optimize:        true,
		StringDelimiter: '"',
		CoreLibrary:     CoreLibrary,
	}
}

// Result is the output of one compilation.
type Result struct {
	Assembly  string
	Tokens    []Token // final stream fed to the generator
	Usings    []string
	Locals    []Local
	Externals []*ExternalSymbol
	Libraries []metadata.Library
	Listing   *asm.Listing
}

// Compiler runs the whole pipeline. It keeps only configuration; every
// call to Compile builds fresh per-compilation state, so a Compiler can be
// reused and shared between goroutines.
type Compiler struct {
	meta      MetadataQuery
	templates Templates
	opts      Options
}

func New(meta MetadataQuery, templates Templates, opts Options) *Compiler {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if opts.StringDelimiter == 0 {
		opts.StringDelimiter = '"'
	}
	if opts.CoreLibrary.Name == "" {
		opts.CoreLibrary = CoreLibrary
	}
	if lib, ok := meta.Library(opts.CoreLibrary.Name); ok {
		opts.CoreLibrary = lib
	}
	return &Compiler{meta: meta, templates: templates, opts: opts}
}

// Analyze tokenizes and resolves src, folding constants when enabled. It
// returns the final token stream and the resolver that produced it.
func (c *Compiler) Analyze(src string) ([]Token, *Resolver, error) {
	tokens, err := Tokenize(src, c.opts.StringDelimiter)
	if err != nil {
		return nil, nil, err
	}

	r := NewResolver(c.meta)
	tokens, err = r.Resolve(tokens)
	if err != nil {
		return nil, nil, err
	}

	if c.opts.Optimize {
		tokens = Fold(tokens)
	}
	return tokens, r, nil
}

// Compile turns src into CIL assembly text. It stops at the first error,
// which is a *Error for every failure inside the pipeline.
func (c *Compiler) Compile(src string) (*Result, error) {
	tokens, r, err := c.Analyze(src)
	if err != nil {
		return nil, err
	}

	cg := NewCodeGen(c.meta, c.templates, r.Externals(), c.opts.CoreLibrary)
	assembly, err := cg.Generate(tokens)
	if err != nil {
		return nil, err
	}

	listing, err := asm.Check(assembly)
	if err != nil {
		return nil, fmt.Errorf("generated listing is invalid: %w", err)
	}

	return &Result{
		Assembly:  assembly,
		Tokens:    tokens,
		Usings:    r.Usings(),
		Locals:    cg.Locals().All(),
		Externals: r.Externals().All(),
		Libraries: cg.Libraries().All(),
		Listing:   listing,
	}, nil
}
