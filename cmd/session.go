package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"silc/pkg/compiler"
	"silc/pkg/config"
	"silc/pkg/diag"
	"silc/pkg/metadata"
)

// session is everything one command needs: settings with flag overrides
// applied, the symbol index and a compiler built from them.
type session struct {
	settings config.Settings
	index    *metadata.Index
	compiler *compiler.Compiler
}

func loadSession(cmd *cobra.Command) (*session, error) {
	var (
		s   config.Settings
		err error
	)
	if configPath != "" {
		s, err = config.Load(configPath)
	} else {
		s, err = config.LoadOptional(config.DefaultFile)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("out") {
		s.OutputDir = outDir
	}
	if noOptimize {
		s.Optimize = false
	}
	if flags.Changed("manifest") {
		s.Manifest = manifest
	}
	if flags.Changed("lang") {
		s.Language = lang
	}

	c, err := diag.New(s.Language)
	msgs = c
	if err != nil {
		return nil, err
	}
	log.Printf("settings: lang=%s optimize=%t out=%s", s.Language, s.Optimize, s.OutputDir)

	ix, err := s.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}
	tpl, err := s.Templates()
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d libraries, %d types", len(ix.Libraries()), len(ix.Types()))

	return &session{
		settings: s,
		index:    ix,
		compiler: compiler.New(ix, tpl, s.CompilerOptions()),
	}, nil
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	return string(data), nil
}

// compileFile reads and compiles path.
func (s *session) compileFile(path string) (string, *compiler.Result, error) {
	src, err := readSource(path)
	if err != nil {
		return "", nil, err
	}
	log.Printf("compiling %s", path)
	res, err := s.compiler.Compile(src)
	if err != nil {
		return src, nil, err
	}
	log.Printf("compiled %s: %d instructions, %d locals", path, len(res.Listing.Instructions), len(res.Locals))
	return src, res, nil
}

// toolContext bounds one external tool invocation.
func (s *session) toolContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.settings.Timeout)
}
