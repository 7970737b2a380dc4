// Package config loads compiler settings from a textproto file.
//
//	language: "ru"
//	string_character: "'"
//	optimize: false
//	manifest: "libs/acme.textproto"
//	ilasm: "/usr/share/dotnet/ilasm"
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unicode"
	"unicode/utf8"

	"silc/pkg/compiler"
	"silc/pkg/diag"
	"silc/pkg/metadata"
	"silc/pkg/textpb"
)

// DefaultFile is the settings file looked up in the working directory.
const DefaultFile = "silc.textproto"

var (
	ErrStringCharacter = errors.New("invalid string character")
	ErrLanguage        = errors.New("unsupported language")
)

// Settings is the complete compiler configuration.
type Settings struct {
	Language           string
	StringCharacter    rune
	Optimize           bool
	Manifest           string // extra symbol manifest, merged over the built-in one
	TemplatesDir       string
	ILAsm              string
	Runtime            string
	OutputDir          string
	CoreLibrary        string
	CoreLibraryVersion string
	Timeout            time.Duration // per external tool invocation
}

func DefaultSettings() Settings {
	return Settings{
		Language:           "en",
		StringCharacter:    '"',
		Optimize:           true,
		ILAsm:              "ilasm",
		Runtime:            "dotnet",
		OutputDir:          "out",
		CoreLibrary:        compiler.CoreLibrary.Name,
		CoreLibraryVersion: compiler.CoreLibrary.Version,
		Timeout:            60 * time.Second,
	}
}

var settingsSchema = textpb.MustSchema("silc.config", "silc/config.proto",
	textpb.Message{Name: "Settings", Fields: []textpb.Field{
		{Name: "language", Number: 1, Kind: textpb.String},
		{Name: "string_character", Number: 2, Kind: textpb.String},
		{Name: "optimize", Number: 3, Kind: textpb.Bool},
		{Name: "manifest", Number: 4, Kind: textpb.String},
		{Name: "templates_dir", Number: 5, Kind: textpb.String},
		{Name: "ilasm", Number: 6, Kind: textpb.String},
		{Name: "runtime", Number: 7, Kind: textpb.String},
		{Name: "output_dir", Number: 8, Kind: textpb.String},
		{Name: "core_library", Number: 9, Kind: textpb.String},
		{Name: "core_library_version", Number: 10, Kind: textpb.String},
		{Name: "timeout_seconds", Number: 11, Kind: textpb.Int32},
	}},
)

// Parse reads a settings document. Fields it does not set keep their
// defaults.
func Parse(data []byte) (Settings, error) {
	s := DefaultSettings()
	msg, err := settingsSchema.Parse("Settings", data)
	if err != nil {
		return s, err
	}

	strs := map[string]*string{
		"language":             &s.Language,
		"manifest":             &s.Manifest,
		"templates_dir":        &s.TemplatesDir,
		"ilasm":                &s.ILAsm,
		"runtime":              &s.Runtime,
		"output_dir":           &s.OutputDir,
		"core_library":         &s.CoreLibrary,
		"core_library_version": &s.CoreLibraryVersion,
	}
	for name, dst := range strs {
		if textpb.Has(msg, name) {
			*dst = textpb.GetString(msg, name)
		}
	}
	if textpb.Has(msg, "optimize") {
		s.Optimize = textpb.GetBool(msg, "optimize")
	}
	if textpb.Has(msg, "timeout_seconds") {
		s.Timeout = time.Duration(textpb.GetInt32(msg, "timeout_seconds")) * time.Second
	}
	if textpb.Has(msg, "string_character") {
		r, err := ParseStringCharacter(textpb.GetString(msg, "string_character"))
		if err != nil {
			return s, err
		}
		s.StringCharacter = r
	}

	return s, s.Validate()
}

// Load reads settings from path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("failed to read settings: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadOptional is Load, except that a missing file yields the defaults.
func LoadOptional(path string) (Settings, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	return Load(path)
}

// ParseStringCharacter accepts exactly one non-blank character.
func ParseStringCharacter(v string) (rune, error) {
	r, size := utf8.DecodeRuneInString(v)
	if size == 0 || size != len(v) || r == utf8.RuneError {
		return 0, fmt.Errorf("%w: %s", ErrStringCharacter, diag.MustNew("en").Message(diag.StringCharacter, v))
	}
	if unicode.IsSpace(r) || r == '\\' || isIdentOrDigit(r) {
		return 0, fmt.Errorf("%w: %q cannot delimit strings", ErrStringCharacter, v)
	}
	return r, nil
}

func isIdentOrDigit(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	if !diag.Supported(s.Language) {
		return fmt.Errorf("%w %q", ErrLanguage, s.Language)
	}
	if s.StringCharacter == 0 {
		return fmt.Errorf("%w: empty", ErrStringCharacter)
	}
	if s.CoreLibrary == "" {
		return errors.New("core_library must not be empty")
	}
	if s.Timeout <= 0 {
		return errors.New("timeout_seconds must be positive")
	}
	return nil
}

// CompilerOptions maps the settings onto compiler options.
func (s Settings) CompilerOptions() compiler.Options {
	return compiler.Options{
		Optimize:        s.Optimize,
		StringDelimiter: s.StringCharacter,
		CoreLibrary:     metadata.Library{Name: s.CoreLibrary, Version: s.CoreLibraryVersion},
	}
}

// Index builds the symbol index: the built-in manifest plus Manifest, if
// set. The core library version from the settings overrides the manifest.
func (s Settings) Index() (*metadata.Index, error) {
	ix := metadata.NewIndex()
	ix.AddLibrary(metadata.Library{Name: s.CoreLibrary, Version: s.CoreLibraryVersion})

	def, err := metadata.Default()
	if err != nil {
		return nil, err
	}
	if err := ix.Merge(def); err != nil {
		return nil, err
	}
	if s.Manifest != "" {
		extra := metadata.NewIndex()
		if err := extra.LoadFile(s.Manifest); err != nil {
			return nil, err
		}
		if err := ix.Merge(extra); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Manifest, err)
		}
	}
	return ix, nil
}

// Templates returns the program templates: the built-in ones unless
// TemplatesDir is set.
func (s Settings) Templates() (compiler.Templates, error) {
	if s.TemplatesDir == "" {
		return compiler.DefaultTemplates(), nil
	}
	return compiler.DirTemplates(s.TemplatesDir)
}
