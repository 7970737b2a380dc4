// Package diag holds the human-readable, per-language messages shown to
// users: compiler error kinds, assembler failure and configuration
// problems.
package diag

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"silc/pkg/compiler"
)

// Message keys that are not compiler error codes.
const (
	CodeWithErrors  = "CodeWithErrors"
	UnknownLanguage = "UnknownLanguage"
	StringCharacter = "StringCharacterIsString"
	ErrorAt         = "ErrorAt"
	ErrorNear       = "ErrorNear"
	Wrote           = "Wrote"
)

// Languages lists the supported catalog languages, default first.
var Languages = []language.Tag{language.English, language.Russian}

var entries = map[string][2]string{
	CodeWithErrors:  {"The code contains errors: the assembler reported a failure", "Код содержит ошибки: ассемблер сообщил о сбое"},
	UnknownLanguage: {"Unknown language %q; supported languages: %s", "Неизвестный язык %q; поддерживаются: %s"},
	StringCharacter: {"The string character must be a single character, got %q", "Символ строки должен быть одним символом, получено %q"},
	ErrorAt:         {"%s error at line %d, column %d: %s", "ошибка (%s) в строке %d, столбце %d: %s"},
	ErrorNear:       {"%s (near %q)", "%s (рядом с %q)"},
	Wrote:           {"wrote %s", "записано %s"},

	"UnterminatedString":  {"unterminated string literal", "незавершённая строковая константа"},
	"UnterminatedComment": {"unterminated block comment", "незавершённый блочный комментарий"},
	"MalformedNumber":     {"malformed number", "неверная запись числа"},
	"UnresolvedCall":      {"call target not found in any library", "цель вызова не найдена ни в одной библиотеке"},
	"UnknownType":         {"unknown type", "неизвестный тип"},
	"UndeclaredVariable":  {"variable is not declared", "переменная не объявлена"},
	"RedeclaredVariable":  {"variable is already declared", "переменная уже объявлена"},
	"UnbalancedBraces":    {"unbalanced braces", "несбалансированные фигурные скобки"},
	"UnbalancedBrackets":  {"unbalanced brackets", "несбалансированные квадратные скобки"},
	"UnbalancedParens":    {"unbalanced parentheses", "несбалансированные круглые скобки"},
	"UnsupportedOperator": {"operator is not supported for these operands", "оператор не поддерживается для этих операндов"},
	"NoOverload":          {"no overload accepts these arguments", "нет перегрузки для этих аргументов"},
	"TypeMismatch":        {"type mismatch", "несоответствие типов"},
	"MalformedStatement":  {"malformed statement", "неверная инструкция"},
}

var builder = func() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, msgs := range entries {
		for i, tag := range Languages {
			if err := b.SetString(tag, key, msgs[i]); err != nil {
				panic(fmt.Sprintf("diag: %s/%s: %v", tag, key, err))
			}
		}
	}
	return b
}()

var matcher = language.NewMatcher(Languages)

// ErrUnknownLanguage is returned by New for languages without a catalog.
var ErrUnknownLanguage = errors.New("unknown language")

// Catalog formats messages in one language.
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// Supported reports whether lang has a catalog.
func Supported(lang string) bool {
	_, err := match(lang)
	return err == nil
}

func match(lang string) (language.Tag, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return language.Und, fmt.Errorf("%w %q: %v", ErrUnknownLanguage, lang, err)
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return language.Und, fmt.Errorf("%w %q", ErrUnknownLanguage, lang)
	}
	return Languages[idx], nil
}

// New returns the catalog for lang ("en", "ru", "en-GB", ...). An unknown
// language yields the English catalog together with an error whose text
// lists the supported languages.
func New(lang string) (*Catalog, error) {
	tag, err := match(lang)
	if err != nil {
		c := newCatalog(language.English)
		return c, fmt.Errorf("%w: %s", err, c.Message(UnknownLanguage, lang, supportedList()))
	}
	return newCatalog(tag), nil
}

// MustNew is New for languages known to be supported.
func MustNew(lang string) *Catalog {
	c, err := New(lang)
	if err != nil {
		panic(err)
	}
	return c
}

func newCatalog(tag language.Tag) *Catalog {
	return &Catalog{tag: tag, printer: message.NewPrinter(tag, message.Catalog(builder))}
}

func supportedList() string {
	names := make([]string, len(Languages))
	for i, t := range Languages {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

// Language is the catalog's language tag.
func (c *Catalog) Language() language.Tag { return c.tag }

// Message formats the entry for key.
func (c *Catalog) Message(key string, args ...any) string {
	return c.printer.Sprintf(key, args...)
}

// Error renders err for users. Compiler errors are translated by kind with
// their position; anything else is shown as is.
func (c *Catalog) Error(err error) string {
	var cerr *compiler.Error
	if !errors.As(err, &cerr) {
		return err.Error()
	}

	text := c.Message(cerr.Code())
	if cerr.Lexeme != "" {
		text = c.Message(ErrorNear, text, cerr.Lexeme)
	}
	if cerr.Line > 0 {
		return c.Message(ErrorAt, cerr.Stage, cerr.Line, cerr.Col, text)
	}
	return cerr.Stage.String() + ": " + text
}
