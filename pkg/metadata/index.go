// Package metadata is a static index of the external types and methods a
// program may call. It is built from textproto manifests and answers the
// compiler's "is this a public class or method, and where is it defined"
// queries without any runtime introspection.
package metadata

import (
	"fmt"
	"sort"
	"strings"
)

// Scalar type names accepted in manifests, in assembly spelling.
var scalarTypes = map[string]bool{
	"void":    true,
	"int32":   true,
	"float32": true,
	"bool":    true,
	"string":  true,
}

// Library is an external assembly reference.
type Library struct {
	Name    string
	Version string // major:minor:build:revision
}

// Method is one overload.
type Method struct {
	Name     string
	Returns  string
	Params   []string
	Instance bool
}

// Type is a public class and its callable surface.
type Type struct {
	Name    string // fully qualified
	Library string
	Methods []Method
}

// Kind tells what a qualified name resolved to.
type Kind int

const (
	KindType Kind = iota
	KindMethod
)

func (k Kind) String() string {
	if k == KindMethod {
		return "method"
	}
	return "type"
}

// Match is the answer to a Query.
type Match struct {
	Kind    Kind
	Library string
	Type    string
	Method  string // empty for KindType
}

// Index maps qualified names to types and their defining library.
type Index struct {
	libs      map[string]Library
	libOrder  []string
	types     map[string]*Type
	typeOrder []string
}

func NewIndex() *Index {
	return &Index{
		libs:  make(map[string]Library),
		types: make(map[string]*Type),
	}
}

// AddLibrary registers lib. Re-adding a library keeps the first version.
func (ix *Index) AddLibrary(lib Library) {
	if _, ok := ix.libs[lib.Name]; ok {
		return
	}
	ix.libs[lib.Name] = lib
	ix.libOrder = append(ix.libOrder, lib.Name)
}

// AddType registers t, appending its methods if the type already exists.
// The library must have been added first.
func (ix *Index) AddType(t Type) error {
	if t.Name == "" {
		return fmt.Errorf("type without a name in library %q", t.Library)
	}
	if _, ok := ix.libs[t.Library]; !ok {
		return fmt.Errorf("type %s: unknown library %q", t.Name, t.Library)
	}
	for _, m := range t.Methods {
		if err := checkMethod(t.Name, m); err != nil {
			return err
		}
	}

	if prev, ok := ix.types[t.Name]; ok {
		if prev.Library != t.Library {
			return fmt.Errorf("type %s defined in both %s and %s", t.Name, prev.Library, t.Library)
		}
		prev.Methods = append(prev.Methods, t.Methods...)
		return nil
	}
	cp := t
	cp.Methods = append([]Method(nil), t.Methods...)
	ix.types[t.Name] = &cp
	ix.typeOrder = append(ix.typeOrder, t.Name)
	return nil
}

func checkMethod(typeName string, m Method) error {
	if m.Name == "" {
		return fmt.Errorf("type %s: method without a name", typeName)
	}
	if !scalarTypes[m.Returns] {
		return fmt.Errorf("%s.%s: unsupported return type %q", typeName, m.Name, m.Returns)
	}
	for _, p := range m.Params {
		if p == "void" || !scalarTypes[p] {
			return fmt.Errorf("%s.%s: unsupported parameter type %q", typeName, m.Name, p)
		}
	}
	return nil
}

// Merge copies every library and type of other into ix.
func (ix *Index) Merge(other *Index) error {
	for _, name := range other.libOrder {
		ix.AddLibrary(other.libs[name])
	}
	for _, name := range other.typeOrder {
		if err := ix.AddType(*other.types[name]); err != nil {
			return err
		}
	}
	return nil
}

// Query reports whether fqn names a public type or a method of one
// (Type.Method), and which library defines it.
func (ix *Index) Query(fqn string) (Match, bool) {
	if t, ok := ix.types[fqn]; ok {
		return Match{Kind: KindType, Library: t.Library, Type: t.Name}, true
	}
	dot := strings.LastIndexByte(fqn, '.')
	if dot <= 0 {
		return Match{}, false
	}
	t, ok := ix.types[fqn[:dot]]
	if !ok {
		return Match{}, false
	}
	name := fqn[dot+1:]
	for _, m := range t.Methods {
		if m.Name == name {
			return Match{Kind: KindMethod, Library: t.Library, Type: t.Name, Method: name}, true
		}
	}
	return Match{}, false
}

func (ix *Index) LookupType(fqn string) (*Type, bool) {
	t, ok := ix.types[fqn]
	return t, ok
}

// LookupMethod returns every overload of the method named by Type.Method.
func (ix *Index) LookupMethod(fqn string) ([]Method, bool) {
	dot := strings.LastIndexByte(fqn, '.')
	if dot <= 0 {
		return nil, false
	}
	ms := ix.Overloads(fqn[:dot], fqn[dot+1:])
	return ms, len(ms) > 0
}

// Overloads returns the overloads of typeName.method in manifest order.
func (ix *Index) Overloads(typeName, method string) []Method {
	t, ok := ix.types[typeName]
	if !ok {
		return nil
	}
	var out []Method
	for _, m := range t.Methods {
		if m.Name == method {
			out = append(out, m)
		}
	}
	return out
}

func (ix *Index) Library(name string) (Library, bool) {
	l, ok := ix.libs[name]
	return l, ok
}

// Libraries returns all libraries in load order.
func (ix *Index) Libraries() []Library {
	out := make([]Library, 0, len(ix.libOrder))
	for _, name := range ix.libOrder {
		out = append(out, ix.libs[name])
	}
	return out
}

// Types returns all types sorted by name.
func (ix *Index) Types() []*Type {
	names := append([]string(nil), ix.typeOrder...)
	sort.Strings(names)
	out := make([]*Type, 0, len(names))
	for _, n := range names {
		out = append(out, ix.types[n])
	}
	return out
}

// Signature renders m the way it appears in a call instruction, without
// the declaring type.
func (m Method) Signature() string {
	s := m.Returns + " " + m.Name + "(" + strings.Join(m.Params, ", ") + ")"
	if m.Instance {
		s = "instance " + s
	}
	return s
}
