package compiler

import (
	"fmt"
	"strings"

	"silc/pkg/metadata"
)

// Local is one entry of the locals table. Index is the slot number used in
// the `.locals init` list.
type Local struct {
	Index int
	Name  string
	Type  DataType
}

// LocalTable maps variable names to declared types in declaration order.
type LocalTable struct {
	entries []Local
	byName  map[string]int
}

func NewLocalTable() *LocalTable {
	return &LocalTable{byName: make(map[string]int)}
}

// Declare adds name with the given type. It reports false if name is
// already declared.
func (t *LocalTable) Declare(name string, typ DataType) (Local, bool) {
	if _, exists := t.byName[name]; exists {
		return Local{}, false
	}
	l := Local{Index: len(t.entries), Name: name, Type: typ}
	t.byName[name] = l.Index
	t.entries = append(t.entries, l)
	return l, true
}

func (t *LocalTable) Lookup(name string) (Local, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Local{}, false
	}
	return t.entries[i], true
}

// All returns the locals in declaration order.
func (t *LocalTable) All() []Local {
	return append([]Local(nil), t.entries...)
}

func (t *LocalTable) Len() int { return len(t.entries) }

// Signature is one overload of an external method.
type Signature struct {
	Returns  DataType
	Params   []DataType
	Instance bool
}

func (s Signature) paramList() string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.ILName()
	}
	return strings.Join(names, ", ")
}

// ExternalSymbol is a resolved call target.
type ExternalSymbol struct {
	Library   string
	Type      string // fully qualified, e.g. System.Console
	Method    string
	Overloads []Signature
}

// Key is the table key, Type::Method.
func (s *ExternalSymbol) Key() string { return s.Type + "::" + s.Method }

// Target is the call operand without signature, [Library]Type::Method.
func (s *ExternalSymbol) Target() string {
	return "[" + s.Library + "]" + s.Key()
}

// ReturnType is the return type of the first overload. TypeNull means void.
func (s *ExternalSymbol) ReturnType() DataType {
	if len(s.Overloads) == 0 {
		return TypeNull
	}
	return s.Overloads[0].Returns
}

// Resolve picks the overload for the given argument types: an exact match,
// else the first overload with the same arity.
func (s *ExternalSymbol) Resolve(args []DataType) (Signature, error) {
	var byArity *Signature
	for i := range s.Overloads {
		o := &s.Overloads[i]
		if len(o.Params) != len(args) {
			continue
		}
		if byArity == nil {
			byArity = o
		}
		exact := true
		for j, p := range o.Params {
			if p != args[j] {
				exact = false
				break
			}
		}
		if exact {
			return *o, nil
		}
	}
	if byArity != nil {
		return *byArity, nil
	}
	return Signature{}, fmt.Errorf("%w: %s with %d argument(s)", ErrNoOverload, s.Key(), len(args))
}

// ExternalTable holds every call target resolved in one compilation, keyed
// by Type::Method.
type ExternalTable struct {
	order []string
	syms  map[string]*ExternalSymbol
}

func NewExternalTable() *ExternalTable {
	return &ExternalTable{syms: make(map[string]*ExternalSymbol)}
}

// Add records sym unless its key is already present and returns the stored
// entry.
func (t *ExternalTable) Add(sym *ExternalSymbol) *ExternalSymbol {
	if prev, ok := t.syms[sym.Key()]; ok {
		return prev
	}
	t.syms[sym.Key()] = sym
	t.order = append(t.order, sym.Key())
	return sym
}

func (t *ExternalTable) Lookup(key string) (*ExternalSymbol, bool) {
	s, ok := t.syms[key]
	return s, ok
}

// ReturnType reports the recorded return type for key.
func (t *ExternalTable) ReturnType(key string) (DataType, bool) {
	s, ok := t.syms[key]
	if !ok {
		return TypeNull, false
	}
	return s.ReturnType(), true
}

// All returns the symbols in resolution order.
func (t *ExternalTable) All() []*ExternalSymbol {
	out := make([]*ExternalSymbol, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.syms[k])
	}
	return out
}

// LibrarySet is an insertion-ordered set of library references.
type LibrarySet struct {
	libs []metadata.Library
	seen map[string]bool
}

func NewLibrarySet() *LibrarySet {
	return &LibrarySet{seen: make(map[string]bool)}
}

// Add inserts lib and reports whether it was new.
func (s *LibrarySet) Add(lib metadata.Library) bool {
	if s.seen[lib.Name] {
		return false
	}
	s.seen[lib.Name] = true
	s.libs = append(s.libs, lib)
	return true
}

func (s *LibrarySet) Has(name string) bool { return s.seen[name] }

func (s *LibrarySet) All() []metadata.Library {
	return append([]metadata.Library(nil), s.libs...)
}

// splitTarget splits "[Library]Type::Method" into the library and the
// Type::Method key.
func splitTarget(target string) (lib, key string, ok bool) {
	if !strings.HasPrefix(target, "[") {
		return "", "", false
	}
	end := strings.IndexByte(target, ']')
	if end < 0 {
		return "", "", false
	}
	return target[1:end], target[end+1:], true
}
