package metadata

import (
	_ "embed"
	"fmt"
	"os"

	"google.golang.org/protobuf/reflect/protoreflect"

	"silc/pkg/textpb"
)

//go:embed manifest/default.textproto
var defaultManifest []byte

// DefaultVersion is used for libraries whose manifest entry has no version.
const DefaultVersion = "0:0:0:0"

var manifestSchema = textpb.MustSchema("silc.manifest", "silc/manifest.proto",
	textpb.Message{Name: "Manifest", Fields: []textpb.Field{
		{Name: "library", Number: 1, Kind: textpb.MessageKind, Repeated: true, Message: "Library"},
	}},
	textpb.Message{Name: "Library", Fields: []textpb.Field{
		{Name: "name", Number: 1, Kind: textpb.String},
		{Name: "version", Number: 2, Kind: textpb.String},
		{Name: "type", Number: 3, Kind: textpb.MessageKind, Repeated: true, Message: "Type"},
	}},
	textpb.Message{Name: "Type", Fields: []textpb.Field{
		{Name: "name", Number: 1, Kind: textpb.String},
		{Name: "method", Number: 2, Kind: textpb.MessageKind, Repeated: true, Message: "Method"},
	}},
	textpb.Message{Name: "Method", Fields: []textpb.Field{
		{Name: "name", Number: 1, Kind: textpb.String},
		{Name: "returns", Number: 2, Kind: textpb.String},
		{Name: "params", Number: 3, Kind: textpb.String, Repeated: true},
		{Name: "instance", Number: 4, Kind: textpb.Bool},
	}},
)

// Load parses a textproto manifest and adds its contents to ix.
func (ix *Index) Load(data []byte) error {
	msg, err := manifestSchema.Parse("Manifest", data)
	if err != nil {
		return err
	}
	for _, lm := range textpb.GetMessages(msg, "library") {
		lib := Library{
			Name:    textpb.GetString(lm, "name"),
			Version: textpb.GetString(lm, "version"),
		}
		if lib.Name == "" {
			return fmt.Errorf("library without a name")
		}
		if lib.Version == "" {
			lib.Version = DefaultVersion
		}
		ix.AddLibrary(lib)
		for _, tm := range textpb.GetMessages(lm, "type") {
			if err := ix.AddType(typeFromMessage(lib.Name, tm)); err != nil {
				return err
			}
		}
	}
	return nil
}

func typeFromMessage(lib string, tm protoreflect.Message) Type {
	t := Type{Name: textpb.GetString(tm, "name"), Library: lib}
	for _, mm := range textpb.GetMessages(tm, "method") {
		m := Method{
			Name:     textpb.GetString(mm, "name"),
			Returns:  textpb.GetString(mm, "returns"),
			Params:   textpb.GetStrings(mm, "params"),
			Instance: textpb.GetBool(mm, "instance"),
		}
		if m.Returns == "" {
			m.Returns = "void"
		}
		t.Methods = append(t.Methods, m)
	}
	return t
}

// LoadFile reads a manifest from path and adds it to ix.
func (ix *Index) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := ix.Load(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Default returns a fresh index holding the built-in manifest.
func Default() (*Index, error) {
	ix := NewIndex()
	if err := ix.Load(defaultManifest); err != nil {
		return nil, fmt.Errorf("built-in manifest: %w", err)
	}
	return ix, nil
}
