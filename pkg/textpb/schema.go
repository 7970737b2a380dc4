// Package textpb parses textproto documents against message schemas that
// are declared in Go instead of .proto files. The schema is compiled into a
// descriptor registry once, and documents are decoded into dynamic messages.
package textpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Kind is the scalar kind of a field.
type Kind int

const (
	String Kind = iota
	Bool
	Int32
	MessageKind
)

// Field declares one message field. Message names the field's message type
// (unqualified, same package) when Kind is MessageKind.
type Field struct {
	Name     string
	Number   int32
	Kind     Kind
	Repeated bool
	Message  string
}

// Message declares one message type.
type Message struct {
	Name   string
	Fields []Field
}

// Schema is a compiled set of message types in one proto package.
type Schema struct {
	pkg      string
	registry *protoregistry.Files
}

// NewSchema compiles msgs into a registry under package pkg. Fields use
// proto2 optional semantics so that presence can be tested.
func NewSchema(pkg, file string, msgs ...Message) (*Schema, error) {
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(file),
		Package: proto.String(pkg),
		Syntax:  proto.String("proto2"),
	}
	for _, m := range msgs {
		dp := &descriptorpb.DescriptorProto{Name: proto.String(m.Name)}
		for _, f := range m.Fields {
			fp := &descriptorpb.FieldDescriptorProto{
				Name:     proto.String(f.Name),
				JsonName: proto.String(f.Name),
				Number:   proto.Int32(f.Number),
				Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			}
			if f.Repeated {
				fp.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
			}
			switch f.Kind {
			case String:
				fp.Type = descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
			case Bool:
				fp.Type = descriptorpb.FieldDescriptorProto_TYPE_BOOL.Enum()
			case Int32:
				fp.Type = descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum()
			case MessageKind:
				fp.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
				fp.TypeName = proto.String("." + pkg + "." + f.Message)
			default:
				return nil, fmt.Errorf("field %s.%s: unknown kind %d", m.Name, f.Name, f.Kind)
			}
			dp.Field = append(dp.Field, fp)
		}
		fdp.MessageType = append(fdp.MessageType, dp)
	}

	files, err := protodesc.NewFiles(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{fdp},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create file descriptors: %w", err)
	}
	return &Schema{pkg: pkg, registry: files}, nil
}

// MustSchema is NewSchema for package-level schema variables.
func MustSchema(pkg, file string, msgs ...Message) *Schema {
	s, err := NewSchema(pkg, file, msgs...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) descriptor(name string) (protoreflect.MessageDescriptor, error) {
	full := protoreflect.FullName(s.pkg + "." + name)
	desc, err := s.registry.FindDescriptorByName(full)
	if err != nil {
		return nil, fmt.Errorf("message %q not found in registry: %w", full, err)
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%q is not a message type", full)
	}
	return md, nil
}

// Parse decodes a textproto document as message name.
func (s *Schema) Parse(name string, data []byte) (protoreflect.Message, error) {
	md, err := s.descriptor(name)
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(md)
	if err := prototext.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to parse textproto: %w", err)
	}
	return msg.ProtoReflect(), nil
}

// Format encodes m as indented textproto.
func Format(m protoreflect.Message) string {
	return prototext.MarshalOptions{Multiline: true, Indent: "  "}.Format(m.Interface())
}

func field(m protoreflect.Message, name string) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("textpb: %s has no field %q", m.Descriptor().FullName(), name))
	}
	return fd
}

// Has reports whether the singular field name is set.
func Has(m protoreflect.Message, name string) bool {
	return m.Has(field(m, name))
}

// GetString returns the string field name, or "" when unset.
func GetString(m protoreflect.Message, name string) string {
	return m.Get(field(m, name)).String()
}

// GetBool returns the bool field name, or false when unset.
func GetBool(m protoreflect.Message, name string) bool {
	return m.Get(field(m, name)).Bool()
}

// GetStrings returns the elements of a repeated string field.
func GetStrings(m protoreflect.Message, name string) []string {
	list := m.Get(field(m, name)).List()
	out := make([]string, list.Len())
	for i := range out {
		out[i] = list.Get(i).String()
	}
	return out
}

// GetMessages returns the elements of a repeated message field.
func GetMessages(m protoreflect.Message, name string) []protoreflect.Message {
	list := m.Get(field(m, name)).List()
	out := make([]protoreflect.Message, list.Len())
	for i := range out {
		out[i] = list.Get(i).Message()
	}
	return out
}

// GetInt32 returns the int32 field name, or 0 when unset.
func GetInt32(m protoreflect.Message, name string) int32 {
	return int32(m.Get(field(m, name)).Int())
}
