// Package lcmtype parses LCM type definitions and decodes message payloads
// against them.
package lcmtype

import "fmt"

// Kind identifies an LCM field type.
type Kind uint8

const (
	KindInt8 Kind = iota + 1
	KindInt16
	KindInt32
	KindInt64
	KindByte
	KindFloat
	KindDouble
	KindString
	KindBoolean
	KindStruct
)

var kindNames = map[string]Kind{
	"int8_t":  KindInt8,
	"int16_t": KindInt16,
	"int32_t": KindInt32,
	"int64_t": KindInt64,
	"byte":    KindByte,
	"float":   KindFloat,
	"double":  KindDouble,
	"string":  KindString,
	"boolean": KindBoolean,
}

// String returns the canonical LCM type name. The exact spelling matters: it
// feeds the fingerprint hash.
func (k Kind) String() string {
	switch k {
	case KindInt8:
		return "int8_t"
	case KindInt16:
		return "int16_t"
	case KindInt32:
		return "int32_t"
	case KindInt64:
		return "int64_t"
	case KindByte:
		return "byte"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// fixedSize returns the encoded byte width of a primitive, or 0 for types
// without a fixed width (string, struct).
func (k Kind) fixedSize() int {
	switch k {
	case KindInt8, KindByte, KindBoolean:
		return 1
	case KindInt16:
		return 2
	case KindInt32, KindFloat:
		return 4
	case KindInt64, KindDouble:
		return 8
	default:
		return 0
	}
}

func (k Kind) integral() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	default:
		return false
	}
}

// Dim is one array dimension: a fixed size, or the name of a previously
// declared integral member that carries the size at decode time.
type Dim struct {
	Size int
	Var  string
}

func (d Dim) IsVar() bool { return d.Var != "" }

func (d Dim) String() string {
	if d.IsVar() {
		return d.Var
	}
	return fmt.Sprintf("%d", d.Size)
}

// Field is one member of a Schema, in declaration order.
type Field struct {
	Name string
	Kind Kind
	// TypeName is the referenced type for KindStruct fields, as written in
	// the source (short or package-qualified).
	TypeName string
	Dims     []Dim
	// Struct is the resolved nested schema for KindStruct fields, filled in
	// by Registry.Resolve.
	Struct *Schema
}

func (f *Field) IsArray() bool { return len(f.Dims) > 0 }

// Const is a named constant declared inside a struct. Integral constants keep
// their value in Int, float/double in Float.
type Const struct {
	Name  string
	Kind  Kind
	Int   int64
	Float float64
}

// Schema is one parsed LCM struct definition. Schemas are immutable after
// Registry.Resolve.
type Schema struct {
	Package string
	Name    string
	Fields  []*Field
	Consts  []*Const

	fingerprint uint64
	resolved    bool
}

// QualifiedName returns "package.name", or just the name for package-less
// types.
func (s *Schema) QualifiedName() string {
	if s.Package == "" {
		return s.Name
	}
	return s.Package + "." + s.Name
}

// Fingerprint returns the packed LCM fingerprint. It is zero until the owning
// registry has resolved the schema.
func (s *Schema) Fingerprint() uint64 { return s.fingerprint }

func (s *Schema) field(name string) *Field {
	for _, f := range s.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (s *Schema) constant(name string) *Const {
	for _, c := range s.Consts {
		if c.Name == name {
			return c
		}
	}
	return nil
}
