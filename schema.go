package stategraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Field is a named, typed entry of a Schema.
type Field struct {
	Name     string
	Type     *jsonschema.Schema
	Optional bool
}

// FieldOf returns a required field whose values must satisfy typ.
// A nil typ accepts any value.
func FieldOf(name string, typ *jsonschema.Schema) Field {
	return Field{Name: name, Type: typ}
}

// String returns a required string field.
func String(name string) Field { return FieldOf(name, &jsonschema.Schema{Type: "string"}) }

// Integer returns a required integer field.
func Integer(name string) Field { return FieldOf(name, &jsonschema.Schema{Type: "integer"}) }

// Number returns a required number field.
func Number(name string) Field { return FieldOf(name, &jsonschema.Schema{Type: "number"}) }

// Boolean returns a required boolean field.
func Boolean(name string) Field { return FieldOf(name, &jsonschema.Schema{Type: "boolean"}) }

// Object returns a required object field.
func Object(name string) Field { return FieldOf(name, &jsonschema.Schema{Type: "object"}) }

// Array returns a required array field.
func Array(name string) Field { return FieldOf(name, &jsonschema.Schema{Type: "array"}) }

// Any returns a required field that accepts any value.
func Any(name string) Field { return FieldOf(name, &jsonschema.Schema{}) }

// AsOptional returns a copy of the field that may be absent from a projection.
func (f Field) AsOptional() Field {
	f.Optional = true
	return f
}

// ParseField builds a field from a textual type such as "string" or "integer?".
// A trailing question mark marks the field optional.
func ParseField(name, typ string) (Field, error) {
	typ = strings.TrimSpace(typ)
	optional := strings.HasSuffix(typ, "?")
	typ = strings.TrimSuffix(typ, "?")
	var f Field
	switch typ {
	case "string":
		f = String(name)
	case "integer", "int":
		f = Integer(name)
	case "number", "float":
		f = Number(name)
	case "boolean", "bool":
		f = Boolean(name)
	case "object", "map":
		f = Object(name)
	case "array", "list":
		f = Array(name)
	case "any", "":
		f = Any(name)
	default:
		return Field{}, &SchemaError{Field: name, Msg: fmt.Sprintf("unknown type %q", typ)}
	}
	f.Optional = optional
	return f, nil
}

// Schema is an immutable set of uniquely named fields.
type Schema struct {
	fields   map[string]Field
	resolved map[string]*jsonschema.Resolved
	names    []string
}

// NewSchema builds a schema from fields. Repeating a name with the same type is allowed;
// repeating it with an incompatible type returns a SchemaError.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields:   make(map[string]Field, len(fields)),
		resolved: make(map[string]*jsonschema.Resolved, len(fields)),
	}
	for _, f := range fields {
		if err := s.add(f); err != nil {
			return nil, err
		}
	}
	s.names = slices.Sorted(maps.Keys(s.fields))
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaFor derives a schema from the JSON properties of the struct type T.
// Properties that are not required become optional fields.
func SchemaFor[T any]() (*Schema, error) {
	js, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, &SchemaError{Msg: err.Error()}
	}
	if js.Type != "object" {
		return nil, &SchemaError{Msg: fmt.Sprintf("type %T is not an object", *new(T))}
	}
	fields := make([]Field, 0, len(js.Properties))
	for name, prop := range js.Properties {
		f := FieldOf(name, prop)
		f.Optional = !slices.Contains(js.Required, name)
		fields = append(fields, f)
	}
	return NewSchema(fields...)
}

// Compose returns the union of schemas. A field present in several schemas must have
// a compatible type everywhere; it stays optional only if it is optional in all of them.
func Compose(schemas ...*Schema) (*Schema, error) {
	var fields []Field
	for _, s := range schemas {
		fields = append(fields, s.Fields()...)
	}
	return NewSchema(fields...)
}

func (s *Schema) add(f Field) error {
	if f.Name == "" {
		return &SchemaError{Msg: "field name must not be empty"}
	}
	if f.Type == nil {
		f.Type = &jsonschema.Schema{}
	}
	if existing, ok := s.fields[f.Name]; ok {
		if !sameType(existing.Type, f.Type) {
			return &SchemaError{Field: f.Name, Msg: "conflicting field types"}
		}
		existing.Optional = existing.Optional && f.Optional
		s.fields[f.Name] = existing
		return nil
	}
	resolved, err := f.Type.Resolve(nil)
	if err != nil {
		return &SchemaError{Field: f.Name, Msg: err.Error()}
	}
	s.fields[f.Name] = f
	s.resolved[f.Name] = resolved
	return nil
}

func sameType(a, b *jsonschema.Schema) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// Fields returns the fields sorted by name.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	fields := make([]Field, 0, len(s.names))
	for _, name := range s.names {
		fields = append(fields, s.fields[name])
	}
	return fields
}

// Names returns the field names in sorted order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.names)
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	f, ok := s.fields[name]
	return f, ok
}

// Has reports whether the schema names the field.
func (s *Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// IsSubsetOf reports whether every field of s exists in other with a compatible type.
func (s *Schema) IsSubsetOf(other *Schema) bool {
	for _, f := range s.Fields() {
		o, ok := other.Field(f.Name)
		if !ok || !sameType(f.Type, o.Type) {
			return false
		}
	}
	return true
}

// Validate checks every value of state that the schema names against its field type.
// Values the schema does not name are ignored.
func (s *Schema) Validate(state State) error {
	for _, name := range s.Names() {
		value, ok := state[name]
		if !ok {
			continue
		}
		if err := s.resolved[name].Validate(value); err != nil {
			return &InvalidValueError{Field: name, Err: err}
		}
	}
	return nil
}

// String renders the schema as {name:type, ...} for logs and CLI output.
func (s *Schema) String() string {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, f := range s.Fields() {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(f.Name)
		buf.WriteByte(':')
		buf.WriteString(typeName(f.Type))
		if f.Optional {
			buf.WriteByte('?')
		}
	}
	buf.WriteByte('}')
	return buf.String()
}

func typeName(t *jsonschema.Schema) string {
	switch {
	case t == nil:
		return "any"
	case t.Type != "":
		return t.Type
	case len(t.Types) > 0:
		return strings.Join(t.Types, "|")
	default:
		return "any"
	}
}
