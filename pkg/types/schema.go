package types

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/spaolacci/murmur3"
)

// FieldEntry is one (name, type) pair of a schema. Name may be empty.
type FieldEntry struct {
	Name string
	Type Type
}

// String renders the entry as name(TYPE).
func (f FieldEntry) String() string {
	return fmt.Sprintf("%s(%s)", f.Name, f.Type)
}

// Schema describes the shape of a tuple: an ordered list of typed fields and
// the fixed number of bytes a tuple of that shape occupies.
//
// A Schema is immutable once constructed and safe to share between goroutines.
type Schema struct {
	fields []FieldEntry
	size   int
}

// NewSchema creates a schema from parallel slices of types and names.
// A nil names slice gives every field an empty name.
func NewSchema(fieldTypes []Type, fieldNames []string) (*Schema, error) {
	if len(fieldTypes) == 0 {
		return nil, cerrors.NewSchemaError(cerrors.CodeInvalidSchema, "schema must have at least one field")
	}
	if fieldNames != nil && len(fieldNames) != len(fieldTypes) {
		return nil, cerrors.NewSchemaError(cerrors.CodeInvalidSchema,
			fmt.Sprintf("field names length (%d) must match field types length (%d)", len(fieldNames), len(fieldTypes)))
	}

	fields := make([]FieldEntry, len(fieldTypes))
	for i, t := range fieldTypes {
		if !t.Valid() {
			return nil, cerrors.NewSchemaError(cerrors.CodeInvalidSchema,
				fmt.Sprintf("field %d has unknown type %d", i, int(t)))
		}
		fields[i].Type = t
		if fieldNames != nil {
			fields[i].Name = fieldNames[i]
		}
	}
	return newSchema(fields), nil
}

// NewSchemaFromTypes creates a schema of unnamed fields.
func NewSchemaFromTypes(fieldTypes ...Type) (*Schema, error) {
	return NewSchema(fieldTypes, nil)
}

// newSchema takes ownership of fields, which must be non-empty and valid.
func newSchema(fields []FieldEntry) *Schema {
	size := 0
	for _, f := range fields {
		size += f.Type.Len()
	}
	return &Schema{fields: fields, size: size}
}

// NumFields returns the number of fields.
func (s *Schema) NumFields() int {
	return len(s.fields)
}

// FieldName returns the name of the i-th field.
func (s *Schema) FieldName(i int) (string, error) {
	if err := s.checkIndex(i); err != nil {
		return "", err
	}
	return s.fields[i].Name, nil
}

// FieldType returns the type of the i-th field.
func (s *Schema) FieldType(i int) (Type, error) {
	if err := s.checkIndex(i); err != nil {
		return 0, err
	}
	return s.fields[i].Type, nil
}

func (s *Schema) checkIndex(i int) error {
	if i < 0 || i >= len(s.fields) {
		return cerrors.NewSchemaError(cerrors.CodeIndexOutOfRange,
			fmt.Sprintf("field index %d out of range [0, %d)", i, len(s.fields)))
	}
	return nil
}

// IndexOf returns the index of the first field called name.
func (s *Schema) IndexOf(name string) (int, error) {
	for i, f := range s.fields {
		if f.Name == name {
			return i, nil
		}
	}
	return -1, cerrors.NewSchemaError(cerrors.CodeFieldNotFound, fmt.Sprintf("no field named %q", name))
}

// Size returns the encoded size in bytes of a tuple with this schema.
func (s *Schema) Size() int {
	return s.size
}

// Fields yields the entries in order. Each call starts a fresh pass.
func (s *Schema) Fields() iter.Seq[FieldEntry] {
	return func(yield func(FieldEntry) bool) {
		for _, f := range s.fields {
			if !yield(f) {
				return
			}
		}
	}
}

// Types returns a copy of the field types in order.
func (s *Schema) Types() []Type {
	out := make([]Type, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Type
	}
	return out
}

// Names returns a copy of the field names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Merge returns a new schema holding a's fields followed by b's. A nil
// operand contributes no fields; Merge(nil, nil) is nil.
func Merge(a, b *Schema) *Schema {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	fields := make([]FieldEntry, 0, len(a.fields)+len(b.fields))
	fields = append(fields, a.fields...)
	fields = append(fields, b.fields...)
	return newSchema(fields)
}

// Equals reports whether both schemas have the same field types in the same
// order. Field names are not compared.
func (s *Schema) Equals(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.fields) != len(other.fields) {
		return false
	}
	for i, f := range s.fields {
		if f.Type != other.fields[i].Type {
			return false
		}
	}
	return true
}

// Hash returns a hash of the type sequence. Schemas that are Equal hash equal.
func (s *Schema) Hash() uint64 {
	buf := make([]byte, 0, 4*len(s.fields))
	for _, f := range s.fields {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Type))
	}
	return murmur3.Sum64(buf)
}

// String renders the schema as TYPE[0](name[0]),TYPE[1](name[1]),...
func (s *Schema) String() string {
	var sb strings.Builder
	for i, f := range s.fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s[%d](%s[%d])", f.Type, i, f.Name, i)
	}
	return sb.String()
}

type fieldJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Len  int    `json:"len"`
}

type schemaJSON struct {
	Size   int         `json:"size"`
	Fields []fieldJSON `json:"fields"`
}

// MarshalJSON encodes the schema for the HTTP API and manifest export.
func (s *Schema) MarshalJSON() ([]byte, error) {
	out := schemaJSON{Size: s.size, Fields: make([]fieldJSON, len(s.fields))}
	for i, f := range s.fields {
		out.Fields[i] = fieldJSON{Name: f.Name, Type: f.Type.String(), Len: f.Type.Len()}
	}
	return json.Marshal(out)
}
