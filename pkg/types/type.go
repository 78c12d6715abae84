// Package types provides the field types and schema descriptors shared by the
// catalog and every component that interprets raw tuples.
package types

import (
	"fmt"
	"strings"

	cerrors "github.com/arkilian/tablecat/internal/errors"
)

// StringMaxLen is the fixed payload capacity of a StringType field.
const StringMaxLen = 128

// Type is a primitive field type with a fixed encoded length.
type Type int

const (
	IntType Type = iota
	StringType
)

// Len returns the number of bytes a value of this type occupies on disk.
// Strings are stored as a 4-byte length followed by StringMaxLen bytes.
func (t Type) Len() int {
	switch t {
	case IntType:
		return 4
	case StringType:
		return 4 + StringMaxLen
	default:
		return 0
	}
}

// String returns the display name of the type.
func (t Type) String() string {
	switch t {
	case IntType:
		return "INT_TYPE"
	case StringType:
		return "STRING_TYPE"
	default:
		return "UNKNOWN_TYPE"
	}
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	return t == IntType || t == StringType
}

// ParseType maps a schema-file type token (case-insensitive) to a Type.
func ParseType(token string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "int":
		return IntType, nil
	case "string":
		return StringType, nil
	default:
		return 0, cerrors.New(cerrors.ErrCategoryLoader, cerrors.CodeUnknownTypeToken,
			fmt.Sprintf("unknown type %q", token))
	}
}
