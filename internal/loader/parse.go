// Package loader reads schema definition files and registers the tables they
// describe into a catalog.
//
// A schema definition file holds one table per line:
//
//	people (name string, age int pk)
//
// Blank lines and lines starting with '#' are ignored.
package loader

import (
	"fmt"
	"strings"

	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/arkilian/tablecat/pkg/types"
)

// PrimaryKeyMarker is the only annotation accepted after a field's type.
const PrimaryKeyMarker = "pk"

// TableDef is one parsed schema definition line.
type TableDef struct {
	Name       string
	Types      []types.Type
	Names      []string
	PrimaryKey string
}

// Schema builds the descriptor for the table's fields.
func (d TableDef) Schema() (*types.Schema, error) {
	return types.NewSchema(d.Types, d.Names)
}

// ParseLine parses a single table definition. Surrounding whitespace is
// ignored. Text after the closing parenthesis is ignored.
func ParseLine(line string) (TableDef, error) {
	text := strings.TrimSpace(line)

	open := strings.Index(text, "(")
	if open < 0 {
		return TableDef{}, malformed("missing '('", line)
	}
	closing := strings.Index(text, ")")
	if closing < 0 {
		return TableDef{}, malformed("missing ')'", line)
	}
	if closing < open {
		return TableDef{}, malformed("')' before '('", line)
	}

	def := TableDef{Name: strings.TrimSpace(text[:open])}
	if def.Name == "" {
		return TableDef{}, malformed("missing table name", line)
	}

	body := strings.TrimSpace(text[open+1 : closing])
	if body == "" {
		return TableDef{}, malformed("empty field list", line)
	}

	for i, entry := range strings.Split(body, ",") {
		tokens := strings.Fields(entry)
		if len(tokens) == 0 {
			return TableDef{}, malformed(fmt.Sprintf("empty field entry %d", i), line)
		}
		if len(tokens) < 2 || len(tokens) > 3 {
			return TableDef{}, malformed(fmt.Sprintf("field entry %q must be 'name type [pk]'", strings.TrimSpace(entry)), line)
		}

		t, err := types.ParseType(tokens[1])
		if err != nil {
			return TableDef{}, cerrors.NewLoaderError(cerrors.CodeUnknownTypeToken,
				fmt.Sprintf("unknown type %q", tokens[1]), line)
		}

		if len(tokens) == 3 {
			if tokens[2] != PrimaryKeyMarker {
				return TableDef{}, cerrors.NewLoaderError(cerrors.CodeUnknownAnnotation,
					fmt.Sprintf("unknown annotation %q", tokens[2]), line)
			}
			if def.PrimaryKey != "" {
				return TableDef{}, malformed(
					fmt.Sprintf("more than one primary key (%s, %s)", def.PrimaryKey, tokens[0]), line)
			}
			def.PrimaryKey = tokens[0]
		}

		def.Names = append(def.Names, tokens[0])
		def.Types = append(def.Types, t)
	}

	return def, nil
}

func malformed(reason, line string) error {
	return cerrors.NewLoaderError(cerrors.CodeMalformedSchemaLine, reason, line)
}

// skipLine reports whether a line carries no table definition.
func skipLine(line string) bool {
	text := strings.TrimSpace(line)
	return text == "" || strings.HasPrefix(text, "#")
}
