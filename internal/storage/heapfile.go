package storage

import (
	"fmt"
	"os"
	"path/filepath"

	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/arkilian/tablecat/pkg/types"
	"github.com/spaolacci/murmur3"
)

// DefaultPageSize is the page size table files are laid out with.
const DefaultPageSize = 4096

// TableFileExt is the suffix of table data files. External tooling generates
// files with this name, so it must not change.
const TableFileExt = ".dat"

// HeapFile is a handle on an unordered table data file. It carries the schema
// of the tuples it stores and an identifier derived from its absolute path, so
// two handles on the same file always share an ID.
type HeapFile struct {
	path   string
	id     int
	schema *types.Schema
}

// NewHeapFile creates a handle for the file at path. The file does not have to
// exist yet.
func NewHeapFile(path string, schema *types.Schema) (*HeapFile, error) {
	if schema == nil {
		return nil, cerrors.NewSchemaError(cerrors.CodeInvalidSchema, "heap file requires a schema")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, cerrors.NewStorageError(cerrors.CodeIOFailure, fmt.Sprintf("resolve path %s", path), err)
	}
	return &HeapFile{
		path:   abs,
		id:     int(murmur3.Sum64([]byte(abs))),
		schema: schema,
	}, nil
}

// TableFilePath returns <baseDir>/<tableName>.dat.
func TableFilePath(baseDir, tableName string) string {
	return filepath.Join(baseDir, tableName+TableFileExt)
}

// ID returns the stable identifier of this file.
func (f *HeapFile) ID() int {
	return f.id
}

// Schema returns the schema of the tuples stored in this file.
func (f *HeapFile) Schema() *types.Schema {
	return f.schema
}

// Path returns the absolute path of the file.
func (f *HeapFile) Path() string {
	return f.path
}

// TuplesPerPage returns how many tuples fit on a page of pageSize bytes. Each
// tuple costs its schema size plus one header bit.
func (f *HeapFile) TuplesPerPage(pageSize int) int {
	return (pageSize * 8) / (f.schema.Size()*8 + 1)
}

// NumPages returns the number of whole pages currently in the file. A missing
// file has zero pages.
func (f *HeapFile) NumPages(pageSize int) (int, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, cerrors.NewStorageError(cerrors.CodeIOFailure, fmt.Sprintf("stat %s", f.path), err)
	}
	return int(info.Size() / int64(pageSize)), nil
}
