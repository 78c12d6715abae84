// Package catalog provides the registry of tables known to a running process:
// which tables exist, their identifiers, names, schemas and data files.
package catalog

import (
	"fmt"
	"iter"
	"sort"
	"sync"

	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/arkilian/tablecat/pkg/types"
	"github.com/google/uuid"
)

// StorageFile is the table data file a catalog entry points at.
// ID must be stable for the lifetime of the file and unique per physical file.
type StorageFile interface {
	ID() int
	Schema() *types.Schema
}

// TableInfo is the catalog's record of one table. It is never modified after
// registration; re-registering a name replaces the whole record.
type TableInfo struct {
	File       StorageFile
	Name       string
	Schema     *types.Schema
	PrimaryKey string
}

// ID returns the identifier of the table's storage file.
func (t TableInfo) ID() int {
	return t.File.ID()
}

// Catalog maps table identifiers and names to TableInfo records.
//
// Both indexes are guarded by one RWMutex, so a lookup either sees a table's
// full record or no trace of it. For every name in byName, byID holds a
// record carrying that name, and every record in byID has its name bound.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[int]TableInfo
	byName map[string]int
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		byID:   make(map[int]TableInfo),
		byName: make(map[string]int),
	}
}

// AddTable registers file under name, replacing whatever was registered under
// that name before. The schema is taken from the file.
//
// file.ID() is used as the table identifier and must be unique per physical
// file: registering a second file with the same ID replaces the first one, and
// unbinds the name the first one was registered under.
func (c *Catalog) AddTable(file StorageFile, name, primaryKey string) error {
	info, err := newTableInfo(file, name, primaryKey)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(info)
	return nil
}

// AddTableUnnamed registers file under a freshly generated name and returns it.
// Generated names never collide with a name currently bound.
func (c *Catalog) AddTableUnnamed(file StorageFile) (string, error) {
	info, err := newTableInfo(file, "", "")
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		info.Name = "table-" + uuid.New().String()
		if _, taken := c.byName[info.Name]; !taken {
			break
		}
	}
	c.addLocked(info)
	return info.Name, nil
}

func newTableInfo(file StorageFile, name, primaryKey string) (TableInfo, error) {
	if file == nil {
		return TableInfo{}, cerrors.NewSchemaError(cerrors.CodeInvalidSchema, "cannot register a nil storage file")
	}
	schema := file.Schema()
	if schema == nil {
		return TableInfo{}, cerrors.NewSchemaError(cerrors.CodeInvalidSchema,
			fmt.Sprintf("storage file %d has no schema", file.ID()))
	}
	return TableInfo{
		File:       file,
		Name:       name,
		Schema:     schema,
		PrimaryKey: primaryKey,
	}, nil
}

// addLocked inserts info into both indexes, evicting the record previously
// bound to its name and the name previously bound to its id.
// Must be called with mu held for writing.
func (c *Catalog) addLocked(info TableInfo) {
	id := info.ID()
	if prevID, ok := c.byName[info.Name]; ok && prevID != id {
		delete(c.byID, prevID)
	}
	if prev, ok := c.byID[id]; ok && prev.Name != info.Name {
		delete(c.byName, prev.Name)
	}
	c.byID[id] = info
	c.byName[info.Name] = id
}

// TableID returns the identifier bound to name.
func (c *Catalog) TableID(name string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byName[name]
	if !ok {
		return 0, cerrors.NewTableNotFound(fmt.Sprintf("no table named %q", name))
	}
	return id, nil
}

// Table returns the full record of table id.
func (c *Catalog) Table(id int) (TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.byID[id]
	return info, ok
}

// TableByName returns the full record of the table bound to name.
func (c *Catalog) TableByName(name string) (TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byName[name]
	if !ok {
		return TableInfo{}, false
	}
	info, ok := c.byID[id]
	return info, ok
}

func (c *Catalog) mustTable(id int) (TableInfo, error) {
	info, ok := c.Table(id)
	if !ok {
		return TableInfo{}, cerrors.NewTableNotFound(fmt.Sprintf("no table with id %d", id))
	}
	return info, nil
}

// Schema returns the schema of table id.
func (c *Catalog) Schema(id int) (*types.Schema, error) {
	info, err := c.mustTable(id)
	if err != nil {
		return nil, err
	}
	return info.Schema, nil
}

// StorageFile returns the data file of table id.
func (c *Catalog) StorageFile(id int) (StorageFile, error) {
	info, err := c.mustTable(id)
	if err != nil {
		return nil, err
	}
	return info.File, nil
}

// PrimaryKey returns the primary key field of table id. A table without a
// primary key reports "" and true; an unknown table reports false.
func (c *Catalog) PrimaryKey(id int) (string, bool) {
	info, ok := c.Table(id)
	if !ok {
		return "", false
	}
	return info.PrimaryKey, true
}

// TableName returns the name table id is registered under.
func (c *Catalog) TableName(id int) (string, bool) {
	info, ok := c.Table(id)
	if !ok {
		return "", false
	}
	return info.Name, true
}

// TableIDs yields the identifiers registered when iteration starts. Each call
// takes a fresh snapshot; order is unspecified.
func (c *Catalog) TableIDs() iter.Seq[int] {
	return func(yield func(int) bool) {
		c.mu.RLock()
		ids := make([]int, 0, len(c.byID))
		for id := range c.byID {
			ids = append(ids, id)
		}
		c.mu.RUnlock()

		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

// Tables returns a snapshot of every record, sorted by name.
func (c *Catalog) Tables() []TableInfo {
	c.mu.RLock()
	tables := make([]TableInfo, 0, len(c.byID))
	for _, info := range c.byID {
		tables = append(tables, info)
	}
	c.mu.RUnlock()

	sort.Slice(tables, func(i, j int) bool {
		return tables[i].Name < tables[j].Name
	})
	return tables
}

// Len returns the number of registered tables.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Clear removes every table.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byID = make(map[int]TableInfo)
	c.byName = make(map[string]int)
}
