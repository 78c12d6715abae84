package catalog

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/arkilian/tablecat/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFile is a minimal in-memory StorageFile for testing.
type fakeFile struct {
	id     int
	schema *types.Schema
}

func (f *fakeFile) ID() int               { return f.id }
func (f *fakeFile) Schema() *types.Schema { return f.schema }

func newFakeFile(t *testing.T, id int, fieldTypes ...types.Type) *fakeFile {
	t.Helper()
	if len(fieldTypes) == 0 {
		fieldTypes = []types.Type{types.IntType}
	}
	s, err := types.NewSchemaFromTypes(fieldTypes...)
	require.NoError(t, err)
	return &fakeFile{id: id, schema: s}
}

// checkInvariant asserts both indexes describe the same set of tables.
func checkInvariant(t *testing.T, c *Catalog) {
	t.Helper()
	c.mu.RLock()
	defer c.mu.RUnlock()

	require.Equal(t, len(c.byID), len(c.byName), "index sizes differ")
	for name, id := range c.byName {
		info, ok := c.byID[id]
		require.True(t, ok, "name %q bound to missing id %d", name, id)
		require.Equal(t, name, info.Name, "id %d stores a different name", id)
	}
	for id, info := range c.byID {
		bound, ok := c.byName[info.Name]
		require.True(t, ok, "id %d has no name binding", id)
		require.Equal(t, id, bound)
	}
}

func TestCatalog_AddAndLookup(t *testing.T) {
	c := New()
	file := newFakeFile(t, 7, types.StringType, types.IntType)

	require.NoError(t, c.AddTable(file, "people", "age"))

	id, err := c.TableID("people")
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	schema, err := c.Schema(7)
	require.NoError(t, err)
	assert.Same(t, file.Schema(), schema, "schema is taken from the file")

	got, err := c.StorageFile(7)
	require.NoError(t, err)
	assert.Same(t, file, got)

	pk, ok := c.PrimaryKey(7)
	assert.True(t, ok)
	assert.Equal(t, "age", pk)

	name, ok := c.TableName(7)
	assert.True(t, ok)
	assert.Equal(t, "people", name)

	info, ok := c.TableByName("people")
	assert.True(t, ok)
	assert.Equal(t, 7, info.ID())

	checkInvariant(t, c)
}

func TestCatalog_EmptyNameIsAllowed(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTable(newFakeFile(t, 1), "", ""))

	id, err := c.TableID("")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	pk, ok := c.PrimaryKey(1)
	assert.True(t, ok)
	assert.Equal(t, "", pk)
}

func TestCatalog_RejectsNilFileAndSchema(t *testing.T) {
	c := New()

	err := c.AddTable(nil, "t", "")
	assert.True(t, errors.Is(err, cerrors.ErrInvalidSchema))

	err = c.AddTable(&fakeFile{id: 3}, "t", "")
	assert.True(t, errors.Is(err, cerrors.ErrInvalidSchema))

	assert.Equal(t, 0, c.Len())
}

func TestCatalog_MissingLookups(t *testing.T) {
	c := New()

	_, err := c.TableID("ghost")
	assert.True(t, errors.Is(err, cerrors.ErrTableNotFound))

	_, err = c.Schema(99)
	assert.True(t, errors.Is(err, cerrors.ErrTableNotFound))

	_, err = c.StorageFile(99)
	assert.True(t, errors.Is(err, cerrors.ErrTableNotFound))

	pk, ok := c.PrimaryKey(99)
	assert.False(t, ok)
	assert.Equal(t, "", pk)

	_, ok = c.TableName(99)
	assert.False(t, ok)
}

func TestCatalog_NameRebindEvictsOldID(t *testing.T) {
	c := New()
	file1 := newFakeFile(t, 1)
	file2 := newFakeFile(t, 2, types.StringType)

	require.NoError(t, c.AddTable(file1, "t", ""))
	require.NoError(t, c.AddTable(file2, "t", "pk2"))

	id, err := c.TableID("t")
	require.NoError(t, err)
	assert.Equal(t, file2.ID(), id)

	_, err = c.Schema(file1.ID())
	assert.True(t, errors.Is(err, cerrors.ErrTableNotFound), "old id fully evicted")
	_, ok := c.TableName(file1.ID())
	assert.False(t, ok)

	pk, _ := c.PrimaryKey(file2.ID())
	assert.Equal(t, "pk2", pk)
	assert.Equal(t, 1, c.Len())
	checkInvariant(t, c)
}

func TestCatalog_SameIDUnderNewNameUnbindsOldName(t *testing.T) {
	c := New()
	file := newFakeFile(t, 5)

	require.NoError(t, c.AddTable(file, "old", ""))
	require.NoError(t, c.AddTable(file, "new", ""))

	_, err := c.TableID("old")
	assert.True(t, errors.Is(err, cerrors.ErrTableNotFound))
	name, _ := c.TableName(5)
	assert.Equal(t, "new", name)
	checkInvariant(t, c)
}

func TestCatalog_ReregisterSameNameAndID(t *testing.T) {
	c := New()
	file := newFakeFile(t, 5)

	require.NoError(t, c.AddTable(file, "t", ""))
	require.NoError(t, c.AddTable(file, "t", "id"))

	pk, _ := c.PrimaryKey(5)
	assert.Equal(t, "id", pk, "record replaced wholesale")
	assert.Equal(t, 1, c.Len())
	checkInvariant(t, c)
}

func TestCatalog_AddTableUnnamed(t *testing.T) {
	c := New()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		name, err := c.AddTableUnnamed(newFakeFile(t, i))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(name, "table-"))
		assert.False(t, seen[name], "synthetic name %s reused", name)
		seen[name] = true

		id, err := c.TableID(name)
		require.NoError(t, err)
		assert.Equal(t, i, id)
	}
	assert.Equal(t, 50, c.Len())
	checkInvariant(t, c)
}

func TestCatalog_TableIDsSnapshot(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		require.NoError(t, c.AddTable(newFakeFile(t, i*10), fmt.Sprintf("t%d", i), ""))
	}

	collect := func() map[int]int {
		counts := make(map[int]int)
		for id := range c.TableIDs() {
			counts[id]++
		}
		return counts
	}

	first := collect()
	assert.Len(t, first, 10)
	for id, n := range first {
		assert.Equal(t, 1, n, "id %d yielded twice", id)
	}
	assert.Equal(t, first, collect(), "iteration is restartable")

	// mutations after the snapshot is taken do not disturb the pass
	n := 0
	for range c.TableIDs() {
		if n == 0 {
			c.Clear()
		}
		n++
	}
	assert.Equal(t, 10, n)
	assert.Empty(t, collect())
}

func TestCatalog_ClearRemovesEverything(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTable(newFakeFile(t, 1), "a", "x"))
	require.NoError(t, c.AddTable(newFakeFile(t, 2), "b", ""))

	c.Clear()

	assert.Equal(t, 0, c.Len())
	_, err := c.TableID("a")
	assert.True(t, errors.Is(err, cerrors.ErrTableNotFound))
	_, err = c.Schema(1)
	assert.True(t, errors.Is(err, cerrors.ErrTableNotFound))
	_, err = c.StorageFile(2)
	assert.True(t, errors.Is(err, cerrors.ErrTableNotFound))
	checkInvariant(t, c)
}

func TestCatalog_TablesSortedByName(t *testing.T) {
	c := New()
	require.NoError(t, c.AddTable(newFakeFile(t, 1), "zeta", ""))
	require.NoError(t, c.AddTable(newFakeFile(t, 2), "alpha", ""))
	require.NoError(t, c.AddTable(newFakeFile(t, 3), "mid", ""))

	tables := c.Tables()
	require.Len(t, tables, 3)
	assert.Equal(t, "alpha", tables[0].Name)
	assert.Equal(t, "mid", tables[1].Name)
	assert.Equal(t, "zeta", tables[2].Name)
}
