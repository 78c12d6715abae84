package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/arkilian/tablecat/pkg/types"
	"github.com/spaolacci/murmur3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *types.Schema {
	t.Helper()
	s, err := types.NewSchema([]types.Type{types.StringType, types.IntType}, []string{"name", "age"})
	require.NoError(t, err)
	return s
}

func TestHeapFile_IDIsStablePerPath(t *testing.T) {
	dir := t.TempDir()
	schema := testSchema(t)

	a, err := NewHeapFile(TableFilePath(dir, "people"), schema)
	require.NoError(t, err)
	b, err := NewHeapFile(filepath.Join(dir, ".", "people.dat"), schema)
	require.NoError(t, err)
	c, err := NewHeapFile(TableFilePath(dir, "orders"), schema)
	require.NoError(t, err)

	assert.Equal(t, a.ID(), b.ID(), "same absolute path gives same id")
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Same(t, schema, a.Schema())
	assert.True(t, filepath.IsAbs(a.Path()))
	assert.Equal(t, "people.dat", filepath.Base(a.Path()))
}

func TestHeapFile_IDUsesFullPathHash(t *testing.T) {
	f, err := NewHeapFile(TableFilePath(t.TempDir(), "people"), testSchema(t))
	require.NoError(t, err)

	assert.Equal(t, int(murmur3.Sum64([]byte(f.Path()))), f.ID())

	seen := make(map[int]string)
	dir := t.TempDir()
	for i := range 2000 {
		h, err := NewHeapFile(TableFilePath(dir, fmt.Sprintf("t%d", i)), testSchema(t))
		require.NoError(t, err)
		prev, dup := seen[h.ID()]
		require.False(t, dup, "%s collides with %s", h.Path(), prev)
		seen[h.ID()] = h.Path()
	}
}

func TestHeapFile_RequiresSchema(t *testing.T) {
	_, err := NewHeapFile(filepath.Join(t.TempDir(), "x.dat"), nil)
	assert.True(t, errors.Is(err, cerrors.ErrInvalidSchema))
}

func TestHeapFile_PageMath(t *testing.T) {
	dir := t.TempDir()
	f, err := NewHeapFile(TableFilePath(dir, "people"), testSchema(t))
	require.NoError(t, err)

	// 136-byte tuples: 4096*8 / (136*8+1) = 30
	assert.Equal(t, 30, f.TuplesPerPage(DefaultPageSize))

	pages, err := f.NumPages(DefaultPageSize)
	require.NoError(t, err)
	assert.Equal(t, 0, pages, "missing file has no pages")

	require.NoError(t, os.WriteFile(f.Path(), make([]byte, 3*DefaultPageSize), 0644))
	pages, err = f.NumPages(DefaultPageSize)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
}
