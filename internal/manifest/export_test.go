package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/arkilian/tablecat/internal/catalog"
	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/arkilian/tablecat/internal/storage"
	"github.com/arkilian/tablecat/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	id     int
	schema *types.Schema
}

func (f *memFile) ID() int               { return f.id }
func (f *memFile) Schema() *types.Schema { return f.schema }

func buildCatalog(t *testing.T, dataDir string) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()

	people, err := types.NewSchema([]types.Type{types.StringType, types.IntType}, []string{"name", "age"})
	require.NoError(t, err)
	heap, err := storage.NewHeapFile(storage.TableFilePath(dataDir, "people"), people)
	require.NoError(t, err)
	require.NoError(t, cat.AddTable(heap, "people", "age"))

	counters, err := types.NewSchemaFromTypes(types.IntType)
	require.NoError(t, err)
	require.NoError(t, cat.AddTable(&memFile{id: 42, schema: counters}, "counters", ""))

	return cat
}

func openManifest(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExport_WritesTablesAndColumns(t *testing.T) {
	dir := t.TempDir()
	cat := buildCatalog(t, dir)
	path := filepath.Join(dir, "out", "manifest.db")

	summary, err := Export(context.Background(), cat, path)
	require.NoError(t, err)
	assert.Equal(t, path, summary.Path)
	assert.Equal(t, 2, summary.Tables)
	assert.Equal(t, 3, summary.Columns)

	db := openManifest(t, path)

	info, ok := cat.TableByName("people")
	require.True(t, ok)

	var (
		id        int
		pk        string
		filePath  sql.NullString
		tupleSize int
		hash      string
		desc      string
	)
	err = db.QueryRow(`SELECT table_id, primary_key, file_path, tuple_size, schema_hash, schema_desc
		FROM tables WHERE name = ?`, "people").Scan(&id, &pk, &filePath, &tupleSize, &hash, &desc)
	require.NoError(t, err)
	assert.Equal(t, info.ID(), id)
	assert.Equal(t, "age", pk)
	assert.True(t, filePath.Valid)
	assert.Equal(t, filepath.Join(dir, "people.dat"), filePath.String)
	assert.Equal(t, 136, tupleSize)
	assert.Equal(t, fmt.Sprintf("%016x", info.Schema.Hash()), hash)
	assert.Equal(t, "STRING_TYPE[0](name[0]),INT_TYPE[1](age[1])", desc)

	err = db.QueryRow(`SELECT file_path FROM tables WHERE name = ?`, "counters").Scan(&filePath)
	require.NoError(t, err)
	assert.False(t, filePath.Valid, "files without a path export NULL")

	rows, err := db.Query(`SELECT position, name, type, length, is_primary_key
		FROM columns WHERE table_id = ? ORDER BY position`, info.ID())
	require.NoError(t, err)
	defer rows.Close()

	type column struct {
		position int
		name     string
		typ      string
		length   int
		isPK     bool
	}
	var got []column
	for rows.Next() {
		var c column
		require.NoError(t, rows.Scan(&c.position, &c.name, &c.typ, &c.length, &c.isPK))
		got = append(got, c)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []column{
		{0, "name", "STRING_TYPE", 132, false},
		{1, "age", "INT_TYPE", 4, true},
	}, got)

	var version string
	require.NoError(t, db.QueryRow(`SELECT value FROM export_info WHERE key = 'format_version'`).Scan(&version))
	assert.Equal(t, "1", version)
}

func TestExport_FlagsOnlyFirstPrimaryKeyColumn(t *testing.T) {
	dir := t.TempDir()
	schema, err := types.NewSchema([]types.Type{types.IntType, types.StringType}, []string{"a", "a"})
	require.NoError(t, err)

	cat := catalog.New()
	require.NoError(t, cat.AddTable(&memFile{id: 7, schema: schema}, "t", "a"))

	path := filepath.Join(dir, "manifest.db")
	_, err = Export(context.Background(), cat, path)
	require.NoError(t, err)

	db := openManifest(t, path)
	var count, position int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM columns WHERE is_primary_key = 1`).Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, db.QueryRow(`SELECT position FROM columns WHERE is_primary_key = 1`).Scan(&position))
	assert.Equal(t, 0, position)
}

func TestExport_ReplacesPreviousManifest(t *testing.T) {
	dir := t.TempDir()
	cat := buildCatalog(t, dir)
	path := filepath.Join(dir, "manifest.db")

	_, err := Export(context.Background(), cat, path)
	require.NoError(t, err)

	cat.Clear()
	summary, err := Export(context.Background(), cat, path)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Tables)

	var n int
	require.NoError(t, openManifest(t, path).QueryRow(`SELECT COUNT(*) FROM tables`).Scan(&n))
	assert.Equal(t, 0, n)
	assert.NoFileExists(t, path+".tmp")
}

func TestExport_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(dir, "manifest.db")
	_, err := Export(ctx, buildCatalog(t, dir), path)
	require.Error(t, err)
	assert.Equal(t, cerrors.CodeExportFailed, cerrors.GetCode(err))
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".tmp")
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.db")
	_, err := Export(context.Background(), buildCatalog(t, dir), path)
	require.NoError(t, err)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, Publish(ctx, store, path, "manifests/manifest.db"))

	exists, err := store.Exists(ctx, "manifests/manifest.db")
	require.NoError(t, err)
	assert.True(t, exists)

	err = Publish(ctx, store, filepath.Join(dir, "missing.db"), "manifests/x.db")
	assert.Equal(t, cerrors.CodeExportFailed, cerrors.GetCode(err))
	assert.True(t, errors.Is(err, storage.ErrUploadFailed))
}
