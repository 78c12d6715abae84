package loader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/arkilian/tablecat/internal/catalog"
	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/arkilian/tablecat/internal/storage"
	"github.com/arkilian/tablecat/pkg/types"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compressed schema definition sources are recognized by extension.
const (
	SnappyExt = ".sz"
	ZstdExt   = ".zst"
)

// maxLineSize bounds a single schema definition line.
const maxLineSize = 1 << 20

// FileFactory builds the storage file a table is registered with.
type FileFactory func(baseDir, tableName string, schema *types.Schema) (catalog.StorageFile, error)

// HeapFileFactory places each table in <baseDir>/<tableName>.dat.
func HeapFileFactory(baseDir, tableName string, schema *types.Schema) (catalog.StorageFile, error) {
	return storage.NewHeapFile(storage.TableFilePath(baseDir, tableName), schema)
}

// Loader registers the tables of schema definition files into a catalog.
type Loader struct {
	Catalog *catalog.Catalog

	// BaseDir is where Load places table files. LoadFile uses the
	// definition file's own directory instead.
	BaseDir string

	// FileFactory defaults to HeapFileFactory.
	FileFactory FileFactory
}

// New creates a loader that registers into cat with heap files under baseDir.
func New(cat *catalog.Catalog, baseDir string) *Loader {
	return &Loader{
		Catalog:     cat,
		BaseDir:     baseDir,
		FileFactory: HeapFileFactory,
	}
}

// Load reads table definitions from r and registers each one in order. It
// stops at the first line that fails; tables registered by earlier lines stay
// registered and the failing line registers nothing. It returns the number of
// tables registered.
func (l *Loader) Load(ctx context.Context, r io.Reader) (int, error) {
	if l.Catalog == nil {
		return 0, cerrors.NewInternalError("loader has no catalog", nil)
	}
	factory := l.FileFactory
	if factory == nil {
		factory = HeapFileFactory
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	added := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		line := scanner.Text()
		if skipLine(line) {
			continue
		}
		if err := l.register(line, factory); err != nil {
			return added, err
		}
		added++
	}
	if err := scanner.Err(); err != nil {
		return added, cerrors.NewStorageError(cerrors.CodeIOFailure, "failed to read schema definitions", err)
	}
	return added, nil
}

func (l *Loader) register(line string, factory FileFactory) error {
	def, err := ParseLine(line)
	if err != nil {
		return err
	}

	schema, err := def.Schema()
	if err != nil {
		return err
	}

	file, err := factory(l.BaseDir, def.Name, schema)
	if err != nil {
		return err
	}
	if err := l.Catalog.AddTable(file, def.Name, def.PrimaryKey); err != nil {
		return err
	}

	log.Printf("loader: added table %s with schema %s", def.Name, schema)
	return nil
}

// LoadFile loads the definitions in path, placing table files next to it.
// Paths ending in .sz are read as snappy framed streams and paths ending in
// .zst as zstd streams.
func (l *Loader) LoadFile(ctx context.Context, filePath string) (int, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, cerrors.NewStorageError(cerrors.CodeIOFailure,
			fmt.Sprintf("failed to open schema file %s", filePath), err)
	}
	defer f.Close()

	var r io.Reader = f
	switch strings.ToLower(filepath.Ext(filePath)) {
	case SnappyExt:
		r = snappy.NewReader(f)
	case ZstdExt:
		dec, err := zstd.NewReader(f)
		if err != nil {
			return 0, cerrors.NewStorageError(cerrors.CodeIOFailure,
				fmt.Sprintf("failed to open zstd stream %s", filePath), err)
		}
		defer dec.Close()
		r = dec
	}

	scoped := *l
	scoped.BaseDir = filepath.Dir(filePath)

	n, err := scoped.Load(ctx, r)
	if err != nil {
		return n, fmt.Errorf("loader: %s: %w", filePath, err)
	}
	log.Printf("loader: loaded %d tables from %s", n, filePath)
	return n, nil
}

// FetchSource downloads a schema definition object into workDir and returns
// the local path, ready for LoadFile. An objectPath ending in "/" names a
// prefix and resolves to the greatest key under it, so dated or versioned
// keys select the newest definition.
func FetchSource(ctx context.Context, store storage.ObjectStorage, objectPath, workDir string) (string, error) {
	key, err := resolveObject(ctx, store, objectPath)
	if err != nil {
		return "", err
	}

	localPath := filepath.Join(workDir, path.Base(key))
	if err := store.Download(ctx, key, localPath); err != nil {
		return "", cerrors.NewStorageError(cerrors.CodeIOFailure,
			fmt.Sprintf("failed to fetch schema object %s", key), err)
	}
	return localPath, nil
}

func resolveObject(ctx context.Context, store storage.ObjectStorage, objectPath string) (string, error) {
	if !strings.HasSuffix(objectPath, "/") {
		ok, err := store.Exists(ctx, objectPath)
		if err != nil {
			return "", cerrors.NewStorageError(cerrors.CodeIOFailure,
				fmt.Sprintf("failed to stat schema object %s", objectPath), err)
		}
		if !ok {
			return "", cerrors.NewStorageError(cerrors.CodeIOFailure,
				fmt.Sprintf("schema object %s does not exist", objectPath), storage.ErrObjectNotFound)
		}
		return objectPath, nil
	}

	keys, err := store.ListObjects(ctx, objectPath)
	if err != nil {
		return "", cerrors.NewStorageError(cerrors.CodeIOFailure,
			fmt.Sprintf("failed to list schema objects under %s", objectPath), err)
	}
	var newest string
	for _, k := range keys {
		if strings.HasSuffix(k, "/") {
			continue
		}
		if k > newest {
			newest = k
		}
	}
	if newest == "" {
		return "", cerrors.NewStorageError(cerrors.CodeIOFailure,
			fmt.Sprintf("no schema objects under %s", objectPath), storage.ErrObjectNotFound)
	}
	log.Printf("loader: resolved %s to %s", objectPath, newest)
	return newest, nil
}
