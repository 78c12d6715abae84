package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/arkilian/tablecat/internal/catalog"
	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/arkilian/tablecat/internal/storage"
	_ "github.com/mattn/go-sqlite3"
)

// FormatVersion is bumped whenever the manifest tables change shape.
const FormatVersion = 1

// Summary describes a finished export.
type Summary struct {
	Path       string
	Tables     int
	Columns    int
	ExportedAt time.Time
}

// pathed is implemented by storage files that live at a known path.
type pathed interface {
	Path() string
}

// Export writes a snapshot of cat to a fresh SQLite database at path,
// replacing any previous manifest there. The database is built next to path
// and renamed into place, so readers never see a half-written manifest.
func Export(ctx context.Context, cat *catalog.Catalog, path string) (*Summary, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, exportError("failed to create manifest directory", err)
	}

	tmpPath := path + ".tmp"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return nil, exportError("failed to remove stale manifest", err)
	}

	summary, err := writeSnapshot(ctx, cat, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, exportError("failed to move manifest into place", err)
	}
	summary.Path = path

	log.Printf("manifest: exported %d tables (%d columns) to %s", summary.Tables, summary.Columns, path)
	return summary, nil
}

func writeSnapshot(ctx context.Context, cat *catalog.Catalog, dbPath string) (*Summary, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, exportError("failed to open database", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	for _, stmt := range AllSchemaSQL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, exportError("failed to execute schema statement", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, exportError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	insertTable, err := tx.PrepareContext(ctx, `
		INSERT INTO tables (
			table_id, name, primary_key, file_path,
			tuple_size, num_fields, schema_hash, schema_desc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, exportError("failed to prepare table insert", err)
	}
	defer insertTable.Close()

	insertColumn, err := tx.PrepareContext(ctx, `
		INSERT INTO columns (table_id, position, name, type, length, is_primary_key)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, exportError("failed to prepare column insert", err)
	}
	defer insertColumn.Close()

	summary := &Summary{ExportedAt: time.Now().UTC()}
	for _, info := range cat.Tables() {
		var filePath sql.NullString
		if p, ok := info.File.(pathed); ok {
			filePath = sql.NullString{String: p.Path(), Valid: true}
		}

		schema := info.Schema
		_, err := insertTable.ExecContext(ctx,
			info.ID(), info.Name, info.PrimaryKey, filePath,
			schema.Size(), schema.NumFields(),
			fmt.Sprintf("%016x", schema.Hash()), schema.String(),
		)
		if err != nil {
			return nil, exportError(fmt.Sprintf("failed to insert table %s", info.Name), err)
		}

		pkIdx := -1
		if info.PrimaryKey != "" {
			if i, err := schema.IndexOf(info.PrimaryKey); err == nil {
				pkIdx = i
			}
		}

		position := 0
		for field := range schema.Fields() {
			isPK := position == pkIdx
			_, err := insertColumn.ExecContext(ctx,
				info.ID(), position, field.Name, field.Type.String(), field.Type.Len(), isPK,
			)
			if err != nil {
				return nil, exportError(fmt.Sprintf("failed to insert column %d of %s", position, info.Name), err)
			}
			position++
		}

		summary.Tables++
		summary.Columns += position
	}

	exportInfo := map[string]string{
		"format_version": strconv.Itoa(FormatVersion),
		"exported_at":    summary.ExportedAt.Format(time.RFC3339),
		"table_count":    strconv.Itoa(summary.Tables),
	}
	for key, value := range exportInfo {
		if _, err := tx.ExecContext(ctx, `INSERT INTO export_info (key, value) VALUES (?, ?)`, key, value); err != nil {
			return nil, exportError("failed to record export info", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, exportError("failed to commit manifest", err)
	}
	return summary, nil
}

// Publish uploads an exported manifest to store under objectPath.
func Publish(ctx context.Context, store storage.ObjectStorage, localPath, objectPath string) error {
	if err := store.Upload(ctx, localPath, objectPath); err != nil {
		return exportError(fmt.Sprintf("failed to publish manifest to %s", objectPath), err)
	}
	log.Printf("manifest: published %s to %s", localPath, objectPath)
	return nil
}

func exportError(message string, cause error) error {
	return cerrors.NewStorageError(cerrors.CodeExportFailed, message, cause)
}
