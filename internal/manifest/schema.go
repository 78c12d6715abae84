// Package manifest exports catalog snapshots into a SQLite database
// (manifest.db) that external tooling can inspect. The manifest is a
// write-only artifact: the catalog is never rebuilt from it.
package manifest

// CreateTablesTableSQL creates one row per registered table.
// schema_hash is stored as hex text since SQLite integers are signed.
const CreateTablesTableSQL = `
CREATE TABLE IF NOT EXISTS tables (
    table_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    primary_key TEXT NOT NULL DEFAULT '',
    file_path TEXT,
    tuple_size INTEGER NOT NULL,
    num_fields INTEGER NOT NULL,
    schema_hash TEXT NOT NULL,
    schema_desc TEXT NOT NULL
)`

// CreateColumnsTableSQL creates one row per field of every table.
const CreateColumnsTableSQL = `
CREATE TABLE IF NOT EXISTS columns (
    table_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    length INTEGER NOT NULL,
    is_primary_key INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (table_id, position),
    FOREIGN KEY (table_id) REFERENCES tables(table_id)
)`

// CreateColumnsNameIndexSQL supports lookups of which tables carry a column.
const CreateColumnsNameIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_columns_name ON columns(name)`

// CreateExportInfoTableSQL records when and from where the snapshot was taken.
const CreateExportInfoTableSQL = `
CREATE TABLE IF NOT EXISTS export_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// AllSchemaSQL returns all SQL statements needed to initialize a manifest.
func AllSchemaSQL() []string {
	return []string{
		CreateTablesTableSQL,
		CreateColumnsTableSQL,
		CreateColumnsNameIndexSQL,
		CreateExportInfoTableSQL,
	}
}
