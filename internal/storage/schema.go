package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is the version written to the metadata table by CreateSchema.
const SchemaVersion = "1.0"

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// CreateSchema creates all tables and indexes for graph runs.
// Uses transactions for atomicity - all schema creation succeeds or fails together.
//
// Every row below runs belongs to exactly one run and is removed with it.
// Must be called with SQLite PRAGMA foreign_keys = ON.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	if _, err := tx.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create all tables in dependency order
	tables := []struct {
		name string
		ddl  string
	}{
		{"runs", createRunsTable},
		{"functions", createFunctionsTable},
		{"lines", createLinesTable},
		{"line_numbers", createLineNumbersTable},
		{"instructions", createInstructionsTable},
		{"edges", createEdgesTable},
		{"edge_versions", createEdgeVersionsTable},
		{"metadata", createMetadataTable},
	}

	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range getAllIndexes() {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(
		"INSERT INTO metadata (key, value, updated_at) VALUES ('schema_version', ?, ?)",
		SchemaVersion, now,
	); err != nil {
		return fmt.Errorf("failed to bootstrap metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// EnsureSchema creates the schema unless the database already has one.
func EnsureSchema(db *sql.DB) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}
	if version != "0" {
		if version != SchemaVersion {
			return fmt.Errorf("unsupported schema version %s (want %s)", version, SchemaVersion)
		}
		return nil
	}
	return CreateSchema(db)
}

// GetSchemaVersion returns the schema version, or "0" for a database without a schema.
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='metadata'",
	).Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check metadata table: %w", err)
	}
	if tableExists == 0 {
		return "0", nil // New database
	}

	var version string
	err = db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("schema_version key not found in metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

// Table DDL constants

const createRunsTable = `
CREATE TABLE runs (
    run_id TEXT PRIMARY KEY,                     -- UUID
    version INTEGER NOT NULL,                    -- newest version merged into the graph
    last_id INTEGER NOT NULL,                    -- highest element id handed out
    config TEXT NOT NULL,                        -- graph.Config as JSON
    format TEXT NOT NULL,                        -- snapshot format
    instruction_count INTEGER NOT NULL DEFAULT 0,
    edge_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL                     -- ISO 8601
)
`

const createFunctionsTable = `
CREATE TABLE functions (
    run_id TEXT NOT NULL,
    function_id INTEGER NOT NULL,
    position INTEGER NOT NULL,                   -- graph insertion order
    name TEXT NOT NULL,
    file TEXT NOT NULL,
    external INTEGER NOT NULL DEFAULT 0,         -- Boolean: shared external node
    PRIMARY KEY (run_id, function_id),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
)
`

const createLinesTable = `
CREATE TABLE lines (
    run_id TEXT NOT NULL,
    line_id INTEGER NOT NULL,
    function_id INTEGER NOT NULL,
    position INTEGER NOT NULL,                   -- order within the function
    kind TEXT NOT NULL,                          -- source, entry, exit
    PRIMARY KEY (run_id, line_id),
    FOREIGN KEY (run_id, function_id) REFERENCES functions(run_id, function_id) ON DELETE CASCADE
)
`

const createLineNumbersTable = `
CREATE TABLE line_numbers (
    run_id TEXT NOT NULL,
    line_id INTEGER NOT NULL,
    version INTEGER NOT NULL,
    number INTEGER NOT NULL,                     -- 0 means absent in this version
    PRIMARY KEY (run_id, line_id, version),
    FOREIGN KEY (run_id, line_id) REFERENCES lines(run_id, line_id) ON DELETE CASCADE
)
`

const createInstructionsTable = `
CREATE TABLE instructions (
    run_id TEXT NOT NULL,
    instruction_id INTEGER NOT NULL,
    line_id INTEGER NOT NULL,
    position INTEGER NOT NULL,                   -- order within the line
    label TEXT NOT NULL,
    opcode TEXT NOT NULL DEFAULT '',
    origin_version INTEGER NOT NULL DEFAULT 0,   -- 0 for virtual instructions
    origin_key TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, instruction_id),
    FOREIGN KEY (run_id, line_id) REFERENCES lines(run_id, line_id) ON DELETE CASCADE
)
`

const createEdgesTable = `
CREATE TABLE edges (
    run_id TEXT NOT NULL,
    edge_id INTEGER NOT NULL,
    from_id INTEGER NOT NULL,
    to_id INTEGER NOT NULL,
    type TEXT NOT NULL,                          -- EdgeType name
    PRIMARY KEY (run_id, edge_id),
    FOREIGN KEY (run_id, from_id) REFERENCES instructions(run_id, instruction_id) ON DELETE CASCADE,
    FOREIGN KEY (run_id, to_id) REFERENCES instructions(run_id, instruction_id) ON DELETE CASCADE
)
`

const createEdgeVersionsTable = `
CREATE TABLE edge_versions (
    run_id TEXT NOT NULL,
    edge_id INTEGER NOT NULL,
    version INTEGER NOT NULL,
    PRIMARY KEY (run_id, edge_id, version),
    FOREIGN KEY (run_id, edge_id) REFERENCES edges(run_id, edge_id) ON DELETE CASCADE
)
`

const createMetadataTable = `
CREATE TABLE metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

// getAllIndexes returns all index creation statements.
func getAllIndexes() []string {
	return []string{
		"CREATE INDEX idx_runs_created ON runs(created_at)",
		"CREATE INDEX idx_functions_name ON functions(run_id, name)",
		"CREATE INDEX idx_lines_function ON lines(run_id, function_id, position)",
		"CREATE INDEX idx_instructions_line ON instructions(run_id, line_id, position)",
		"CREATE INDEX idx_edges_from ON edges(run_id, from_id)",
		"CREATE INDEX idx_edges_to ON edges(run_id, to_id)",
	}
}
