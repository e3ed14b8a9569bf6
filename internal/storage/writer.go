package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/mvp-joe/mvicfg/internal/graph"
)

// GraphWriter writes accumulated graphs to SQLite, one run per write.
type GraphWriter struct {
	db     *sql.DB
	ownsDB bool // true if we opened the connection, false if shared
}

// NewGraphWriter opens (or creates) the database at dbPath and ensures the schema.
func NewGraphWriter(dbPath string) (*GraphWriter, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &GraphWriter{db: db, ownsDB: true}, nil
}

// NewGraphWriterWithDB creates a GraphWriter using an existing database connection.
// The caller is responsible for managing the database lifecycle (schema, foreign keys, close).
func NewGraphWriterWithDB(db *sql.DB) *GraphWriter {
	return &GraphWriter{db: db, ownsDB: false}
}

// Close closes the database connection if owned by this writer.
func (w *GraphWriter) Close() error {
	if !w.ownsDB {
		// Shared connection - caller owns it
		return nil
	}
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

// WriteGraph stores g as a new run in a single transaction and returns the run id.
// Earlier runs are left untouched.
func (w *GraphWriter) WriteGraph(g *graph.Graph) (string, error) {
	if g == nil {
		return "", fmt.Errorf("graph cannot be nil")
	}
	s := g.Snapshot()

	config, err := json.Marshal(s.Config)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	runID := uuid.New().String()
	_, err = sq.Insert("runs").
		Columns("run_id", "version", "last_id", "config", "format", "instruction_count", "edge_count", "created_at").
		Values(runID, s.Version, s.LastID, string(config), s.Metadata.Format,
			s.Metadata.InstructionCount, s.Metadata.EdgeCount,
			time.Now().UTC().Format(timeLayout)).
		RunWith(tx).
		Exec()
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	if err := writeFunctions(tx, runID, s.Functions); err != nil {
		return "", fmt.Errorf("failed to write functions: %w", err)
	}
	if err := writeEdges(tx, runID, s.Edges); err != nil {
		return "", fmt.Errorf("failed to write edges: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return runID, nil
}

// DeleteRun removes a run and, through cascades, everything it owns.
func (w *GraphWriter) DeleteRun(runID string) error {
	res, err := sq.Delete("runs").Where(sq.Eq{"run_id": runID}).RunWith(w.db).Exec()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s", ErrNoGraph, runID)
	}
	return nil
}

// writeFunctions writes functions with their lines, line numbers and instructions.
func writeFunctions(tx *sql.Tx, runID string, functions []graph.FunctionRecord) error {
	for fpos, fn := range functions {
		_, err := sq.Insert("functions").
			Columns("run_id", "function_id", "position", "name", "file", "external").
			Values(runID, fn.ID, fpos, fn.Name, fn.File, boolToInt(fn.External)).
			RunWith(tx).
			Exec()
		if err != nil {
			return fmt.Errorf("failed to insert function %s: %w", fn.Name, err)
		}

		for lpos, l := range fn.Lines {
			if err := writeLine(tx, runID, fn.ID, lpos, l); err != nil {
				return fmt.Errorf("function %s: %w", fn.Name, err)
			}
		}
	}
	return nil
}

func writeLine(tx *sql.Tx, runID string, fnID graph.ID, pos int, l graph.LineRecord) error {
	_, err := sq.Insert("lines").
		Columns("run_id", "line_id", "function_id", "position", "kind").
		Values(runID, l.ID, fnID, pos, l.Kind.String()).
		RunWith(tx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to insert line %d: %w", l.ID, err)
	}

	if len(l.Numbers) > 0 {
		insert := sq.Insert("line_numbers").Columns("run_id", "line_id", "version", "number")
		for v, n := range l.Numbers {
			insert = insert.Values(runID, l.ID, v, n)
		}
		if _, err := insert.RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("failed to insert numbers of line %d: %w", l.ID, err)
		}
	}

	for ipos, inst := range l.Instructions {
		_, err := sq.Insert("instructions").
			Columns("run_id", "instruction_id", "line_id", "position", "label", "opcode", "origin_version", "origin_key").
			Values(runID, inst.ID, l.ID, ipos, inst.Label, inst.Opcode, inst.Origin.Version, inst.Origin.Key).
			RunWith(tx).
			Exec()
		if err != nil {
			return fmt.Errorf("failed to insert instruction %d: %w", inst.ID, err)
		}
	}
	return nil
}

// writeEdges writes edges and the versions each one is active in.
func writeEdges(tx *sql.Tx, runID string, edges []graph.EdgeRecord) error {
	for _, e := range edges {
		_, err := sq.Insert("edges").
			Columns("run_id", "edge_id", "from_id", "to_id", "type").
			Values(runID, e.ID, e.From, e.To, e.Type.String()).
			RunWith(tx).
			Exec()
		if err != nil {
			return fmt.Errorf("failed to insert edge %d: %w", e.ID, err)
		}

		if len(e.Versions) == 0 {
			continue
		}
		insert := sq.Insert("edge_versions").Columns("run_id", "edge_id", "version")
		for _, v := range e.Versions {
			insert = insert.Values(runID, e.ID, v)
		}
		if _, err := insert.RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("failed to insert versions of edge %d: %w", e.ID, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
