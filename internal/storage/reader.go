package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mvp-joe/mvicfg/internal/graph"
)

// ErrNoGraph indicates that the database holds no matching run.
var ErrNoGraph = errors.New("no graph stored")

// Run describes one stored graph.
type Run struct {
	ID               string
	Version          graph.Version
	InstructionCount int
	EdgeCount        int
	CreatedAt        time.Time
}

// GraphReader reads stored runs back into graphs.
type GraphReader struct {
	db     *sql.DB
	ownsDB bool
}

// NewGraphReader opens the database at dbPath in read-only mode.
func NewGraphReader(dbPath string) (*GraphReader, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &GraphReader{db: db, ownsDB: true}, nil
}

// NewGraphReaderWithDB creates a GraphReader over an existing connection.
func NewGraphReaderWithDB(db *sql.DB) *GraphReader {
	return &GraphReader{db: db, ownsDB: false}
}

// Close closes the database connection if owned by this reader.
func (r *GraphReader) Close() error {
	if !r.ownsDB || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func runColumns() sq.SelectBuilder {
	return sq.Select("run_id", "version", "instruction_count", "edge_count", "created_at").From("runs")
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var created string
	if err := scan(&run.ID, &run.Version, &run.InstructionCount, &run.EdgeCount, &created); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("run %s: bad created_at %q: %w", run.ID, created, err)
	}
	run.CreatedAt = t
	return &run, nil
}

// ListRuns returns all stored runs, newest first.
func (r *GraphReader) ListRuns() ([]*Run, error) {
	rows, err := runColumns().OrderBy("created_at DESC", "rowid DESC").RunWith(r.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently written run.
func (r *GraphReader) LatestRun() (*Run, error) {
	run, err := scanRun(runColumns().OrderBy("created_at DESC", "rowid DESC").Limit(1).RunWith(r.db).QueryRow().Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoGraph
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return run, nil
}

// ReadLatest rebuilds the most recently written graph.
func (r *GraphReader) ReadLatest() (*graph.Graph, *Run, error) {
	run, err := r.LatestRun()
	if err != nil {
		return nil, nil, err
	}
	g, err := r.ReadGraph(run.ID)
	if err != nil {
		return nil, nil, err
	}
	return g, run, nil
}

// ReadGraph rebuilds the graph stored under runID with every id preserved.
func (r *GraphReader) ReadGraph(runID string) (*graph.Graph, error) {
	s := &graph.Snapshot{}

	var config string
	err := sq.Select("version", "last_id", "config", "format", "instruction_count", "edge_count", "created_at").
		From("runs").
		Where(sq.Eq{"run_id": runID}).
		RunWith(r.db).
		QueryRow().
		Scan(&s.Version, &s.LastID, &config, &s.Metadata.Format,
			&s.Metadata.InstructionCount, &s.Metadata.EdgeCount, new(string))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNoGraph, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(config), &s.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config of run %s: %w", runID, err)
	}

	if s.Functions, err = r.readFunctions(runID); err != nil {
		return nil, err
	}
	if s.Edges, err = r.readEdges(runID); err != nil {
		return nil, err
	}

	g, err := graph.FromSnapshot(s)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return g, nil
}

func (r *GraphReader) readFunctions(runID string) ([]graph.FunctionRecord, error) {
	rows, err := sq.Select("function_id", "name", "file", "external").
		From("functions").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("position").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query functions: %w", err)
	}

	var functions []graph.FunctionRecord
	index := make(map[graph.ID]int)
	for rows.Next() {
		var fn graph.FunctionRecord
		var external int
		if err := rows.Scan(&fn.ID, &fn.Name, &fn.File, &external); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan function: %w", err)
		}
		fn.External = external != 0
		index[fn.ID] = len(functions)
		functions = append(functions, fn)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, owner, err := r.readLines(runID)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		i, ok := index[owner[l.ID]]
		if !ok {
			return nil, fmt.Errorf("line %d references unknown function %d", l.ID, owner[l.ID])
		}
		functions[i].Lines = append(functions[i].Lines, *l)
	}
	return functions, nil
}

// readLines returns lines ordered by function and position, plus each line's function.
func (r *GraphReader) readLines(runID string) ([]*graph.LineRecord, map[graph.ID]graph.ID, error) {
	rows, err := sq.Select("line_id", "function_id", "kind").
		From("lines").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("function_id", "position").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var lines []*graph.LineRecord
	byID := make(map[graph.ID]*graph.LineRecord)
	owner := make(map[graph.ID]graph.ID)
	for rows.Next() {
		var l graph.LineRecord
		var fnID graph.ID
		var kind string
		if err := rows.Scan(&l.ID, &fnID, &kind); err != nil {
			return nil, nil, fmt.Errorf("failed to scan line: %w", err)
		}
		if l.Kind, err = graph.ParseLineKind(kind); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", l.ID, err)
		}
		l.Numbers = make(map[graph.Version]int64)
		lines = append(lines, &l)
		byID[l.ID] = &l
		owner[l.ID] = fnID
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := r.readLineNumbers(runID, byID); err != nil {
		return nil, nil, err
	}
	if err := r.readInstructions(runID, byID); err != nil {
		return nil, nil, err
	}
	return lines, owner, nil
}

func (r *GraphReader) readLineNumbers(runID string, lines map[graph.ID]*graph.LineRecord) error {
	rows, err := sq.Select("line_id", "version", "number").
		From("line_numbers").
		Where(sq.Eq{"run_id": runID}).
		RunWith(r.db).
		Query()
	if err != nil {
		return fmt.Errorf("failed to query line numbers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id graph.ID
		var v graph.Version
		var n int64
		if err := rows.Scan(&id, &v, &n); err != nil {
			return fmt.Errorf("failed to scan line number: %w", err)
		}
		if l, ok := lines[id]; ok {
			l.Numbers[v] = n
		}
	}
	return rows.Err()
}

func (r *GraphReader) readInstructions(runID string, lines map[graph.ID]*graph.LineRecord) error {
	rows, err := sq.Select("instruction_id", "line_id", "label", "opcode", "origin_version", "origin_key").
		From("instructions").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("line_id", "position").
		RunWith(r.db).
		Query()
	if err != nil {
		return fmt.Errorf("failed to query instructions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var inst graph.InstructionRecord
		var lineID graph.ID
		if err := rows.Scan(&inst.ID, &lineID, &inst.Label, &inst.Opcode, &inst.Origin.Version, &inst.Origin.Key); err != nil {
			return fmt.Errorf("failed to scan instruction: %w", err)
		}
		l, ok := lines[lineID]
		if !ok {
			return fmt.Errorf("instruction %d references unknown line %d", inst.ID, lineID)
		}
		l.Instructions = append(l.Instructions, inst)
	}
	return rows.Err()
}

func (r *GraphReader) readEdges(runID string) ([]graph.EdgeRecord, error) {
	rows, err := sq.Select("edge_id", "from_id", "to_id", "type").
		From("edges").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("edge_id").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}

	var edges []graph.EdgeRecord
	index := make(map[graph.ID]int)
	for rows.Next() {
		var e graph.EdgeRecord
		var typ string
		if err := rows.Scan(&e.ID, &e.From, &e.To, &typ); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		if e.Type, err = graph.ParseEdgeType(typ); err != nil {
			rows.Close()
			return nil, fmt.Errorf("edge %d: %w", e.ID, err)
		}
		index[e.ID] = len(edges)
		edges = append(edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vrows, err := sq.Select("edge_id", "version").
		From("edge_versions").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("edge_id", "version").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query edge versions: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var id graph.ID
		var v graph.Version
		if err := vrows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("failed to scan edge version: %w", err)
		}
		if i, ok := index[id]; ok {
			edges[i].Versions = append(edges[i].Versions, v)
		}
	}
	return edges, vrows.Err()
}
