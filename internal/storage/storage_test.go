package storage

import (
	"database/sql"
	"testing"
	"time"

	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Graph Storage:
// - CreateSchema creates every table and records the schema version
// - GetSchemaVersion returns "0" for an empty database
// - EnsureSchema is idempotent
// - WriteGraph followed by ReadGraph reproduces the snapshot exactly (ids, order, numbers, versions)
// - Line order within a function survives even when it differs from id order
// - ListRuns/LatestRun return runs newest first
// - Reading an unknown run or an empty database returns ErrNoGraph
// - DeleteRun cascades to every child table
// - NewGraphWriter/NewGraphReader work against a file database

// twoVersionGraph builds main with lines 1 and 2 at v1 and a new line inserted at v2.
func twoVersionGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(1, graph.DefaultConfig())

	fn := g.AddFunction("main", "src/main.c")
	l1 := g.AddLine(fn, graph.LineSource)
	g.SetLineNumber(l1, 1, 1)
	a := g.AddInstruction(l1, "%1 = alloca i32", "alloca", graph.Origin{Version: 1, Key: "main/0"})
	l2 := g.AddLine(fn, graph.LineSource)
	g.SetLineNumber(l2, 1, 2)
	r := g.AddInstruction(l2, "ret i32 0", "ret", graph.Origin{Version: 1, Key: "main/1"})

	entry := g.AddLine(fn, graph.LineEntry)
	g.SetLineNumber(entry, 1, graph.EntryLine)
	en := g.AddInstruction(entry, "Entry::main", "", graph.Origin{})
	exit := g.AddLine(fn, graph.LineExit)
	g.SetLineNumber(exit, 1, graph.ExitLine)
	ex := g.AddInstruction(exit, "Exit::main", "", graph.Origin{})

	g.AddEdge(en.ID, a.ID, graph.EdgeVirtual, 1)
	g.AddEdge(a.ID, r.ID, graph.EdgeSequential, 1)
	g.AddEdge(r.ID, ex.ID, graph.EdgeVirtual, 1)

	ext := g.AddFunction("External_Node_Func", "External_Node_File")
	ext.External = true

	// v2 inserts a line between 1 and 2
	require.NoError(t, g.SetVersion(2))
	mid := g.InsertLineBefore(fn, l2.ID)
	g.SetLineNumber(mid, 1, 0)
	g.SetLineNumber(mid, 2, 2)
	m := g.AddInstruction(mid, "%2 = mul i32 %1, 2", "mul", graph.Origin{Version: 2, Key: "main/1"})
	g.SetLineNumber(l1, 2, 1)
	g.SetLineNumber(l2, 2, 3)
	g.AddEdge(a.ID, m.ID, graph.EdgeSequential, 2)
	g.AddEdge(m.ID, r.ID, graph.EdgeSequential, 2)
	return g
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestCreateSchema(t *testing.T) {
	t.Parallel()
	db := NewTestDB(t)

	for _, table := range []string{"runs", "functions", "lines", "line_numbers", "instructions", "edges", "edge_versions", "metadata"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s should exist", table)
	}

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	require.NoError(t, EnsureSchema(db))
}

func TestGetSchemaVersion_EmptyDatabase(t *testing.T) {
	t.Parallel()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, "0", version)

	require.NoError(t, EnsureSchema(db))
	version, err = GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestWriteReadGraph_RoundTrip(t *testing.T) {
	t.Parallel()
	db := NewTestDB(t)
	g := twoVersionGraph(t)

	runID, err := NewGraphWriterWithDB(db).WriteGraph(g)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	got, err := NewGraphReaderWithDB(db).ReadGraph(runID)
	require.NoError(t, err)

	assert.Equal(t, g.Snapshot(), got.Snapshot())
	assert.Equal(t, graph.Version(2), got.Version())

	// inserted line keeps its place between 1 and 2
	fn := got.FunctionByName("main")
	require.NotNil(t, fn)
	var numbers []int64
	for _, id := range fn.Lines() {
		l := got.Line(id)
		if !l.Virtual() {
			numbers = append(numbers, l.Number(2))
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, numbers)
	assert.NotNil(t, got.ExternalFunction())
}

func TestListRuns(t *testing.T) {
	t.Parallel()
	db := NewTestDB(t)
	w := NewGraphWriterWithDB(db)
	r := NewGraphReaderWithDB(db)

	_, err := r.LatestRun()
	assert.ErrorIs(t, err, ErrNoGraph)

	first, err := w.WriteGraph(graph.New(1, graph.DefaultConfig()))
	require.NoError(t, err)
	second, err := w.WriteGraph(twoVersionGraph(t))
	require.NoError(t, err)

	runs, err := r.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
	assert.Equal(t, graph.Version(2), runs[0].Version)
	assert.WithinDuration(t, time.Now(), runs[0].CreatedAt, time.Minute)

	g, run, err := r.ReadLatest()
	require.NoError(t, err)
	assert.Equal(t, second, run.ID)
	instructions, edges := g.Counts()
	assert.Equal(t, run.InstructionCount, instructions)
	assert.Equal(t, run.EdgeCount, edges)
}

func TestReadGraph_UnknownRun(t *testing.T) {
	t.Parallel()
	db := NewTestDB(t)

	_, err := NewGraphReaderWithDB(db).ReadGraph("missing")
	assert.ErrorIs(t, err, ErrNoGraph)
}

func TestDeleteRun_Cascades(t *testing.T) {
	t.Parallel()
	db := NewTestDB(t)
	w := NewGraphWriterWithDB(db)

	runID, err := w.WriteGraph(twoVersionGraph(t))
	require.NoError(t, err)
	assert.Positive(t, countRows(t, db, "edge_versions"))

	require.NoError(t, w.DeleteRun(runID))
	for _, table := range []string{"runs", "functions", "lines", "line_numbers", "instructions", "edges", "edge_versions"} {
		assert.Zero(t, countRows(t, db, table), table)
	}

	assert.ErrorIs(t, w.DeleteRun(runID), ErrNoGraph)
}

func TestFileDatabase(t *testing.T) {
	t.Parallel()
	path := NewTestDBPath(t)

	w, err := NewGraphWriter(path)
	require.NoError(t, err)
	runID, err := w.WriteGraph(twoVersionGraph(t))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// reopening keeps the existing schema
	w, err = NewGraphWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewGraphReader(path)
	require.NoError(t, err)
	defer r.Close()

	g, run, err := r.ReadLatest()
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.NotNil(t, g.FunctionByName("main"))
}
