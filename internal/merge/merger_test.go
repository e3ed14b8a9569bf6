package merge

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/icfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Merge:
// - An added line gets number 0 in the old version, its real number in the new
//   one, and is wired to its surviving neighbours with the fresh edge types
// - The edge it displaces stays active only in the old version
// - A deleted line keeps its old number, gets 0 in the new version, and its
//   neighbours are bridged with the type of the fresh edge between them
// - Virtual entry/exit numbers are the same sentinel in every version
// - Merging a further version leaves earlier numbers and edge versions untouched
// - An edge displaced in one version stays inactive in every later version
// - A call site followed by an added line keeps its call edge in the new version
// - Branch edges between adjacent added lines are imported with their types
// - Added lines take their place in program order, not at the end of the function
// - The accumulated graph only moves forward in version
// - Cancelled contexts abort before any mutation is committed to the version stamp

var (
	srcV1 = []string{"int main() {", "  a();", "  return 0;", "}"}
	srcV2 = []string{"int main() {", "  a();", "  b();", "  return 0;", "}"}
)

func ins(key string, line int64, opcode string) icfg.Instruction {
	return icfg.Instruction{Key: key, Line: line, Opcode: opcode}
}

func ret(key string, line int64) icfg.Instruction {
	return icfg.Instruction{Key: key, Line: line, Opcode: "ret", Terminator: true}
}

func buildVersion(t *testing.T, v graph.Version, insts ...icfg.Instruction) *graph.Graph {
	t.Helper()
	doc := &icfg.Document{Functions: []icfg.Function{{Name: "main", File: "src/f.c", Instructions: insts}}}
	g, err := icfg.Build(doc, v, graph.DefaultConfig())
	require.NoError(t, err)
	return g
}

func mapLines(t *testing.T, before, after []string) *diff.Mapping {
	t.Helper()
	s, err := diff.Compose(before, after)
	require.NoError(t, err)
	return diff.NewMapping("f.c", s)
}

func lineAt(t *testing.T, g *graph.Graph, n int64, v graph.Version) *graph.Line {
	t.Helper()
	lines := g.LinesAt("f.c", n, v)
	require.Len(t, lines, 1, "line %d in version %d", n, v)
	return lines[0]
}

func newMerger(t *testing.T, opts ...Option) *Merger {
	t.Helper()
	m, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func v1Graph(t *testing.T) *graph.Graph {
	return buildVersion(t, 1, ins("alloca", 1, "alloca"), ins("a", 2, "add"), ret("ret", 3))
}

func v2Graph(t *testing.T) *graph.Graph {
	return buildVersion(t, 2, ins("alloca", 1, "alloca"), ins("a", 2, "add"), ins("b", 3, "mul"), ret("ret", 4))
}

func TestMerge_AddedLine(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)
	fresh := v2Graph(t)
	m := newMerger(t)

	res, err := m.Merge(context.Background(), acc, fresh, []*diff.Mapping{mapLines(t, srcV1, srcV2)})
	require.NoError(t, err)
	assert.Equal(t, graph.Version(2), acc.Version())
	assert.Equal(t, 0, res.Diagnostics)
	require.Len(t, res.Added, 1)
	assert.Len(t, res.Matched, 3)
	assert.Empty(t, res.Deleted)

	added := res.Added[0]
	assert.Equal(t, graph.NoLine, added.Number(1))
	assert.Equal(t, int64(3), added.Number(2))
	assert.Equal(t, "mul", acc.OpcodeString(added))

	add := lineAt(t, acc, 2, 1)
	retLine := lineAt(t, acc, 3, 1)
	assert.Equal(t, int64(2), add.Number(2))
	assert.Equal(t, int64(4), retLine.Number(2))

	in := acc.FindEdge(add.Last(), added.First())
	require.NotNil(t, in)
	assert.Equal(t, graph.EdgeSequential, in.Type)
	assert.Equal(t, []graph.Version{2}, in.Versions())

	out := acc.FindEdge(added.Last(), retLine.First())
	require.NotNil(t, out)
	assert.Equal(t, graph.EdgeSequential, out.Type)
	assert.Equal(t, []graph.Version{2}, out.Versions())

	displaced := acc.FindEdge(add.Last(), retLine.First())
	require.NotNil(t, displaced)
	assert.True(t, displaced.ActiveIn(1))
	assert.False(t, displaced.ActiveIn(2))

	alloca := lineAt(t, acc, 1, 1)
	assert.True(t, acc.FindEdge(alloca.Last(), add.First()).ActiveIn(2))

	main := acc.FunctionByName("main")
	for _, id := range []graph.ID{main.Entry, main.Exit} {
		l := acc.Line(id)
		assert.Equal(t, l.Number(1), l.Number(2))
		assert.True(t, graph.IsVirtualLineNumber(l.Number(2)))
	}
	assert.True(t, acc.FindEdge(acc.Line(main.Entry).First(), alloca.First()).ActiveIn(2))
	assert.True(t, acc.FindEdge(retLine.Last(), acc.Line(main.Exit).First()).ActiveIn(2))

	ext := acc.ExternalFunction()
	require.NotNil(t, ext)
	assert.Equal(t, graph.EntryLine, acc.Line(ext.Entry).Number(2))
}

func TestMerge_DeletedLine(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)
	fresh := buildVersion(t, 2, ins("alloca", 1, "alloca"), ret("ret", 2))
	after := []string{"int main() {", "  return 0;", "}"}
	m := newMerger(t)

	res, err := m.Merge(context.Background(), acc, fresh, []*diff.Mapping{mapLines(t, srcV1, after)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Diagnostics)
	require.Len(t, res.Deleted, 1)

	gone := res.Deleted[0]
	assert.Equal(t, int64(2), gone.Number(1))
	assert.Equal(t, graph.NoLine, gone.Number(2))
	assert.True(t, gone.HasNumber(2))

	alloca := lineAt(t, acc, 1, 1)
	retLine := lineAt(t, acc, 3, 1)
	assert.Equal(t, int64(2), retLine.Number(2))

	bridge := acc.FindEdge(alloca.Last(), retLine.First())
	require.NotNil(t, bridge)
	assert.Equal(t, graph.EdgeSequential, bridge.Type)
	assert.Equal(t, []graph.Version{2}, bridge.Versions())

	intoGone := acc.FindEdge(alloca.Last(), gone.First())
	require.NotNil(t, intoGone)
	assert.True(t, intoGone.ActiveIn(1))
	assert.False(t, intoGone.ActiveIn(2))
	assert.False(t, acc.FindEdge(gone.Last(), retLine.First()).ActiveIn(2))

	// the deleted line's nodes remain for the old version
	assert.Equal(t, "add", acc.OpcodeString(gone))
	assert.Equal(t, []*graph.Line{gone}, acc.LinesAt("f.c", 2, 1))
}

func TestMerge_EarlierVersionsStable(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)
	m := newMerger(t)
	_, err := m.Merge(context.Background(), acc, v2Graph(t), []*diff.Mapping{mapLines(t, srcV1, srcV2)})
	require.NoError(t, err)

	type state struct {
		numbers map[graph.ID][2]int64
		edges   map[graph.ID][2]bool
	}
	capture := func() state {
		s := state{numbers: map[graph.ID][2]int64{}, edges: map[graph.ID][2]bool{}}
		for _, fn := range acc.Functions() {
			for _, id := range fn.Lines() {
				l := acc.Line(id)
				s.numbers[id] = [2]int64{l.Number(1), l.Number(2)}
			}
		}
		for _, e := range acc.Edges() {
			s.edges[e.ID] = [2]bool{e.ActiveIn(1), e.ActiveIn(2)}
		}
		return s
	}
	before := capture()

	// v3 removes the line v2 introduced
	fresh := buildVersion(t, 3, ins("alloca", 1, "alloca"), ins("a", 2, "add"), ret("ret", 3))
	res, err := m.Merge(context.Background(), acc, fresh, []*diff.Mapping{mapLines(t, srcV2, srcV1)})
	require.NoError(t, err)
	assert.Equal(t, graph.Version(3), acc.Version())
	require.Len(t, res.Deleted, 1)

	after := capture()
	for id, nums := range before.numbers {
		assert.Equal(t, nums, after.numbers[id], "line %d", id)
	}
	for id, active := range before.edges {
		assert.Equal(t, active, after.edges[id], "edge %d", id)
	}

	mul := res.Deleted[0]
	assert.Equal(t, map[graph.Version]int64{1: 0, 2: 3, 3: 0}, mul.Numbers())

	add := lineAt(t, acc, 2, 3)
	retLine := lineAt(t, acc, 3, 3)
	assert.Equal(t, int64(3), retLine.Number(1))
	direct := acc.FindEdge(add.Last(), retLine.First())
	require.NotNil(t, direct)
	assert.Equal(t, []graph.Version{1, 3}, direct.Versions())

	main := acc.FunctionByName("main")
	entry := acc.Line(main.Entry)
	assert.Equal(t, entry.Number(1), entry.Number(3))
}

func TestMerge_NewFunction(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)
	doc := &icfg.Document{Functions: []icfg.Function{
		{Name: "main", File: "src/f.c", Instructions: []icfg.Instruction{
			ins("alloca", 1, "alloca"), ins("a", 2, "add"), ret("ret", 3),
		}},
		{Name: "helper", File: "src/f.c", Instructions: []icfg.Instruction{
			ins("h", 5, "sub"), ret("hr", 6),
		}},
	}}
	fresh, err := icfg.Build(doc, 2, graph.DefaultConfig())
	require.NoError(t, err)

	after := append(append([]string{}, srcV1...), "int helper() {", "  return 1;", "}")
	m := newMerger(t)
	res, err := m.Merge(context.Background(), acc, fresh, []*diff.Mapping{mapLines(t, srcV1, after)})
	require.NoError(t, err)
	require.Len(t, res.Added, 2)

	helper := acc.FunctionByName("helper")
	require.NotNil(t, helper)
	entry, exit := acc.Line(helper.Entry), acc.Line(helper.Exit)
	require.NotNil(t, entry)
	require.NotNil(t, exit)
	assert.Equal(t, graph.NoLine, entry.Number(1))
	assert.Equal(t, graph.EntryLine, entry.Number(2))
	assert.Equal(t, graph.ExitLine, exit.Number(2))

	sub := lineAt(t, acc, 5, 2)
	hr := lineAt(t, acc, 6, 2)
	e := acc.FindEdge(entry.First(), sub.First())
	require.NotNil(t, e)
	assert.Equal(t, graph.EdgeVirtual, e.Type)
	assert.True(t, e.ActiveIn(2))
	assert.NotNil(t, acc.FindEdge(sub.Last(), hr.First(), graph.EdgeSequential))
	assert.NotNil(t, acc.FindEdge(hr.Last(), exit.First(), graph.EdgeVirtual))
}

func TestMerge_VersionOrder(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)
	m := newMerger(t)

	_, err := m.Merge(context.Background(), acc, v1Graph(t), nil)
	assert.ErrorIs(t, err, ErrVersionOrder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Merge(ctx, acc, v2Graph(t), []*diff.Mapping{mapLines(t, srcV1, srcV2)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, graph.Version(1), acc.Version())
}

func TestMerge_UnmappedFileIsReported(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	m := newMerger(t, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	acc := v1Graph(t)
	res, err := m.Merge(context.Background(), acc, v2Graph(t), nil)
	require.NoError(t, err)
	assert.Positive(t, res.Diagnostics)
	assert.Contains(t, logs.String(), "no line mapping for file")
	assert.True(t, strings.Contains(logs.String(), "version=2"))
}

func TestMerge_DisplacedEdgeStaysInactive(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)
	m := newMerger(t)
	_, err := m.Merge(context.Background(), acc, v2Graph(t), []*diff.Mapping{mapLines(t, srcV1, srcV2)})
	require.NoError(t, err)

	// v3 is identical to v2
	fresh := buildVersion(t, 3, ins("alloca", 1, "alloca"), ins("a", 2, "add"), ins("b", 3, "mul"), ret("ret", 4))
	res, err := m.Merge(context.Background(), acc, fresh, []*diff.Mapping{mapLines(t, srcV2, srcV2)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Diagnostics)
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Deleted)

	add := lineAt(t, acc, 2, 3)
	mul := lineAt(t, acc, 3, 3)
	retLine := lineAt(t, acc, 4, 3)

	displaced := acc.FindEdge(add.Last(), retLine.First())
	require.NotNil(t, displaced)
	assert.Equal(t, []graph.Version{1}, displaced.Versions())
	assert.Equal(t, []graph.Version{2, 3}, acc.FindEdge(add.Last(), mul.First()).Versions())
	assert.Equal(t, []graph.Version{2, 3}, acc.FindEdge(mul.Last(), retLine.First()).Versions())

	// every edge active in v3 is an edge of the v3 graph
	p, err := acc.Project(3)
	require.NoError(t, err)
	size, err := p.Size()
	require.NoError(t, err)
	_, freshEdges := fresh.Counts()
	assert.Equal(t, freshEdges, size)
}

// callGraph builds main calling foo on line 1; withInsert adds a line after the call.
func callGraph(t *testing.T, v graph.Version, withInsert bool) *graph.Graph {
	t.Helper()
	main := []icfg.Instruction{{Key: "c", Line: 1, Opcode: "call", Callee: "foo"}}
	shift := int64(0)
	if withInsert {
		main = append(main, ins("m", 2, "mul"))
		shift = 1
	}
	main = append(main, ret("r", 2+shift))
	doc := &icfg.Document{Functions: []icfg.Function{
		{Name: "main", File: "src/f.c", Instructions: main},
		{Name: "foo", File: "src/f.c", Instructions: []icfg.Instruction{ins("f", 5+shift, "sub"), ret("fr", 6+shift)}},
	}}
	g, err := icfg.Build(doc, v, graph.DefaultConfig())
	require.NoError(t, err)
	return g
}

func TestMerge_CallSiteBeforeAddedLine(t *testing.T) {
	t.Parallel()

	before := []string{"  foo();", "  return 0;", "}", "", "  x = 1;", "  return x;"}
	after := []string{"  foo();", "  y = 2;", "  return 0;", "}", "", "  x = 1;", "  return x;"}

	acc := callGraph(t, 1, false)
	fresh := callGraph(t, 2, true)
	m := newMerger(t)
	res, err := m.Merge(context.Background(), acc, fresh, []*diff.Mapping{mapLines(t, before, after)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Diagnostics)
	require.Len(t, res.Added, 1)

	callLine := lineAt(t, acc, 1, 2)
	foo := acc.FunctionByName("foo")
	require.NotNil(t, foo)
	fooEntry, fooExit := acc.Line(foo.Entry), acc.Line(foo.Exit)

	call := acc.FindEdge(callLine.Last(), fooEntry.First(), graph.EdgeCall)
	require.NotNil(t, call)
	assert.Equal(t, []graph.Version{1, 2}, call.Versions())

	back := acc.FindEdge(fooExit.Last(), callLine.First(), graph.EdgeCall)
	require.NotNil(t, back)
	assert.Equal(t, []graph.Version{1, 2}, back.Versions())

	retLine := lineAt(t, acc, 3, 2)
	displaced := acc.FindEdge(callLine.Last(), retLine.First())
	require.NotNil(t, displaced)
	assert.Equal(t, []graph.Version{1}, displaced.Versions())
	assert.True(t, acc.FindEdge(callLine.Last(), res.Added[0].First()).ActiveIn(2))
}

func TestMerge_AddedBranches(t *testing.T) {
	t.Parallel()

	before := []string{"  a = 1;", "  return a;"}
	after := []string{"  a = 1;", "  if (x)", "    a = 2;", "  else a = 3;", "  return a;"}

	acc := buildVersion(t, 1, ins("a", 1, "add"), ret("r", 2))
	fresh := buildVersion(t, 2,
		ins("a", 1, "add"),
		icfg.Instruction{Key: "b", Line: 2, Opcode: "br", Terminator: true, Successors: []string{"t", "e"}},
		ins("t", 3, "mul"),
		icfg.Instruction{Key: "tj", Line: 3, Opcode: "br", Terminator: true, Successors: []string{"r"}},
		ins("e", 4, "sub"),
		icfg.Instruction{Key: "ej", Line: 4, Opcode: "br", Terminator: true, Successors: []string{"r"}},
		ret("r", 5),
	)
	m := newMerger(t)
	res, err := m.Merge(context.Background(), acc, fresh, []*diff.Mapping{mapLines(t, before, after)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Diagnostics)
	require.Len(t, res.Added, 3)

	a := lineAt(t, acc, 1, 2)
	cond := lineAt(t, acc, 2, 2)
	then := lineAt(t, acc, 3, 2)
	els := lineAt(t, acc, 4, 2)
	retLine := lineAt(t, acc, 5, 2)

	tests := []struct {
		name     string
		from, to graph.ID
		typ      graph.EdgeType
	}{
		{"into condition", a.Last(), cond.First(), graph.EdgeSequential},
		{"then branch", cond.Last(), then.First(), graph.EdgeBranch},
		{"else branch", cond.Last(), els.First(), graph.EdgeBranch},
		{"then join", then.Last(), retLine.First(), graph.EdgeBranch},
		{"else join", els.Last(), retLine.First(), graph.EdgeBranch},
		{"within then", then.First(), then.Last(), graph.EdgeSequential},
	}
	for _, tt := range tests {
		e := acc.FindEdge(tt.from, tt.to, tt.typ)
		if assert.NotNil(t, e, tt.name) {
			assert.Equal(t, []graph.Version{2}, e.Versions(), tt.name)
		}
	}

	displaced := acc.FindEdge(a.Last(), retLine.First())
	require.NotNil(t, displaced)
	assert.Equal(t, []graph.Version{1}, displaced.Versions())

	// lines are kept in program order of the newest version
	main := acc.FunctionByName("main")
	var numbers []int64
	for _, id := range main.Lines() {
		numbers = append(numbers, acc.Line(id).Number(2))
	}
	assert.Equal(t, []int64{graph.EntryLine, 1, 2, 3, 4, 5, graph.ExitLine}, numbers)
}

func TestMerge_AddedLinesKeepProgramOrder(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)
	_, err := newMerger(t).Merge(context.Background(), acc, v2Graph(t), []*diff.Mapping{mapLines(t, srcV1, srcV2)})
	require.NoError(t, err)

	main := acc.FunctionByName("main")
	var opcodes []string
	for _, id := range main.Lines() {
		if l := acc.Line(id); !l.Virtual() {
			opcodes = append(opcodes, acc.OpcodeString(l))
		}
	}
	assert.Equal(t, []string{"alloca", "add", "mul", "ret"}, opcodes)
}
