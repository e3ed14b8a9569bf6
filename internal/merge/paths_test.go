package merge

import (
	"context"
	"testing"

	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/icfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for path counting:
// - A straight added line contributes one path
// - A branching added region counts each exit into old code
// - Paths that rejoin an already walked instruction count once at the merge point
// - Frontier instructions without incoming edges are reported, not walked
// - Deleted paths are walked over the old version's edges

func TestAddedPaths_SingleLine(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)
	m := newMerger(t)
	_, err := m.Merge(context.Background(), acc, v2Graph(t), []*diff.Mapping{mapLines(t, srcV1, srcV2)})
	require.NoError(t, err)

	added := AddedPaths(acc, 1, 2)
	assert.Len(t, added.Lines, 1)
	assert.Len(t, added.Frontier, 1)
	assert.Equal(t, 1, added.Paths)
	assert.Empty(t, added.Unreachable)

	deleted := DeletedPaths(acc, 1, 2)
	assert.Empty(t, deleted.Lines)
	assert.Equal(t, 0, deleted.Paths)
}

func TestAddedPaths_Branch(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)

	// v2 wraps a conditional around two new lines:
	//   2 a();  3 if (x)  4 b();  5 c();  6 return 0;
	fresh := buildVersion(t, 2,
		ins("alloca", 1, "alloca"),
		ins("a", 2, "add"),
		icfg.Instruction{Key: "cmp", Line: 3, Opcode: "icmp"},
		icfg.Instruction{Key: "br", Line: 3, Opcode: "br", Terminator: true, Successors: []string{"b", "c"}},
		icfg.Instruction{Key: "b", Line: 4, Opcode: "mul", Terminator: true, Successors: []string{"ret"}},
		icfg.Instruction{Key: "c", Line: 5, Opcode: "sub"},
		ret("ret", 6),
	)
	after := []string{"int main() {", "  a();", "  if (x)", "    b();", "  c();", "  return 0;", "}"}

	m := newMerger(t)
	res, err := m.Merge(context.Background(), acc, fresh, []*diff.Mapping{mapLines(t, srcV1, after)})
	require.NoError(t, err)
	require.Len(t, res.Added, 3)

	// if -> b -> return and if -> c -> return
	report := AddedPaths(acc, 1, 2)
	assert.Len(t, report.Frontier, 4)
	assert.Equal(t, 2, report.Paths)
}

func TestCountPaths_MergePoint(t *testing.T) {
	t.Parallel()

	// old -> a; a -> b, a -> c; b -> d; c -> d; d -> old
	g := graph.New(1, graph.DefaultConfig())
	fn := g.AddFunction("f", "f.c")
	line := func(n int64) *graph.Line {
		l := g.AddLine(fn, graph.LineSource)
		g.SetLineNumber(l, 1, n)
		g.AddInstruction(l, "op", "op", graph.Origin{Version: 1, Key: string(rune('a' + n))})
		return l
	}
	old, a, b, c, d, tail := line(1), line(2), line(3), line(4), line(5), line(6)
	orphan := line(7)
	for _, e := range [][2]*graph.Line{{old, a}, {a, b}, {a, c}, {b, d}, {c, d}, {d, tail}} {
		g.AddEdge(e[0].Last(), e[1].First(), graph.EdgeBranch, 1)
	}

	report := CountPaths(g, []graph.ID{a.ID, b.ID, c.ID, d.ID, orphan.ID}, 1)
	// a-b-d-tail completes one path; a-c-d stops at the walked d
	assert.Equal(t, 2, report.Paths)
	assert.Equal(t, []graph.ID{orphan.First()}, report.Unreachable)

	// version filter: nothing is active in version 2
	none := CountPaths(g, []graph.ID{a.ID}, 2)
	assert.Equal(t, 0, none.Paths)
	assert.Equal(t, []graph.ID{a.First()}, none.Unreachable)

	// version 0 walks every edge
	assert.Equal(t, 2, CountPaths(g, []graph.ID{a.ID, b.ID, c.ID, d.ID}, 0).Paths)
}

func TestDeletedPaths(t *testing.T) {
	t.Parallel()

	acc := v1Graph(t)
	fresh := buildVersion(t, 2, ins("alloca", 1, "alloca"), ret("ret", 2))
	m := newMerger(t)
	_, err := m.Merge(context.Background(), acc, fresh,
		[]*diff.Mapping{mapLines(t, srcV1, []string{"int main() {", "  return 0;", "}"})})
	require.NoError(t, err)

	report := DeletedPaths(acc, 1, 2)
	assert.Len(t, report.Lines, 1)
	assert.Equal(t, 1, report.Paths)
	assert.Equal(t, 0, AddedPaths(acc, 1, 2).Paths)
}
