package merge

import (
	"math"
	"strings"

	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/mvp-joe/mvicfg/internal/graph"
)

// matchLine returns the line of dst corresponding to t of src, or nil.
//
// Virtual lines correspond by function and role. Source lines are translated
// through mp, from old to new numbers when dst is the newer graph and from new
// to old otherwise. A line without a number in src (added in this step) keeps
// its number in dst's version. Among several candidates an identical opcode
// string wins; otherwise the closest one is chosen by resolveHeuristic.
func (s *step) matchLine(t *graph.Line, src, dst *graph.Graph, mp *diff.Mapping) *graph.Line {
	fn := src.FunctionOf(t)
	if fn == nil {
		return nil
	}
	if fn.External {
		ext := dst.ExternalFunction()
		if ext == nil {
			return nil
		}
		return dst.Line(ext.Entry)
	}
	if t.Virtual() {
		target := functionIn(dst, fn.Name, fn.File)
		if target == nil {
			return nil
		}
		if t.Kind == graph.LineEntry {
			return dst.Line(target.Entry)
		}
		return dst.Line(target.Exit)
	}
	if mp == nil || !graph.SameFile(mp.File, fn.File) {
		return nil
	}

	number := t.Number(src.Version())
	var want int64
	switch {
	case dst.Version() > src.Version() && number == graph.NoLine:
		want = t.Number(dst.Version())
	case dst.Version() > src.Version():
		want = mp.AfterLineFor(number)
	default:
		want = mp.BeforeLineFor(number)
	}
	if want == diff.NotFound || want == graph.NoLine {
		return nil
	}

	opcodes := s.opcodeString(src, t)
	for _, cand := range dst.Functions() {
		if cand.Name != fn.Name || !graph.SameFile(cand.File, fn.File) {
			continue
		}
		var candidates []*graph.Line
		for _, id := range cand.Lines() {
			l := dst.Line(id)
			if l.Number(dst.Version()) != want {
				continue
			}
			if s.opcodeString(dst, l) == opcodes {
				return l
			}
			candidates = append(candidates, l)
		}
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0]
		default:
			return s.resolveHeuristic(dst, candidates, opcodes, fn.Name, want)
		}
	}
	return nil
}

// resolveHeuristic picks the candidate whose opcode string, after removing the
// first occurrence of want, has the fewest tokens left. Ties keep the earlier
// candidate.
func (s *step) resolveHeuristic(dst *graph.Graph, candidates []*graph.Line, want, function string, number int64) *graph.Line {
	var best *graph.Line
	bestScore := math.MaxInt
	for _, c := range candidates {
		score := leftoverTokens(s.opcodeString(dst, c), want)
		if score < bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore > s.threshold {
		s.warn("low confidence line match",
			"function", function,
			"line", number,
			"candidates", len(candidates),
			"score", bestScore,
			"threshold", s.threshold)
	}
	return best
}

func leftoverTokens(candidate, want string) int {
	if want != "" {
		if i := strings.Index(candidate, want); i >= 0 {
			candidate = candidate[:i] + candidate[i+len(want):]
		}
	}
	return len(strings.Fields(candidate))
}

// opcodeString returns the cached opcode string of a line. Lines never lose
// instructions, but clones gain them while the add pass runs, so callers on
// the accumulated graph only ask after a line is complete.
func (s *step) opcodeString(g *graph.Graph, l *graph.Line) string {
	key := lineKey{g: g, line: l.ID}
	if v, ok := s.opcodes.Get(key); ok {
		return v
	}
	v := g.OpcodeString(l)
	s.opcodes.Set(key, v)
	return v
}

// functionIn returns the function of g with the given name, preferring one in
// the same file.
func functionIn(g *graph.Graph, name, file string) *graph.Function {
	var byName *graph.Function
	for _, fn := range g.Functions() {
		if fn.Name != name {
			continue
		}
		if graph.SameFile(fn.File, file) {
			return fn
		}
		if byName == nil {
			byName = fn
		}
	}
	return byName
}
