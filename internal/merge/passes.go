package merge

import (
	"slices"

	"github.com/mvp-joe/mvicfg/internal/diff"
	"github.com/mvp-joe/mvicfg/internal/graph"
)

// clonedLine is an added line of the accumulated graph and the fresh line it was copied from.
type clonedLine struct {
	acc   *graph.Line
	fresh *graph.Line
}

// addPass clones every added line into the accumulated graph and wires it to
// its surviving neighbours.
func (s *step) addPass(mp *diff.Mapping) {
	var cloned []clonedLine
	freshAdded := make(map[graph.ID]bool)

	for _, n := range mp.Added {
		lines := s.fresh.LinesAt(mp.File, n, s.to)
		if len(lines) == 0 {
			// Lines without code (comments, blank lines) have no node
			s.logger.Debug("added line has no node", "file", mp.File, "line", n, "version", s.to)
			continue
		}
		for _, fl := range lines {
			fn := s.accFunctionFor(s.fresh.FunctionOf(fl))
			l := s.acc.InsertLineBefore(fn, s.insertionPoint(fn, n, mp))
			s.acc.SetLineNumber(l, s.from, graph.NoLine)
			s.acc.SetLineNumber(l, s.to, n)
			s.cloneInstructions(fl, l)

			s.added[l.ID] = true
			s.importLines = append(s.importLines, l)
			s.result.Added = append(s.result.Added, l)
			freshAdded[fl.ID] = true
			cloned = append(cloned, clonedLine{acc: l, fresh: fl})
		}
	}

	for _, c := range cloned {
		n, nDash := c.acc, c.fresh
		for _, t := range s.fresh.Predecessors(nDash) {
			if freshAdded[t.ID] || !s.sameFile(s.fresh, t, mp) {
				continue
			}
			tDash := s.matchLine(t, s.fresh, s.acc, mp)
			if tDash == nil {
				s.warn("no match for predecessor of added line", "file", mp.File, "line", n.Number(s.to))
				continue
			}
			s.connect(tDash.Last(), n.First(), t.Last(), nDash.First(), t, nDash, graph.EdgeAdded)
		}
		for _, t := range s.fresh.Successors(nDash) {
			if freshAdded[t.ID] || !s.sameFile(s.fresh, t, mp) {
				continue
			}
			tDash := s.matchLine(t, s.fresh, s.acc, mp)
			if tDash == nil {
				s.warn("no match for successor of added line", "file", mp.File, "line", n.Number(s.to))
				continue
			}
			s.connect(n.Last(), tDash.First(), nDash.Last(), t.First(), nDash, t, graph.EdgeAdded)
		}
	}
}

// deletePass retires deleted lines in the new version and bridges their
// surviving neighbours the way the fresh graph connects them. A bridge that
// already exists from an earlier version becomes active again.
func (s *step) deletePass(mp *diff.Mapping) {
	deleted := make(map[graph.ID]bool)
	for _, n := range mp.Deleted {
		lines := s.acc.LinesAt(mp.File, n, s.from)
		if len(lines) == 0 {
			s.logger.Debug("deleted line has no node", "file", mp.File, "line", n, "version", s.to)
			continue
		}
		for _, l := range lines {
			s.acc.SetLineNumber(l, s.to, graph.NoLine)
			deleted[l.ID] = true
			s.deleted[l.ID] = true
			s.result.Deleted = append(s.result.Deleted, l)
		}
	}
	if len(deleted) == 0 {
		return
	}

	for _, fn := range s.acc.Functions() {
		if !graph.SameFile(fn.File, mp.File) {
			continue
		}
		for _, id := range fn.Lines() {
			n := s.acc.Line(id)
			if deleted[n.ID] || !s.touches(n, deleted) {
				continue
			}

			nDash := s.matchLine(n, s.acc, s.fresh, mp)
			if nDash == nil {
				if n.Number(s.from) != graph.NoLine {
					s.warn("no match for neighbour of deleted line", "file", mp.File, "line", n.Number(s.from))
				}
				continue
			}

			for _, mDash := range s.fresh.Predecessors(nDash) {
				m := s.survivorFor(mDash, mp)
				if m == nil {
					continue
				}
				s.connect(m.Last(), n.First(), mDash.Last(), nDash.First(), mDash, nDash, graph.EdgeDeleted)
			}
			for _, mDash := range s.fresh.Successors(nDash) {
				m := s.survivorFor(mDash, mp)
				if m == nil {
					continue
				}
				s.connect(n.Last(), m.First(), nDash.Last(), mDash.First(), nDash, mDash, graph.EdgeDeleted)
			}
		}
	}
}

// survivorFor maps a fresh neighbour of a bridged line back into the
// accumulated graph. Lines added in this step are found by their new number.
func (s *step) survivorFor(mDash *graph.Line, mp *diff.Mapping) *graph.Line {
	if !s.sameFile(s.fresh, mDash, mp) {
		return nil
	}
	if m := s.matchLine(mDash, s.fresh, s.acc, mp); m != nil {
		return m
	}
	if m := s.newlyAdded(mDash, mp); m != nil {
		return m
	}
	s.warn("no match for bridged neighbour", "file", mp.File, "line", mDash.Number(s.to))
	return nil
}

// newlyAdded returns the accumulated line cloned in this step from mDash's number.
func (s *step) newlyAdded(mDash *graph.Line, mp *diff.Mapping) *graph.Line {
	n := mDash.Number(s.to)
	if !mp.IsAdded(n) {
		return nil
	}
	for _, fn := range s.acc.Functions() {
		if !graph.SameFile(fn.File, mp.File) {
			continue
		}
		for _, id := range fn.Lines() {
			if s.added[id] && s.acc.Line(id).Number(s.to) == n {
				return s.acc.Line(id)
			}
		}
	}
	return nil
}

// matchPass pairs unchanged lines and marks the edges between them active in
// the new version where the fresh graph has them too.
func (s *step) matchPass(mp *diff.Mapping) {
	var pairs []LinePair
	counterpart := make(map[graph.ID]*graph.Line)

	for _, p := range mp.Matched() {
		accLines := s.acc.LinesAt(mp.File, p.Before, s.from)
		if len(accLines) == 0 {
			continue
		}
		freshLines := s.fresh.LinesAt(mp.File, p.After, s.to)
		if len(freshLines) == 0 {
			s.warn("matched line missing from fresh graph", "file", mp.File, "before", p.Before, "after", p.After)
			continue
		}
		if len(accLines) != len(freshLines) {
			s.warn("matched line split differently", "file", mp.File,
				"before", p.Before, "after", p.After,
				"accumulated", len(accLines), "fresh", len(freshLines))
			continue
		}
		for i := range accLines {
			pairs = append(pairs, LinePair{Accumulated: accLines[i], Fresh: freshLines[i]})
			counterpart[freshLines[i].ID] = accLines[i]
		}
	}

	for _, p := range pairs {
		n, nDash := p.Accumulated, p.Fresh
		for _, t := range s.fresh.Predecessors(nDash) {
			tDash, ok := counterpart[t.ID]
			if !ok {
				continue
			}
			e := s.acc.FindEdge(tDash.Last(), n.First())
			if e == nil {
				e = s.acc.EdgeBetweenLines(tDash, n)
			}
			if e == nil {
				s.warn("edge between matched lines not found", "file", mp.File,
					"from", tDash.Number(s.from), "to", n.Number(s.from))
				continue
			}
			s.acc.AddEdgeVersion(e, s.to)
		}
		for _, t := range s.fresh.Successors(nDash) {
			tDash, ok := counterpart[t.ID]
			if !ok {
				continue
			}
			e := s.acc.FindEdge(n.Last(), tDash.First())
			if e == nil {
				e = s.acc.EdgeBetweenLines(n, tDash)
			}
			if e == nil {
				s.warn("edge between matched lines not found", "file", mp.File,
					"from", n.Number(s.from), "to", tDash.Number(s.from))
				continue
			}
			s.acc.AddEdgeVersion(e, s.to)
		}
	}
	s.result.Matched = append(s.result.Matched, pairs...)
}

// importEdges copies every fresh edge touching an added line whose endpoints
// both exist in the accumulated graph.
func (s *step) importEdges() {
	for _, l := range s.importLines {
		for _, id := range l.Instructions() {
			inst := s.acc.Instruction(id)
			freshInst := s.freshCounterpart(inst, l)
			if freshInst == nil {
				s.warn("added instruction has no fresh counterpart", "label", inst.Label)
				continue
			}
			for _, eid := range freshInst.Edges() {
				e := s.fresh.Edge(eid)
				from, to := s.resolve(e.From), s.resolve(e.To)
				if from == 0 || to == 0 {
					continue
				}
				if s.acc.FindEdge(from, to, e.Type) == nil {
					s.acc.AddEdge(from, to, e.Type, s.to)
				}
			}
		}
	}
}

// freshCounterpart finds the fresh instruction an accumulated instruction was cloned from.
func (s *step) freshCounterpart(inst *graph.Instruction, l *graph.Line) *graph.Instruction {
	if !inst.Virtual() {
		return s.fresh.InstructionByOrigin(inst.Origin)
	}
	fn := s.acc.FunctionOf(l)
	var fl *graph.Line
	if fn.External {
		if ext := s.fresh.ExternalFunction(); ext != nil {
			fl = s.fresh.Line(ext.Entry)
		}
	} else if target := functionIn(s.fresh, fn.Name, fn.File); target != nil {
		if l.Kind == graph.LineEntry {
			fl = s.fresh.Line(target.Entry)
		} else {
			fl = s.fresh.Line(target.Exit)
		}
	}
	if fl == nil {
		return nil
	}
	return s.fresh.Instruction(fl.First())
}

// resolve maps a fresh instruction to the accumulated graph, or returns 0.
// Clones resolve by origin, virtual nodes by function and role, and
// instructions of unchanged lines by position when the lines agree.
func (s *step) resolve(id graph.ID) graph.ID {
	inst := s.fresh.Instruction(id)
	if inst == nil {
		return 0
	}
	if accInst := s.acc.InstructionByOrigin(inst.Origin); accInst != nil {
		return accInst.ID
	}

	fl := s.fresh.LineOf(inst)
	fn := s.fresh.FunctionOf(fl)
	al := s.matchLine(fl, s.fresh, s.acc, s.mappingFor(fn.File))
	if al == nil {
		return 0
	}
	if inst.Virtual() {
		return al.First()
	}
	insts, accInsts := fl.Instructions(), al.Instructions()
	if len(insts) != len(accInsts) {
		return 0
	}
	for i, other := range insts {
		if other == id && s.acc.Instruction(accInsts[i]).Opcode == inst.Opcode {
			return accInsts[i]
		}
	}
	return 0
}

// stampVersion gives every untouched line its number in the new version and
// marks the edges between lines that exist in both versions active.
func (s *step) stampVersion() {
	for _, fn := range s.acc.Functions() {
		mp := s.mappingFor(fn.File)
		if mp == nil && !fn.External {
			s.warn("no line mapping for file", "function", fn.Name, "file", fn.File)
			continue
		}
		for _, id := range fn.Lines() {
			if s.added[id] || s.deleted[id] {
				continue
			}
			l := s.acc.Line(id)
			old := l.Number(s.from)
			switch {
			case old == graph.NoLine:
			case l.Virtual() || fn.External:
				s.acc.SetLineNumber(l, s.to, old)
			default:
				n := mp.AfterLineFor(old)
				if n == diff.NotFound {
					s.warn("no new number for unchanged line", "file", mp.File, "line", old)
					continue
				}
				s.acc.SetLineNumber(l, s.to, n)
			}
		}
	}

	// Edges into added lines were placed by the add pass; the other edges of
	// their sources keep only what the fresh graph confirms.
	addOrigins := make(map[graph.ID]bool)
	var confirm []graph.ID
	edges := s.acc.Edges()
	for _, e := range edges {
		to := s.acc.Instruction(e.To)
		if to == nil || !s.added[to.Line] {
			continue
		}
		if from := s.acc.Instruction(e.From); from != nil && !s.added[from.Line] && !addOrigins[e.From] {
			addOrigins[e.From] = true
			confirm = append(confirm, e.From)
		}
	}
	for _, e := range edges {
		// Edges of this step already carry the new version; older ones only
		// continue what was valid in the previous version.
		if addOrigins[e.From] || !e.ActiveIn(s.from) {
			continue
		}
		from, to := s.acc.Instruction(e.From), s.acc.Instruction(e.To)
		if from == nil || to == nil {
			continue
		}
		if s.acc.Line(from.Line).Number(s.to) != graph.NoLine && s.acc.Line(to.Line).Number(s.to) != graph.NoLine {
			s.acc.AddEdgeVersion(e, s.to)
		}
	}
	for _, id := range confirm {
		s.confirmOutgoing(id)
	}
}

// confirmOutgoing marks the edges out of id active in the new version where
// the fresh graph still has them. Edges into lines added in this step are
// left to the add pass.
func (s *step) confirmOutgoing(id graph.ID) {
	inst := s.acc.Instruction(id)
	freshInst := s.freshInstructionFor(inst)
	if freshInst == nil {
		s.warn("predecessor of added line has no fresh counterpart", "label", inst.Label)
		return
	}
	for _, fe := range s.fresh.Outgoing(freshInst.ID) {
		to := s.resolve(fe.To)
		if to == 0 {
			s.warn("edge target not found", "label", inst.Label, "type", fe.Type)
			continue
		}
		if s.added[s.acc.Instruction(to).Line] {
			continue
		}
		e := s.acc.FindEdge(id, to, fe.Type)
		if e == nil {
			e = s.acc.FindEdge(id, to)
		}
		if e == nil {
			s.warn("edge from predecessor of added line not found",
				"from", inst.Label, "to", s.acc.Instruction(to).Label, "type", fe.Type)
			continue
		}
		s.acc.AddEdgeVersion(e, s.to)
	}
}

// freshInstructionFor maps an accumulated instruction of an unchanged or
// virtual line to its fresh counterpart, or returns nil. It is the inverse of
// resolve.
func (s *step) freshInstructionFor(inst *graph.Instruction) *graph.Instruction {
	l := s.acc.LineOf(inst)
	fn := s.acc.FunctionOf(l)
	if inst.Virtual() || fn.External {
		return s.freshCounterpart(inst, l)
	}
	fl := s.matchLine(l, s.acc, s.fresh, s.mappingFor(fn.File))
	if fl == nil {
		return nil
	}
	insts, freshInsts := l.Instructions(), fl.Instructions()
	if len(insts) != len(freshInsts) {
		return nil
	}
	i := slices.Index(insts, inst.ID)
	if i < 0 {
		return nil
	}
	if fi := s.fresh.Instruction(freshInsts[i]); fi.Opcode == inst.Opcode {
		return fi
	}
	return nil
}

// insertionPoint returns the line of fn before which a line numbered n in the
// new version belongs: the first source line with a larger new number, or the
// exit line.
func (s *step) insertionPoint(fn *graph.Function, n int64, mp *diff.Mapping) graph.ID {
	for _, id := range fn.Lines() {
		l := s.acc.Line(id)
		if l.Virtual() {
			continue
		}
		var at int64
		switch {
		case s.added[id]:
			at = l.Number(s.to)
		case l.Number(s.from) != graph.NoLine:
			at = mp.AfterLineFor(l.Number(s.from))
		default:
			continue
		}
		if at != diff.NotFound && at > n {
			return id
		}
	}
	return fn.Exit
}

// connect makes the accumulated edge from -> to active in the new version,
// creating it when missing. A new edge takes the type of the fresh edge
// freshFrom -> freshTo, or of any fresh edge between the two fresh lines.
func (s *step) connect(from, to, freshFrom, freshTo graph.ID, fromLine, toLine *graph.Line, fallback graph.EdgeType) {
	if e := s.acc.FindEdge(from, to); e != nil {
		s.acc.AddEdgeVersion(e, s.to)
		return
	}

	typ := fallback
	if e := s.fresh.FindEdge(freshFrom, freshTo); e != nil {
		typ = e.Type
	} else if e := s.fresh.EdgeBetweenLines(fromLine, toLine); e != nil {
		typ = e.Type
	} else {
		s.warn("edge type not inferred", "type", fallback)
	}
	s.acc.AddEdge(from, to, typ, s.to)
}

// touches reports whether any predecessor or successor of n is in set.
func (s *step) touches(n *graph.Line, set map[graph.ID]bool) bool {
	for _, p := range s.acc.Predecessors(n) {
		if set[p.ID] {
			return true
		}
	}
	for _, p := range s.acc.Successors(n) {
		if set[p.ID] {
			return true
		}
	}
	return false
}

func (s *step) sameFile(g *graph.Graph, l *graph.Line, mp *diff.Mapping) bool {
	fn := g.FunctionOf(l)
	return fn != nil && graph.SameFile(fn.File, mp.File)
}

// accFunctionFor returns the accumulated function for a fresh one, creating it
// with cloned entry and exit lines when the function is new.
func (s *step) accFunctionFor(fresh *graph.Function) *graph.Function {
	if fn := functionIn(s.acc, fresh.Name, fresh.File); fn != nil {
		return fn
	}

	fn := s.acc.AddFunction(fresh.Name, fresh.File)
	for _, id := range []graph.ID{fresh.Entry, fresh.Exit} {
		fl := s.fresh.Line(id)
		if fl == nil {
			continue
		}
		l := s.acc.AddLine(fn, fl.Kind)
		s.acc.SetLineNumber(l, s.from, graph.NoLine)
		s.acc.SetLineNumber(l, s.to, fl.Kind.Sentinel())
		s.cloneInstructions(fl, l)
		s.added[l.ID] = true
		s.importLines = append(s.importLines, l)
	}
	return fn
}

func (s *step) cloneInstructions(from, to *graph.Line) {
	for _, id := range from.Instructions() {
		inst := s.fresh.Instruction(id)
		s.acc.AddInstruction(to, inst.Label, inst.Opcode, inst.Origin)
	}
}
