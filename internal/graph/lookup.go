package graph

import "strings"

// LinesAt returns the lines numbered n in version v of the first function
// declared in file that has any such line. Several lines can share one number
// when a statement spans multiple basic blocks.
func (g *Graph) LinesAt(file string, n int64, v Version) []*Line {
	if n == NoLine {
		return nil
	}
	for _, fnID := range g.functionOrder {
		fn := g.functions[fnID]
		if !SameFile(fn.File, file) {
			continue
		}
		var found []*Line
		for _, id := range fn.lines {
			if l := g.lines[id]; l.Number(v) == n {
				found = append(found, l)
			}
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// Predecessors returns the lines with an edge into l's first instruction, in edge order.
func (g *Graph) Predecessors(l *Line) []*Line {
	var out []*Line
	for _, e := range g.Incoming(l.First()) {
		if src := g.instructions[e.From]; src != nil {
			out = appendLine(out, g.lines[src.Line])
		}
	}
	return out
}

// Successors returns the lines reached by edges out of l's last instruction, in edge order.
func (g *Graph) Successors(l *Line) []*Line {
	var out []*Line
	for _, e := range g.Outgoing(l.Last()) {
		if dst := g.instructions[e.To]; dst != nil {
			out = appendLine(out, g.lines[dst.Line])
		}
	}
	return out
}

func appendLine(lines []*Line, l *Line) []*Line {
	for _, existing := range lines {
		if existing.ID == l.ID {
			return lines
		}
	}
	return append(lines, l)
}

// OpcodeString joins the opcodes of the line's non-virtual instructions with spaces.
func (g *Graph) OpcodeString(l *Line) string {
	var parts []string
	for _, id := range l.instructions {
		if inst := g.instructions[id]; !inst.Virtual() && inst.Opcode != "" {
			parts = append(parts, inst.Opcode)
		}
	}
	return strings.Join(parts, " ")
}

// VirtualLine returns the entry or exit line of the named function, or nil.
// The external node's single line is its entry.
func (g *Graph) VirtualLine(function string, kind LineKind) *Line {
	fn := g.FunctionByName(function)
	if fn == nil {
		return nil
	}
	switch kind {
	case LineEntry:
		return g.lines[fn.Entry]
	case LineExit:
		return g.lines[fn.Exit]
	default:
		return nil
	}
}

// ExternalFunction returns the shared external node function, or nil if none was created.
func (g *Graph) ExternalFunction() *Function {
	for _, id := range g.functionOrder {
		if fn := g.functions[id]; fn.External {
			return fn
		}
	}
	return nil
}

// ActiveLines returns the IDs of every line with a non-zero number in version v.
func (g *Graph) ActiveLines(v Version) map[ID]bool {
	out := make(map[ID]bool)
	for id, l := range g.lines {
		if l.Number(v) != NoLine {
			out[id] = true
		}
	}
	return out
}
