package graph

import (
	"errors"
	"fmt"
	"slices"
)

// ErrVersionRegression is returned when a graph is asked to move to an older version.
var ErrVersionRegression = errors.New("graph version must increase")

// Function groups line nodes in program order.
type Function struct {
	ID       ID
	Name     string
	File     string
	External bool

	// Entry and Exit are the virtual line nodes, zero when absent.
	Entry ID
	Exit  ID

	lines []ID
}

// Lines returns the function's line IDs in program order. The slice must not be modified.
func (f *Function) Lines() []ID {
	return f.lines
}

// Line groups the instructions of one source line and tracks its number per version.
type Line struct {
	ID       ID
	Function ID
	Kind     LineKind

	numbers      map[Version]int64
	instructions []ID
}

// Number returns the line number in version v, or NoLine if the line does not exist there.
func (l *Line) Number(v Version) int64 {
	return l.numbers[v]
}

// HasNumber reports whether an entry for v has been recorded, including an explicit NoLine.
func (l *Line) HasNumber(v Version) bool {
	_, ok := l.numbers[v]
	return ok
}

// Numbers returns a copy of the version to line-number map.
func (l *Line) Numbers() map[Version]int64 {
	out := make(map[Version]int64, len(l.numbers))
	for v, n := range l.numbers {
		out[v] = n
	}
	return out
}

// Virtual reports whether l is a synthetic entry or exit line.
func (l *Line) Virtual() bool {
	return l.Kind != LineSource
}

// Instructions returns the instruction IDs in order. The slice must not be modified.
func (l *Line) Instructions() []ID {
	return l.instructions
}

// First returns the first instruction, the attachment point for incoming cross-line edges.
func (l *Line) First() ID {
	if len(l.instructions) == 0 {
		return 0
	}
	return l.instructions[0]
}

// Last returns the last instruction, the attachment point for outgoing cross-line edges.
func (l *Line) Last() ID {
	if len(l.instructions) == 0 {
		return 0
	}
	return l.instructions[len(l.instructions)-1]
}

// Instruction is the atomic node of the graph.
type Instruction struct {
	ID     ID
	Line   ID
	Label  string
	Opcode string
	Origin Origin

	edges []ID
}

// Virtual reports whether the instruction is synthetic.
func (i *Instruction) Virtual() bool {
	return i.Origin.IsZero()
}

// Edges returns the IDs of all edges touching the instruction. The slice must not be modified.
func (i *Instruction) Edges() []ID {
	return i.edges
}

// Edge is a directed link between two instructions.
type Edge struct {
	ID   ID
	From ID
	To   ID
	Type EdgeType

	versions []Version
}

// Versions returns a copy of the versions the edge is active in, in insertion order.
func (e *Edge) Versions() []Version {
	return slices.Clone(e.versions)
}

// ActiveIn reports whether the edge is active in version v.
func (e *Edge) ActiveIn(v Version) bool {
	return slices.Contains(e.versions, v)
}

// Graph is an append-only arena of functions, lines, instructions and edges.
// Nothing is ever removed: a line deleted in some version keeps its node and
// carries NoLine for that version. Graph is not safe for concurrent mutation.
type Graph struct {
	config  Config
	version Version
	lastID  ID

	functionOrder []ID
	functions     map[ID]*Function
	lines         map[ID]*Line
	instructions  map[ID]*Instruction
	edges         map[ID]*Edge
	edgeOrder     []ID

	byOrigin map[Origin]ID
}

// New creates an empty graph stamped with version.
func New(version Version, cfg Config) *Graph {
	return &Graph{
		config:       cfg,
		version:      version,
		functions:    make(map[ID]*Function),
		lines:        make(map[ID]*Line),
		instructions: make(map[ID]*Instruction),
		edges:        make(map[ID]*Edge),
		byOrigin:     make(map[Origin]ID),
	}
}

// Config returns the graph configuration.
func (g *Graph) Config() Config {
	return g.config
}

// Version returns the current version stamp.
func (g *Graph) Version() Version {
	return g.version
}

// SetVersion advances the current version stamp.
func (g *Graph) SetVersion(v Version) error {
	if v <= g.version {
		return fmt.Errorf("%w: %d -> %d", ErrVersionRegression, g.version, v)
	}
	g.version = v
	return nil
}

func (g *Graph) nextID() ID {
	g.lastID++
	return g.lastID
}

// AddFunction appends a new, empty function.
func (g *Graph) AddFunction(name, file string) *Function {
	fn := &Function{ID: g.nextID(), Name: name, File: file}
	g.functions[fn.ID] = fn
	g.functionOrder = append(g.functionOrder, fn.ID)
	return fn
}

// Function returns the function with the given ID, or nil.
func (g *Graph) Function(id ID) *Function {
	return g.functions[id]
}

// Functions returns all functions in creation order.
func (g *Graph) Functions() []*Function {
	out := make([]*Function, 0, len(g.functionOrder))
	for _, id := range g.functionOrder {
		out = append(out, g.functions[id])
	}
	return out
}

// FunctionByName returns the first function with the given name, or nil.
func (g *Graph) FunctionByName(name string) *Function {
	for _, id := range g.functionOrder {
		if fn := g.functions[id]; fn.Name == name {
			return fn
		}
	}
	return nil
}

// AddLine creates a line of the given kind in fn. Entry lines are placed first,
// other lines are appended. Entry and exit lines also become fn.Entry and fn.Exit.
func (g *Graph) AddLine(fn *Function, kind LineKind) *Line {
	line := &Line{
		ID:       g.nextID(),
		Function: fn.ID,
		Kind:     kind,
		numbers:  make(map[Version]int64),
	}
	g.lines[line.ID] = line

	switch kind {
	case LineEntry:
		fn.lines = slices.Insert(fn.lines, 0, line.ID)
		fn.Entry = line.ID
	case LineExit:
		fn.lines = append(fn.lines, line.ID)
		fn.Exit = line.ID
	default:
		fn.lines = append(fn.lines, line.ID)
	}
	return line
}

// InsertLineBefore creates a source line in fn directly before the line with ID before.
// If before is not part of fn the line is appended.
func (g *Graph) InsertLineBefore(fn *Function, before ID) *Line {
	line := &Line{
		ID:       g.nextID(),
		Function: fn.ID,
		Kind:     LineSource,
		numbers:  make(map[Version]int64),
	}
	g.lines[line.ID] = line

	if i := slices.Index(fn.lines, before); i >= 0 {
		fn.lines = slices.Insert(fn.lines, i, line.ID)
	} else {
		fn.lines = append(fn.lines, line.ID)
	}
	return line
}

// Line returns the line with the given ID, or nil.
func (g *Graph) Line(id ID) *Line {
	return g.lines[id]
}

// FunctionOf returns the function owning the line.
func (g *Graph) FunctionOf(l *Line) *Function {
	return g.functions[l.Function]
}

// SetLineNumber records n as the line's number in version v. An existing entry is
// never overwritten so earlier versions stay stable; the return value reports
// whether the entry was written.
func (g *Graph) SetLineNumber(l *Line, v Version, n int64) bool {
	if _, ok := l.numbers[v]; ok {
		return false
	}
	l.numbers[v] = n
	return true
}

// AddInstruction appends an instruction to the line.
func (g *Graph) AddInstruction(l *Line, label, opcode string, origin Origin) *Instruction {
	inst := &Instruction{
		ID:     g.nextID(),
		Line:   l.ID,
		Label:  label,
		Opcode: opcode,
		Origin: origin,
	}
	g.instructions[inst.ID] = inst
	l.instructions = append(l.instructions, inst.ID)
	if !origin.IsZero() {
		if _, ok := g.byOrigin[origin]; !ok {
			g.byOrigin[origin] = inst.ID
		}
	}
	return inst
}

// Instruction returns the instruction with the given ID, or nil.
func (g *Graph) Instruction(id ID) *Instruction {
	return g.instructions[id]
}

// InstructionByOrigin returns the first instruction created from origin, or nil.
func (g *Graph) InstructionByOrigin(o Origin) *Instruction {
	if o.IsZero() {
		return nil
	}
	id, ok := g.byOrigin[o]
	if !ok {
		return nil
	}
	return g.instructions[id]
}

// LineOf returns the line owning the instruction.
func (g *Graph) LineOf(inst *Instruction) *Line {
	return g.lines[inst.Line]
}

// AddEdge creates a new edge active in version v.
func (g *Graph) AddEdge(from, to ID, typ EdgeType, v Version) *Edge {
	e := &Edge{ID: g.nextID(), From: from, To: to, Type: typ, versions: []Version{v}}
	g.edges[e.ID] = e
	g.edgeOrder = append(g.edgeOrder, e.ID)

	if src := g.instructions[from]; src != nil {
		src.edges = append(src.edges, e.ID)
	}
	if from != to {
		if dst := g.instructions[to]; dst != nil {
			dst.edges = append(dst.edges, e.ID)
		}
	}
	return e
}

// AddEdgeVersion marks e active in v. It reports whether v was newly added.
func (g *Graph) AddEdgeVersion(e *Edge, v Version) bool {
	if slices.Contains(e.versions, v) {
		return false
	}
	e.versions = append(e.versions, v)
	return true
}

// Edge returns the edge with the given ID, or nil.
func (g *Graph) Edge(id ID) *Edge {
	return g.edges[id]
}

// Edges returns all edges in creation order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, g.edges[id])
	}
	return out
}

// Outgoing returns the edges leaving the instruction.
func (g *Graph) Outgoing(inst ID) []*Edge {
	return g.edgesOf(inst, func(e *Edge) bool { return e.From == inst })
}

// Incoming returns the edges entering the instruction.
func (g *Graph) Incoming(inst ID) []*Edge {
	return g.edgesOf(inst, func(e *Edge) bool { return e.To == inst })
}

func (g *Graph) edgesOf(inst ID, keep func(*Edge) bool) []*Edge {
	node := g.instructions[inst]
	if node == nil {
		return nil
	}
	var out []*Edge
	for _, id := range node.edges {
		if e := g.edges[id]; keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// FindEdge returns the first edge from -> to. With no types given any type matches,
// otherwise the edge type must be one of types.
func (g *Graph) FindEdge(from, to ID, types ...EdgeType) *Edge {
	src := g.instructions[from]
	if src == nil {
		return nil
	}
	for _, id := range src.edges {
		e := g.edges[id]
		if e.From != from || e.To != to {
			continue
		}
		if len(types) == 0 || slices.Contains(types, e.Type) {
			return e
		}
	}
	return nil
}

// EdgeBetweenLines returns the first edge from any instruction of from to any
// instruction of to. from is scanned backwards and to forwards, so edges
// attached at the usual cross-line points are found first.
func (g *Graph) EdgeBetweenLines(from, to *Line) *Edge {
	for i := len(from.instructions) - 1; i >= 0; i-- {
		for _, dst := range to.instructions {
			if e := g.FindEdge(from.instructions[i], dst); e != nil {
				return e
			}
		}
	}
	return nil
}

// Counts reports the number of instructions and edges.
func (g *Graph) Counts() (instructions, edges int) {
	return len(g.instructions), len(g.edges)
}
