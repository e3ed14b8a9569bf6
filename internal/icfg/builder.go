package icfg

import (
	"log/slog"

	"github.com/mvp-joe/mvicfg/internal/graph"
)

// ExternalLabel is the label of the shared external node instruction.
const ExternalLabel = "External_Node"

// Option configures Build.
type Option func(*builder)

// WithLogger sets the logger for unresolved call diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

type builder struct {
	doc     *Document
	version graph.Version
	g       *graph.Graph
	logger  *slog.Logger

	byKey    map[string]*graph.Instruction
	irByID   map[graph.ID]Instruction
	external *graph.Instruction
}

// Build turns an IR document into a graph stamped entirely with version.
//
// Consecutive instructions with the same source line form one line node;
// instructions without a line join the current line. Functions without
// instructions are declarations and are skipped. Every defined function gets
// a virtual entry and exit line, and a shared external node receives calls
// to unknown targets.
func Build(doc *Document, version graph.Version, cfg graph.Config, opts ...Option) (*graph.Graph, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	b := &builder{
		doc:     doc,
		version: version,
		g:       graph.New(version, cfg),
		logger:  slog.Default(),
		byKey:   make(map[string]*graph.Instruction),
		irByID:  make(map[graph.ID]Instruction),
	}
	for _, opt := range opts {
		opt(b)
	}

	var defined []*graph.Function
	for _, fn := range doc.Functions {
		if len(fn.Instructions) == 0 {
			continue
		}
		defined = append(defined, b.addFunction(fn))
	}
	for _, fn := range defined {
		b.addBranchEdges(fn)
	}
	b.addExternalNode()
	b.addCallEdges()

	return b.g, nil
}

// addFunction creates the function's lines with intra-line sequential edges
// and its virtual entry/exit.
func (b *builder) addFunction(ir Function) *graph.Function {
	fn := b.g.AddFunction(ir.Name, ir.File)

	var current *graph.Line
	var currentNum int64
	var pending []Instruction
	for _, inst := range ir.Instructions {
		if inst.Line == graph.NoLine {
			if current == nil {
				pending = append(pending, inst)
				continue
			}
		} else if current == nil || inst.Line != currentNum {
			b.addSeqEdges(current)
			current = b.g.AddLine(fn, graph.LineSource)
			currentNum = inst.Line
			b.g.SetLineNumber(current, b.version, currentNum)
			for _, p := range pending {
				b.addInstruction(current, p)
			}
			pending = nil
		}
		b.addInstruction(current, inst)
	}
	if current == nil {
		// No instruction carries a location; keep them on an unnumbered line
		current = b.g.AddLine(fn, graph.LineSource)
		b.g.SetLineNumber(current, b.version, graph.NoLine)
		for _, p := range pending {
			b.addInstruction(current, p)
		}
	}
	b.addSeqEdges(current)

	b.addVirtualNodes(fn)
	return fn
}

func (b *builder) addInstruction(l *graph.Line, ir Instruction) {
	inst := b.g.AddInstruction(l, ir.DisplayLabel(), ir.Opcode, graph.Origin{Version: b.version, Key: ir.Key})
	b.byKey[ir.Key] = inst
	b.irByID[inst.ID] = ir
}

// addSeqEdges links consecutive instructions of a line, except out of terminators.
func (b *builder) addSeqEdges(l *graph.Line) {
	if l == nil {
		return
	}
	insts := l.Instructions()
	for i := 0; i+1 < len(insts); i++ {
		if b.irByID[insts[i]].Terminator {
			continue
		}
		b.g.AddEdge(insts[i], insts[i+1], graph.EdgeSequential, b.version)
	}
}

func (b *builder) addVirtualNodes(fn *graph.Function) {
	lines := fn.Lines()
	first := b.g.Line(lines[0]).First()
	last := b.g.Line(lines[len(lines)-1]).Last()

	entry := b.g.AddLine(fn, graph.LineEntry)
	b.g.SetLineNumber(entry, b.version, graph.EntryLine)
	entryInst := b.g.AddInstruction(entry, "Entry::"+fn.Name, "", graph.Origin{})
	b.g.AddEdge(entryInst.ID, first, graph.EdgeVirtual, b.version)

	exit := b.g.AddLine(fn, graph.LineExit)
	b.g.SetLineNumber(exit, b.version, graph.ExitLine)
	exitInst := b.g.AddInstruction(exit, "Exit::"+fn.Name, "", graph.Origin{})
	b.g.AddEdge(last, exitInst.ID, graph.EdgeVirtual, b.version)
}

// addBranchEdges adds terminator -> successor head edges, and a sequential
// edge from a non-terminating line end to the next line.
func (b *builder) addBranchEdges(fn *graph.Function) {
	var source []*graph.Line
	for _, id := range fn.Lines() {
		if l := b.g.Line(id); !l.Virtual() {
			source = append(source, l)
		}
	}

	for i, l := range source {
		insts := l.Instructions()
		for j, id := range insts {
			ir := b.irByID[id]
			if ir.Terminator {
				for _, succ := range ir.Successors {
					b.g.AddEdge(id, b.byKey[succ].ID, graph.EdgeBranch, b.version)
				}
				continue
			}
			if j == len(insts)-1 && i+1 < len(source) {
				b.g.AddEdge(id, source[i+1].First(), graph.EdgeSequential, b.version)
			}
		}
	}
}

func (b *builder) addExternalNode() {
	cfg := b.g.Config()
	fn := b.g.AddFunction(cfg.ExternalFunction, cfg.ExternalFile)
	fn.External = true
	line := b.g.AddLine(fn, graph.LineEntry)
	b.g.SetLineNumber(line, b.version, graph.EntryLine)
	b.external = b.g.AddInstruction(line, ExternalLabel, "", graph.Origin{})
}

// addCallEdges wires call sites to callee entry/exit, or to the external node.
func (b *builder) addCallEdges() {
	cfg := b.g.Config()
	reported := make(map[string]bool)

	for _, fn := range b.g.Functions() {
		for _, lineID := range fn.Lines() {
			for _, id := range b.g.Line(lineID).Instructions() {
				ir, ok := b.irByID[id]
				if !ok || !ir.IsCall() || ir.Intrinsic {
					continue
				}
				if ir.External || ir.Callee == "" {
					b.g.AddEdge(id, b.external.ID, graph.EdgeExternalCall, b.version)
					continue
				}
				if cfg.IsWhitelisted(ir.Callee) {
					continue
				}

				entry := b.g.VirtualLine(ir.Callee, graph.LineEntry)
				exit := b.g.VirtualLine(ir.Callee, graph.LineExit)
				if entry != nil {
					b.g.AddEdge(id, entry.First(), graph.EdgeCall, b.version)
				}
				if exit != nil {
					b.g.AddEdge(exit.Last(), id, graph.EdgeCall, b.version)
				}
				if (entry == nil || exit == nil) && !reported[ir.Callee] {
					reported[ir.Callee] = true
					b.logger.Warn("call edges not formed",
						"callee", ir.Callee,
						"caller", fn.Name,
						"missing_entry", entry == nil,
						"missing_exit", exit == nil,
						"version", b.version)
				}
			}
		}
	}
}
