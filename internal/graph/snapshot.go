package graph

import (
	"fmt"
	"time"
)

// SnapshotFormat is the current version of the snapshot format.
const SnapshotFormat = "1.0"

// Snapshot is the serialized form of a Graph. Nested records keep each line
// with its function and each instruction with its line.
type Snapshot struct {
	Version   Version          `json:"version"`
	LastID    ID               `json:"last_id"`
	Config    Config           `json:"config"`
	Functions []FunctionRecord `json:"functions"`
	Edges     []EdgeRecord     `json:"edges"`
	Metadata  SnapshotMetadata `json:"metadata"`
}

// SnapshotMetadata describes when and how a snapshot was written.
type SnapshotMetadata struct {
	Format           string    `json:"format"`
	GeneratedAt      time.Time `json:"generated_at"`
	InstructionCount int       `json:"instruction_count"`
	EdgeCount        int       `json:"edge_count"`
}

// FunctionRecord is the serialized form of a Function and its lines.
type FunctionRecord struct {
	ID       ID           `json:"id"`
	Name     string       `json:"name"`
	File     string       `json:"file"`
	External bool         `json:"external,omitempty"`
	Lines    []LineRecord `json:"lines"`
}

// LineRecord is the serialized form of a Line.
type LineRecord struct {
	ID           ID                  `json:"id"`
	Kind         LineKind            `json:"kind"`
	Numbers      map[Version]int64   `json:"numbers"`
	Instructions []InstructionRecord `json:"instructions"`
}

// InstructionRecord is the serialized form of an Instruction.
type InstructionRecord struct {
	ID     ID     `json:"id"`
	Label  string `json:"label"`
	Opcode string `json:"opcode,omitempty"`
	Origin Origin `json:"origin"`
}

// EdgeRecord is the serialized form of an Edge.
type EdgeRecord struct {
	ID       ID        `json:"id"`
	From     ID        `json:"from"`
	To       ID        `json:"to"`
	Type     EdgeType  `json:"type"`
	Versions []Version `json:"versions"`
}

// Snapshot captures the complete graph state.
func (g *Graph) Snapshot() *Snapshot {
	s := &Snapshot{
		Version: g.version,
		LastID:  g.lastID,
		Config:  g.config,
	}

	for _, fn := range g.Functions() {
		rec := FunctionRecord{ID: fn.ID, Name: fn.Name, File: fn.File, External: fn.External}
		for _, lineID := range fn.lines {
			l := g.lines[lineID]
			lr := LineRecord{ID: l.ID, Kind: l.Kind, Numbers: l.Numbers()}
			for _, instID := range l.instructions {
				inst := g.instructions[instID]
				lr.Instructions = append(lr.Instructions, InstructionRecord{
					ID:     inst.ID,
					Label:  inst.Label,
					Opcode: inst.Opcode,
					Origin: inst.Origin,
				})
			}
			rec.Lines = append(rec.Lines, lr)
		}
		s.Functions = append(s.Functions, rec)
	}

	for _, e := range g.Edges() {
		s.Edges = append(s.Edges, EdgeRecord{
			ID:       e.ID,
			From:     e.From,
			To:       e.To,
			Type:     e.Type,
			Versions: e.Versions(),
		})
	}

	s.Metadata = SnapshotMetadata{
		Format:           SnapshotFormat,
		InstructionCount: len(g.instructions),
		EdgeCount:        len(g.edges),
	}
	return s
}

// FromSnapshot rebuilds a Graph from a snapshot, preserving every ID.
func FromSnapshot(s *Snapshot) (*Graph, error) {
	g := New(s.Version, s.Config)
	g.lastID = s.LastID

	seen := make(map[ID]bool)
	claim := func(id ID) error {
		if id == 0 || id > s.LastID {
			return fmt.Errorf("id %d out of range (last id %d)", id, s.LastID)
		}
		if seen[id] {
			return fmt.Errorf("duplicate id %d", id)
		}
		seen[id] = true
		return nil
	}

	for _, fr := range s.Functions {
		if err := claim(fr.ID); err != nil {
			return nil, fmt.Errorf("function %s: %w", fr.Name, err)
		}
		fn := &Function{ID: fr.ID, Name: fr.Name, File: fr.File, External: fr.External}
		g.functions[fn.ID] = fn
		g.functionOrder = append(g.functionOrder, fn.ID)

		for _, lr := range fr.Lines {
			if err := claim(lr.ID); err != nil {
				return nil, fmt.Errorf("function %s line: %w", fr.Name, err)
			}
			l := &Line{ID: lr.ID, Function: fn.ID, Kind: lr.Kind, numbers: make(map[Version]int64, len(lr.Numbers))}
			for v, n := range lr.Numbers {
				l.numbers[v] = n
			}
			g.lines[l.ID] = l
			fn.lines = append(fn.lines, l.ID)
			switch l.Kind {
			case LineEntry:
				fn.Entry = l.ID
			case LineExit:
				fn.Exit = l.ID
			}

			for _, ir := range lr.Instructions {
				if err := claim(ir.ID); err != nil {
					return nil, fmt.Errorf("function %s instruction: %w", fr.Name, err)
				}
				inst := &Instruction{ID: ir.ID, Line: l.ID, Label: ir.Label, Opcode: ir.Opcode, Origin: ir.Origin}
				g.instructions[inst.ID] = inst
				l.instructions = append(l.instructions, inst.ID)
				if !inst.Origin.IsZero() {
					if _, ok := g.byOrigin[inst.Origin]; !ok {
						g.byOrigin[inst.Origin] = inst.ID
					}
				}
			}
		}
	}

	for _, er := range s.Edges {
		if err := claim(er.ID); err != nil {
			return nil, fmt.Errorf("edge: %w", err)
		}
		src, dst := g.instructions[er.From], g.instructions[er.To]
		if src == nil || dst == nil {
			return nil, fmt.Errorf("edge %d references unknown instruction", er.ID)
		}
		e := &Edge{ID: er.ID, From: er.From, To: er.To, Type: er.Type, versions: append([]Version(nil), er.Versions...)}
		g.edges[e.ID] = e
		g.edgeOrder = append(g.edgeOrder, e.ID)
		src.edges = append(src.edges, e.ID)
		if er.From != er.To {
			dst.edges = append(dst.edges, e.ID)
		}
	}

	return g, nil
}
