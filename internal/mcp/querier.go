package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/merge"
)

var (
	// ErrInvalidRequest indicates missing or malformed query parameters.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound indicates that the named function or line does not exist.
	ErrNotFound = errors.New("not found")
)

// Operation names a query.
type Operation string

const (
	OperationFunctions    Operation = "functions"
	OperationLines        Operation = "lines"
	OperationLineNumber   Operation = "line_number"
	OperationEdges        Operation = "edges"
	OperationSuccessors   Operation = "successors"
	OperationPredecessors Operation = "predecessors"
	OperationReachable    Operation = "reachable"
	OperationPaths        Operation = "paths"
)

// Operations lists every supported operation in documentation order.
var Operations = []Operation{
	OperationFunctions, OperationLines, OperationLineNumber, OperationEdges,
	OperationSuccessors, OperationPredecessors, OperationReachable, OperationPaths,
}

const (
	defaultMaxResults = 100
	maxMaxResults     = 1000
)

// QueryRequest carries the parameters of one query. Version 0 means "any version"
// for filters and "the newest version" where one version is required.
type QueryRequest struct {
	Operation  Operation     `json:"operation"`
	Function   string        `json:"function"`
	File       string        `json:"file"`
	Line       int64         `json:"line"`
	Version    graph.Version `json:"version"`
	From       graph.Version `json:"from"`
	To         graph.Version `json:"to"`
	MaxResults int           `json:"max_results"`
}

// QueryResponse holds the results of a query; only the fields the operation fills are set.
type QueryResponse struct {
	Operation    Operation         `json:"operation"`
	GraphVersion graph.Version     `json:"graph_version"`
	Functions    []FunctionInfo    `json:"functions,omitempty"`
	Lines        []LineInfo        `json:"lines,omitempty"`
	Edges        []EdgeInfo        `json:"edges,omitempty"`
	Instructions []InstructionInfo `json:"instructions,omitempty"`
	Paths        *PathsInfo        `json:"paths,omitempty"`
	Truncated    bool              `json:"truncated,omitempty"`
}

// FunctionInfo describes a function.
type FunctionInfo struct {
	ID       graph.ID `json:"id"`
	Name     string   `json:"name"`
	File     string   `json:"file"`
	External bool     `json:"external,omitempty"`
	Lines    int      `json:"lines"`
}

// LineInfo describes a line and its number in every version.
type LineInfo struct {
	ID           graph.ID                `json:"id"`
	Function     string                  `json:"function"`
	Kind         string                  `json:"kind"`
	Numbers      map[graph.Version]int64 `json:"numbers"`
	Instructions []string                `json:"instructions,omitempty"`
}

// EdgeInfo describes an edge between two instructions.
type EdgeInfo struct {
	ID       graph.ID        `json:"id"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Type     string          `json:"type"`
	Versions []graph.Version `json:"versions"`
}

// InstructionInfo describes an instruction.
type InstructionInfo struct {
	ID    graph.ID `json:"id"`
	Label string   `json:"label"`
	Line  int64    `json:"line"`
}

// PathsInfo reports path counts over the lines added and deleted between two versions.
type PathsInfo struct {
	From         graph.Version `json:"from"`
	To           graph.Version `json:"to"`
	AddedLines   int           `json:"added_lines"`
	AddedPaths   int           `json:"added_paths"`
	DeletedLines int           `json:"deleted_lines"`
	DeletedPaths int           `json:"deleted_paths"`
	Unreachable  int           `json:"unreachable"`
}

// Querier answers queries against the most recently loaded graph.
type Querier struct {
	source Source
	logger *slog.Logger

	mu sync.RWMutex
	g  *graph.Graph
}

// NewQuerier loads the graph from source.
func NewQuerier(ctx context.Context, source Source, logger *slog.Logger) (*Querier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Querier{source: source, logger: logger}
	if err := q.Reload(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// Reload replaces the graph with a fresh load. The old graph stays in place on failure.
func (q *Querier) Reload(ctx context.Context) error {
	g, err := q.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load graph from %s: %w", q.source.Path(), err)
	}

	q.mu.Lock()
	q.g = g
	q.mu.Unlock()

	instructions, edges := g.Counts()
	q.logger.Info("graph loaded", "path", q.source.Path(), "version", g.Version(),
		"instructions", instructions, "edges", edges)
	return nil
}

// Graph returns the current graph.
func (q *Querier) Graph() *graph.Graph {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.g
}

// Query executes req against the current graph.
func (q *Querier) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := q.Graph()

	limit := req.MaxResults
	switch {
	case limit <= 0:
		limit = defaultMaxResults
	case limit > maxMaxResults:
		limit = maxMaxResults
	}
	resp := &QueryResponse{Operation: req.Operation, GraphVersion: g.Version()}

	var err error
	switch req.Operation {
	case OperationFunctions:
		err = queryFunctions(g, req, resp)
	case OperationLines:
		err = queryLines(g, req, resp)
	case OperationLineNumber:
		err = queryLineNumber(g, req, resp)
	case OperationEdges:
		err = queryEdges(g, req, resp)
	case OperationSuccessors, OperationPredecessors:
		err = queryNeighbours(g, req, resp)
	case OperationReachable:
		err = queryReachable(g, req, resp)
	case OperationPaths:
		err = queryPaths(g, req, resp)
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, req.Operation)
	}
	if err != nil {
		return nil, err
	}

	resp.truncate(limit)
	return resp, nil
}

func (r *QueryResponse) truncate(limit int) {
	if len(r.Functions) > limit {
		r.Functions, r.Truncated = r.Functions[:limit], true
	}
	if len(r.Lines) > limit {
		r.Lines, r.Truncated = r.Lines[:limit], true
	}
	if len(r.Edges) > limit {
		r.Edges, r.Truncated = r.Edges[:limit], true
	}
	if len(r.Instructions) > limit {
		r.Instructions, r.Truncated = r.Instructions[:limit], true
	}
}

func queryFunctions(g *graph.Graph, req *QueryRequest, resp *QueryResponse) error {
	for _, fn := range g.Functions() {
		if req.File != "" && !graph.SameFile(fn.File, req.File) {
			continue
		}
		if req.Version != 0 && !functionExists(g, fn, req.Version) {
			continue
		}
		resp.Functions = append(resp.Functions, FunctionInfo{
			ID:       fn.ID,
			Name:     fn.Name,
			File:     fn.File,
			External: fn.External,
			Lines:    len(fn.Lines()),
		})
	}
	return nil
}

func functionExists(g *graph.Graph, fn *graph.Function, v graph.Version) bool {
	for _, id := range fn.Lines() {
		if g.Line(id).Number(v) != graph.NoLine {
			return true
		}
	}
	return false
}

func queryLines(g *graph.Graph, req *QueryRequest, resp *QueryResponse) error {
	fn, err := lookupFunction(g, req)
	if err != nil {
		return err
	}
	for _, id := range fn.Lines() {
		l := g.Line(id)
		if req.Version != 0 && l.Number(req.Version) == graph.NoLine {
			continue
		}
		resp.Lines = append(resp.Lines, lineInfo(g, l))
	}
	return nil
}

func queryLineNumber(g *graph.Graph, req *QueryRequest, resp *QueryResponse) error {
	lines, err := lookupLines(g, req)
	if err != nil {
		return err
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, lineInfo(g, l))
	}
	return nil
}

func queryNeighbours(g *graph.Graph, req *QueryRequest, resp *QueryResponse) error {
	lines, err := lookupLines(g, req)
	if err != nil {
		return err
	}
	v := versionOrLatest(g, req.Version)

	seen := make(map[graph.ID]bool)
	for _, l := range lines {
		for _, n := range activeNeighbours(g, l, v, req.Operation == OperationSuccessors) {
			if !seen[n.ID] {
				seen[n.ID] = true
				resp.Lines = append(resp.Lines, lineInfo(g, n))
			}
		}
	}
	return nil
}

// activeNeighbours follows edges active in v out of l's last instruction or
// into l's first instruction.
func activeNeighbours(g *graph.Graph, l *graph.Line, v graph.Version, forward bool) []*graph.Line {
	var out []*graph.Line
	seen := make(map[graph.ID]bool)
	add := func(inst graph.ID) {
		other := g.LineOf(g.Instruction(inst))
		if other != nil && !seen[other.ID] && other.Number(v) != graph.NoLine {
			seen[other.ID] = true
			out = append(out, other)
		}
	}
	if forward {
		for _, e := range g.Outgoing(l.Last()) {
			if e.ActiveIn(v) {
				add(e.To)
			}
		}
		return out
	}
	for _, e := range g.Incoming(l.First()) {
		if e.ActiveIn(v) {
			add(e.From)
		}
	}
	return out
}

func queryEdges(g *graph.Graph, req *QueryRequest, resp *QueryResponse) error {
	fn, err := lookupFunction(g, req)
	if err != nil {
		return err
	}
	for e := range g.WalkEdges(fn) {
		if req.Version != 0 && !e.ActiveIn(req.Version) {
			continue
		}
		resp.Edges = append(resp.Edges, EdgeInfo{
			ID:       e.ID,
			From:     g.Instruction(e.From).Label,
			To:       g.Instruction(e.To).Label,
			Type:     e.Type.String(),
			Versions: e.Versions(),
		})
	}
	return nil
}

func queryReachable(g *graph.Graph, req *QueryRequest, resp *QueryResponse) error {
	fn, err := lookupFunction(g, req)
	if err != nil {
		return err
	}
	v := versionOrLatest(g, req.Version)
	ids, err := g.Reachable(fn, v)
	if err != nil {
		return err
	}
	for _, id := range ids {
		inst := g.Instruction(id)
		resp.Instructions = append(resp.Instructions, InstructionInfo{
			ID:    id,
			Label: inst.Label,
			Line:  g.LineOf(inst).Number(v),
		})
	}
	return nil
}

func queryPaths(g *graph.Graph, req *QueryRequest, resp *QueryResponse) error {
	to := versionOrLatest(g, req.To)
	from := req.From
	if from == 0 && to > 1 {
		from = to - 1
	}
	if from == 0 || from >= to || to > g.Version() {
		return fmt.Errorf("%w: need 0 < from < to <= %d, got from=%d to=%d", ErrInvalidRequest, g.Version(), from, to)
	}

	added := merge.AddedPaths(g, from, to)
	deleted := merge.DeletedPaths(g, from, to)
	resp.Paths = &PathsInfo{
		From:         from,
		To:           to,
		AddedLines:   len(added.Lines),
		AddedPaths:   added.Paths,
		DeletedLines: len(deleted.Lines),
		DeletedPaths: deleted.Paths,
		Unreachable:  len(added.Unreachable) + len(deleted.Unreachable),
	}
	return nil
}

func versionOrLatest(g *graph.Graph, v graph.Version) graph.Version {
	if v == 0 {
		return g.Version()
	}
	return v
}

// lookupFunction finds req.Function, preferring one declared in req.File.
func lookupFunction(g *graph.Graph, req *QueryRequest) (*graph.Function, error) {
	if req.Function == "" {
		return nil, fmt.Errorf("%w: function is required for %s", ErrInvalidRequest, req.Operation)
	}
	var first *graph.Function
	for _, fn := range g.Functions() {
		if fn.Name != req.Function {
			continue
		}
		if req.File == "" || graph.SameFile(fn.File, req.File) {
			return fn, nil
		}
		if first == nil {
			first = fn
		}
	}
	if first == nil {
		return nil, fmt.Errorf("%w: function %s", ErrNotFound, req.Function)
	}
	return first, nil
}

// lookupLines finds the lines numbered req.Line in req.File at the requested version.
func lookupLines(g *graph.Graph, req *QueryRequest) ([]*graph.Line, error) {
	if req.File == "" || req.Line <= 0 {
		return nil, fmt.Errorf("%w: file and a positive line are required for %s", ErrInvalidRequest, req.Operation)
	}
	v := versionOrLatest(g, req.Version)
	lines := g.LinesAt(req.File, req.Line, v)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s:%d in version %d", ErrNotFound, req.File, req.Line, v)
	}
	return lines, nil
}

func lineInfo(g *graph.Graph, l *graph.Line) LineInfo {
	info := LineInfo{
		ID:       l.ID,
		Function: g.FunctionOf(l).Name,
		Kind:     l.Kind.String(),
		Numbers:  l.Numbers(),
	}
	for _, id := range l.Instructions() {
		info.Instructions = append(info.Instructions, g.Instruction(id).Label)
	}
	return info
}
