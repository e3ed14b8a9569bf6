package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mvp-joe/mvicfg/internal/graph"
	"github.com/mvp-joe/mvicfg/internal/storage"
)

// Source loads the graph served by the query tool.
type Source interface {
	// Load returns the current graph. Returns storage.ErrNoGraph when nothing has been saved.
	Load(ctx context.Context) (*graph.Graph, error)

	// Path is the file whose changes should trigger a reload.
	Path() string
}

// SQLiteSource reads the most recent run from a graph database.
type SQLiteSource struct {
	dbPath string
}

// NewSQLiteSource creates a source over the database at dbPath.
func NewSQLiteSource(dbPath string) *SQLiteSource {
	return &SQLiteSource{dbPath: dbPath}
}

// Load implements Source.
func (s *SQLiteSource) Load(ctx context.Context) (*graph.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.dbPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", storage.ErrNoGraph, s.dbPath)
	}

	reader, err := storage.NewGraphReader(s.dbPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	g, _, err := reader.ReadLatest()
	return g, err
}

// Path implements Source.
func (s *SQLiteSource) Path() string { return s.dbPath }

// SnapshotSource reads a JSON snapshot written by graph.Storage.
type SnapshotSource struct {
	store graph.Storage
}

// NewSnapshotSource creates a source over the snapshot in dir.
func NewSnapshotSource(dir string) (*SnapshotSource, error) {
	store, err := graph.NewStorage(dir)
	if err != nil {
		return nil, err
	}
	return &SnapshotSource{store: store}, nil
}

// Load implements Source.
func (s *SnapshotSource) Load(ctx context.Context) (*graph.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: %s does not exist", storage.ErrNoGraph, s.store.Path())
	}
	return g, nil
}

// Path implements Source.
func (s *SnapshotSource) Path() string { return s.store.Path() }
