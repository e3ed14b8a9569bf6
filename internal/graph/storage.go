package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// GraphFileName is the name of the graph snapshot file.
const GraphFileName = "mvicfg.json"

// Storage handles reading and writing graph snapshots to disk.
type Storage interface {
	// Load loads the graph from disk. Returns nil if the file doesn't exist.
	Load() (*Graph, error)

	// Save saves the graph to disk using atomic write pattern.
	Save(g *Graph) error

	// Exists checks if the graph file exists.
	Exists() bool

	// Path returns the snapshot file path.
	Path() string
}

// storage implements Storage with atomic write support.
type storage struct {
	graphDir string
}

// NewStorage creates a new graph storage instance.
func NewStorage(graphDir string) (Storage, error) {
	if err := os.MkdirAll(graphDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create graph directory: %w", err)
	}

	// Temp directory lives next to the target so the rename stays on one filesystem
	tempDir := filepath.Join(graphDir, ".tmp")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &storage{graphDir: graphDir}, nil
}

// Load loads the graph snapshot from disk.
func (s *storage) Load() (*Graph, error) {
	data, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse graph JSON: %w", err)
	}
	if snap.Metadata.Format != SnapshotFormat {
		return nil, fmt.Errorf("unsupported graph format %q", snap.Metadata.Format)
	}

	g, err := FromSnapshot(&snap)
	if err != nil {
		return nil, fmt.Errorf("invalid graph snapshot: %w", err)
	}
	return g, nil
}

// Save saves the graph snapshot to disk using atomic write pattern.
func (s *storage) Save(g *Graph) error {
	snap := g.Snapshot()
	snap.Metadata.GeneratedAt = time.Now()

	jsonData, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	tempPath := filepath.Join(s.graphDir, ".tmp", GraphFileName)
	if err := os.WriteFile(tempPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp graph file: %w", err)
	}

	// Atomic rename (POSIX guarantees atomicity)
	if err := os.Rename(tempPath, s.Path()); err != nil {
		return fmt.Errorf("failed to rename temp graph file: %w", err)
	}

	return nil
}

// Exists checks if the graph file exists.
func (s *storage) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Path returns the full path to the graph file.
func (s *storage) Path() string {
	return filepath.Join(s.graphDir, GraphFileName)
}
