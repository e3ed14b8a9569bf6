// Package mcp serves a saved multi-version graph over the Model Context Protocol.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
)

// ServerName and ServerVersion identify the server to MCP clients.
const (
	ServerName    = "mvicfg-mcp"
	ServerVersion = "1.0.0"
)

// ServerConfig configures an MCPServer.
type ServerConfig struct {
	Source Source
	Watch  bool // reload when the source file changes
	Logger *slog.Logger
}

// MCPServer manages the MCP server lifecycle.
type MCPServer struct {
	querier *Querier
	watcher *FileWatcher
	logger  *slog.Logger
	mcp     *server.MCPServer
}

// NewMCPServer loads the graph and registers the query tool.
func NewMCPServer(ctx context.Context, config *ServerConfig) (*MCPServer, error) {
	if config == nil || config.Source == nil {
		return nil, fmt.Errorf("graph source is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	querier, err := NewQuerier(ctx, config.Source, logger)
	if err != nil {
		return nil, err
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
	)
	AddQueryTool(mcpServer, querier)

	s := &MCPServer{querier: querier, logger: logger, mcp: mcpServer}
	if config.Watch {
		s.watcher, err = NewFileWatcher(querier, config.Source.Path(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
	}
	return s, nil
}

// Querier returns the server's querier.
func (s *MCPServer) Querier() *Querier {
	return s.querier
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *MCPServer) Serve(ctx context.Context) error {
	if s.watcher != nil {
		s.watcher.Start(ctx)
		defer s.watcher.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting MCP server on stdio")
		if err := server.ServeStdio(s.mcp); err != nil {
			errCh <- fmt.Errorf("MCP server error: %w", err)
		}
	}()

	select {
	case <-sigCh:
		s.logger.Info("received shutdown signal, stopping")
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases all resources.
func (s *MCPServer) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	return nil
}
