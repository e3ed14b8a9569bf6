package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// QueryToolName is the name the query tool is registered under.
const QueryToolName = "mvicfg_query"

// GraphQuerier is the interface for graph query operations.
type GraphQuerier interface {
	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)
}

// AddQueryTool registers the mvicfg_query tool with an MCP server.
func AddQueryTool(s *server.MCPServer, querier GraphQuerier) {
	names := make([]string, len(Operations))
	for i, op := range Operations {
		names[i] = string(op)
	}

	tool := mcp.NewTool(
		QueryToolName,
		mcp.WithDescription("Query a multi-version control flow graph. Lines carry their number in every version and edges list the versions they exist in. "+
			"Operations: functions (list functions), lines (lines of a function), line_number (a line's number across versions), "+
			"edges (edges reachable from a function entry), successors/predecessors (neighbouring lines of file:line), "+
			"reachable (instructions reachable from a function entry in one version), paths (path counts over lines added and deleted between two versions)."),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Enum(names...),
			mcp.Description("Query to run: "+strings.Join(names, ", "))),
		mcp.WithString("function",
			mcp.Description("Function name (lines, edges, reachable)")),
		mcp.WithString("file",
			mcp.Description("Source file; only the base name is compared")),
		mcp.WithNumber("line",
			mcp.Description("Line number in the chosen version (line_number, successors, predecessors)")),
		mcp.WithNumber("version",
			mcp.Description("Version to look at (default: newest, or any version for filters)")),
		mcp.WithNumber("from",
			mcp.Description("Older version for paths (default: to - 1)")),
		mcp.WithNumber("to",
			mcp.Description("Newer version for paths (default: newest)")),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return (default: 100, max: 1000)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, createQueryHandler(querier))
}

// createQueryHandler creates the handler function for the query tool.
func createQueryHandler(querier GraphQuerier) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req QueryRequest
		if err := bindArguments(request, &req); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if req.Operation == "" {
			return mcp.NewToolResultError("operation parameter is required"), nil
		}

		response, err := querier.Query(ctx, &req)
		if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err != nil {
			return nil, fmt.Errorf("graph query failed: %w", err)
		}

		return marshalToolResponse(response)
	}
}

// marshalToolResponse marshals a response object to JSON and returns it as an MCP tool result.
func marshalToolResponse(response any) (*mcp.CallToolResult, error) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
