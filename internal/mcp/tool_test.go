package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for mvicfg_query Tool:
// - Arguments are bound from native JSON types
// - String-encoded numbers are coerced to the request field types
// - Missing operation, unknown operation and unknown names are tool errors, not Go errors
// - Successful results are JSON QueryResponse text

func callTool(t *testing.T, q GraphQuerier, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	handler := createQueryHandler(q)
	result, err := handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: QueryToolName, Arguments: args},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) *QueryResponse {
	t.Helper()
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent")

	var resp QueryResponse
	require.NoError(t, json.Unmarshal([]byte(text.Text), &resp))
	return &resp
}

func TestQueryTool_NativeArguments(t *testing.T) {
	t.Parallel()
	q, _ := newTestQuerier(t)

	resp := decodeResult(t, callTool(t, q, map[string]any{
		"operation": "line_number",
		"file":      "main.c",
		"line":      float64(3),
		"version":   float64(2),
	}))
	assert.Equal(t, OperationLineNumber, resp.Operation)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, int64(2), resp.Lines[0].Numbers[1])
}

func TestQueryTool_StringArguments(t *testing.T) {
	t.Parallel()
	q, _ := newTestQuerier(t)

	resp := decodeResult(t, callTool(t, q, map[string]any{
		"operation":   "lines",
		"function":    "main",
		"version":     "1",
		"max_results": "3",
	}))
	assert.Len(t, resp.Lines, 3)
	assert.True(t, resp.Truncated)
}

func TestQueryTool_Errors(t *testing.T) {
	t.Parallel()
	q, _ := newTestQuerier(t)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing operation", map[string]any{"function": "main"}},
		{"unknown operation", map[string]any{"operation": "callers"}},
		{"unknown function", map[string]any{"operation": "edges", "function": "nope"}},
		{"bad number", map[string]any{"operation": "lines", "function": "main", "version": "latest"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, q, tt.args)
			assert.True(t, result.IsError)
		})
	}
}
