package mcpclient

import (
	"context"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/mitralabs/mitra/pkg/config"
)

// newCalcServer builds an in-process MCP server exposing add and subtract
func newCalcServer() *server.MCPServer {
	s := server.NewMCPServer(
		"calc",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	add := mcp.NewTool("add",
		mcp.WithDescription("Add two numbers"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First addend")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second addend")),
	)
	s.AddTool(add, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, err := request.RequireFloat("a")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}
		b, err := request.RequireFloat("b")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%g", a+b)), nil
	})

	subtract := mcp.NewTool("subtract",
		mcp.WithDescription("Subtract b from a"),
		mcp.WithNumber("a", mcp.Required()),
		mcp.WithNumber("b", mcp.Required()),
	)
	s.AddTool(subtract, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, err := request.RequireFloat("a")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}
		b, err := request.RequireFloat("b")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%g", a-b)), nil
	})

	return s
}

// newLibraryServer builds an in-process server exposing a single text resource
func newLibraryServer() *server.MCPServer {
	s := server.NewMCPServer(
		"library",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
	)
	readme := mcp.NewResource("docs://readme", "readme",
		mcp.WithResourceDescription("Project readme"),
		mcp.WithMIMEType("text/plain"),
	)
	s.AddResource(readme, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "docs://readme",
				MIMEType: "text/plain",
				Text:     "Welcome to the library.",
			},
		}, nil
	})
	return s
}

// newFailingServer builds an in-process server whose only tool always errors
func newFailingServer() *server.MCPServer {
	s := server.NewMCPServer("flaky", "1.0.0", server.WithToolCapabilities(true))
	boom := mcp.NewTool("boom", mcp.WithDescription("Always fails"))
	s.AddTool(boom, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("deliberate failure"), nil
	})
	return s
}

// newTestSession returns a connected session backed by an in-process server
func newTestSession(t *testing.T, id string, srv *server.MCPServer) *Session {
	t.Helper()
	s := NewSessionWithDialer(id, config.ServerEntry{Command: "unused"}, InProcessDialer(srv))
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}
