package mcpclient

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/server"
)

// InProcessDialer returns a Dialer backed by an embedded MCP server. No
// subprocess is spawned; requests go straight to the server in memory.
func InProcessDialer(srv *server.MCPServer) Dialer {
	return func(ctx context.Context) (*client.Client, error) {
		c, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start in-process client: %w", err)
		}
		return initialize(ctx, c)
	}
}
