// Package mcpclient manages MCP server sessions: connection lifecycle,
// tool discovery, and tool invocation over stdio, SSE, or streamable HTTP.
package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/mitralabs/mitra/internal/models"
	"github.com/mitralabs/mitra/pkg/config"
	"github.com/mitralabs/mitra/pkg/logger"
)

const (
	connectAttempts    = 3
	connectBackoffBase = 500 * time.Millisecond
)

// Dialer establishes and initializes an MCP client connection. The default
// dialer spawns the configured command over stdio; callers can supply their
// own to back a session with a different transport.
type Dialer func(ctx context.Context) (*client.Client, error)

// Session is one managed MCP server connection. Tool calls on a session are
// serialized; concurrent callers queue on the session mutex.
type Session struct {
	id    string
	entry config.ServerEntry
	log   *logrus.Entry

	dial Dialer

	mu      sync.Mutex
	status  Status
	client  *client.Client
	lastErr error
	tools   []models.ToolDescriptor
}

// NewSession builds a session for a configured server. No connection is made
// until Connect is called.
func NewSession(id string, entry config.ServerEntry) *Session {
	s := &Session{
		id:     id,
		entry:  entry,
		log:    logger.WithServer("session", id),
		status: StatusDisconnected,
	}
	switch entry.Transport {
	case "sse":
		s.dial = s.dialSSE
	case "http":
		s.dial = s.dialStreamableHTTP
	default:
		s.dial = s.dialStdio
	}
	return s
}

// NewSessionWithDialer builds a session whose connection comes from the given
// dialer instead of a spawned stdio process.
func NewSessionWithDialer(id string, entry config.ServerEntry, dial Dialer) *Session {
	s := NewSession(id, entry)
	s.dial = dial
	return s
}

// ID returns the configured server identifier
func (s *Session) ID() string {
	return s.id
}

// Status returns the current lifecycle state
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the error from the most recent failed operation
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Tools returns the descriptors from the last successful discovery
func (s *Session) Tools() []models.ToolDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools
}

// dialStdio launches the server process and performs the initialize handshake
func (s *Session) dialStdio(ctx context.Context) (*client.Client, error) {
	env := make([]string, 0, len(s.entry.Env))
	for k, v := range s.entry.Env {
		env = append(env, k+"="+v)
	}

	c := client.NewClient(transport.NewStdio(s.entry.Command, env, s.entry.Args...))
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", s.entry.Command, err)
	}
	return initialize(ctx, c)
}

// dialSSE connects to a server's SSE endpoint and performs the handshake
func (s *Session) dialSSE(ctx context.Context) (*client.Client, error) {
	t, err := transport.NewSSE(s.entry.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid sse endpoint %s: %w", s.entry.URL, err)
	}
	c := client.NewClient(t)
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.entry.URL, err)
	}
	return initialize(ctx, c)
}

// dialStreamableHTTP connects to a server's streamable HTTP endpoint and
// performs the handshake
func (s *Session) dialStreamableHTTP(ctx context.Context) (*client.Client, error) {
	t, err := transport.NewStreamableHTTP(s.entry.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid http endpoint %s: %w", s.entry.URL, err)
	}
	c := client.NewClient(t)
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.entry.URL, err)
	}
	return initialize(ctx, c)
}

// initialize runs the MCP initialize handshake, closing the client on failure
func initialize(ctx context.Context, c *client.Client) (*client.Client, error) {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "mitra", Version: "0.1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize handshake failed: %w", err)
	}
	return c, nil
}

// Connect establishes the session with bounded retries. On success the
// session transitions to Ready; once all attempts are exhausted it lands in
// Failed and stays there until the next Connect call.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusReady {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusConnecting
	s.mu.Unlock()

	var lastErr error
	backoff := connectBackoffBase
attempts:
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if attempt > 1 {
			s.log.WithField("attempt", attempt).Debug("Retrying connect")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attempts
			}
			backoff *= 2
		}

		dialCtx, cancel := context.WithTimeout(ctx, s.entry.ConnectTimeout())
		c, err := s.dial(dialCtx)
		cancel()
		if err == nil {
			s.mu.Lock()
			s.client = c
			s.status = StatusReady
			s.lastErr = nil
			s.mu.Unlock()
			s.log.Info("Session ready")
			return nil
		}
		lastErr = err
		s.log.WithError(err).Warn("Connect attempt failed")
	}

	terr := models.NewToolError(models.ConnectionError, s.id, lastErr)
	s.mu.Lock()
	s.status = StatusFailed
	s.lastErr = terr
	s.mu.Unlock()
	return terr
}

// DiscoverTools lists the server's tools and caches the descriptors.
// The session must be Ready.
func (s *Session) DiscoverTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	s.mu.Lock()
	if s.status != StatusReady {
		s.mu.Unlock()
		return nil, &models.ToolError{
			Kind:    models.ConnectionError,
			Server:  s.id,
			Message: fmt.Sprintf("session is %s, not ready", s.status),
		}
	}
	c := s.client
	s.mu.Unlock()

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		terr := models.NewToolError(remoteErrorKind(ctx), s.id, err)
		s.mu.Lock()
		s.lastErr = terr
		s.mu.Unlock()
		return nil, terr
	}

	tools := make([]models.ToolDescriptor, 0, len(result.Tools))
	for _, tool := range result.Tools {
		tools = append(tools, toDescriptor(s.id, tool))
	}

	s.mu.Lock()
	s.tools = tools
	s.mu.Unlock()
	s.log.WithField("tools", len(tools)).Debug("Discovered tools")
	return tools, nil
}

// ListResources lists the resources the server exposes. Servers without the
// resources capability return a protocol error; callers aggregating across
// servers should tolerate it.
func (s *Session) ListResources(ctx context.Context) ([]models.ResourceDescriptor, error) {
	s.mu.Lock()
	if s.status != StatusReady {
		s.mu.Unlock()
		return nil, &models.ToolError{
			Kind:    models.ConnectionError,
			Server:  s.id,
			Message: fmt.Sprintf("session is %s, not ready", s.status),
		}
	}
	c := s.client
	s.mu.Unlock()

	result, err := c.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, models.NewToolError(remoteErrorKind(ctx), s.id, err)
	}

	resources := make([]models.ResourceDescriptor, 0, len(result.Resources))
	for _, res := range result.Resources {
		resources = append(resources, models.ResourceDescriptor{
			URI:         res.URI,
			Name:        res.Name,
			ServerID:    s.id,
			Description: res.Description,
			MIMEType:    res.MIMEType,
		})
	}
	s.log.WithField("resources", len(resources)).Debug("Listed resources")
	return resources, nil
}

// ReadResource reads one resource by URI and flattens its text contents.
// Like tool calls, reads are serialized on the session mutex.
func (s *Session) ReadResource(ctx context.Context, uri string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusReady {
		return "", &models.ToolError{
			Kind:    models.ConnectionError,
			Server:  s.id,
			Message: fmt.Sprintf("session is %s, not ready", s.status),
		}
	}

	readCtx, cancel := context.WithTimeout(ctx, s.entry.InvokeTimeout())
	defer cancel()

	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	result, err := s.client.ReadResource(readCtx, req)
	if err != nil {
		terr := models.NewToolError(remoteErrorKind(readCtx), s.id, err)
		s.lastErr = terr
		return "", terr
	}

	var parts []string
	for _, content := range result.Contents {
		if text, ok := mcp.AsTextResourceContents(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// CallTool invokes a tool on this session. Calls are serialized: the session
// mutex is held for the duration of the round trip. A non-Ready session fails
// fast without touching the transport.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusReady {
		return nil, &models.ToolError{
			Kind:    models.ConnectionError,
			Server:  s.id,
			Message: fmt.Sprintf("session is %s, not ready", s.status),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.entry.InvokeTimeout())
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := s.client.CallTool(callCtx, req)
	if err != nil {
		terr := models.NewToolError(remoteErrorKind(callCtx), s.id, err)
		s.lastErr = terr
		return nil, terr
	}
	return result, nil
}

// remoteErrorKind classifies a failed remote call. The server reports its own
// deadline as a plain JSON-RPC error string, so the expired context is the
// only reliable timeout signal.
func remoteErrorKind(ctx context.Context) models.ErrorKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.Timeout
	}
	return models.ProtocolError
}

// Close shuts the connection down and returns the session to Disconnected
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	s.status = StatusDisconnected
	return err
}

// toDescriptor converts a wire tool definition into a catalog descriptor
func toDescriptor(serverID string, tool mcp.Tool) models.ToolDescriptor {
	required := make(map[string]bool, len(tool.InputSchema.Required))
	for _, name := range tool.InputSchema.Required {
		required[name] = true
	}

	params := make(map[string]models.ParamSpec, len(tool.InputSchema.Properties))
	for name, raw := range tool.InputSchema.Properties {
		spec := models.ParamSpec{Required: required[name]}
		if prop, ok := raw.(map[string]any); ok {
			if t, ok := prop["type"].(string); ok {
				spec.Type = t
			}
			if d, ok := prop["description"].(string); ok {
				spec.Description = d
			}
		}
		params[name] = spec
	}

	return models.ToolDescriptor{
		Name:        tool.Name,
		ServerID:    serverID,
		Description: tool.Description,
		Params:      params,
	}
}
