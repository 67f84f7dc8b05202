package mcpclient

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mitralabs/mitra/internal/models"
	"github.com/mitralabs/mitra/pkg/config"
	"github.com/mitralabs/mitra/pkg/logger"
	"github.com/mitralabs/mitra/pkg/registry"
)

var log = logger.WithName("mcp-manager")

// SessionInfo is a point-in-time status report for one session
type SessionInfo struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ToolCount int    `json:"tool_count"`
	LastError string `json:"last_error,omitempty"`
}

// Manager owns the set of configured server sessions and keeps the tool
// registry in sync with what the Ready sessions expose.
type Manager struct {
	sessions map[string]*Session
	order    []string
	registry *registry.Registry
}

// NewManager builds sessions for every configured server. Sessions start
// Disconnected; call ConnectAll to bring them up.
func NewManager(servers map[string]config.ServerEntry, reg *registry.Registry) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session, len(servers)),
		registry: reg,
	}
	for id, entry := range servers {
		m.sessions[id] = NewSession(id, entry)
		m.order = append(m.order, id)
	}
	sort.Strings(m.order)
	return m
}

// NewManagerWithSessions builds a manager over pre-constructed sessions,
// typically ones backed by custom dialers.
func NewManagerWithSessions(reg *registry.Registry, sessions ...*Session) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session, len(sessions)),
		registry: reg,
	}
	for _, s := range sessions {
		m.sessions[s.ID()] = s
		m.order = append(m.order, s.ID())
	}
	sort.Strings(m.order)
	return m
}

// ConnectAll connects every session concurrently, then aggregates tools from
// the sessions that came up. A server that fails to connect is logged and
// skipped; it never blocks the others. An error is returned only when no
// server at all is usable and at least one was configured.
func (m *Manager) ConnectAll(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, id := range m.order {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Connect(ctx); err != nil {
				log.WithField("server", s.ID()).WithError(err).Error("Server connect failed")
			}
		}(m.sessions[id])
	}
	wg.Wait()

	if err := m.Rediscover(ctx); err != nil {
		return err
	}

	if len(m.order) > 0 && len(m.ReadySessions()) == 0 {
		return fmt.Errorf("no MCP server is ready")
	}
	return nil
}

// Registry returns the registry this manager keeps in sync
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Rediscover re-lists tools from every Ready session and atomically replaces
// the registry catalog. Aggregation walks servers in sorted ID order so
// duplicate-name resolution is deterministic.
func (m *Manager) Rediscover(ctx context.Context) error {
	type discovery struct {
		id    string
		tools []models.ToolDescriptor
	}

	results := make([]discovery, len(m.order))
	var wg sync.WaitGroup
	for i, id := range m.order {
		s := m.sessions[id]
		if s.Status() != StatusReady {
			continue
		}
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			tools, err := s.DiscoverTools(ctx)
			if err != nil {
				log.WithField("server", s.ID()).WithError(err).Error("Tool discovery failed")
				return
			}
			results[i] = discovery{id: s.ID(), tools: tools}
		}(i, s)
	}
	wg.Wait()

	var aggregated []models.ToolDescriptor
	for _, r := range results {
		aggregated = append(aggregated, r.tools...)
	}
	snap := m.registry.Replace(aggregated)
	log.WithField("tools", snap.Len()).Info("Tool registry updated")
	return nil
}

// Resources lists resources from every Ready session in sorted server order.
// Servers that fail to list (including those without the resources
// capability) are logged and skipped.
func (m *Manager) Resources(ctx context.Context) []models.ResourceDescriptor {
	results := make([][]models.ResourceDescriptor, len(m.order))
	var wg sync.WaitGroup
	for i, id := range m.order {
		s := m.sessions[id]
		if s.Status() != StatusReady {
			continue
		}
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			resources, err := s.ListResources(ctx)
			if err != nil {
				log.WithField("server", s.ID()).WithError(err).Debug("Resource listing unavailable")
				return
			}
			results[i] = resources
		}(i, s)
	}
	wg.Wait()

	var aggregated []models.ResourceDescriptor
	for _, r := range results {
		aggregated = append(aggregated, r...)
	}
	return aggregated
}

// ReadResource reads a resource from the named server
func (m *Manager) ReadResource(ctx context.Context, serverID, uri string) (string, error) {
	s, ok := m.sessions[serverID]
	if !ok {
		return "", &models.ToolError{
			Kind:    models.ValidationError,
			Server:  serverID,
			Message: fmt.Sprintf("unknown server %q", serverID),
		}
	}
	return s.ReadResource(ctx, uri)
}

// Invoke routes a tool invocation to its owning session and executes it.
// Routing errors and session errors come back as *models.ToolError.
func (m *Manager) Invoke(ctx context.Context, inv models.ToolInvocation) (*mcp.CallToolResult, error) {
	s, ok := m.sessions[inv.ServerID]
	if !ok {
		return nil, &models.ToolError{
			Kind:    models.ValidationError,
			Server:  inv.ServerID,
			Message: fmt.Sprintf("unknown server %q", inv.ServerID),
		}
	}
	return s.CallTool(ctx, inv.Tool, inv.Arguments)
}

// Session returns the session for a server ID, if configured
func (m *Manager) Session(id string) (*Session, bool) {
	s, ok := m.sessions[id]
	return s, ok
}

// ReadySessions returns the IDs of sessions currently accepting calls
func (m *Manager) ReadySessions() []string {
	var ready []string
	for _, id := range m.order {
		if m.sessions[id].Status() == StatusReady {
			ready = append(ready, id)
		}
	}
	return ready
}

// Sessions reports the status of every configured session in sorted order
func (m *Manager) Sessions() []SessionInfo {
	infos := make([]SessionInfo, 0, len(m.order))
	for _, id := range m.order {
		s := m.sessions[id]
		info := SessionInfo{
			ID:        id,
			Status:    s.Status().String(),
			ToolCount: len(s.Tools()),
		}
		if err := s.LastError(); err != nil {
			info.LastError = err.Error()
		}
		infos = append(infos, info)
	}
	return infos
}

// CloseAll shuts down every session. Errors are logged, not returned; the
// caller is exiting anyway.
func (m *Manager) CloseAll() {
	for _, id := range m.order {
		if err := m.sessions[id].Close(); err != nil {
			log.WithField("server", id).WithError(err).Warn("Session close failed")
		}
	}
}
