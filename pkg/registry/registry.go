// Package registry maintains the aggregated tool catalog discovered from
// connected MCP servers.
package registry

import (
	"sort"
	"sync"

	"github.com/mitralabs/mitra/internal/models"
	"github.com/mitralabs/mitra/pkg/logger"
)

var log = logger.WithName("registry")

// Snapshot is an immutable view of the catalog at one point in time.
// Readers holding a snapshot are unaffected by later Replace calls.
type Snapshot struct {
	byName map[string]models.ToolDescriptor
	names  []string
}

// Lookup returns the descriptor for a tool name.
func (s *Snapshot) Lookup(name string) (models.ToolDescriptor, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// Names returns all tool names in sorted order.
func (s *Snapshot) Names() []string {
	return s.names
}

// Tools returns all descriptors ordered by tool name.
func (s *Snapshot) Tools() []models.ToolDescriptor {
	tools := make([]models.ToolDescriptor, 0, len(s.names))
	for _, name := range s.names {
		tools = append(tools, s.byName[name])
	}
	return tools
}

// Len returns the number of registered tools.
func (s *Snapshot) Len() int {
	return len(s.names)
}

// Registry holds the current catalog snapshot. Reads never block writes:
// Replace swaps the snapshot pointer under a short lock and readers keep
// whatever snapshot they already obtained.
type Registry struct {
	mu      sync.RWMutex
	current *Snapshot
}

// New returns a registry with an empty catalog.
func New() *Registry {
	return &Registry{current: buildSnapshot(nil)}
}

// Snapshot returns the current catalog view.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Replace atomically installs a new catalog built from the given descriptors.
// When two servers expose the same tool name the earlier descriptor wins and
// the collision is logged.
func (r *Registry) Replace(tools []models.ToolDescriptor) *Snapshot {
	snap := buildSnapshot(tools)
	r.mu.Lock()
	r.current = snap
	r.mu.Unlock()
	log.WithField("tools", snap.Len()).Debug("Tool catalog replaced")
	return snap
}

func buildSnapshot(tools []models.ToolDescriptor) *Snapshot {
	byName := make(map[string]models.ToolDescriptor, len(tools))
	for _, tool := range tools {
		if existing, ok := byName[tool.Name]; ok {
			log.WithFields(map[string]any{
				"tool":    tool.Name,
				"kept":    existing.ServerID,
				"ignored": tool.ServerID,
			}).Warn("Duplicate tool name, keeping first registration")
			continue
		}
		byName[tool.Name] = tool
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Snapshot{byName: byName, names: names}
}
