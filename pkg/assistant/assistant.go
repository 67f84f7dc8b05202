// Package assistant wires the connection manager, registry, router, and
// dispatcher into the query-processing front door used by the CLI and the
// HTTP API.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitralabs/mitra/internal/models"
	"github.com/mitralabs/mitra/pkg/audit"
	"github.com/mitralabs/mitra/pkg/config"
	"github.com/mitralabs/mitra/pkg/dispatcher"
	"github.com/mitralabs/mitra/pkg/llm"
	"github.com/mitralabs/mitra/pkg/logger"
	"github.com/mitralabs/mitra/pkg/mcpclient"
	"github.com/mitralabs/mitra/pkg/registry"
	"github.com/mitralabs/mitra/pkg/router"
)

var log = logger.WithName("assistant")

// Option overrides a collaborator, mainly for tests
type Option func(*Assistant)

// WithCompleter replaces the default chat-completions client
func WithCompleter(c llm.Completer) Option {
	return func(a *Assistant) { a.completer = c }
}

// WithManager replaces the config-driven connection manager, typically with
// one built over in-process sessions
func WithManager(m *mcpclient.Manager) Option {
	return func(a *Assistant) { a.manager = m }
}

// WithAuditLog supplies an already-open audit log (or nil to disable)
func WithAuditLog(l *audit.Log) Option {
	return func(a *Assistant) {
		a.auditLog = l
		a.auditInjected = true
	}
}

// Assistant processes queries end to end: route, dispatch, respond
type Assistant struct {
	cfg       *config.Config
	registry  *registry.Registry
	manager   *mcpclient.Manager
	completer llm.Completer
	router    *router.Router
	disp      *dispatcher.Dispatcher
	auditLog  *audit.Log

	auditInjected bool
}

// New builds an assistant from configuration. Nothing connects until
// Initialize is called.
func New(cfg *config.Config, opts ...Option) (*Assistant, error) {
	a := &Assistant{
		cfg:      cfg,
		registry: registry.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.manager == nil {
		a.manager = mcpclient.NewManager(cfg.Servers, a.registry)
	} else {
		a.registry = a.manager.Registry()
	}
	if a.completer == nil {
		a.completer = llm.NewClient(cfg.LLM)
	}
	if !a.auditInjected && cfg.Audit.Enabled {
		l, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		a.auditLog = l
	}

	a.router = router.New(a.completer)
	a.disp = dispatcher.New(a.manager, a.completer, a.auditLog)
	return a, nil
}

// Initialize connects all configured servers and populates the tool registry
func (a *Assistant) Initialize(ctx context.Context) error {
	if err := a.manager.ConnectAll(ctx); err != nil {
		return err
	}
	log.WithFields(map[string]any{
		"servers": len(a.manager.ReadySessions()),
		"tools":   a.registry.Snapshot().Len(),
	}).Info("Assistant initialized")
	return nil
}

// ProcessQuery routes the query and executes the resulting decision
func (a *Assistant) ProcessQuery(ctx context.Context, query string) (models.QueryResponse, error) {
	if strings.TrimSpace(query) == "" {
		return models.QueryResponse{}, fmt.Errorf("query must not be empty")
	}

	snap := a.registry.Snapshot()
	decision := a.router.Decide(ctx, query, snap)
	return a.disp.Dispatch(ctx, query, decision, snap)
}

// Rediscover refreshes the tool catalog from the connected servers
func (a *Assistant) Rediscover(ctx context.Context) error {
	return a.manager.Rediscover(ctx)
}

// Tools returns the current catalog ordered by tool name
func (a *Assistant) Tools() []models.ToolDescriptor {
	return a.registry.Snapshot().Tools()
}

// Sessions reports the status of every configured server session
func (a *Assistant) Sessions() []mcpclient.SessionInfo {
	return a.manager.Sessions()
}

// Resources lists the resources exposed by the connected servers
func (a *Assistant) Resources(ctx context.Context) []models.ResourceDescriptor {
	return a.manager.Resources(ctx)
}

// ReadResource reads one resource from the named server
func (a *Assistant) ReadResource(ctx context.Context, serverID, uri string) (string, error) {
	return a.manager.ReadResource(ctx, serverID, uri)
}

// RecentInvocations returns the newest audit records, most recent first.
// It returns nothing when auditing is disabled.
func (a *Assistant) RecentInvocations(ctx context.Context, limit int) ([]models.InvocationRecord, error) {
	if a.auditLog == nil {
		return nil, nil
	}
	return a.auditLog.Recent(ctx, limit)
}

// Close shuts down the sessions and the audit log
func (a *Assistant) Close() {
	a.manager.CloseAll()
	if a.auditLog != nil && !a.auditInjected {
		if err := a.auditLog.Close(); err != nil {
			log.WithError(err).Warn("Audit log close failed")
		}
	}
}
