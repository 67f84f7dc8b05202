// Package router asks the language model which registered tool, if any,
// should answer a query, and validates the model's choice against the
// tool catalog.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitralabs/mitra/internal/models"
	"github.com/mitralabs/mitra/pkg/llm"
	"github.com/mitralabs/mitra/pkg/logger"
	"github.com/mitralabs/mitra/pkg/registry"
)

var log = logger.WithName("router")

const decisionSystemPrompt = `You are a tool-routing assistant. Given a user query and a list of available tools, decide whether one of the tools should be called.

Respond with ONLY a JSON object in this exact format:
{
    "tool_name": "name of the tool, or null if no tool applies",
    "parameters": {"param": "value"},
    "reasoning": "one sentence explaining the choice"
}

Rules:
- Use a tool only when it clearly matches the query.
- Fill every required parameter from the query.
- If no tool applies, set tool_name to null and leave parameters empty.`

// Router turns a free-form query into a routing decision
type Router struct {
	completer llm.Completer
}

// New builds a router on the given completion backend
func New(completer llm.Completer) *Router {
	return &Router{completer: completer}
}

// rawDecision is the JSON shape the model is asked to produce
type rawDecision struct {
	ToolName   *string        `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	Reasoning  string         `json:"reasoning"`
}

// Decide picks a tool for the query, or falls back to no-tool. Every failure
// mode degrades to no-tool rather than surfacing an error: a query is always
// answerable, at worst without tool help.
func (r *Router) Decide(ctx context.Context, query string, snap *registry.Snapshot) models.Decision {
	if snap.Len() == 0 {
		return models.NoTool("no tools are registered")
	}

	messages := []llm.Message{
		{Role: "system", Content: decisionSystemPrompt},
		{Role: "user", Content: renderDecisionPrompt(query, snap)},
	}

	reply, err := r.completer.Complete(ctx, messages)
	if err != nil {
		log.WithError(err).Warn("Decision completion failed, answering without tools")
		return models.NoTool("tool selection unavailable")
	}

	raw, err := parseDecision(reply)
	if err != nil {
		log.WithError(err).Warn("Unparseable decision, answering without tools")
		return models.NoTool("tool selection response was malformed")
	}

	if raw.ToolName == nil || *raw.ToolName == "" || strings.EqualFold(*raw.ToolName, "null") {
		return models.NoTool(raw.Reasoning)
	}

	descriptor, ok := snap.Lookup(*raw.ToolName)
	if !ok {
		log.WithField("tool", *raw.ToolName).Warn("Model chose an unregistered tool")
		return models.NoTool(fmt.Sprintf("selected tool %q is not registered", *raw.ToolName))
	}

	args := raw.Parameters
	if args == nil {
		args = map[string]any{}
	}
	if err := descriptor.ValidateArguments(args); err != nil {
		log.WithField("tool", descriptor.Name).WithError(err).Warn("Model arguments failed validation")
		return models.NoTool(fmt.Sprintf("arguments for %q were invalid: %v", descriptor.Name, err))
	}

	log.WithFields(map[string]any{
		"tool":   descriptor.Name,
		"server": descriptor.ServerID,
	}).Debug("Tool selected")
	return models.Decision{
		Action:    models.ActionCallTool,
		Tool:      descriptor.Name,
		Arguments: args,
		Reasoning: raw.Reasoning,
	}
}

// renderDecisionPrompt lists the catalog and the query for the model
func renderDecisionPrompt(query string, snap *registry.Snapshot) string {
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, tool := range snap.Tools() {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
		for _, name := range tool.ParamNames() {
			spec := tool.Params[name]
			requirement := "optional"
			if spec.Required {
				requirement = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s\n", name, spec.Type, requirement, spec.Description)
		}
	}
	fmt.Fprintf(&b, "\nUser query: %s\n", query)
	return b.String()
}

// parseDecision decodes the model reply. Markdown code fences are stripped,
// and if the reply still fails to decode the substring from the first "{" to
// the last "}" is retried, tolerating surrounding prose.
func parseDecision(reply string) (*rawDecision, error) {
	cleaned := strings.TrimSpace(reply)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var raw rawDecision
	err := json.Unmarshal([]byte(cleaned), &raw)
	if err == nil {
		return &raw, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if inner := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); inner == nil {
			return &raw, nil
		}
	}
	return nil, fmt.Errorf("failed to decode decision: %w", err)
}
