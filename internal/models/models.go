package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParamSpec describes a single tool parameter from the server-declared schema.
type ParamSpec struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ToolDescriptor is one entry in the aggregated tool catalog. It is built
// during discovery and never mutated afterwards; re-discovery replaces
// descriptors wholesale.
type ToolDescriptor struct {
	Name        string               `json:"name"`
	ServerID    string               `json:"server_id"`
	Description string               `json:"description,omitempty"`
	Params      map[string]ParamSpec `json:"params,omitempty"`
}

// ResourceDescriptor is one MCP resource exposed by a server
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	ServerID    string `json:"server_id"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
}

// ParamNames returns the parameter names sorted for stable prompt rendering.
func (d *ToolDescriptor) ParamNames() []string {
	names := make([]string, 0, len(d.Params))
	for name := range d.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateArguments checks model-supplied arguments against the descriptor
// schema: every required parameter must be present, every supplied parameter
// must be declared, and JSON value types must match the declared type.
func (d *ToolDescriptor) ValidateArguments(args map[string]any) error {
	for name, spec := range d.Params {
		if !spec.Required {
			continue
		}
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}
	for name, value := range args {
		spec, ok := d.Params[name]
		if !ok {
			return fmt.Errorf("unknown parameter %q", name)
		}
		if err := checkType(spec.Type, value); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
	}
	return nil
}

// checkType verifies a decoded JSON value against a JSON Schema type name.
// An empty or unrecognized declared type accepts anything.
func checkType(declared string, value any) error {
	if value == nil {
		return nil
	}
	switch declared {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "number":
		if !isJSONNumber(value) {
			return fmt.Errorf("expected number, got %T", value)
		}
	case "integer":
		if !isJSONInteger(value) {
			return fmt.Errorf("expected integer, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
	}
	return nil
}

func isJSONNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

func isJSONInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == float64(int64(v))
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}

// DecisionAction is the router's verdict for a query.
type DecisionAction string

const (
	// ActionNoTool means the query is answered from general knowledge.
	ActionNoTool DecisionAction = "no_tool"
	// ActionCallTool means a registered tool should be invoked.
	ActionCallTool DecisionAction = "call_tool"
)

// Decision is the router output. When Action is ActionCallTool, Tool names a
// descriptor present in the registry snapshot and Arguments have already been
// validated against its schema.
type Decision struct {
	Action    DecisionAction `json:"action"`
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// NoTool returns a fallback decision with an optional reason.
func NoTool(reason string) Decision {
	return Decision{Action: ActionNoTool, Reasoning: reason}
}

// ToolInvocation is a single dispatch of a tool call. Created per dispatch,
// discarded after the response is delivered.
type ToolInvocation struct {
	CorrelationID string         `json:"correlation_id"`
	Tool          string         `json:"tool"`
	ServerID      string         `json:"server_id"`
	Arguments     map[string]any `json:"arguments,omitempty"`
}

// QueryResponse is the caller-facing result of processing one query.
type QueryResponse struct {
	Answer            string          `json:"answer"`
	StructuredPayload json.RawMessage `json:"structured_payload,omitempty"`
	ToolUsed          string          `json:"tool_used,omitempty"`
	ServerID          string          `json:"server_id,omitempty"`
	CorrelationID     string          `json:"correlation_id,omitempty"`
	Failure           *ToolError      `json:"failure,omitempty"`
}

// InvocationRecord is one row of the tool-call audit log.
type InvocationRecord struct {
	ID            int64  `db:"id" json:"id,omitempty"`
	CorrelationID string `db:"correlation_id" json:"correlation_id"`
	Tool          string `db:"tool" json:"tool"`
	ServerID      string `db:"server_id" json:"server_id"`
	ArgsJSON      string `db:"args_json" json:"args_json,omitempty"`
	Success       bool   `db:"success" json:"success"`
	ErrorKind     string `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage  string `db:"error_message" json:"error_message,omitempty"`
	DurationMs    int64  `db:"duration_ms" json:"duration_ms"`
	CreatedAt     int64  `db:"created_at" json:"created_at"`
}

// Summary renders a compact one-line view for CLI listings.
func (r *InvocationRecord) Summary() string {
	status := "ok"
	if !r.Success {
		status = strings.ToLower(r.ErrorKind)
		if status == "" {
			status = "error"
		}
	}
	return fmt.Sprintf("%s %s/%s [%s] %dms", r.CorrelationID, r.ServerID, r.Tool, status, r.DurationMs)
}
