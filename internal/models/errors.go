package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a tool-call failure for callers and the audit log.
type ErrorKind string

const (
	// ConnectionError covers transport failures: spawn, pipe, disconnect.
	ConnectionError ErrorKind = "connection_error"
	// ProtocolError covers malformed or unexpected MCP responses.
	ProtocolError ErrorKind = "protocol_error"
	// ValidationError covers arguments rejected against the tool schema.
	ValidationError ErrorKind = "validation_error"
	// Timeout covers deadline expiry on connect, discovery, or invocation.
	Timeout ErrorKind = "timeout"
	// ToolExecutionError covers calls the server completed but marked failed.
	ToolExecutionError ErrorKind = "tool_execution_error"
)

// ToolError is the typed failure surfaced by the connection manager and
// dispatcher. Server is the session ID the failure is attributed to; it is
// empty for failures before a server was selected.
type ToolError struct {
	Kind    ErrorKind `json:"kind"`
	Server  string    `json:"server,omitempty"`
	Message string    `json:"message"`
}

func (e *ToolError) Error() string {
	if e.Server == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Server, e.Message)
}

// NewToolError builds a ToolError from any underlying error, mapping context
// deadline expiry onto the Timeout kind.
func NewToolError(kind ErrorKind, server string, err error) *ToolError {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = Timeout
	}
	return &ToolError{Kind: kind, Server: server, Message: err.Error()}
}

// AsToolError unwraps err into a *ToolError, or wraps it under the given
// default kind when it is not one already.
func AsToolError(err error, kind ErrorKind, server string) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return NewToolError(kind, server, err)
}
