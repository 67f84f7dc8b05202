// Package dispatcher executes routing decisions: it invokes the chosen tool
// through the connection manager, shapes the result into a response, and
// records the outcome in the audit log.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mitralabs/mitra/internal/models"
	"github.com/mitralabs/mitra/pkg/audit"
	"github.com/mitralabs/mitra/pkg/llm"
	"github.com/mitralabs/mitra/pkg/logger"
	"github.com/mitralabs/mitra/pkg/registry"
)

var log = logger.WithName("dispatcher")

const answerSystemPrompt = `You are a helpful assistant. Answer the user's query concisely.`

const toolAnswerSystemPrompt = `You are a helpful assistant. A tool was called to help answer the user's query. Use the tool output to answer concisely. Do not mention the tool.`

// Invoker executes a tool invocation on its owning server session
type Invoker interface {
	Invoke(ctx context.Context, inv models.ToolInvocation) (*mcp.CallToolResult, error)
}

// Dispatcher turns a routing decision into a final response
type Dispatcher struct {
	invoker   Invoker
	completer llm.Completer
	auditLog  *audit.Log
}

// New builds a dispatcher. auditLog may be nil to disable recording.
func New(invoker Invoker, completer llm.Completer, auditLog *audit.Log) *Dispatcher {
	return &Dispatcher{invoker: invoker, completer: completer, auditLog: auditLog}
}

// Dispatch executes the decision for the query. Tool failures are never
// retried here; the outcome, success or not, is surfaced in the response
// and written to the audit log.
func (d *Dispatcher) Dispatch(ctx context.Context, query string, decision models.Decision, snap *registry.Snapshot) (models.QueryResponse, error) {
	if decision.Action != models.ActionCallTool {
		return d.answerWithoutTool(ctx, query)
	}

	descriptor, ok := snap.Lookup(decision.Tool)
	if !ok {
		// The catalog changed between routing and dispatch
		log.WithField("tool", decision.Tool).Warn("Tool vanished from catalog before dispatch")
		return d.answerWithoutTool(ctx, query)
	}

	inv := models.ToolInvocation{
		CorrelationID: uuid.NewString(),
		Tool:          decision.Tool,
		ServerID:      descriptor.ServerID,
		Arguments:     decision.Arguments,
	}
	invLog := log.WithFields(map[string]any{
		"correlation_id": inv.CorrelationID,
		"tool":           inv.Tool,
		"server":         inv.ServerID,
	})
	invLog.Info("Invoking tool")

	start := time.Now()
	result, err := d.invoker.Invoke(ctx, inv)
	duration := time.Since(start)

	var terr *models.ToolError
	var output string
	if err != nil {
		terr = models.AsToolError(err, models.ProtocolError, inv.ServerID)
	} else {
		output = flattenText(result)
		if result.IsError {
			terr = &models.ToolError{
				Kind:    models.ToolExecutionError,
				Server:  inv.ServerID,
				Message: output,
			}
		}
	}
	d.record(ctx, inv, terr, duration)

	if terr != nil {
		invLog.WithField("kind", terr.Kind).WithError(terr).Warn("Tool invocation failed")
		resp, ferr := d.answerWithoutTool(ctx, query)
		if ferr != nil {
			log.WithError(ferr).Warn("Fallback answer failed after tool failure")
			resp.Answer = terr.Error()
		}
		resp.CorrelationID = inv.CorrelationID
		resp.Failure = terr
		return resp, nil
	}
	invLog.WithField("duration_ms", duration.Milliseconds()).Info("Tool invocation succeeded")

	resp := models.QueryResponse{
		Answer:        d.phraseToolAnswer(ctx, query, output),
		ToolUsed:      inv.Tool,
		ServerID:      inv.ServerID,
		CorrelationID: inv.CorrelationID,
	}
	if payload := structuredPayload(output); payload != nil {
		resp.StructuredPayload = payload
	}
	return resp, nil
}

// answerWithoutTool produces a plain completion for the query
func (d *Dispatcher) answerWithoutTool(ctx context.Context, query string) (models.QueryResponse, error) {
	answer, err := d.completer.Complete(ctx, []llm.Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: query},
	})
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("fallback completion failed: %w", err)
	}
	return models.QueryResponse{Answer: answer}, nil
}

// phraseToolAnswer asks the model to phrase the tool output as an answer.
// When the completion fails the raw tool output is the answer.
func (d *Dispatcher) phraseToolAnswer(ctx context.Context, query, output string) string {
	answer, err := d.completer.Complete(ctx, []llm.Message{
		{Role: "system", Content: toolAnswerSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Query: %s\n\nTool output:\n%s", query, output)},
	})
	if err != nil {
		log.WithError(err).Warn("Answer phrasing failed, returning raw tool output")
		return output
	}
	return answer
}

func (d *Dispatcher) record(ctx context.Context, inv models.ToolInvocation, terr *models.ToolError, duration time.Duration) {
	if d.auditLog == nil {
		return
	}
	if err := d.auditLog.RecordOutcome(ctx, inv, terr, duration); err != nil {
		log.WithError(err).Warn("Failed to record invocation")
	}
}

// flattenText joins all text content blocks of a result
func flattenText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// structuredPayload returns the output verbatim when it is a JSON object or
// array, so API callers get machine-readable tool results untouched.
func structuredPayload(output string) json.RawMessage {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil
	}
	return json.RawMessage(trimmed)
}
