package models

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addDescriptor() ToolDescriptor {
	return ToolDescriptor{
		Name:     "add",
		ServerID: "calc",
		Params: map[string]ParamSpec{
			"a":       {Type: "number", Required: true},
			"b":       {Type: "number", Required: true},
			"comment": {Type: "string"},
		},
	}
}

func TestParamNamesSorted(t *testing.T) {
	d := addDescriptor()
	assert.Equal(t, []string{"a", "b", "comment"}, d.ParamNames())
}

func TestValidateArguments(t *testing.T) {
	d := addDescriptor()

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, d.ValidateArguments(map[string]any{"a": 25.0, "b": 17.0}))
	})

	t.Run("optional parameter accepted", func(t *testing.T) {
		assert.NoError(t, d.ValidateArguments(map[string]any{"a": 1.0, "b": 2.0, "comment": "hi"}))
	})

	t.Run("missing required", func(t *testing.T) {
		err := d.ValidateArguments(map[string]any{"a": 1.0})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"b"`)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		err := d.ValidateArguments(map[string]any{"a": 1.0, "b": 2.0, "c": 3.0})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"c"`)
	})

	t.Run("wrong type", func(t *testing.T) {
		err := d.ValidateArguments(map[string]any{"a": "one", "b": 2.0})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected number")
	})

	t.Run("int accepted for number", func(t *testing.T) {
		assert.NoError(t, d.ValidateArguments(map[string]any{"a": 1, "b": 2}))
	})

	t.Run("nil value accepted", func(t *testing.T) {
		assert.NoError(t, d.ValidateArguments(map[string]any{"a": 1.0, "b": 2.0, "comment": nil}))
	})
}

func TestCheckTypeInteger(t *testing.T) {
	assert.NoError(t, checkType("integer", 3))
	assert.NoError(t, checkType("integer", float64(3)))
	assert.Error(t, checkType("integer", 3.5))
	assert.Error(t, checkType("integer", "3"))
}

func TestCheckTypeContainers(t *testing.T) {
	assert.NoError(t, checkType("array", []any{1, 2}))
	assert.Error(t, checkType("array", "not an array"))
	assert.NoError(t, checkType("object", map[string]any{"k": "v"}))
	assert.Error(t, checkType("object", []any{}))
	assert.NoError(t, checkType("boolean", true))
	assert.Error(t, checkType("boolean", "true"))
	// Unknown declared types accept anything
	assert.NoError(t, checkType("", 42))
}

func TestNoTool(t *testing.T) {
	d := NoTool("nothing matched")
	assert.Equal(t, ActionNoTool, d.Action)
	assert.Equal(t, "nothing matched", d.Reasoning)
	assert.Empty(t, d.Tool)
}

func TestToolErrorError(t *testing.T) {
	withServer := &ToolError{Kind: Timeout, Server: "calc", Message: "deadline exceeded"}
	assert.Equal(t, "timeout: calc: deadline exceeded", withServer.Error())

	withoutServer := &ToolError{Kind: ValidationError, Message: "bad args"}
	assert.Equal(t, "validation_error: bad args", withoutServer.Error())
}

func TestNewToolErrorMapsDeadline(t *testing.T) {
	err := NewToolError(ConnectionError, "calc", context.DeadlineExceeded)
	assert.Equal(t, Timeout, err.Kind)
}

func TestAsToolError(t *testing.T) {
	original := &ToolError{Kind: ProtocolError, Server: "calc", Message: "bad frame"}
	assert.Same(t, original, AsToolError(original, ConnectionError, "other"))

	wrapped := AsToolError(errors.New("plain failure"), ConnectionError, "calc")
	assert.Equal(t, ConnectionError, wrapped.Kind)
	assert.Equal(t, "calc", wrapped.Server)
}

func TestInvocationRecordSummary(t *testing.T) {
	ok := InvocationRecord{CorrelationID: "c1", Tool: "add", ServerID: "calc", Success: true, DurationMs: 12}
	assert.Equal(t, "c1 calc/add [ok] 12ms", ok.Summary())

	failed := InvocationRecord{CorrelationID: "c2", Tool: "add", ServerID: "calc", ErrorKind: "timeout", DurationMs: 900}
	assert.Contains(t, failed.Summary(), "[timeout]")

	unknown := InvocationRecord{CorrelationID: "c3", Tool: "add", ServerID: "calc"}
	assert.Contains(t, unknown.Summary(), "[error]")
}
