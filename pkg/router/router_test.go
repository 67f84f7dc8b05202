package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitralabs/mitra/internal/models"
	"github.com/mitralabs/mitra/pkg/llm"
	"github.com/mitralabs/mitra/pkg/registry"
)

// scriptedCompleter returns a fixed reply, recording the messages it saw
type scriptedCompleter struct {
	reply    string
	err      error
	messages []llm.Message
}

func (s *scriptedCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	s.messages = messages
	return s.reply, s.err
}

func calcRegistry() *registry.Registry {
	r := registry.New()
	r.Replace([]models.ToolDescriptor{
		{
			Name:        "add",
			ServerID:    "calc",
			Description: "Add two numbers",
			Params: map[string]models.ParamSpec{
				"a": {Type: "number", Required: true},
				"b": {Type: "number", Required: true},
			},
		},
		{
			Name:        "get_weather",
			ServerID:    "weather",
			Description: "Current weather for a city",
			Params: map[string]models.ParamSpec{
				"city": {Type: "string", Required: true},
			},
		},
	})
	return r
}

func TestDecideSelectsTool(t *testing.T) {
	completer := &scriptedCompleter{
		reply: `{"tool_name": "add", "parameters": {"a": 25, "b": 17}, "reasoning": "arithmetic query"}`,
	}
	r := New(completer)

	d := r.Decide(context.Background(), "what is 25 plus 17?", calcRegistry().Snapshot())

	assert.Equal(t, models.ActionCallTool, d.Action)
	assert.Equal(t, "add", d.Tool)
	assert.Equal(t, float64(25), d.Arguments["a"])
	assert.Equal(t, "arithmetic query", d.Reasoning)

	// Prompt carries the catalog and the query
	require.Len(t, completer.messages, 2)
	assert.Contains(t, completer.messages[1].Content, "add: Add two numbers")
	assert.Contains(t, completer.messages[1].Content, "what is 25 plus 17?")
}

func TestDecideStripsCodeFence(t *testing.T) {
	completer := &scriptedCompleter{
		reply: "```json\n{\"tool_name\": \"get_weather\", \"parameters\": {\"city\": \"Oslo\"}, \"reasoning\": \"weather\"}\n```",
	}
	r := New(completer)

	d := r.Decide(context.Background(), "weather in Oslo?", calcRegistry().Snapshot())

	assert.Equal(t, models.ActionCallTool, d.Action)
	assert.Equal(t, "get_weather", d.Tool)
	assert.Equal(t, "Oslo", d.Arguments["city"])
}

func TestDecideToleratesSurroundingProse(t *testing.T) {
	completer := &scriptedCompleter{
		reply: "Sure, here is my selection:\n{\"tool_name\": \"get_weather\", \"parameters\": {\"city\": \"Oslo\"}, \"reasoning\": \"weather\"}\nLet me know if that helps.",
	}
	r := New(completer)

	d := r.Decide(context.Background(), "weather in Oslo?", calcRegistry().Snapshot())

	assert.Equal(t, models.ActionCallTool, d.Action)
	assert.Equal(t, "get_weather", d.Tool)
	assert.Equal(t, "Oslo", d.Arguments["city"])
}

func TestDecideNullToolName(t *testing.T) {
	for _, reply := range []string{
		`{"tool_name": null, "parameters": {}, "reasoning": "general knowledge"}`,
		`{"tool_name": "null", "parameters": {}, "reasoning": "general knowledge"}`,
		`{"tool_name": "", "parameters": {}, "reasoning": "general knowledge"}`,
	} {
		r := New(&scriptedCompleter{reply: reply})
		d := r.Decide(context.Background(), "who wrote Hamlet?", calcRegistry().Snapshot())
		assert.Equal(t, models.ActionNoTool, d.Action, "reply: %s", reply)
		assert.Equal(t, "general knowledge", d.Reasoning)
	}
}

func TestDecideEmptyCatalog(t *testing.T) {
	completer := &scriptedCompleter{}
	r := New(completer)

	d := r.Decide(context.Background(), "anything", registry.New().Snapshot())

	assert.Equal(t, models.ActionNoTool, d.Action)
	// The model is never consulted
	assert.Nil(t, completer.messages)
}

func TestDecideCompletionFailure(t *testing.T) {
	r := New(&scriptedCompleter{err: errors.New("backend down")})

	d := r.Decide(context.Background(), "what is 2+2?", calcRegistry().Snapshot())
	assert.Equal(t, models.ActionNoTool, d.Action)
}

func TestDecideMalformedJSON(t *testing.T) {
	r := New(&scriptedCompleter{reply: "I think you should use the add tool!"})

	d := r.Decide(context.Background(), "what is 2+2?", calcRegistry().Snapshot())
	assert.Equal(t, models.ActionNoTool, d.Action)
}

func TestDecideUnknownTool(t *testing.T) {
	r := New(&scriptedCompleter{
		reply: `{"tool_name": "multiply", "parameters": {"a": 2, "b": 3}, "reasoning": "math"}`,
	})

	d := r.Decide(context.Background(), "2 times 3?", calcRegistry().Snapshot())
	assert.Equal(t, models.ActionNoTool, d.Action)
	assert.Contains(t, d.Reasoning, "multiply")
}

func TestDecideInvalidArguments(t *testing.T) {
	t.Run("missing required", func(t *testing.T) {
		r := New(&scriptedCompleter{
			reply: `{"tool_name": "add", "parameters": {"a": 1}, "reasoning": "math"}`,
		})
		d := r.Decide(context.Background(), "1 plus?", calcRegistry().Snapshot())
		assert.Equal(t, models.ActionNoTool, d.Action)
	})

	t.Run("wrong type", func(t *testing.T) {
		r := New(&scriptedCompleter{
			reply: `{"tool_name": "add", "parameters": {"a": "one", "b": 2}, "reasoning": "math"}`,
		})
		d := r.Decide(context.Background(), "one plus two?", calcRegistry().Snapshot())
		assert.Equal(t, models.ActionNoTool, d.Action)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		r := New(&scriptedCompleter{
			reply: `{"tool_name": "add", "parameters": {"a": 1, "b": 2, "c": 3}, "reasoning": "math"}`,
		})
		d := r.Decide(context.Background(), "sum?", calcRegistry().Snapshot())
		assert.Equal(t, models.ActionNoTool, d.Action)
	})
}

func TestDecideNilParameters(t *testing.T) {
	// Optional-only tool with absent parameters object
	r := registry.New()
	r.Replace([]models.ToolDescriptor{{Name: "ping", ServerID: "srv"}})

	router := New(&scriptedCompleter{
		reply: `{"tool_name": "ping", "reasoning": "health check"}`,
	})
	d := router.Decide(context.Background(), "ping the server", r.Snapshot())

	assert.Equal(t, models.ActionCallTool, d.Action)
	assert.NotNil(t, d.Arguments)
}
