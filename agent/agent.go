// Package agent runs tool-equipped generations against the model, one
// isolated session per conversation.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mkwng/poegate/llm"
	"github.com/mkwng/poegate/memory"
	"github.com/mkwng/poegate/policy"
	"github.com/mkwng/poegate/store"
	"github.com/mkwng/poegate/tools"
)

const systemPrompt = "You are a helpful assistant. Use the available tools when they produce a better answer than recall alone. Answer in markdown."

// ModelClient is the streaming model call the agent depends on.
type ModelClient interface {
	CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, callback llm.StreamCallback) error
}

// Agent coordinates the model, tools, policy, memory and store. One Agent
// exists per process; per-conversation state lives in sessions.
type Agent struct {
	client        ModelClient
	modelID       string
	tools         *tools.Registry
	policy        *policy.Engine
	memory        memory.Memory
	store         store.Store
	maxToolRounds int
	historyDepth  int
	memoryTopK    int
	log           zerolog.Logger
}

// Option configures the agent.
type Option func(*Agent)

const (
	defaultMaxToolRounds = 8
	defaultHistoryDepth  = 20
	defaultMemoryTopK    = 5
)

// WithMaxToolRounds bounds the number of tool-resolution rounds per run.
func WithMaxToolRounds(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxToolRounds = n
		}
	}
}

// WithHistoryDepth sets how many stored messages feed each generation.
func WithHistoryDepth(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.historyDepth = n
		}
	}
}

// WithMemoryTopK sets how many memory snippets are recalled per generation.
func WithMemoryTopK(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.memoryTopK = n
		}
	}
}

// New creates the agent.
func New(client ModelClient, modelID string, registry *tools.Registry, engine *policy.Engine, mem memory.Memory, st store.Store, log zerolog.Logger, opts ...Option) *Agent {
	a := &Agent{
		client:        client,
		modelID:       modelID,
		tools:         registry,
		policy:        engine,
		memory:        mem,
		store:         st,
		maxToolRounds: defaultMaxToolRounds,
		historyDepth:  defaultHistoryDepth,
		memoryTopK:    defaultMemoryTopK,
		log:           log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// generate runs the model over the given messages, resolving tool calls
// until the model produces a final answer. Every content fragment is passed
// to emit as it arrives; the returned string is their concatenation.
func (a *Agent) generate(ctx context.Context, conversationID string, messages []llm.ChatMessage, emit func(string)) (string, error) {
	var full strings.Builder

	for round := 0; round <= a.maxToolRounds; round++ {
		content, toolCalls, err := a.streamOnce(ctx, messages, func(fragment string) {
			full.WriteString(fragment)
			emit(fragment)
		})
		if err != nil {
			return "", err
		}

		if len(toolCalls) == 0 {
			return full.String(), nil
		}

		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   content,
			ToolCalls: toolCalls,
		})
		for _, call := range toolCalls {
			result := a.executeTool(ctx, conversationID, call)
			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("tool round limit (%d) exceeded", a.maxToolRounds)
}

// streamOnce performs one streaming completion, assembling content and tool
// call fragments from the deltas.
func (a *Agent) streamOnce(ctx context.Context, messages []llm.ChatMessage, emit func(string)) (string, []llm.ToolCall, error) {
	req := &llm.ChatCompletionRequest{
		Model:    a.modelID,
		Messages: messages,
	}
	if a.tools != nil && a.tools.Len() > 0 {
		req.Tools = a.tools.Definitions()
	}

	var content strings.Builder
	var toolCalls []llm.ToolCall

	err := a.client.CreateChatCompletionStream(ctx, req, func(chunk *llm.StreamChunk) error {
		for _, choice := range chunk.Choices {
			delta := choice.Delta
			if delta == nil {
				continue
			}
			if delta.Content != "" {
				content.WriteString(delta.Content)
				emit(delta.Content)
			}
			for _, tc := range delta.ToolCalls {
				toolCalls = mergeToolCallDelta(toolCalls, tc)
			}
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	return content.String(), toolCalls, nil
}

// mergeToolCallDelta folds one streamed tool-call fragment into the
// accumulated calls. Fragments carry an index; id and name arrive on the
// first fragment, arguments accrete across the rest.
func mergeToolCallDelta(calls []llm.ToolCall, delta llm.ToolCall) []llm.ToolCall {
	idx := 0
	if delta.Index != nil {
		idx = *delta.Index
	}
	for len(calls) <= idx {
		calls = append(calls, llm.ToolCall{Type: "function"})
	}

	call := &calls[idx]
	if delta.ID != "" {
		call.ID = delta.ID
	}
	if delta.Type != "" {
		call.Type = delta.Type
	}
	if delta.Function.Name != "" {
		call.Function.Name += delta.Function.Name
	}
	call.Function.Arguments += delta.Function.Arguments
	return calls
}

// executeTool runs one tool call through the policy gate. Failures are
// reported back to the model as the tool result rather than failing the run.
func (a *Agent) executeTool(ctx context.Context, conversationID string, call llm.ToolCall) string {
	name := call.Function.Name
	args := json.RawMessage(call.Function.Arguments)
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	if a.policy != nil {
		var argsMap map[string]interface{}
		if err := json.Unmarshal(args, &argsMap); err != nil {
			argsMap = map[string]interface{}{}
		}
		decision, reason, err := a.policy.Evaluate(ctx, map[string]interface{}{
			"tool_name":       name,
			"args":            argsMap,
			"conversation_id": conversationID,
		})
		if err != nil {
			a.log.Error().Err(err).Str("tool", name).Msg("policy evaluation failed")
			return fmt.Sprintf("tool error: policy evaluation failed: %v", err)
		}
		if decision == "block" {
			a.log.Warn().Str("tool", name).Str("reason", reason).Msg("tool call blocked")
			if reason == "" {
				reason = "not permitted"
			}
			return fmt.Sprintf("tool blocked by policy: %s", reason)
		}
	}

	tool := a.tools.Get(name)
	if tool == nil {
		return fmt.Sprintf("unknown tool: %s", name)
	}

	result, err := tool.Invoke(ctx, args)
	if err != nil {
		a.log.Warn().Err(err).Str("tool", name).Msg("tool invocation failed")
		return fmt.Sprintf("tool error: %v", err)
	}
	return result
}
