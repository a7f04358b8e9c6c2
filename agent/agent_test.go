package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/mkwng/poegate/config"
	"github.com/mkwng/poegate/domain"
	"github.com/mkwng/poegate/llm"
	"github.com/mkwng/poegate/policy"
	"github.com/mkwng/poegate/store"
	"github.com/mkwng/poegate/tools"
)

// fakeModel plays one scripted chunk sequence per call and records every
// request it receives.
type fakeModel struct {
	scripts  [][]llm.StreamChunk
	requests []*llm.ChatCompletionRequest
	err      error
}

func (f *fakeModel) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, callback llm.StreamCallback) error {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return f.err
	}
	if len(f.scripts) == 0 {
		return errors.New("no scripted response left")
	}
	script := f.scripts[0]
	f.scripts = f.scripts[1:]
	for i := range script {
		if err := callback(&script[i]); err != nil {
			return err
		}
	}
	return nil
}

func contentChunks(fragments ...string) []llm.StreamChunk {
	chunks := make([]llm.StreamChunk, 0, len(fragments))
	for _, fragment := range fragments {
		chunks = append(chunks, llm.StreamChunk{
			Choices: []llm.Choice{{Delta: &llm.ChatMessage{Content: fragment}}},
		})
	}
	return chunks
}

func toolCallChunks(id, name, arguments string) []llm.StreamChunk {
	idx := 0
	return []llm.StreamChunk{
		{Choices: []llm.Choice{{Delta: &llm.ChatMessage{ToolCalls: []llm.ToolCall{
			{Index: &idx, ID: id, Type: "function", Function: llm.ToolCallFunction{Name: name}},
		}}}}},
		{Choices: []llm.Choice{{Delta: &llm.ChatMessage{ToolCalls: []llm.ToolCall{
			{Index: &idx, Function: llm.ToolCallFunction{Arguments: arguments}},
		}}}}},
	}
}

func newTestAgent(t *testing.T, model ModelClient, opts ...Option) (*Agent, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to build policy engine: %v", err)
	}

	caps := config.Capabilities{Calculator: true, FileTools: true}
	registry := tools.NewRegistry(caps, nil, "gpt-4o-mini", t.TempDir())

	return New(model, "gpt-4o-mini", registry, engine, nil, st, zerolog.Nop(), opts...), st
}

func TestSessionRunStreamsFragments(t *testing.T) {
	model := &fakeModel{scripts: [][]llm.StreamChunk{contentChunks("Hel", "lo")}}
	a, st := newTestAgent(t, model)
	session := NewManager(a).Session("conv-1", "user-1")

	var fragments []string
	text, err := session.Run(context.Background(), "say hello", func(fragment string) {
		fragments = append(fragments, fragment)
	})
	assert.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.Len(t, model.requests, 1)

	messages, err := st.GetMessages(context.Background(), "conv-1", 10)
	assert.NoError(t, err)
	if assert.Len(t, messages, 2) {
		assert.Equal(t, "user", messages[0].Role)
		assert.Equal(t, "say hello", messages[0].Content)
		assert.Equal(t, "assistant", messages[1].Role)
		assert.Equal(t, "Hello", messages[1].Content)
	}

	run, err := st.GetRun(context.Background(), messages[0].RunID)
	assert.NoError(t, err)
	assert.Equal(t, domain.RunStatusDone, run.Status)
	assert.NotNil(t, run.EndedAt)
}

func TestSessionRunPromptIncludesHistory(t *testing.T) {
	model := &fakeModel{scripts: [][]llm.StreamChunk{
		contentChunks("first reply"),
		contentChunks("second reply"),
	}}
	a, _ := newTestAgent(t, model)
	session := NewManager(a).Session("conv-1", "user-1")

	_, err := session.Run(context.Background(), "first question", nil)
	assert.NoError(t, err)
	_, err = session.Run(context.Background(), "second question", nil)
	assert.NoError(t, err)

	req := model.requests[1]
	var roles []string
	var contents []string
	for _, m := range req.Messages {
		roles = append(roles, m.Role)
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	assert.Equal(t, "second question", contents[len(contents)-1])
	assert.Contains(t, contents, "first reply")
}

func TestSessionRunToolRound(t *testing.T) {
	model := &fakeModel{scripts: [][]llm.StreamChunk{
		toolCallChunks("call_1", "calculator", `{"expression":"2+2"}`),
		contentChunks("The answer is ", "4."),
	}}
	a, _ := newTestAgent(t, model)
	session := NewManager(a).Session("conv-1", "user-1")

	text, err := session.Run(context.Background(), "what is 2+2?", nil)
	assert.NoError(t, err)
	assert.Equal(t, "The answer is 4.", text)
	assert.Len(t, model.requests, 2)

	second := model.requests[1]
	n := len(second.Messages)
	assistant := second.Messages[n-2]
	assert.Equal(t, "assistant", assistant.Role)
	if assert.Len(t, assistant.ToolCalls, 1) {
		assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)
		assert.Equal(t, "calculator", assistant.ToolCalls[0].Function.Name)
		assert.Equal(t, `{"expression":"2+2"}`, assistant.ToolCalls[0].Function.Arguments)
	}
	toolMsg := second.Messages[n-1]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "4", toolMsg.Content)
}

func TestSessionRunPolicyBlocksTool(t *testing.T) {
	model := &fakeModel{scripts: [][]llm.StreamChunk{
		toolCallChunks("call_1", "file", `{"op":"read","path":"/etc/passwd"}`),
		contentChunks("I cannot read that file."),
	}}
	a, _ := newTestAgent(t, model)
	session := NewManager(a).Session("conv-1", "user-1")

	text, err := session.Run(context.Background(), "read /etc/passwd", nil)
	assert.NoError(t, err)
	assert.Equal(t, "I cannot read that file.", text)

	second := model.requests[1]
	toolMsg := second.Messages[len(second.Messages)-1]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "blocked by policy")
}

func TestSessionRunUnknownTool(t *testing.T) {
	model := &fakeModel{scripts: [][]llm.StreamChunk{
		toolCallChunks("call_1", "teleport", `{}`),
		contentChunks("done"),
	}}
	a, _ := newTestAgent(t, model)
	session := NewManager(a).Session("conv-1", "user-1")

	_, err := session.Run(context.Background(), "teleport me", nil)
	assert.NoError(t, err)

	second := model.requests[1]
	toolMsg := second.Messages[len(second.Messages)-1]
	assert.Equal(t, "unknown tool: teleport", toolMsg.Content)
}

func TestSessionRunModelErrorFailsRun(t *testing.T) {
	model := &fakeModel{err: errors.New("upstream unavailable")}
	a, st := newTestAgent(t, model)
	session := NewManager(a).Session("conv-1", "user-1")

	_, err := session.Run(context.Background(), "hello", nil)
	assert.Error(t, err)

	messages, err := st.GetMessages(context.Background(), "conv-1", 10)
	assert.NoError(t, err)
	if assert.Len(t, messages, 1) {
		run, err := st.GetRun(context.Background(), messages[0].RunID)
		assert.NoError(t, err)
		assert.Equal(t, domain.RunStatusFailed, run.Status)
		assert.Contains(t, run.Error, "upstream unavailable")
	}
}

func TestSessionRunCancelledContext(t *testing.T) {
	model := &fakeModel{err: context.Canceled}
	a, st := newTestAgent(t, model)
	session := NewManager(a).Session("conv-1", "user-1")

	_, err := session.Run(context.Background(), "hello", nil)
	assert.Error(t, err)

	messages, _ := st.GetMessages(context.Background(), "conv-1", 10)
	if assert.Len(t, messages, 1) {
		run, err := st.GetRun(context.Background(), messages[0].RunID)
		assert.NoError(t, err)
		assert.Equal(t, domain.RunStatusCancelled, run.Status)
	}
}

func TestSessionRunToolRoundLimit(t *testing.T) {
	model := &fakeModel{scripts: [][]llm.StreamChunk{
		toolCallChunks("call_1", "calculator", `{"expression":"1+1"}`),
		toolCallChunks("call_2", "calculator", `{"expression":"2+2"}`),
	}}
	a, _ := newTestAgent(t, model, WithMaxToolRounds(1))
	session := NewManager(a).Session("conv-1", "user-1")

	_, err := session.Run(context.Background(), "loop forever", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tool round limit")
}

func TestManagerReusesSessions(t *testing.T) {
	a, _ := newTestAgent(t, &fakeModel{})
	m := NewManager(a)

	s1 := m.Session("conv-1", "user-1")
	s2 := m.Session("conv-1", "user-1")
	s3 := m.Session("conv-2", "user-1")
	assert.Same(t, s1, s2)
	assert.NotSame(t, s1, s3)
}

func TestMergeToolCallDelta(t *testing.T) {
	idx0, idx1 := 0, 1
	var calls []llm.ToolCall
	calls = mergeToolCallDelta(calls, llm.ToolCall{Index: &idx0, ID: "call_a", Function: llm.ToolCallFunction{Name: "calculator"}})
	calls = mergeToolCallDelta(calls, llm.ToolCall{Index: &idx0, Function: llm.ToolCallFunction{Arguments: `{"expr`}})
	calls = mergeToolCallDelta(calls, llm.ToolCall{Index: &idx1, ID: "call_b", Function: llm.ToolCallFunction{Name: "file"}})
	calls = mergeToolCallDelta(calls, llm.ToolCall{Index: &idx0, Function: llm.ToolCallFunction{Arguments: `ession":"1"}`}})

	if assert.Len(t, calls, 2) {
		assert.Equal(t, "call_a", calls[0].ID)
		assert.Equal(t, "calculator", calls[0].Function.Name)
		assert.Equal(t, `{"expression":"1"}`, calls[0].Function.Arguments)
		assert.Equal(t, "call_b", calls[1].ID)
	}
}
