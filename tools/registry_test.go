package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkwng/poegate/config"
	"github.com/mkwng/poegate/llm"
)

func allCapabilities() config.Capabilities {
	return config.Capabilities{
		Calculator:          true,
		WebSearch:           true,
		FileTools:           true,
		FinanceTools:        true,
		DataAnalyst:         true,
		PythonAssistant:     true,
		ResearchAssistant:   true,
		InvestmentAssistant: true,
		Crawler:             true,
	}
}

func TestNewRegistryAllCapabilities(t *testing.T) {
	r := NewRegistry(allCapabilities(), nil, "gpt-4o-mini", t.TempDir())

	assert.Equal(t, 9, r.Len())
	for _, name := range []string{
		"calculator", "web_search", "file", "get_stock_price", "crawl_web",
		"data_analyst", "code_assistant", "research_assistant", "investment_assistant",
	} {
		assert.NotNil(t, r.Get(name), "tool %s should be registered", name)
	}
	assert.Len(t, r.Definitions(), 9)
}

func TestNewRegistryDisabledCapability(t *testing.T) {
	caps := allCapabilities()
	caps.Calculator = false
	caps.InvestmentAssistant = false

	r := NewRegistry(caps, nil, "gpt-4o-mini", t.TempDir())

	assert.Equal(t, 7, r.Len())
	assert.Nil(t, r.Get("calculator"))
	assert.Nil(t, r.Get("investment_assistant"))
	assert.NotNil(t, r.Get("web_search"))
}

type fakeCompleter struct {
	lastReq *llm.ChatCompletionRequest
	content string
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	f.lastReq = req
	return &llm.ChatCompletionResponse{
		Choices: []llm.Choice{{Message: &llm.ChatMessage{Role: "assistant", Content: f.content}}},
	}, nil
}

func TestAssistantDelegatesToModel(t *testing.T) {
	completer := &fakeCompleter{content: "report text"}
	assistant := NewAssistant(completer, "gpt-4o-mini", "research_assistant",
		"Research a topic.", "You are a thorough researcher.")

	args, _ := json.Marshal(map[string]string{"task": "history of pgvector"})
	out, err := assistant.Invoke(context.Background(), args)
	assert.NoError(t, err)
	assert.Equal(t, "report text", out)

	assert.Equal(t, "gpt-4o-mini", completer.lastReq.Model)
	assert.Len(t, completer.lastReq.Messages, 2)
	assert.Equal(t, "system", completer.lastReq.Messages[0].Role)
	assert.Equal(t, "history of pgvector", completer.lastReq.Messages[1].Content)
}

func TestAssistantEmptyTask(t *testing.T) {
	assistant := NewAssistant(&fakeCompleter{}, "m", "data_analyst", "d", "p")

	args, _ := json.Marshal(map[string]string{"task": "  "})
	_, err := assistant.Invoke(context.Background(), args)
	assert.Error(t, err)
}
