package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mkwng/poegate/llm"
)

// Completer is the model call an assistant delegates to.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
}

// Assistant is a delegate tool: it runs a specialized system prompt through
// the model and returns the answer as the tool result.
type Assistant struct {
	client       Completer
	modelID      string
	name         string
	description  string
	systemPrompt string
}

// NewAssistant creates a delegate assistant tool.
func NewAssistant(client Completer, modelID, name, description, systemPrompt string) *Assistant {
	return &Assistant{
		client:       client,
		modelID:      modelID,
		name:         name,
		description:  description,
		systemPrompt: systemPrompt,
	}
}

func (a *Assistant) Name() string { return a.name }

func (a *Assistant) Definition() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        a.name,
			Description: a.description,
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task": map[string]interface{}{
						"type":        "string",
						"description": "The task to hand to the assistant, with all needed context.",
					},
				},
				"required": []string{"task"},
			},
		},
	}
}

func (a *Assistant) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", fmt.Errorf("invalid %s args: %w", a.name, err)
	}
	if strings.TrimSpace(req.Task) == "" {
		return "", fmt.Errorf("empty task")
	}

	resp, err := a.client.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model: a.modelID,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: a.systemPrompt},
			{Role: "user", Content: req.Task},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", a.name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", fmt.Errorf("%s returned no content", a.name)
	}
	return resp.Choices[0].Message.Content, nil
}
