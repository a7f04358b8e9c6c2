// Package tools provides the agent's tool implementations, selected by
// capability flags.
package tools

import (
	"context"
	"encoding/json"

	"github.com/mkwng/poegate/config"
	"github.com/mkwng/poegate/llm"
)

// Tool is a callable capability exposed to the model.
type Tool interface {
	Name() string
	Definition() llm.Tool
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry holds the tools enabled for an agent.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds the registry for the given capability flags. Unknown or
// conflicting flag combinations are not validated; a disabled capability is
// simply never registered.
func NewRegistry(caps config.Capabilities, client *llm.Client, modelID, workdir string) *Registry {
	r := &Registry{tools: make(map[string]Tool)}

	if caps.Calculator {
		r.Register(NewCalculator())
	}
	if caps.WebSearch {
		r.Register(NewWebSearch(duckDuckGoBaseURL))
	}
	if caps.FileTools {
		r.Register(NewFileTool(workdir))
	}
	if caps.FinanceTools {
		r.Register(NewFinance(yahooFinanceBaseURL))
	}
	if caps.Crawler {
		r.Register(NewCrawler())
	}
	if caps.DataAnalyst {
		r.Register(NewAssistant(client, modelID, "data_analyst",
			"Analyze tabular data, summarize trends and compute statistics for the given task.",
			"You are a meticulous data analyst. Answer with concrete numbers and a short methodology note."))
	}
	if caps.PythonAssistant {
		r.Register(NewAssistant(client, modelID, "code_assistant",
			"Write, review or explain code for the given task.",
			"You are an expert programmer. Return working code with a brief explanation."))
	}
	if caps.ResearchAssistant {
		r.Register(NewAssistant(client, modelID, "research_assistant",
			"Research a topic in depth and produce a structured report.",
			"You are a thorough researcher. Produce a structured report with sources where possible."))
	}
	if caps.InvestmentAssistant {
		r.Register(NewAssistant(client, modelID, "investment_assistant",
			"Produce an investment analysis for the given company or asset.",
			"You are a careful investment analyst. Present risks alongside opportunities and never promise returns."))
	}

	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns the tool with the given name, or nil.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Definitions returns the tool definitions in registration order, for
// inclusion in a chat completion request.
func (r *Registry) Definitions() []llm.Tool {
	defs := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
