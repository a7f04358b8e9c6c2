// Package policy gates agent tool invocations through OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the tool policy for one invocation.
// Input is a map with keys: tool_name, args, conversation_id.
// Returns the decision (allow, block) and an optional reason.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default, so an empty result set means the
		// module is malformed rather than "no opinion".
		return "allow", "default", nil
	}

	val := results[0].Expressions[0].Value
	if s, ok := val.(string); ok {
		return s, "", nil
	}

	return "allow", "unexpected return type", nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package tool_policy

default decision = "allow"

# File access is confined to the relative workdir.
decision = "block" {
	input.tool_name == "file"
	startswith(input.args.path, "/")
}

decision = "block" {
	input.tool_name == "file"
	contains(input.args.path, "..")
}

# The crawler must not be pointed at the host itself.
decision = "block" {
	input.tool_name == "crawl_web"
	contains(input.args.url, "localhost")
}

decision = "block" {
	input.tool_name == "crawl_web"
	contains(input.args.url, "127.0.0.1")
}
`
