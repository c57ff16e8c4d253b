// Package policy gates which messages are eligible for long-term
// embedding.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine for embed eligibility.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.embed_policy.decision"),
		rego.Module("embed_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input is the per-message policy input.
type Input struct {
	Role          string            `json:"role"`
	ContentLength int               `json:"content_length"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Evaluate returns the embed decision for one message: "allow" or
// "deny". Denied messages stay pending and are skipped by the pipeline.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default, so this should not happen.
		return "allow", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "allow", nil
}

// DefaultPolicy embeds everything except messages explicitly marked
// private and empty messages that carry no recall value.
const DefaultPolicy = `
package embed_policy

default decision = "allow"

decision = "deny" {
	input.metadata.no_embed == "true"
}

decision = "deny" {
	input.content_length == 0
}
`
