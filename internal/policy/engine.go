// Package policy evaluates send-admission decisions with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow     = "allow"
	DecisionRateLimit = "rate_limit"
	DecisionBlock     = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.send_policy.decision"),
		rego.Module("send_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input is the evaluation input for one send attempt.
type Input struct {
	UserID        string `json:"user_id"`
	ContentLength int    `json:"content_length"`
	ActiveStreams int    `json:"active_streams"`
}

// Evaluate checks the send policy and returns allow, rate_limit or block.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The default policy always defines a decision; an empty result
		// means a custom policy forgot to.
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package send_policy

default decision = "allow"

# Reject empty and oversized inputs outright.
decision = "block" {
	input.content_length == 0
}

decision = "block" {
	input.content_length > 32768
}

# One generation per chat; a second concurrent stream for the same user
# gets the typed rate-limit error instead of a silent queue.
decision = "rate_limit" {
	input.content_length > 0
	input.content_length <= 32768
	input.active_streams >= 1
}
`
