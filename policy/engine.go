package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the send policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document a send is evaluated against.
type Input struct {
	Operation     string `json:"operation"`
	SessionID     string `json:"session_id"`
	SessionStatus string `json:"session_status"`
	MessageType   int    `json:"message_type"`
	ContentLength int    `json:"content_length"`
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

// LoadEngine reads a policy file, or uses DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks the send policy.
// Returns the decision (allow or block).
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// The policy is expected to declare a default.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}

	val := results[0].Expressions[0].Value
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("unexpected policy result type %T", val)
	}
	return s, nil
}

// DefaultPolicy allows every send, including sends to ended sessions.
const DefaultPolicy = `
package send_policy

default decision = "allow"
`
