// Package policy decides what happens to redacted content using OPA/Rego.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Query is the rule every policy module must define.
const Query = "data.aegismask.policy.decision"

// Decision represents the outcome of a policy evaluation
type Decision int

const (
	Allow Decision = iota
	Review
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Review:
		return "review"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// MarshalText renders the decision name in JSON and YAML.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDecision maps a policy result to a Decision. Unknown values become
// Review.
func ParseDecision(s string) Decision {
	switch s {
	case "allow":
		return Allow
	case "deny":
		return Deny
	default:
		return Review
	}
}

// Thresholds are passed to the policy as input.thresholds. Zero disables a
// threshold.
type Thresholds struct {
	Review int
	Deny   int
}

// Input describes one filtered text. Policies see counts, never the matched
// text.
type Input struct {
	List       string
	MatchCount int
	Distinct   int
	TextLength int // characters
	Actor      string
	Thresholds Thresholds
}

func (in Input) value() map[string]interface{} {
	return map[string]interface{}{
		"list":        in.List,
		"match_count": in.MatchCount,
		"distinct":    in.Distinct,
		"text_length": in.TextLength,
		"actor":       in.Actor,
		"thresholds": map[string]interface{}{
			"review": in.Thresholds.Review,
			"deny":   in.Thresholds.Deny,
		},
	}
}

// ErrNonStringDecision is returned when the decision rule is not a string.
var ErrNonStringDecision = errors.New("policy returned non-string decision")

// Engine evaluates the decision rule of a compiled policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine from a Rego policy string
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query(Query),
		rego.Module("policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego query: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadPolicy loads a policy from the specified path (rego file)
func LoadPolicy(ctx context.Context, path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(data))
}

// LoadOrDefault loads the policy at path, or the built-in default when the
// file does not exist.
func LoadOrDefault(ctx context.Context, path string) (*Engine, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadPolicy(ctx, path)
		}
	}
	return NewEngine(ctx, DefaultPolicy)
}

// Evaluate returns the decision for in. On evaluation errors it returns
// Review together with the error.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in.value()))
	if err != nil {
		return Review, err
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Review, nil
	}

	decisionStr, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return Review, ErrNonStringDecision
	}

	return ParseDecision(decisionStr), nil
}
