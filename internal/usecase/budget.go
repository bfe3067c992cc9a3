package usecase

import (
	"math"

	"RegisterDigest/internal/ports"
)

// BudgetPolicy holds the token budget parameters.
type BudgetPolicy struct {
	// SummaryRatio sizes the summary relative to the input.
	SummaryRatio float64
	// MaxTokens bounds input+target and the completion output cap.
	MaxTokens int
	// Above ExpansionThreshold the output cap becomes min(MaxTokens, target*ExpansionFactor).
	ExpansionThreshold int
	ExpansionFactor    float64
}

// DefaultBudgetPolicy is 30% summaries under an 8000 token ceiling.
func DefaultBudgetPolicy() BudgetPolicy {
	return BudgetPolicy{
		SummaryRatio:       0.3,
		MaxTokens:          8000,
		ExpansionThreshold: 5333,
		ExpansionFactor:    1.5,
	}
}

// OutputCap is the max_tokens value sent with the completion request.
func (p BudgetPolicy) OutputCap(target int) int {
	if target <= p.ExpansionThreshold {
		return target
	}
	expanded := int(float64(target) * p.ExpansionFactor)
	if expanded > p.MaxTokens {
		return p.MaxTokens
	}
	return expanded
}

// Plan is the sizing decision for one batch.
type Plan struct {
	TokenCount int
	TargetSize int
	OutputCap  int
	// Admitted is false when the text is empty or input+target exceeds MaxTokens.
	Admitted bool
}

// TokenBudgetPlanner sizes summaries from model token counts.
type TokenBudgetPlanner struct {
	tokenizer ports.Tokenizer
	policy    BudgetPolicy
}

// NewTokenBudgetPlanner wires a tokenizer and policy.
func NewTokenBudgetPlanner(tokenizer ports.Tokenizer, policy BudgetPolicy) *TokenBudgetPlanner {
	return &TokenBudgetPlanner{tokenizer: tokenizer, policy: policy}
}

// Policy returns the planner's budget policy.
func (p *TokenBudgetPlanner) Policy() BudgetPolicy {
	return p.policy
}

// Plan counts tokens in text and derives the target summary size.
func (p *TokenBudgetPlanner) Plan(text string) Plan {
	if text == "" {
		return Plan{}
	}

	count := p.tokenizer.Count(text)
	target := int(math.RoundToEven(float64(count) * p.policy.SummaryRatio))
	return Plan{
		TokenCount: count,
		TargetSize: target,
		OutputCap:  p.policy.OutputCap(target),
		Admitted:   count+target <= p.policy.MaxTokens,
	}
}
