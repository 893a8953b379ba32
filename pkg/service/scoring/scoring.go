// Package scoring decides which conversational exchanges graduate from
// the ephemeral session cache into durable storage. An Evaluator runs an
// ordered set of independent rules over the exchange text and promotes
// when the best eligible rule scores above the policy threshold.
package scoring

import (
	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
)

// Evaluator applies an ordered set of scoring rules. It is pure and
// deterministic: no I/O, no state between calls.
type Evaluator struct {
	rules     []Rule
	threshold float64
}

// Option is a functional option for Evaluator configuration
type Option func(*Evaluator)

// WithRule appends a rule to the evaluation order. Rules added this way
// run after the built-in rules; declaration order breaks score ties.
func WithRule(rule Rule) Option {
	return func(e *Evaluator) {
		e.rules = append(e.rules, rule)
	}
}

// New creates an Evaluator with the built-in rules configured by the
// given policy. A nil policy uses DefaultPolicy.
func New(policy *Policy, opts ...Option) *Evaluator {
	if policy == nil {
		policy = DefaultPolicy()
	}

	e := &Evaluator{
		rules: []Rule{
			&conversationRule{
				domainKeywords:  policy.DomainKeywords,
				insightKeywords: policy.InsightKeywords,
				markers:         policy.Markers,
			},
			&insightRule{patterns: policy.InsightPatterns},
			&riskRule{keywords: policy.RiskKeywords},
		},
		threshold: policy.PromoteThreshold,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate runs every rule over the content and combines the results.
// The overall score is the maximum among eligible rules; ties go to the
// rule declared first. ShouldPromote holds iff the overall score
// strictly exceeds the threshold.
func (e *Evaluator) Evaluate(content string, metadata map[string]any) *model.ScoreReport {
	report := &model.ScoreReport{
		Rules: make(map[string]model.RuleScore, len(e.rules)),
	}

	for _, rule := range e.rules {
		result := rule.Evaluate(content, metadata)
		report.Rules[rule.Name()] = result

		if result.Eligible && result.Score > report.OverallScore {
			report.OverallScore = result.Score
			report.WinningRule = rule.Name()
		}
	}

	report.ShouldPromote = report.OverallScore > e.threshold
	return report
}
