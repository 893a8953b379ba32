package model

// RuleScore is the outcome of a single scoring rule applied to one piece
// of content.
type RuleScore struct {
	Eligible bool
	Score    float64
}

// ScoreReport is the combined result of running all scoring rules over a
// conversational exchange. It is computed per exchange and never
// persisted as-is; a summary is attached to promoted records as metadata.
type ScoreReport struct {
	// Rules maps rule name to its individual result
	Rules map[string]RuleScore

	// OverallScore is the maximum score among eligible rules, in [0, 1]
	OverallScore float64

	// WinningRule is the name of the rule that produced OverallScore.
	// Empty when no rule was eligible.
	WinningRule string

	// ShouldPromote holds iff OverallScore exceeds the promotion
	// threshold.
	ShouldPromote bool
}
