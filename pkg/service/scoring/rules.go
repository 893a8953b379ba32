package scoring

import (
	"strings"

	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
)

// Rule scores one independent importance dimension of a piece of
// content. Rules are stateless and must not perform I/O.
type Rule interface {
	// Name identifies the rule in score reports and record metadata
	Name() string

	// Evaluate returns whether the content qualifies under this rule
	// and its score in [0, 1]
	Evaluate(content string, metadata map[string]any) model.RuleScore
}

// Weight and clamp constants for the built-in rules. These are policy
// choices, not structural requirements.
const (
	domainKeywordWeight  = 0.2
	domainKeywordCap     = 0.6
	insightKeywordWeight = 0.15
	insightKeywordCap    = 0.3
	markerBonus          = 0.2
	importantFlagBonus   = 0.3
	lengthBonus          = 0.1
	lengthBonusMin       = 200

	insightPatternWeight = 0.35
	insightPatternCap    = 0.7
	preferenceBonus      = 0.2
	learningBonus        = 0.2
	insightFlagBonus     = 0.3

	riskKeywordWeight = 0.25
	riskKeywordCap    = 0.6
	warningBonus      = 0.3
	riskFlagBonus     = 0.4
)

// conversationRule promotes exchanges dense in domain vocabulary,
// explicit save requests, or caller-flagged importance.
type conversationRule struct {
	domainKeywords  []string
	insightKeywords []string
	markers         []string
}

func (r *conversationRule) Name() string { return "conversation" }

func (r *conversationRule) Evaluate(content string, metadata map[string]any) model.RuleScore {
	lower := strings.ToLower(content)

	domainHits := countHits(lower, r.domainKeywords)
	insightHits := countHits(lower, r.insightKeywords)
	hasMarker := containsAny(lower, r.markers)
	flagged := boolFlag(metadata, "important")

	score := clamp(float64(domainHits)*domainKeywordWeight, domainKeywordCap)
	score += clamp(float64(insightHits)*insightKeywordWeight, insightKeywordCap)
	if hasMarker {
		score += markerBonus
	}
	if flagged {
		score += importantFlagBonus
	}
	if len(content) > lengthBonusMin {
		score += lengthBonus
	}

	return model.RuleScore{
		Eligible: domainHits > 0 || insightHits > 0 || hasMarker || flagged,
		Score:    clamp(score, 1.0),
	}
}

// insightRule promotes statements of user preference, goals, and
// learning so the assistant can personalize later sessions.
type insightRule struct {
	patterns []string
}

func (r *insightRule) Name() string { return "insight" }

func (r *insightRule) Evaluate(content string, metadata map[string]any) model.RuleScore {
	lower := strings.ToLower(content)

	patternHits := countHits(lower, r.patterns)
	flagged := boolFlag(metadata, "insight")

	score := clamp(float64(patternHits)*insightPatternWeight, insightPatternCap)
	if containsAny(lower, []string{"prefer", "like", "want", "need"}) {
		score += preferenceBonus
	}
	if containsAny(lower, []string{"learned", "discovered", "realized"}) {
		score += learningBonus
	}
	if flagged {
		score += insightFlagBonus
	}

	return model.RuleScore{
		Eligible: patternHits > 0 || flagged,
		Score:    clamp(score, 1.0),
	}
}

// riskRule promotes warnings and loss-related content.
type riskRule struct {
	keywords []string
}

func (r *riskRule) Name() string { return "risk" }

func (r *riskRule) Evaluate(content string, metadata map[string]any) model.RuleScore {
	lower := strings.ToLower(content)

	hits := countHits(lower, r.keywords)
	flagged := boolFlag(metadata, "risk")

	score := clamp(float64(hits)*riskKeywordWeight, riskKeywordCap)
	if containsAny(lower, []string{"warning", "caution", "danger"}) {
		score += warningBonus
	}
	if flagged {
		score += riskFlagBonus
	}

	return model.RuleScore{
		Eligible: hits > 0 || flagged,
		Score:    clamp(score, 1.0),
	}
}

func countHits(lower string, terms []string) int {
	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return hits
}

func containsAny(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func boolFlag(metadata map[string]any, key string) bool {
	if metadata == nil {
		return false
	}
	v, ok := metadata[key].(bool)
	return ok && v
}

func clamp(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
