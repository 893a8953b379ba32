package scoring

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
)

// Policy holds the tunable keyword lists and the promotion threshold for
// the scoring rules. Rule weights and clamps are fixed policy constants
// in rules.go; the lists here are domain vocabulary and can be replaced
// per deployment via a TOML file.
type Policy struct {
	// PromoteThreshold is the overall score a report must exceed
	// (strictly) to promote an exchange into durable storage
	PromoteThreshold float64 `toml:"promote_threshold"`

	// DomainKeywords drive the conversation rule
	DomainKeywords []string `toml:"domain_keywords"`

	// InsightKeywords give the conversation rule its learning bonus
	InsightKeywords []string `toml:"insight_keywords"`

	// Markers are explicit save requests such as "remember this"
	Markers []string `toml:"markers"`

	// InsightPatterns drive the insight rule (personal preferences and
	// learning statements)
	InsightPatterns []string `toml:"insight_patterns"`

	// RiskKeywords drive the risk rule
	RiskKeywords []string `toml:"risk_keywords"`
}

// DefaultPolicy returns the built-in vocabulary for a financial
// assistant deployment.
func DefaultPolicy() *Policy {
	return &Policy{
		PromoteThreshold: 0.5,
		DomainKeywords: []string{
			"stock", "trading", "investment", "portfolio", "analysis",
			"strategy", "risk", "market", "price", "earnings", "dividend",
			"technical", "fundamental", "chart", "pattern", "indicator",
		},
		InsightKeywords: []string{
			"learned", "discovered", "found", "realized", "understood",
			"important", "key", "critical", "essential", "valuable",
		},
		Markers: []string{
			"remember this", "save this", "important", "note this",
		},
		InsightPatterns: []string{
			"i prefer", "i like", "i don't like", "i want", "i need",
			"my goal", "my target", "my risk tolerance", "my strategy",
			"i learned", "i discovered", "i realized", "i understand",
		},
		RiskKeywords: []string{
			"risk", "danger", "warning", "caution", "careful",
			"loss", "lose", "downside", "volatile", "uncertainty",
			"avoid", "stay away", "problem", "issue", "concern",
		},
	}
}

// Validate checks if the Policy is valid
func (p *Policy) Validate() error {
	if p.PromoteThreshold < 0 || p.PromoteThreshold > 1 {
		return goerr.New("promote threshold must be between 0 and 1",
			goerr.V("threshold", p.PromoteThreshold))
	}
	if len(p.DomainKeywords) == 0 {
		return goerr.New("domain keywords must not be empty")
	}
	if len(p.InsightPatterns) == 0 {
		return goerr.New("insight patterns must not be empty")
	}
	if len(p.RiskKeywords) == 0 {
		return goerr.New("risk keywords must not be empty")
	}
	return nil
}

// LoadPolicy reads a TOML policy file. Fields omitted from the file keep
// their defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", path))
	}

	policy := DefaultPolicy()
	if err := toml.Unmarshal(data, policy); err != nil {
		return nil, goerr.Wrap(err, "failed to parse policy file", goerr.V("path", path))
	}

	if err := policy.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid scoring policy", goerr.V("path", path))
	}

	return policy, nil
}
