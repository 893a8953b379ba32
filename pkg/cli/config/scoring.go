package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/finseer-lab/mnemosyne/pkg/service/scoring"
	"github.com/finseer-lab/mnemosyne/pkg/utils/logging"
)

// Scoring holds CLI flags for promotion scoring configuration
type Scoring struct {
	policyPath         string
	relevanceThreshold float64
}

// Flags returns CLI flags for scoring configuration
func (s *Scoring) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "scoring-policy",
			Usage:       "Path to TOML scoring policy (defaults apply when omitted)",
			Sources:     cli.EnvVars("MNEMOSYNE_SCORING_POLICY"),
			Destination: &s.policyPath,
		},
		&cli.FloatFlag{
			Name:        "relevance-threshold",
			Usage:       "Minimum relevance score for amplified document results",
			Value:       0.5,
			Sources:     cli.EnvVars("MNEMOSYNE_RELEVANCE_THRESHOLD"),
			Destination: &s.relevanceThreshold,
		},
	}
}

// RelevanceThreshold returns the configured document relevance threshold
func (s *Scoring) RelevanceThreshold() float64 {
	return s.relevanceThreshold
}

// Configure builds the scoring evaluator, loading the TOML policy when a
// path is given
func (s *Scoring) Configure() (*scoring.Evaluator, error) {
	if s.policyPath == "" {
		return scoring.New(nil), nil
	}

	policy, err := scoring.LoadPolicy(s.policyPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load scoring policy", goerr.V("path", s.policyPath))
	}

	logging.Default().Info("Loaded scoring policy",
		"path", s.policyPath,
		"promote_threshold", policy.PromoteThreshold,
	)

	return scoring.New(policy), nil
}
