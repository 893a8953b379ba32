package llm

import (
	"context"
	"errors"
)

// ErrUnparsableScores is reported by ScoreRelevance when the model's
// response cannot be interpreted as a score list. Callers are expected
// to treat this as degradable and fall back to unranked results.
var ErrUnparsableScores = errors.New("relevance scores are unparsable")

// RelevanceScore is a single (index, score) pair from relevance scoring.
// Index refers to the position in the candidate list passed to
// ScoreRelevance, so scores stay attached to their records regardless of
// duplicate content.
type RelevanceScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Service defines the language-service operations consumed by the
// engine. Embeddings and the three prompt-engineered calls are all built
// on a single LLM client; the service computes nothing itself.
type Service interface {
	// Embed generates one embedding vector per input text
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// SubQueries reformulates a query into up to max alternative
	// phrasings to widen semantic recall
	SubQueries(ctx context.Context, query string, max int) ([]string, error)

	// Keywords extracts up to max salient keywords from a query, used
	// as a fallback when sub-query searches come up empty
	Keywords(ctx context.Context, query string, max int) ([]string, error)

	// ScoreRelevance scores each candidate's relevance to the query on
	// a 0-1 scale. Returns ErrUnparsableScores when the model response
	// cannot be interpreted.
	ScoreRelevance(ctx context.Context, query string, contents []string) ([]RelevanceScore, error)
}
