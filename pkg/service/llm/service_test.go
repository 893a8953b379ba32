package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	"github.com/finseer-lab/mnemosyne/pkg/service/llm"
)

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{"{}"}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct {
	newSessionFn        func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
	generateEmbeddingFn func(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if c.generateEmbeddingFn != nil {
		return c.generateEmbeddingFn(ctx, dimension, input)
	}
	return nil, nil
}

// textSession returns a session that always responds with the given text
func textSession(text string) func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
		return &mockLLMSession{
			generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
				return &gollem.Response{Texts: []string{text}}, nil
			},
		}, nil
	}
}

func TestNew(t *testing.T) {
	t.Run("requires a client", func(t *testing.T) {
		_, err := llm.New(nil)
		gt.Error(t, err)
	})

	t.Run("valid client", func(t *testing.T) {
		svc := gt.R1(llm.New(&mockLLMClient{})).NoError(t)
		gt.Bool(t, svc != nil).True()
	})
}

func TestEmbed(t *testing.T) {
	ctx := context.Background()

	t.Run("converts vectors to float32", func(t *testing.T) {
		mock := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				gt.Array(t, input).Length(2)
				return [][]float64{{0.1, 0.2}, {0.3, 0.4}}, nil
			},
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		embeddings := gt.R1(svc.Embed(ctx, []string{"first", "second"})).NoError(t)
		gt.Array(t, embeddings).Length(2).Required()
		gt.Value(t, embeddings[0]).Equal([]float32{0.1, 0.2})
		gt.Value(t, embeddings[1]).Equal([]float32{0.3, 0.4})
	})

	t.Run("rejects empty input", func(t *testing.T) {
		svc := gt.R1(llm.New(&mockLLMClient{})).NoError(t)
		_, err := svc.Embed(ctx, nil)
		gt.Error(t, err)
	})

	t.Run("count mismatch is an error", func(t *testing.T) {
		mock := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return [][]float64{{0.1}}, nil
			},
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		_, err := svc.Embed(ctx, []string{"first", "second"})
		gt.Error(t, err)
	})

	t.Run("client failure propagates", func(t *testing.T) {
		mock := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return nil, errors.New("quota exceeded")
			},
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		_, err := svc.Embed(ctx, []string{"first"})
		gt.Error(t, err)
	})
}

func TestSubQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("parses queries", func(t *testing.T) {
		mock := &mockLLMClient{
			newSessionFn: textSession(`{"queries": ["risk tolerance history", "stated investment preferences", "loss aversion"]}`),
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		queries := gt.R1(svc.SubQueries(ctx, "what did I tell you about risk?", 3)).NoError(t)
		gt.Array(t, queries).Length(3).Required()
		gt.Value(t, queries[0]).Equal("risk tolerance history")
	})

	t.Run("caps to max and drops blanks", func(t *testing.T) {
		mock := &mockLLMClient{
			newSessionFn: textSession(`{"queries": ["a", "  ", "b", "c", "d"]}`),
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		queries := gt.R1(svc.SubQueries(ctx, "question", 3)).NoError(t)
		gt.Array(t, queries).Length(3).Required()
		gt.Value(t, queries).Equal([]string{"a", "b", "c"})
	})

	t.Run("malformed response is an error", func(t *testing.T) {
		mock := &mockLLMClient{
			newSessionFn: textSession(`not json at all`),
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		_, err := svc.SubQueries(ctx, "question", 3)
		gt.Error(t, err)
	})
}

func TestKeywords(t *testing.T) {
	ctx := context.Background()

	mock := &mockLLMClient{
		newSessionFn: textSession(`{"keywords": ["dividend", "portfolio allocation"]}`),
	}
	svc := gt.R1(llm.New(mock)).NoError(t)

	keywords := gt.R1(svc.Keywords(ctx, "how should I allocate dividends?", 5)).NoError(t)
	gt.Array(t, keywords).Length(2).Required()
	gt.Value(t, keywords[0]).Equal("dividend")
}

func TestScoreRelevance(t *testing.T) {
	ctx := context.Background()

	t.Run("parses scores", func(t *testing.T) {
		mock := &mockLLMClient{
			newSessionFn: textSession(`{"scores": [{"index": 0, "score": 0.9}, {"index": 1, "score": 0.2}]}`),
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		scores := gt.R1(svc.ScoreRelevance(ctx, "question", []string{"doc a", "doc b"})).NoError(t)
		gt.Array(t, scores).Length(2).Required()
		gt.Value(t, scores[0]).Equal(llm.RelevanceScore{Index: 0, Score: 0.9})
		gt.Value(t, scores[1]).Equal(llm.RelevanceScore{Index: 1, Score: 0.2})
	})

	t.Run("empty candidates short-circuit", func(t *testing.T) {
		called := false
		mock := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				called = true
				return &mockLLMSession{}, nil
			},
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		scores := gt.R1(svc.ScoreRelevance(ctx, "question", nil)).NoError(t)
		gt.Array(t, scores).Length(0)
		gt.Bool(t, called).False()
	})

	t.Run("malformed response reports unparsable scores", func(t *testing.T) {
		mock := &mockLLMClient{
			newSessionFn: textSession(`the documents look relevant to me`),
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		_, err := svc.ScoreRelevance(ctx, "question", []string{"doc a"})
		gt.Bool(t, errors.Is(err, llm.ErrUnparsableScores)).True()
	})

	t.Run("out of range index reports unparsable scores", func(t *testing.T) {
		mock := &mockLLMClient{
			newSessionFn: textSession(`{"scores": [{"index": 5, "score": 0.9}]}`),
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		_, err := svc.ScoreRelevance(ctx, "question", []string{"doc a"})
		gt.Bool(t, errors.Is(err, llm.ErrUnparsableScores)).True()
	})

	t.Run("session failure is not degradable", func(t *testing.T) {
		mock := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return nil, errors.New("provider unavailable")
			},
		}
		svc := gt.R1(llm.New(mock)).NoError(t)

		_, err := svc.ScoreRelevance(ctx, "question", []string{"doc a"})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, llm.ErrUnparsableScores)).False()
	})
}
