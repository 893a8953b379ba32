package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// client implements Service over a gollem LLM client
type client struct {
	llmClient gollem.LLMClient
}

// Option is a functional option for client configuration
type Option func(*client)

// New creates a new language service backed by the provided LLM client
func New(llmClient gollem.LLMClient, opts ...Option) (Service, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	c := &client{
		llmClient: llmClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, goerr.New("at least one text is required")
	}

	embeddings, err := c.llmClient.GenerateEmbedding(ctx, model.EmbeddingDimension, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embeddings", goerr.V("count", len(texts)))
	}
	if len(embeddings) != len(texts) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("want", len(texts)),
			goerr.V("got", len(embeddings)))
	}

	results := make([][]float32, len(embeddings))
	for i, emb := range embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		results[i] = vec
	}

	return results, nil
}

func (c *client) SubQueries(ctx context.Context, query string, max int) ([]string, error) {
	systemPrompt := fmt.Sprintf("You are a search query expansion assistant. "+
		"Reformulate the user's question into at most %d alternative search queries "+
		"that each capture a different aspect or phrasing of the same information need. "+
		"Keep each query short and self-contained. Respond in the same language as the question.", max)

	raw, err := c.completeJSON(ctx, systemPrompt, query, subQuerySchema())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate sub-queries", goerr.V("query", query))
	}

	var resp struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse sub-query response", goerr.V("response", raw))
	}

	return capStrings(resp.Queries, max), nil
}

func (c *client) Keywords(ctx context.Context, query string, max int) ([]string, error) {
	systemPrompt := fmt.Sprintf("You are a keyword extraction assistant. "+
		"Extract at most %d salient keywords or short phrases from the user's question, "+
		"suitable for a keyword search over reference documents. Respond in the same language as the question.", max)

	raw, err := c.completeJSON(ctx, systemPrompt, query, keywordSchema())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to extract keywords", goerr.V("query", query))
	}

	var resp struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse keyword response", goerr.V("response", raw))
	}

	return capStrings(resp.Keywords, max), nil
}

func (c *client) ScoreRelevance(ctx context.Context, query string, contents []string) ([]RelevanceScore, error) {
	if len(contents) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Rate how relevant each document is to the question on a 0.0 to 1.0 scale.\n\n")
	fmt.Fprintf(&sb, "## Question\n\n%s\n\n## Documents\n\n", query)
	for i, content := range contents {
		fmt.Fprintf(&sb, "### Document %d\n\n%s\n\n", i, content)
	}

	systemPrompt := "You are a relevance scoring assistant. " +
		"For each numbered document, return its index and a relevance score between 0.0 and 1.0, " +
		"where 1.0 means the document directly answers the question and 0.0 means it is unrelated."

	raw, err := c.completeJSON(ctx, systemPrompt, sb.String(), relevanceSchema())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to score relevance", goerr.V("query", query))
	}

	var resp struct {
		Scores []RelevanceScore `json:"scores"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, goerr.Wrap(ErrUnparsableScores, "invalid relevance response", goerr.V("response", raw))
	}
	for _, s := range resp.Scores {
		if s.Index < 0 || s.Index >= len(contents) {
			return nil, goerr.Wrap(ErrUnparsableScores, "relevance index out of range",
				goerr.V("index", s.Index),
				goerr.V("candidates", len(contents)))
		}
	}

	return resp.Scores, nil
}

// completeJSON runs a single completion with a JSON response schema and
// returns the raw response text
func (c *client) completeJSON(ctx context.Context, systemPrompt, userPrompt string, schema *gollem.Parameter) (string, error) {
	session, err := c.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(userPrompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content from LLM")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("empty LLM response")
	}

	return resp.Texts[0], nil
}

func subQuerySchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "SubQueryResponse",
		Description: "Reformulated search queries for the original question",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"queries": {
				Type:        gollem.TypeArray,
				Description: "Alternative search queries",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeString,
				},
			},
		},
	}
}

func keywordSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "KeywordResponse",
		Description: "Salient keywords extracted from the question",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"keywords": {
				Type:        gollem.TypeArray,
				Description: "Extracted keywords or short phrases",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeString,
				},
			},
		},
	}
}

func relevanceSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "RelevanceResponse",
		Description: "Relevance score per candidate document",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"scores": {
				Type:        gollem.TypeArray,
				Description: "One entry per document, keyed by its index in the input list",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"index": {
							Type:        gollem.TypeInteger,
							Description: "Zero-based index of the document in the input list",
							Required:    true,
						},
						"score": {
							Type:        gollem.TypeNumber,
							Description: "Relevance score between 0.0 and 1.0",
							Required:    true,
						},
					},
				},
			},
		},
	}
}

// capStrings drops empty entries and truncates the list to max elements
func capStrings(values []string, max int) []string {
	results := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		results = append(results, v)
		if len(results) >= max {
			break
		}
	}
	return results
}
