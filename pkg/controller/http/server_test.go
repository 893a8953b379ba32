package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"

	httpctrl "github.com/finseer-lab/mnemosyne/pkg/controller/http"
	"github.com/finseer-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
	"github.com/finseer-lab/mnemosyne/pkg/repository/memory"
	"github.com/finseer-lab/mnemosyne/pkg/service/llm"
	"github.com/finseer-lab/mnemosyne/pkg/usecase"
)

// mockCache is a mock implementation of interfaces.SessionCache
type mockCache struct {
	appendFn func(ctx context.Context, user types.UserID, turn *model.ConversationTurn) error
	recentFn func(ctx context.Context, user types.UserID, limit int) ([]*model.ConversationTurn, error)
	clearFn  func(ctx context.Context, user types.UserID) error
	statsFn  func(ctx context.Context) (*interfaces.SessionStats, error)
}

func (m *mockCache) Append(ctx context.Context, user types.UserID, turn *model.ConversationTurn) error {
	if m.appendFn != nil {
		return m.appendFn(ctx, user, turn)
	}
	return nil
}

func (m *mockCache) Recent(ctx context.Context, user types.UserID, limit int) ([]*model.ConversationTurn, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, user, limit)
	}
	return nil, nil
}

func (m *mockCache) Clear(ctx context.Context, user types.UserID) error {
	if m.clearFn != nil {
		return m.clearFn(ctx, user)
	}
	return nil
}

func (m *mockCache) Stats(ctx context.Context) (*interfaces.SessionStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &interfaces.SessionStats{ActiveConversations: 1, TTLHours: 24}, nil
}

func (m *mockCache) Close() error { return nil }

// mockLanguage is a mock implementation of llm.Service
type mockLanguage struct{}

func (m *mockLanguage) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (m *mockLanguage) SubQueries(ctx context.Context, query string, max int) ([]string, error) {
	return []string{query}, nil
}

func (m *mockLanguage) Keywords(ctx context.Context, query string, max int) ([]string, error) {
	return nil, nil
}

func (m *mockLanguage) ScoreRelevance(ctx context.Context, query string, contents []string) ([]llm.RelevanceScore, error) {
	scores := make([]llm.RelevanceScore, len(contents))
	for i := range contents {
		scores[i] = llm.RelevanceScore{Index: i, Score: 1.0}
	}
	return scores, nil
}

func newTestServer(t *testing.T, cache interfaces.SessionCache, store interfaces.VectorStore) *httptest.Server {
	t.Helper()

	uc, err := usecase.New(cache, store, &mockLanguage{})
	gt.NoError(t, err).Required()

	srv := httptest.NewServer(httpctrl.New(uc))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	gt.NoError(t, err).Required()

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(out)).Required()
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &mockCache{}, memory.New())

	resp, err := http.Get(srv.URL + "/health")
	gt.NoError(t, err).Required()
	defer resp.Body.Close()

	gt.Number(t, resp.StatusCode).Equal(http.StatusOK)

	var body map[string]string
	decodeJSON(t, resp, &body)
	gt.Value(t, body["status"]).Equal("ok")
}

func TestRecordTurnEndpoint(t *testing.T) {
	t.Run("promoted exchange", func(t *testing.T) {
		store := memory.New()
		srv := newTestServer(t, &mockCache{}, store)

		resp := postJSON(t, srv.URL+"/api/turns", map[string]any{
			"user_id":            "u1",
			"user_message":       "I prefer high-risk growth stocks",
			"assistant_response": "Noted, I'll factor that in",
		})
		gt.Number(t, resp.StatusCode).Equal(http.StatusOK)

		var body struct {
			Promoted bool    `json:"promoted"`
			Rule     string  `json:"rule"`
			Score    float64 `json:"score"`
		}
		decodeJSON(t, resp, &body)
		gt.Bool(t, body.Promoted).True()
		gt.Value(t, body.Rule).Equal("insight")
		gt.Bool(t, body.Score > 0.5).True()

		count := gt.R1(store.Count(context.Background(), types.RecordKindConversation)).NoError(t)
		gt.Number(t, count).Equal(1)
	})

	t.Run("small talk is not promoted", func(t *testing.T) {
		store := memory.New()
		srv := newTestServer(t, &mockCache{}, store)

		resp := postJSON(t, srv.URL+"/api/turns", map[string]any{
			"user_id":            "u1",
			"user_message":       "hello",
			"assistant_response": "hi there",
		})
		gt.Number(t, resp.StatusCode).Equal(http.StatusOK)

		var body struct {
			Promoted bool `json:"promoted"`
		}
		decodeJSON(t, resp, &body)
		gt.Bool(t, body.Promoted).False()
	})

	t.Run("missing user is a bad request", func(t *testing.T) {
		srv := newTestServer(t, &mockCache{}, memory.New())

		resp := postJSON(t, srv.URL+"/api/turns", map[string]any{
			"user_message":       "hello",
			"assistant_response": "hi",
		})
		gt.Number(t, resp.StatusCode).Equal(http.StatusBadRequest)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		srv := newTestServer(t, &mockCache{}, memory.New())

		resp, err := http.Post(srv.URL+"/api/turns", "application/json", bytes.NewReader([]byte("{not json")))
		gt.NoError(t, err).Required()
		defer resp.Body.Close()
		gt.Number(t, resp.StatusCode).Equal(http.StatusBadRequest)
	})

	t.Run("cache failure is a server error", func(t *testing.T) {
		cache := &mockCache{
			appendFn: func(ctx context.Context, user types.UserID, turn *model.ConversationTurn) error {
				return errors.New("redis down")
			},
		}
		srv := newTestServer(t, cache, memory.New())

		resp := postJSON(t, srv.URL+"/api/turns", map[string]any{
			"user_id":            "u1",
			"user_message":       "hello",
			"assistant_response": "hi",
		})
		gt.Number(t, resp.StatusCode).Equal(http.StatusInternalServerError)
	})
}

func TestAssembleContextEndpoint(t *testing.T) {
	t.Run("defaults applied when limits omitted", func(t *testing.T) {
		var gotRecentLimit int
		cache := &mockCache{
			recentFn: func(ctx context.Context, user types.UserID, limit int) ([]*model.ConversationTurn, error) {
				gotRecentLimit = limit
				return []*model.ConversationTurn{
					model.NewConversationTurn("tell me about stocks", "Stocks are equity"),
				}, nil
			},
		}
		srv := newTestServer(t, cache, memory.New())

		resp := postJSON(t, srv.URL+"/api/context", map[string]any{
			"user_id": "u1",
			"message": "what should I buy?",
		})
		gt.Number(t, resp.StatusCode).Equal(http.StatusOK)
		gt.Number(t, gotRecentLimit).Equal(10)

		var body struct {
			RecentTurns   []string `json:"recent_turns"`
			RecentCount   int      `json:"recent_count"`
			DurableCount  int      `json:"durable_count"`
			DocumentCount int      `json:"document_count"`
			FallbackCount int      `json:"fallback_count"`
		}
		decodeJSON(t, resp, &body)
		gt.Array(t, body.RecentTurns).Length(2)
		gt.Number(t, body.RecentCount).Equal(2)
	})

	t.Run("durable records carry no embeddings on the wire", func(t *testing.T) {
		store := memory.New()
		_, err := store.Upsert(context.Background(), &model.MemoryRecord{
			Content:   "User prefers dividend stocks",
			Owner:     "u1",
			Kind:      types.RecordKindConversation,
			Embedding: []float32{1, 0},
		})
		gt.NoError(t, err).Required()

		srv := newTestServer(t, &mockCache{}, store)

		resp := postJSON(t, srv.URL+"/api/context", map[string]any{
			"user_id": "u1",
			"message": "what should I buy?",
		})
		gt.Number(t, resp.StatusCode).Equal(http.StatusOK)

		var body struct {
			Durable []map[string]any `json:"durable_records"`
		}
		decodeJSON(t, resp, &body)
		gt.Array(t, body.Durable).Length(1).Required()
		gt.Value(t, body.Durable[0]["content"]).Equal("User prefers dividend stocks")
		_, hasEmbedding := body.Durable[0]["embedding"]
		gt.Bool(t, hasEmbedding).False()
	})

	t.Run("missing message is a bad request", func(t *testing.T) {
		srv := newTestServer(t, &mockCache{}, memory.New())

		resp := postJSON(t, srv.URL+"/api/context", map[string]any{
			"user_id": "u1",
		})
		gt.Number(t, resp.StatusCode).Equal(http.StatusBadRequest)
	})
}

func TestSearchEndpoint(t *testing.T) {
	t.Run("returns matching records", func(t *testing.T) {
		store := memory.New()
		_, err := store.Upsert(context.Background(), &model.MemoryRecord{
			Content:   "User prefers dividend stocks",
			Owner:     "u1",
			Kind:      types.RecordKindConversation,
			Embedding: []float32{1, 0},
		})
		gt.NoError(t, err).Required()

		srv := newTestServer(t, &mockCache{}, store)

		resp := postJSON(t, srv.URL+"/api/search", map[string]any{
			"query": "dividends",
			"owner": "u1",
		})
		gt.Number(t, resp.StatusCode).Equal(http.StatusOK)

		var body struct {
			Records []map[string]any `json:"records"`
			Count   int              `json:"count"`
		}
		decodeJSON(t, resp, &body)
		gt.Number(t, body.Count).Equal(1)
		gt.Array(t, body.Records).Length(1)
	})

	t.Run("missing query is a bad request", func(t *testing.T) {
		srv := newTestServer(t, &mockCache{}, memory.New())

		resp := postJSON(t, srv.URL+"/api/search", map[string]any{
			"owner": "u1",
		})
		gt.Number(t, resp.StatusCode).Equal(http.StatusBadRequest)
	})
}

func TestClearMemoryEndpoint(t *testing.T) {
	store := memory.New()
	for range 2 {
		_, err := store.Upsert(context.Background(), &model.MemoryRecord{
			Content:   "memo",
			Owner:     "u1",
			Kind:      types.RecordKindConversation,
			Embedding: []float32{1, 0},
		})
		gt.NoError(t, err).Required()
	}

	srv := newTestServer(t, &mockCache{}, store)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/memory/u1", nil)
	gt.NoError(t, err).Required()
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()

	gt.Number(t, resp.StatusCode).Equal(http.StatusOK)

	var body struct {
		Deleted int `json:"deleted"`
	}
	decodeJSON(t, resp, &body)
	gt.Number(t, body.Deleted).Equal(2)

	count := gt.R1(store.Count(context.Background(), types.RecordKindConversation)).NoError(t)
	gt.Number(t, count).Equal(0)
}

func TestStatsEndpoint(t *testing.T) {
	t.Run("aggregates cache and store", func(t *testing.T) {
		store := memory.New()
		_, err := store.Upsert(context.Background(), &model.MemoryRecord{
			Content: "memo", Owner: "u1", Kind: types.RecordKindConversation, Embedding: []float32{1, 0},
		})
		gt.NoError(t, err).Required()

		srv := newTestServer(t, &mockCache{}, store)

		resp, err := http.Get(srv.URL + "/api/stats")
		gt.NoError(t, err).Required()
		defer resp.Body.Close()
		gt.Number(t, resp.StatusCode).Equal(http.StatusOK)

		var body struct {
			ActiveConversations int `json:"active_conversations"`
			SessionTTLHours     int `json:"session_ttl_hours"`
			ConversationRecords int `json:"conversation_records"`
			DocumentRecords     int `json:"document_records"`
		}
		decodeJSON(t, resp, &body)
		gt.Number(t, body.ActiveConversations).Equal(1)
		gt.Number(t, body.SessionTTLHours).Equal(24)
		gt.Number(t, body.ConversationRecords).Equal(1)
		gt.Number(t, body.DocumentRecords).Equal(0)
	})

	t.Run("cache failure is a server error", func(t *testing.T) {
		cache := &mockCache{
			statsFn: func(ctx context.Context) (*interfaces.SessionStats, error) {
				return nil, errors.New("redis down")
			},
		}
		srv := newTestServer(t, cache, memory.New())

		resp, err := http.Get(srv.URL + "/api/stats")
		gt.NoError(t, err).Required()
		defer resp.Body.Close()
		gt.Number(t, resp.StatusCode).Equal(http.StatusInternalServerError)
	})
}
