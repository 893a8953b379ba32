package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
	"github.com/finseer-lab/mnemosyne/pkg/usecase"
	"github.com/finseer-lab/mnemosyne/pkg/utils/errutil"
	"github.com/finseer-lab/mnemosyne/pkg/utils/safe"
)

// Default limits applied when the request omits them
const (
	defaultRecentLimit   = 10
	defaultDurableLimit  = 5
	defaultDocumentLimit = 5
	defaultSearchLimit   = 5
)

type recordTurnRequest struct {
	UserID            string         `json:"user_id"`
	UserMessage       string         `json:"user_message"`
	AssistantResponse string         `json:"assistant_response"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type recordTurnResponse struct {
	Promoted bool    `json:"promoted"`
	Rule     string  `json:"rule,omitempty"`
	Score    float64 `json:"score"`
}

func (s *Server) handleRecordTurn(w http.ResponseWriter, r *http.Request) {
	var req recordTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	result, err := s.uc.Memory.RecordTurn(r.Context(), types.UserID(req.UserID), req.UserMessage, req.AssistantResponse, req.Metadata)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
		return
	}

	writeJSON(w, r, recordTurnResponse{
		Promoted: result.Promoted,
		Rule:     result.Rule,
		Score:    result.Score,
	})
}

type assembleContextRequest struct {
	UserID        string `json:"user_id"`
	Message       string `json:"message"`
	RecentLimit   int    `json:"recent_limit,omitempty"`
	DurableLimit  int    `json:"durable_limit,omitempty"`
	DocumentLimit int    `json:"document_limit,omitempty"`
}

type assembleContextResponse struct {
	RecentTurns   []string        `json:"recent_turns"`
	RecentCount   int             `json:"recent_count"`
	Durable       []recordPayload `json:"durable_records"`
	DurableCount  int             `json:"durable_count"`
	Documents     []recordPayload `json:"document_records"`
	DocumentCount int             `json:"document_count"`
	FallbackCount int             `json:"fallback_count"`
	DurableText   string          `json:"durable_text"`
	DocumentText  string          `json:"document_text"`
}

func (s *Server) handleAssembleContext(w http.ResponseWriter, r *http.Request) {
	var req assembleContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	if req.RecentLimit <= 0 {
		req.RecentLimit = defaultRecentLimit
	}
	if req.DurableLimit <= 0 {
		req.DurableLimit = defaultDurableLimit
	}
	if req.DocumentLimit <= 0 {
		req.DocumentLimit = defaultDocumentLimit
	}

	bundle, err := s.uc.Memory.AssembleContext(r.Context(), types.UserID(req.UserID), req.Message, req.RecentLimit, req.DurableLimit, req.DocumentLimit)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
		return
	}

	writeJSON(w, r, assembleContextResponse{
		RecentTurns:   bundle.RecentTurns,
		RecentCount:   bundle.RecentCount,
		Durable:       toPayloads(bundle.DurableRecords),
		DurableCount:  bundle.DurableCount,
		Documents:     toPayloads(bundle.DocumentRecords),
		DocumentCount: bundle.DocumentCount,
		FallbackCount: bundle.FallbackCount,
		DurableText:   bundle.DurableText,
		DocumentText:  bundle.DocumentText,
	})
}

type searchRequest struct {
	Query string `json:"query"`
	Owner string `json:"owner,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Records []recordPayload `json:"records"`
	Count   int             `json:"count"`
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	records, err := s.uc.Memory.SearchMemories(r.Context(), req.Query, types.UserID(req.Owner), req.Limit)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
		return
	}

	writeJSON(w, r, searchResponse{
		Records: toPayloads(records),
		Count:   len(records),
	})
}

type clearMemoryResponse struct {
	Deleted int `json:"deleted"`
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	user := types.UserID(chi.URLParam(r, "user"))

	deleted, err := s.uc.Memory.ClearOwnerMemory(r.Context(), user)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
		return
	}

	writeJSON(w, r, clearMemoryResponse{Deleted: deleted})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.uc.Memory.Stats(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, stats)
}

// recordPayload is the wire form of a memory record. Embeddings are
// deliberately omitted from responses.
type recordPayload struct {
	ID             string         `json:"id"`
	Content        string         `json:"content"`
	Owner          string         `json:"owner,omitempty"`
	Kind           string         `json:"kind"`
	CreatedAt      string         `json:"created_at,omitempty"`
	RelevanceScore float64        `json:"relevance_score,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func toPayloads(records []*model.MemoryRecord) []recordPayload {
	out := make([]recordPayload, len(records))
	for i, rec := range records {
		p := recordPayload{
			ID:             rec.ID.String(),
			Content:        rec.Content,
			Owner:          rec.Owner.String(),
			Kind:           rec.Kind.String(),
			RelevanceScore: rec.RelevanceScore,
			Metadata:       rec.Metadata,
		}
		if !rec.CreatedAt.IsZero() {
			p.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
		}
		out[i] = p
	}
	return out
}

// statusFor maps usage errors to 400 and everything else (collaborator
// failures) to a generic 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrMissingUser),
		errors.Is(err, usecase.ErrMissingMessage),
		errors.Is(err, usecase.ErrMissingQuery),
		errors.Is(err, usecase.ErrInvalidLimit):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	safe.Write(r.Context(), w, data)
}
