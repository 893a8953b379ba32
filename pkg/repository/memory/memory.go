// Package memory provides an in-memory vector store for tests and
// development. It mirrors the Firestore implementation's semantics,
// including cosine-similarity search, without external dependencies.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/finseer-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// Store implements interfaces.VectorStore in process memory
type Store struct {
	mu      sync.RWMutex
	records map[types.RecordKind]map[model.RecordID]*model.MemoryRecord
}

var _ interfaces.VectorStore = &Store{}

// New creates an empty in-memory vector store
func New() *Store {
	return &Store{
		records: make(map[types.RecordKind]map[model.RecordID]*model.MemoryRecord),
	}
}

func copyRecord(r *model.MemoryRecord) *model.MemoryRecord {
	copied := &model.MemoryRecord{
		ID:             r.ID,
		Content:        r.Content,
		Owner:          r.Owner,
		Kind:           r.Kind,
		CreatedAt:      r.CreatedAt,
		RelevanceScore: r.RelevanceScore,
	}
	if r.Embedding != nil {
		copied.Embedding = make([]float32, len(r.Embedding))
		copy(copied.Embedding, r.Embedding)
	}
	if r.Metadata != nil {
		copied.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			copied.Metadata[k] = v
		}
	}
	return copied
}

func (s *Store) bucket(kind types.RecordKind) map[model.RecordID]*model.MemoryRecord {
	if _, exists := s.records[kind]; !exists {
		s.records[kind] = make(map[model.RecordID]*model.MemoryRecord)
	}
	return s.records[kind]
}

func (s *Store) Upsert(ctx context.Context, record *model.MemoryRecord) (*model.MemoryRecord, error) {
	if record == nil {
		return nil, goerr.New("record is required")
	}
	if !record.Kind.IsValid() {
		return nil, goerr.New("invalid record kind", goerr.V("kind", record.Kind))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := copyRecord(record)
	if created.ID == "" {
		created.ID = model.NewRecordID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	s.bucket(record.Kind)[created.ID] = created
	return copyRecord(created), nil
}

func (s *Store) Search(ctx context.Context, kind types.RecordKind, embedding []float32, opts ...interfaces.SearchOption) ([]*model.MemoryRecord, error) {
	var options interfaces.SearchOptions
	for _, opt := range opts {
		opt(&options)
	}
	limit := options.Limit
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, exists := s.records[kind]
	if !exists {
		return []*model.MemoryRecord{}, nil
	}

	type scored struct {
		record *model.MemoryRecord
		score  float64
	}

	var candidates []scored
	for _, r := range bucket {
		if len(r.Embedding) == 0 {
			continue
		}
		if !options.Owner.IsEmpty() && r.Owner != options.Owner {
			continue
		}
		score := cosineSimilarity(embedding, r.Embedding)
		if options.ScoreThreshold > 0 && score < options.ScoreThreshold {
			continue
		}
		candidates = append(candidates, scored{record: copyRecord(r), score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]*model.MemoryRecord, len(candidates))
	for i, c := range candidates {
		c.record.RelevanceScore = c.score
		results[i] = c.record
	}

	return results, nil
}

func (s *Store) ListByOwner(ctx context.Context, kind types.RecordKind, owner types.UserID, limit int) ([]*model.MemoryRecord, error) {
	if owner.IsEmpty() {
		return nil, goerr.New("owner is required")
	}
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, exists := s.records[kind]
	if !exists {
		return []*model.MemoryRecord{}, nil
	}

	results := make([]*model.MemoryRecord, 0)
	for _, r := range bucket {
		if r.Owner == owner {
			results = append(results, copyRecord(r))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (s *Store) DeleteByOwner(ctx context.Context, kind types.RecordKind, owner types.UserID) (int, error) {
	if owner.IsEmpty() {
		return 0, goerr.New("owner is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, exists := s.records[kind]
	if !exists {
		return 0, nil
	}

	deleted := 0
	for id, r := range bucket {
		if r.Owner == owner {
			delete(bucket, id)
			deleted++
		}
	}

	return deleted, nil
}

func (s *Store) Count(ctx context.Context, kind types.RecordKind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records[kind]), nil
}

func (s *Store) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
