package interfaces

import (
	"context"

	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
)

// SearchOption configures a vector similarity search
type SearchOption func(*SearchOptions)

// SearchOptions holds the resolved options for a similarity search
type SearchOptions struct {
	// Owner restricts results to records owned by this user. Empty
	// means no owner filter (global scope).
	Owner types.UserID

	// Limit bounds the number of results
	Limit int

	// ScoreThreshold drops results whose cosine similarity falls below
	// this value. Zero disables the threshold.
	ScoreThreshold float64
}

// WithOwner restricts a search to records owned by the given user
func WithOwner(owner types.UserID) SearchOption {
	return func(o *SearchOptions) {
		o.Owner = owner
	}
}

// WithLimit bounds the number of search results
func WithLimit(limit int) SearchOption {
	return func(o *SearchOptions) {
		o.Limit = limit
	}
}

// WithScoreThreshold drops results below the given similarity score
func WithScoreThreshold(threshold float64) SearchOption {
	return func(o *SearchOptions) {
		o.ScoreThreshold = threshold
	}
}

// VectorStore defines the interface for durable memory persistence with
// vector similarity search. Records of each kind live in their own
// collection: conversation records are owner-scoped, document records
// are global.
type VectorStore interface {
	// Upsert stores a record in the collection matching its kind. A
	// missing ID is generated; CreatedAt is stamped by the store.
	Upsert(ctx context.Context, record *model.MemoryRecord) (*model.MemoryRecord, error)

	// Search performs cosine similarity search over the given kind's
	// collection. Results are ranked by similarity descending and carry
	// their score in RelevanceScore.
	Search(ctx context.Context, kind types.RecordKind, embedding []float32, opts ...SearchOption) ([]*model.MemoryRecord, error)

	// ListByOwner retrieves up to limit records owned by the given
	// user, newest first, without a similarity query
	ListByOwner(ctx context.Context, kind types.RecordKind, owner types.UserID, limit int) ([]*model.MemoryRecord, error)

	// DeleteByOwner removes all records owned by the given user and
	// returns the number deleted
	DeleteByOwner(ctx context.Context, kind types.RecordKind, owner types.UserID) (int, error)

	// Count returns the number of records in the kind's collection
	Count(ctx context.Context, kind types.RecordKind) (int, error)

	Close() error
}
