package model

import (
	"time"

	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
	"github.com/google/uuid"
)

// EmbeddingDimension is the size of embedding vectors stored alongside
// memory records. All embeddings written to and queried against the
// vector store must have this dimension.
const EmbeddingDimension = 1536

// RecordID is a UUID-based identifier for MemoryRecord
type RecordID string

// NewRecordID generates a new UUID v4 RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

// String returns the string representation of the record ID
func (r RecordID) String() string {
	return string(r)
}

// MemoryRecord is a durable memory entry in the vector store. Records are
// never mutated after creation; they are deleted individually or by
// owner-scoped bulk delete.
//
// Conversation records carry the owner that produced them. Document
// records are global knowledge and have an empty owner.
type MemoryRecord struct {
	ID        RecordID
	Content   string
	Owner     types.UserID
	Kind      types.RecordKind
	Embedding []float32
	CreatedAt time.Time

	// RelevanceScore is set transiently by similarity search or
	// relevance reranking. It is not persisted.
	RelevanceScore float64

	Metadata map[string]any
}
