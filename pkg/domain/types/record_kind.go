package types

import "fmt"

// RecordKind represents the kind of a durable memory record. Each kind
// maps to its own vector collection in the store.
type RecordKind string

const (
	// RecordKindConversation is a promoted conversational exchange,
	// always scoped to a single owner.
	RecordKindConversation RecordKind = "conversation"

	// RecordKindDocument is a chunk of ingested reference material,
	// shared across all users (no owner).
	RecordKindDocument RecordKind = "document"
)

// AllRecordKinds returns all valid record kinds
func AllRecordKinds() []RecordKind {
	return []RecordKind{
		RecordKindConversation,
		RecordKindDocument,
	}
}

// IsValid checks if the record kind is valid
func (k RecordKind) IsValid() bool {
	switch k {
	case RecordKindConversation,
		RecordKindDocument:
		return true
	default:
		return false
	}
}

// String returns the string representation of the record kind
func (k RecordKind) String() string {
	return string(k)
}

// ParseRecordKind parses a string into a RecordKind
func ParseRecordKind(s string) (RecordKind, error) {
	kind := RecordKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid record kind: %s", s)
	}
	return kind, nil
}
