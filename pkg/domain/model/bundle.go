package model

// ContextBundle is the assembled conversational context returned to the
// caller. It is a return value only and is never persisted.
//
// Count fields always equal the length of their corresponding sequence.
// DurableRecords is deduplicated by record ID, newest first.
// DocumentRecords is global knowledge and never carries an owner filter.
type ContextBundle struct {
	// RecentTurns holds formatted session-cache lines, oldest first
	RecentTurns []string
	RecentCount int

	DurableRecords []*MemoryRecord
	DurableCount   int

	DocumentRecords []*MemoryRecord
	DocumentCount   int

	// FallbackCount is the number of records contributed by the
	// similarity fallback search (only runs when the owner-scoped
	// durable listing is empty)
	FallbackCount int

	// DurableText and DocumentText are human-readable blocks for prompt
	// construction, one timestamped line per record
	DurableText  string
	DocumentText string
}

// PromotionResult reports the outcome of recording a conversation turn.
type PromotionResult struct {
	Promoted bool
	Rule     string
	Score    float64
}
