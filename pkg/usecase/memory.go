package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/finseer-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
	"github.com/finseer-lab/mnemosyne/pkg/service/llm"
	"github.com/finseer-lab/mnemosyne/pkg/service/retrieval"
	"github.com/finseer-lab/mnemosyne/pkg/service/scoring"
	"github.com/finseer-lab/mnemosyne/pkg/utils/logging"
)

const (
	// fallbackSearchLimit bounds the similarity fallback that runs when
	// the owner-scoped durable listing is empty
	fallbackSearchLimit = 2

	// defaultRelevanceThreshold filters document records during
	// retrieval amplification
	defaultRelevanceThreshold = 0.5

	durableHeader  = "=== IMPORTANT MEMORIES ==="
	documentHeader = "=== RELEVANT DOCUMENTS ==="
)

// userLinePattern recognizes a formatted user utterance in the session
// cache rendering, e.g. "[14:32] User: hello"
var userLinePattern = regexp.MustCompile(`^\[\d{2}:\d{2}\] User: `)

// MemoryUseCase curates conversational memory: it appends exchanges to
// the session cache, promotes important ones to the durable store, and
// assembles the merged context bundle for prompt construction.
type MemoryUseCase struct {
	cache     interfaces.SessionCache
	store     interfaces.VectorStore
	llm       llm.Service
	evaluator *scoring.Evaluator
	amplifier *retrieval.Amplifier

	relevanceThreshold float64
}

func NewMemoryUseCase(cache interfaces.SessionCache, store interfaces.VectorStore, llmSvc llm.Service, evaluator *scoring.Evaluator, amplifier *retrieval.Amplifier) *MemoryUseCase {
	return &MemoryUseCase{
		cache:              cache,
		store:              store,
		llm:                llmSvc,
		evaluator:          evaluator,
		amplifier:          amplifier,
		relevanceThreshold: defaultRelevanceThreshold,
	}
}

// SetRelevanceThreshold overrides the threshold applied to document
// relevance scores during context assembly
func (uc *MemoryUseCase) SetRelevanceThreshold(threshold float64) {
	uc.relevanceThreshold = threshold
}

// RecordTurn appends the exchange to the session cache and, when the
// scoring evaluator grades it above the promotion threshold, persists it
// to the durable store. A cache or store failure is fatal to the call.
func (uc *MemoryUseCase) RecordTurn(ctx context.Context, user types.UserID, userMessage, assistantResponse string, metadata map[string]any) (*model.PromotionResult, error) {
	if user.IsEmpty() {
		return nil, goerr.Wrap(ErrMissingUser, "record turn")
	}
	if userMessage == "" {
		return nil, goerr.Wrap(ErrMissingMessage, "record turn", goerr.V(UserIDKey, user))
	}

	turn := model.NewConversationTurn(userMessage, assistantResponse)
	if err := uc.cache.Append(ctx, user, turn); err != nil {
		return nil, goerr.Wrap(err, "failed to append turn to session cache", goerr.V(UserIDKey, user))
	}

	combined := fmt.Sprintf("User: %s\nAssistant: %s", userMessage, assistantResponse)
	report := uc.evaluator.Evaluate(combined, metadata)

	result := &model.PromotionResult{
		Promoted: report.ShouldPromote,
		Rule:     report.WinningRule,
		Score:    report.OverallScore,
	}
	if !report.ShouldPromote {
		return result, nil
	}

	embeddings, err := uc.llm.Embed(ctx, []string{combined})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed promoted exchange", goerr.V(UserIDKey, user))
	}

	record := &model.MemoryRecord{
		Content:   combined,
		Owner:     user,
		Kind:      types.RecordKindConversation,
		Embedding: embeddings[0],
		Metadata:  promotionMetadata(report, metadata),
	}
	if _, err := uc.store.Upsert(ctx, record); err != nil {
		return nil, goerr.Wrap(err, "failed to persist promoted exchange", goerr.V(UserIDKey, user))
	}

	logging.From(ctx).Info("promoted exchange to durable memory",
		"user", user,
		"rule", report.WinningRule,
		"score", report.OverallScore,
	)

	return result, nil
}

// AssembleContext builds the merged context bundle for the user's next
// exchange: recent session turns, owner-scoped durable memories (with a
// similarity fallback when the listing is empty), and amplified document
// context for the current message. Any collaborator failure aborts the
// whole assembly.
func (uc *MemoryUseCase) AssembleContext(ctx context.Context, user types.UserID, currentMessage string, recentLimit, durableLimit, documentLimit int) (*model.ContextBundle, error) {
	if user.IsEmpty() {
		return nil, goerr.Wrap(ErrMissingUser, "assemble context")
	}
	if currentMessage == "" {
		return nil, goerr.Wrap(ErrMissingMessage, "assemble context", goerr.V(UserIDKey, user))
	}
	if recentLimit <= 0 || durableLimit <= 0 || documentLimit <= 0 {
		return nil, goerr.Wrap(ErrInvalidLimit, "assemble context", goerr.V(UserIDKey, user))
	}

	turns, err := uc.cache.Recent(ctx, user, recentLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read session cache", goerr.V(UserIDKey, user))
	}
	recentLines := formatTurns(turns)

	durable, err := uc.store.ListByOwner(ctx, types.RecordKindConversation, user, durableLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list durable memories", goerr.V(UserIDKey, user))
	}

	fallbackCount := 0
	if len(durable) == 0 {
		fallback, err := uc.fallbackSimilar(ctx, user, recentLines)
		if err != nil {
			return nil, err
		}
		fallbackCount = len(fallback)
		durable = append(durable, fallback...)
	}

	durable = dedupeByID(durable)
	if len(durable) > durableLimit {
		durable = durable[:durableLimit]
	}

	documents, err := uc.amplifier.Amplify(ctx, currentMessage, documentLimit, uc.relevanceThreshold)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to amplify document retrieval", goerr.V(UserIDKey, user))
	}

	return &model.ContextBundle{
		RecentTurns:     recentLines,
		RecentCount:     len(recentLines),
		DurableRecords:  durable,
		DurableCount:    len(durable),
		DocumentRecords: documents,
		DocumentCount:   len(documents),
		FallbackCount:   fallbackCount,
		DurableText:     formatRecords(durableHeader, durable),
		DocumentText:    formatRecords(documentHeader, documents),
	}, nil
}

// SearchMemories runs a similarity search over conversation records. An
// empty owner searches across all users.
func (uc *MemoryUseCase) SearchMemories(ctx context.Context, query string, owner types.UserID, limit int) ([]*model.MemoryRecord, error) {
	if query == "" {
		return nil, goerr.Wrap(ErrMissingQuery, "search memories")
	}
	if limit <= 0 {
		return nil, goerr.Wrap(ErrInvalidLimit, "search memories", goerr.V(QueryKey, query))
	}

	embeddings, err := uc.llm.Embed(ctx, []string{query})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query", goerr.V(QueryKey, query))
	}

	opts := []interfaces.SearchOption{interfaces.WithLimit(limit)}
	if !owner.IsEmpty() {
		opts = append(opts, interfaces.WithOwner(owner))
	}

	records, err := uc.store.Search(ctx, types.RecordKindConversation, embeddings[0], opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories", goerr.V(QueryKey, query))
	}

	return records, nil
}

// ClearOwnerMemory removes the user's session cache entries and all
// durable conversation records, returning the number of durable records
// deleted.
func (uc *MemoryUseCase) ClearOwnerMemory(ctx context.Context, user types.UserID) (int, error) {
	if user.IsEmpty() {
		return 0, goerr.Wrap(ErrMissingUser, "clear owner memory")
	}

	if err := uc.cache.Clear(ctx, user); err != nil {
		return 0, goerr.Wrap(err, "failed to clear session cache", goerr.V(UserIDKey, user))
	}

	deleted, err := uc.store.DeleteByOwner(ctx, types.RecordKindConversation, user)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete durable memories", goerr.V(UserIDKey, user))
	}

	logging.From(ctx).Info("cleared owner memory", "user", user, "deleted", deleted)

	return deleted, nil
}

// Stats aggregates session cache statistics and durable record counts
// per collection.
func (uc *MemoryUseCase) Stats(ctx context.Context) (*model.EngineStats, error) {
	cacheStats, err := uc.cache.Stats(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read session cache stats")
	}

	conversations, err := uc.store.Count(ctx, types.RecordKindConversation)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count conversation records")
	}
	documents, err := uc.store.Count(ctx, types.RecordKindDocument)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count document records")
	}

	return &model.EngineStats{
		ActiveConversations: cacheStats.ActiveConversations,
		SessionTTLHours:     cacheStats.TTLHours,
		ConversationRecords: conversations,
		DocumentRecords:     documents,
	}, nil
}

// fallbackSimilar recovers durable context when the owner-scoped listing
// is empty: it embeds the most recent cached user utterance and runs one
// owner-scoped similarity search. No cached user line means no fallback.
func (uc *MemoryUseCase) fallbackSimilar(ctx context.Context, user types.UserID, recentLines []string) ([]*model.MemoryRecord, error) {
	utterance := lastUserUtterance(recentLines)
	if utterance == "" {
		return nil, nil
	}

	embeddings, err := uc.llm.Embed(ctx, []string{utterance})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed fallback query", goerr.V(UserIDKey, user))
	}

	records, err := uc.store.Search(ctx, types.RecordKindConversation, embeddings[0],
		interfaces.WithOwner(user),
		interfaces.WithLimit(fallbackSearchLimit),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "fallback similarity search failed", goerr.V(UserIDKey, user))
	}

	return records, nil
}

// formatTurns renders cached turns (given newest first) as oldest-first
// timestamped lines, two per exchange
func formatTurns(turns []*model.ConversationTurn) []string {
	lines := make([]string, 0, len(turns)*2)
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		stamp := t.Timestamp.Format("15:04")
		lines = append(lines, fmt.Sprintf("[%s] User: %s", stamp, t.UserMessage))
		lines = append(lines, fmt.Sprintf("[%s] Assistant: %s", stamp, t.AssistantResponse))
	}
	return lines
}

// lastUserUtterance extracts the most recent user message from formatted
// session lines
func lastUserUtterance(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if loc := userLinePattern.FindStringIndex(lines[i]); loc != nil {
			return lines[i][loc[1]:]
		}
	}
	return ""
}

// dedupeByID drops duplicate records, preserving first-seen order
func dedupeByID(records []*model.MemoryRecord) []*model.MemoryRecord {
	seen := make(map[model.RecordID]struct{}, len(records))
	out := make([]*model.MemoryRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// formatRecords renders records as a headed block of timestamped lines.
// Empty input renders to an empty string, not a bare header.
func formatRecords(header string, records []*model.MemoryRecord) string {
	if len(records) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteByte('\n')
	for _, r := range records {
		if r.CreatedAt.IsZero() {
			sb.WriteString(r.Content)
		} else {
			sb.WriteString(fmt.Sprintf("[%s] %s", r.CreatedAt.Format("2006-01-02 15:04"), r.Content))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func promotionMetadata(report *model.ScoreReport, metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+3)
	for k, v := range metadata {
		out[k] = v
	}
	out["winning_rule"] = report.WinningRule
	out["overall_score"] = report.OverallScore

	rules := make(map[string]any, len(report.Rules))
	for name, rs := range report.Rules {
		rules[name] = map[string]any{
			"eligible": rs.Eligible,
			"score":    rs.Score,
		}
	}
	out["rule_scores"] = rules

	return out
}
