// Package retrieval widens a single user query into multiple concurrent
// semantic searches over the shared document store and condenses the
// results into one ranked, deduplicated list.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"github.com/finseer-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
	"github.com/finseer-lab/mnemosyne/pkg/service/llm"
	"github.com/finseer-lab/mnemosyne/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

// maxExpansions bounds how many sub-queries or fallback keywords are
// requested from the language service per amplify call
const maxExpansions = 3

// Amplifier expands a query into sub-queries, fans searches out against
// the document store, and reranks the merged results. It only touches
// globally-scoped document records; callers must not route user-scoped
// lookups through it.
type Amplifier struct {
	llm   llm.Service
	store interfaces.VectorStore

	// searchTimeout bounds each individual sub-search. When positive, a
	// timed-out sub-search contributes zero results instead of failing
	// the whole call. Zero disables the bound.
	searchTimeout time.Duration
}

// Option is a functional option for Amplifier configuration
type Option func(*Amplifier)

// WithSearchTimeout bounds each concurrent sub-search. A timed-out
// search contributes no results rather than an error.
func WithSearchTimeout(d time.Duration) Option {
	return func(a *Amplifier) {
		a.searchTimeout = d
	}
}

// New creates an Amplifier over the given language service and store
func New(llmSvc llm.Service, store interfaces.VectorStore, opts ...Option) (*Amplifier, error) {
	if llmSvc == nil {
		return nil, goerr.New("language service is required")
	}
	if store == nil {
		return nil, goerr.New("vector store is required")
	}

	a := &Amplifier{
		llm:   llmSvc,
		store: store,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Amplify retrieves document context for the query. Sub-query searches
// run concurrently and all complete before merging; if every sub-query
// search is empty, keyword searches are issued before giving up. The
// merged set is relevance-scored against the original query and records
// below threshold are dropped; when the scoring response is unparsable
// the deduplicated set is returned unranked instead.
func (a *Amplifier) Amplify(ctx context.Context, query string, limit int, threshold float64) ([]*model.MemoryRecord, error) {
	if query == "" {
		return nil, goerr.New("query is required")
	}

	subQueries, err := a.llm.SubQueries(ctx, query, maxExpansions)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to expand query", goerr.V("query", query))
	}
	if len(subQueries) == 0 {
		subQueries = []string{query}
	}

	merged, err := a.searchAll(ctx, subQueries, limit)
	if err != nil {
		return nil, err
	}

	if len(merged) == 0 {
		keywords, err := a.llm.Keywords(ctx, query, maxExpansions)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to extract fallback keywords", goerr.V("query", query))
		}
		if len(keywords) > 0 {
			merged, err = a.searchAll(ctx, keywords, limit)
			if err != nil {
				return nil, err
			}
		}
	}

	if len(merged) == 0 {
		return []*model.MemoryRecord{}, nil
	}

	return a.rerank(ctx, query, merged, threshold), nil
}

// searchAll embeds and searches the document store for every query
// concurrently, then merges the result lists deduplicated in query
// order, first occurrence winning.
func (a *Amplifier) searchAll(ctx context.Context, queries []string, limit int) ([]*model.MemoryRecord, error) {
	results := make([][]*model.MemoryRecord, len(queries))

	eg, searchCtx := errgroup.WithContext(ctx)
	for i, q := range queries {
		eg.Go(func() error {
			records, err := a.searchOne(searchCtx, q, limit)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return mergeRecords(results), nil
}

func (a *Amplifier) searchOne(ctx context.Context, query string, limit int) ([]*model.MemoryRecord, error) {
	if a.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.searchTimeout)
		defer cancel()
	}

	embeddings, err := a.llm.Embed(ctx, []string{query})
	if err != nil {
		if a.timedOut(ctx, err) {
			logging.From(ctx).Warn("sub-search timed out during embedding", "query", query)
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to embed sub-query", goerr.V("query", query))
	}

	// Document context is knowledge shared across all users: never an
	// owner filter here.
	records, err := a.store.Search(ctx, types.RecordKindDocument, embeddings[0],
		interfaces.WithLimit(limit),
	)
	if err != nil {
		if a.timedOut(ctx, err) {
			logging.From(ctx).Warn("sub-search timed out", "query", query)
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to search documents", goerr.V("query", query))
	}

	return records, nil
}

// timedOut reports whether the error is this sub-search's own deadline
// expiring, as opposed to the caller cancelling the whole amplify call
func (a *Amplifier) timedOut(ctx context.Context, err error) bool {
	return a.searchTimeout > 0 &&
		errors.Is(err, context.DeadlineExceeded) &&
		errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// rerank scores the candidates against the original query and returns
// the survivors sorted by score descending. An unparsable scoring
// response degrades to the unranked candidate list: partial context is
// more valuable than none for this step.
func (a *Amplifier) rerank(ctx context.Context, query string, candidates []*model.MemoryRecord, threshold float64) []*model.MemoryRecord {
	contents := make([]string, len(candidates))
	for i, r := range candidates {
		contents[i] = r.Content
	}

	scores, err := a.llm.ScoreRelevance(ctx, query, contents)
	if err != nil {
		logging.From(ctx).Warn("relevance scoring failed, returning unranked results",
			"error", err.Error(),
			"candidates", len(candidates))
		return candidates
	}

	type scored struct {
		record *model.MemoryRecord
		score  float64
	}

	// Scores are keyed by candidate index, so repeated content cannot
	// steal another record's score.
	survivors := make([]scored, 0, len(scores))
	for _, s := range scores {
		if s.Score < threshold {
			continue
		}
		record := candidates[s.Index]
		record.RelevanceScore = s.Score
		survivors = append(survivors, scored{record: record, score: s.Score})
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].score > survivors[j].score
	})

	results := make([]*model.MemoryRecord, len(survivors))
	for i, s := range survivors {
		results[i] = s.record
	}
	return results
}

// mergeRecords flattens result lists into one deduplicated slice.
// Identity is the record ID, falling back to a document ID from
// metadata, then a content hash. First occurrence wins.
func mergeRecords(lists [][]*model.MemoryRecord) []*model.MemoryRecord {
	seen := make(map[string]bool)
	var merged []*model.MemoryRecord

	for _, list := range lists {
		for _, record := range list {
			key := recordKey(record)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, record)
		}
	}

	return merged
}

func recordKey(record *model.MemoryRecord) string {
	if record.ID != "" {
		return string(record.ID)
	}
	if docID, ok := record.Metadata["document_id"].(string); ok && docID != "" {
		return docID
	}
	sum := sha256.Sum256([]byte(record.Content))
	return hex.EncodeToString(sum[:])
}
