package retrievalexec

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/retrieval"
)

// Hydrator resolves passage ids from a ranked result set into full text.
type Hydrator interface {
	GetPassages(ctx context.Context, ids []string) ([]retrieval.Passage, error)
}

// Result of one executed sub-query after merging into the session
// accumulator.
type Result struct {
	Passages []dialogue.RetrievedPassage
	// NewInformation is true iff at least one previously unseen passage
	// arrived; lets the planner detect diminishing returns and stop early.
	NewInformation bool
}

// Executor runs one retrieval sub-query against the chosen back-end(s) and
// folds the hits into session state.
type Executor struct {
	lexical  retrieval.Searcher
	semantic retrieval.Searcher
	hydrator Hydrator
	topK     int
	timeout  time.Duration
	logger   *log.Logger
}

func NewExecutor(lexical, semantic retrieval.Searcher, hydrator Hydrator, topK int, timeout time.Duration, logger *log.Logger) *Executor {
	if topK <= 0 {
		topK = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{
		lexical:  lexical,
		semantic: semantic,
		hydrator: hydrator,
		topK:     topK,
		timeout:  timeout,
		logger:   logger,
	}
}

// Execute dispatches the sub-query, merges and deduplicates results against
// the session's accumulator, and reports whether anything new was found.
// A failing retriever degrades to zero results for that back-end; it never
// aborts the turn.
func (e *Executor) Execute(ctx context.Context, sess *dialogue.Session, query, kind string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, retrieval.ErrInvalidQuery
	}

	var merged []retrieval.Result
	switch kind {
	case retrieval.KindLexical:
		merged = e.searchOne(ctx, e.lexical, retrieval.KindLexical, query)
	case retrieval.KindSemantic:
		merged = e.searchOne(ctx, e.semantic, retrieval.KindSemantic, query)
	default:
		lex := e.searchOne(ctx, e.lexical, retrieval.KindLexical, query)
		sem := e.searchOne(ctx, e.semantic, retrieval.KindSemantic, query)
		merged = retrieval.Merge(lex, sem)
	}

	passages, err := e.hydrate(ctx, merged, kind)
	if err != nil {
		return nil, err
	}

	newInfo := sess.MergeEvidence(passages)
	return &Result{Passages: passages, NewInformation: newInfo}, nil
}

// searchOne runs a single back-end with a per-call timeout, retrying once
// with the same query before falling back to zero results.
func (e *Executor) searchOne(ctx context.Context, searcher retrieval.Searcher, kind, query string) []retrieval.Result {
	if searcher == nil {
		return nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		results, err := searcher.Search(callCtx, query, e.topK)
		cancel()
		if err == nil {
			return results
		}
		if errors.Is(err, retrieval.ErrInvalidQuery) || ctx.Err() != nil {
			// Not transient; retrying the same call cannot help.
			e.logger.Printf("[RETRIEVE] %s search skipped: %v", kind, err)
			return nil
		}
		e.logger.Printf("[RETRIEVE] %s search failed (attempt %d): %v", kind, attempt+1, err)
	}
	return nil
}

func (e *Executor) hydrate(ctx context.Context, results []retrieval.Result, kind string) ([]dialogue.RetrievedPassage, error) {
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.PassageID
	}

	full, err := e.hydrator.GetPassages(ctx, ids)
	if err != nil {
		return nil, err
	}
	texts := make(map[string]string, len(full))
	for _, p := range full {
		texts[p.ID] = p.Text
	}

	passages := make([]dialogue.RetrievedPassage, 0, len(results))
	for _, r := range results {
		text, ok := texts[r.PassageID]
		if !ok {
			// Passage deleted between index build and hydration.
			continue
		}
		passages = append(passages, dialogue.RetrievedPassage{
			ID:    r.PassageID,
			Text:  text,
			Score: r.Score,
			Kind:  kind,
		})
	}
	return passages, nil
}
