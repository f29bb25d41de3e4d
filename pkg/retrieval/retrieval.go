package retrieval

import (
	"context"
	"errors"
	"sort"
)

// Kind identifies which retriever back-end produced a result set.
const (
	KindLexical  = "lexical"
	KindSemantic = "semantic"
	KindBoth     = "both"
)

var (
	// ErrInvalidQuery is returned for empty or blank query text.
	ErrInvalidQuery = errors.New("invalid retrieval query")

	// ErrRetrieverUnavailable is returned when an index could not be
	// loaded or built. Callers degrade to zero results.
	ErrRetrieverUnavailable = errors.New("retriever unavailable")
)

// Passage is one unit of knowledge-base content, consumed read-only.
type Passage struct {
	ID        string
	Text      string
	SourceURL string
	Tags      []string
}

// Result is one ranked hit: passage id plus relevance score.
type Result struct {
	PassageID string
	Score     float64
}

// Searcher is the capability shared by the lexical and semantic retrievers
// so the planner can treat them uniformly.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}

// PassageSource loads the full passage corpus an index is built from.
type PassageSource interface {
	LoadPassages(ctx context.Context) ([]Passage, error)
}

// SortResults orders results by descending score, ties broken by ascending
// passage id so repeated searches are deterministic.
func SortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PassageID < results[j].PassageID
	})
}

// Merge combines two ranked sets, deduplicating by passage id and keeping
// the higher score on conflict. The merged set is re-sorted.
func Merge(a, b []Result) []Result {
	best := make(map[string]float64, len(a)+len(b))
	for _, r := range a {
		best[r.PassageID] = r.Score
	}
	for _, r := range b {
		if cur, ok := best[r.PassageID]; !ok || r.Score > cur {
			best[r.PassageID] = r.Score
		}
	}

	merged := make([]Result, 0, len(best))
	for id, score := range best {
		merged = append(merged, Result{PassageID: id, Score: score})
	}
	SortResults(merged)
	return merged
}
