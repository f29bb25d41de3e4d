package lexical

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"ai-supportdesk-be/pkg/retrieval"
)

// BM25 Okapi parameters.
const (
	k1 = 1.5
	b  = 0.75
)

var wordPattern = regexp.MustCompile(`\w+`)

// Tokenize lowercases the text and extracts word tokens.
func Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// index is an immutable BM25 index over a passage corpus. Once built it is
// never mutated; rebuilds construct a fresh index and swap the pointer.
type index struct {
	passageIDs []string
	docLens    []int
	avgDocLen  float64
	// termFreqs[i] maps token -> frequency within document i
	termFreqs []map[string]int
	// docFreqs maps token -> number of documents containing it
	docFreqs map[string]int
}

func buildIndex(passages []retrieval.Passage) *index {
	idx := &index{
		passageIDs: make([]string, len(passages)),
		docLens:    make([]int, len(passages)),
		termFreqs:  make([]map[string]int, len(passages)),
		docFreqs:   make(map[string]int),
	}

	totalLen := 0
	for i, p := range passages {
		tokens := Tokenize(p.Text)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for tok := range freqs {
			idx.docFreqs[tok]++
		}
		idx.passageIDs[i] = p.ID
		idx.docLens[i] = len(tokens)
		idx.termFreqs[i] = freqs
		totalLen += len(tokens)
	}

	if len(passages) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(passages))
	}
	return idx
}

func (idx *index) score(queryTokens []string, doc int) float64 {
	var score float64
	n := float64(len(idx.passageIDs))
	dl := float64(idx.docLens[doc])
	for _, tok := range queryTokens {
		tf := float64(idx.termFreqs[doc][tok])
		if tf == 0 {
			continue
		}
		df := float64(idx.docFreqs[tok])
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)
		denom := tf + k1*(1-b+b*dl/idx.avgDocLen)
		score += idf * tf * (k1 + 1) / denom
	}
	return score
}

// Retriever is a process-wide BM25 searcher with amortized index
// construction: the index is built once (lazily on first search) and shared
// by all readers through an atomic pointer. Rebuilds swap in a complete new
// index, so the read path needs no locking.
type Retriever struct {
	source  retrieval.PassageSource
	current atomic.Pointer[index]
	buildMu sync.Mutex
	logger  *log.Logger
}

var _ retrieval.Searcher = &Retriever{}

func NewRetriever(source retrieval.PassageSource, logger *log.Logger) *Retriever {
	return &Retriever{
		source: source,
		logger: logger,
	}
}

// Search returns up to topK passages ranked by BM25 score, descending,
// ties broken by ascending passage id. An empty corpus yields an empty
// result; a blank query is an error.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("blank query: %w", retrieval.ErrInvalidQuery)
	}

	idx, err := r.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	if len(idx.passageIDs) == 0 {
		return []retrieval.Result{}, nil
	}

	queryTokens := Tokenize(query)
	results := make([]retrieval.Result, 0, len(idx.passageIDs))
	for i := range idx.passageIDs {
		if s := idx.score(queryTokens, i); s > 0 {
			results = append(results, retrieval.Result{PassageID: idx.passageIDs[i], Score: s})
		}
	}

	retrieval.SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Rebuild constructs a fresh index from the source and atomically swaps it
// in. Concurrent searches keep reading the old index until the swap.
func (r *Retriever) Rebuild(ctx context.Context) error {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	passages, err := r.source.LoadPassages(ctx)
	if err != nil {
		return fmt.Errorf("load passages: %w: %v", retrieval.ErrRetrieverUnavailable, err)
	}

	r.current.Store(buildIndex(passages))
	r.logger.Printf("[BM25] Index rebuilt: %d passages", len(passages))
	return nil
}

// Invalidate drops the current index so the next search rebuilds lazily.
func (r *Retriever) Invalidate() {
	r.current.Store(nil)
}

func (r *Retriever) ensureIndex(ctx context.Context) (*index, error) {
	if idx := r.current.Load(); idx != nil {
		return idx, nil
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	// Another goroutine may have built it while we waited.
	if idx := r.current.Load(); idx != nil {
		return idx, nil
	}

	passages, err := r.source.LoadPassages(ctx)
	if err != nil {
		return nil, fmt.Errorf("load passages: %w: %v", retrieval.ErrRetrieverUnavailable, err)
	}

	idx := buildIndex(passages)
	r.current.Store(idx)
	r.logger.Printf("[BM25] Index built: %d passages", len(passages))
	return idx, nil
}
