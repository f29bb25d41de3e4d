package semantic

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"ai-supportdesk-be/pkg/embedding"
	"ai-supportdesk-be/pkg/retrieval"
)

// Entry pairs a passage id with its precomputed embedding vector.
// Vectors are produced offline at ingest time; this package only reads them.
type Entry struct {
	PassageID string
	Vector    []float32
}

// VectorSource loads all stored passage embeddings.
type VectorSource interface {
	LoadVectors(ctx context.Context) ([]Entry, error)
}

// index is an immutable flat inner-product index over normalized vectors.
type index struct {
	ids     []string
	vectors [][]float32
}

// Retriever performs nearest-neighbor search over passage embeddings with
// the same singleton discipline as the lexical retriever: build once, swap
// atomically on rebuild, lock-free reads.
type Retriever struct {
	source   VectorSource
	embedder embedding.EmbeddingProvider
	current  atomic.Pointer[index]
	buildMu  sync.Mutex
	logger   *log.Logger
}

var _ retrieval.Searcher = &Retriever{}

func NewRetriever(source VectorSource, embedder embedding.EmbeddingProvider, logger *log.Logger) *Retriever {
	return &Retriever{
		source:   source,
		embedder: embedder,
		logger:   logger,
	}
}

// Search embeds the query and returns up to topK passages ranked by inner
// product, descending, ties broken by ascending passage id. Determinism and
// failure behavior match the lexical retriever.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("blank query: %w", retrieval.ErrInvalidQuery)
	}

	idx, err := r.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	if len(idx.ids) == 0 {
		return []retrieval.Result{}, nil
	}

	res, err := r.embedder.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %v", retrieval.ErrRetrieverUnavailable, err)
	}
	queryVec := normalize(res.Embedding.Values)

	results := make([]retrieval.Result, 0, len(idx.ids))
	for i, vec := range idx.vectors {
		results = append(results, retrieval.Result{
			PassageID: idx.ids[i],
			Score:     dot(queryVec, vec),
		})
	}

	retrieval.SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Rebuild reloads all vectors and atomically swaps in the new index.
func (r *Retriever) Rebuild(ctx context.Context) error {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	idx, err := r.load(ctx)
	if err != nil {
		return err
	}
	r.current.Store(idx)
	r.logger.Printf("[SEMANTIC] Index rebuilt: %d vectors", len(idx.ids))
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

	if idx := r.current.Load(); idx != nil {
		return idx, nil
	}

	idx, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.current.Store(idx)
	r.logger.Printf("[SEMANTIC] Index built: %d vectors", len(idx.ids))
	return idx, nil
}

func (r *Retriever) load(ctx context.Context) (*index, error) {
	entries, err := r.source.LoadVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w: %v", retrieval.ErrRetrieverUnavailable, err)
	}

	idx := &index{
		ids:     make([]string, len(entries)),
		vectors: make([][]float32, len(entries)),
	}
	for i, e := range entries {
		idx.ids[i] = e.PassageID
		idx.vectors[i] = normalize(e.Vector)
	}
	return idx, nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func normalize(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)
	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
