package semantic

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"ai-supportdesk-be/pkg/embedding"
	"ai-supportdesk-be/pkg/retrieval"
)

type stubVectorSource struct {
	entries []Entry
	err     error
	loads   int
}

func (s *stubVectorSource) LoadVectors(ctx context.Context) ([]Entry, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

// fakeEmbedder maps query text to a fixed vector.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Generate(text string, taskType string) (*embedding.EmbeddingResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	vec, ok := f.vectors[text]
	if !ok {
		vec = []float32{0, 0, 1}
	}
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: vec},
	}, nil
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "", 0)
}

func axisEntries() []Entry {
	return []Entry{
		{PassageID: "p-billing", Vector: []float32{1, 0, 0}},
		{PassageID: "p-login", Vector: []float32{0, 1, 0}},
		{PassageID: "p-mixed", Vector: []float32{1, 1, 0}},
	}
}

func TestSearchRanksByInnerProduct(t *testing.T) {
	r := NewRetriever(
		&stubVectorSource{entries: axisEntries()},
		&fakeEmbedder{vectors: map[string][]float32{"login problem": {0, 1, 0}}},
		testLogger(),
	)

	results, err := r.Search(context.Background(), "login problem", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].PassageID != "p-login" {
		t.Errorf("top result = %s, want p-login", results[0].PassageID)
	}
	if results[len(results)-1].PassageID != "p-billing" {
		t.Errorf("last result = %s, want p-billing (orthogonal)", results[len(results)-1].PassageID)
	}
}

func TestSearchBreaksTiesByID(t *testing.T) {
	entries := []Entry{
		{PassageID: "p-b", Vector: []float32{1, 0, 0}},
		{PassageID: "p-a", Vector: []float32{1, 0, 0}},
	}
	r := NewRetriever(
		&stubVectorSource{entries: entries},
		&fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}},
		testLogger(),
	)

	results, err := r.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].PassageID != "p-a" || results[1].PassageID != "p-b" {
		t.Errorf("tie order = [%s %s], want [p-a p-b]", results[0].PassageID, results[1].PassageID)
	}
}

func TestSearchRespectsTopK(t *testing.T) {
	r := NewRetriever(
		&stubVectorSource{entries: axisEntries()},
		&fakeEmbedder{vectors: map[string][]float32{}},
		testLogger(),
	)

	results, err := r.Search(context.Background(), "anything", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestSearchBlankQuery(t *testing.T) {
	r := NewRetriever(&stubVectorSource{entries: axisEntries()}, &fakeEmbedder{}, testLogger())

	_, err := r.Search(context.Background(), "  ", 5)
	if !errors.Is(err, retrieval.ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	r := NewRetriever(&stubVectorSource{}, &fakeEmbedder{}, testLogger())

	results, err := r.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty index, want 0", len(results))
	}
}

func TestSearchSourceFailure(t *testing.T) {
	r := NewRetriever(&stubVectorSource{err: errors.New("db down")}, &fakeEmbedder{}, testLogger())

	_, err := r.Search(context.Background(), "anything", 5)
	if !errors.Is(err, retrieval.ErrRetrieverUnavailable) {
		t.Errorf("err = %v, want ErrRetrieverUnavailable", err)
	}
}

func TestSearchEmbedderFailure(t *testing.T) {
	r := NewRetriever(
		&stubVectorSource{entries: axisEntries()},
		&fakeEmbedder{err: errors.New("embedding api down")},
		testLogger(),
	)

	_, err := r.Search(context.Background(), "anything", 5)
	if !errors.Is(err, retrieval.ErrRetrieverUnavailable) {
		t.Errorf("err = %v, want ErrRetrieverUnavailable", err)
	}
}

func TestIndexBuiltOnce(t *testing.T) {
	source := &stubVectorSource{entries: axisEntries()}
	r := NewRetriever(source, &fakeEmbedder{}, testLogger())

	for i := 0; i < 3; i++ {
		if _, err := r.Search(context.Background(), "anything", 3); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}
	if source.loads != 1 {
		t.Errorf("vectors loaded %d times, want 1", source.loads)
	}
}

func TestInvalidateTriggersRebuild(t *testing.T) {
	source := &stubVectorSource{entries: axisEntries()}
	r := NewRetriever(
		source,
		&fakeEmbedder{vectors: map[string][]float32{"q": {0, 0, 1}}},
		testLogger(),
	)

	if _, err := r.Search(context.Background(), "q", 5); err != nil {
		t.Fatalf("Search: %v", err)
	}

	source.entries = append(source.entries, Entry{PassageID: "p-new", Vector: []float32{0, 0, 1}})
	r.Invalidate()

	results, err := r.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].PassageID != "p-new" {
		t.Errorf("new vector not retrievable after Invalidate, results = %+v", results)
	}
	if source.loads != 2 {
		t.Errorf("vectors loaded %d times, want 2", source.loads)
	}
}
