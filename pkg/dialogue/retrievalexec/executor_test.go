package retrievalexec

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/retrieval"
)

type stubSearcher struct {
	results []retrieval.Result
	err     error
	calls   int
}

func (s *stubSearcher) Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > topK {
		return s.results[:topK], nil
	}
	return s.results, nil
}

type stubHydrator struct {
	texts map[string]string
	err   error
}

func (h *stubHydrator) GetPassages(ctx context.Context, ids []string) ([]retrieval.Passage, error) {
	if h.err != nil {
		return nil, h.err
	}
	passages := make([]retrieval.Passage, 0, len(ids))
	for _, id := range ids {
		if text, ok := h.texts[id]; ok {
			passages = append(passages, retrieval.Passage{ID: id, Text: text})
		}
	}
	return passages, nil
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "", 0)
}

func testHydrator() *stubHydrator {
	return &stubHydrator{texts: map[string]string{
		"p-1": "reset your password from the login page",
		"p-2": "billing invoices are generated monthly",
		"p-3": "enable two factor authentication in settings",
	}}
}

func TestExecuteMergesBothBackends(t *testing.T) {
	lex := &stubSearcher{results: []retrieval.Result{
		{PassageID: "p-1", Score: 2.0},
		{PassageID: "p-2", Score: 1.0},
	}}
	sem := &stubSearcher{results: []retrieval.Result{
		{PassageID: "p-1", Score: 0.9},
		{PassageID: "p-3", Score: 0.8},
	}}
	e := NewExecutor(lex, sem, testHydrator(), 5, time.Second, testLogger())
	sess := dialogue.NewSession("s", "u")

	res, err := e.Execute(context.Background(), sess, "reset password", retrieval.KindBoth)
	assert.NoError(t, err)
	assert.True(t, res.NewInformation)
	assert.Len(t, res.Passages, 3, "p-1 must be deduplicated across back-ends")
	assert.Equal(t, "p-1", res.Passages[0].ID)
	assert.Equal(t, 2.0, res.Passages[0].Score, "dedupe keeps the higher score")
	assert.Equal(t, 1, lex.calls)
	assert.Equal(t, 1, sem.calls)
}

func TestExecuteSingleBackendKinds(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		wantLex  int
		wantSem  int
		wantHits int
	}{
		{"lexical only", retrieval.KindLexical, 1, 0, 1},
		{"semantic only", retrieval.KindSemantic, 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lex := &stubSearcher{results: []retrieval.Result{{PassageID: "p-1", Score: 1}}}
			sem := &stubSearcher{results: []retrieval.Result{{PassageID: "p-2", Score: 1}}}
			e := NewExecutor(lex, sem, testHydrator(), 5, time.Second, testLogger())
			sess := dialogue.NewSession("s", "u")

			res, err := e.Execute(context.Background(), sess, "query", tt.kind)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantLex, lex.calls)
			assert.Equal(t, tt.wantSem, sem.calls)
			assert.Len(t, res.Passages, tt.wantHits)
		})
	}
}

func TestExecuteNewInformationDropsOnRepeat(t *testing.T) {
	lex := &stubSearcher{results: []retrieval.Result{{PassageID: "p-1", Score: 1}}}
	e := NewExecutor(lex, nil, testHydrator(), 5, time.Second, testLogger())
	sess := dialogue.NewSession("s", "u")

	first, err := e.Execute(context.Background(), sess, "reset password", retrieval.KindLexical)
	assert.NoError(t, err)
	assert.True(t, first.NewInformation)

	again, err := e.Execute(context.Background(), sess, "password reset help", retrieval.KindLexical)
	assert.NoError(t, err)
	assert.False(t, again.NewInformation, "same passage again is not new information")
	assert.Len(t, sess.Evidence, 1)
}

func TestExecuteFailingBackendDegradesToEmpty(t *testing.T) {
	lex := &stubSearcher{err: errors.New("index corrupt")}
	e := NewExecutor(lex, nil, testHydrator(), 5, time.Second, testLogger())
	sess := dialogue.NewSession("s", "u")

	res, err := e.Execute(context.Background(), sess, "anything", retrieval.KindLexical)
	assert.NoError(t, err, "a failing retriever must not abort the turn")
	assert.Empty(t, res.Passages)
	assert.False(t, res.NewInformation)
	assert.Equal(t, 2, lex.calls, "transient failure is retried exactly once")
}

func TestExecuteInvalidQueryNotRetried(t *testing.T) {
	lex := &stubSearcher{err: retrieval.ErrInvalidQuery}
	e := NewExecutor(lex, nil, testHydrator(), 5, time.Second, testLogger())
	sess := dialogue.NewSession("s", "u")

	res, err := e.Execute(context.Background(), sess, "valid text", retrieval.KindLexical)
	assert.NoError(t, err)
	assert.Empty(t, res.Passages)
	assert.Equal(t, 1, lex.calls, "non-transient failures are not retried")
}

func TestExecuteBlankQuery(t *testing.T) {
	e := NewExecutor(&stubSearcher{}, nil, testHydrator(), 5, time.Second, testLogger())
	sess := dialogue.NewSession("s", "u")

	_, err := e.Execute(context.Background(), sess, "   ", retrieval.KindLexical)
	assert.ErrorIs(t, err, retrieval.ErrInvalidQuery)
}

func TestExecuteSkipsDeletedPassages(t *testing.T) {
	lex := &stubSearcher{results: []retrieval.Result{
		{PassageID: "p-1", Score: 2},
		{PassageID: "p-gone", Score: 1},
	}}
	e := NewExecutor(lex, nil, testHydrator(), 5, time.Second, testLogger())
	sess := dialogue.NewSession("s", "u")

	res, err := e.Execute(context.Background(), sess, "reset password", retrieval.KindLexical)
	assert.NoError(t, err)
	assert.Len(t, res.Passages, 1)
	assert.Equal(t, "p-1", res.Passages[0].ID)
}

func TestExecuteHydratorFailure(t *testing.T) {
	lex := &stubSearcher{results: []retrieval.Result{{PassageID: "p-1", Score: 1}}}
	e := NewExecutor(lex, nil, &stubHydrator{err: errors.New("db down")}, 5, time.Second, testLogger())
	sess := dialogue.NewSession("s", "u")

	_, err := e.Execute(context.Background(), sess, "reset password", retrieval.KindLexical)
	assert.Error(t, err)
}
