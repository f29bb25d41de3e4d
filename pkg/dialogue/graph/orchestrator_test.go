package graph

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/dialogue/clarify"
	"ai-supportdesk-be/pkg/dialogue/planner"
	"ai-supportdesk-be/pkg/dialogue/prompt"
	"ai-supportdesk-be/pkg/dialogue/retrievalexec"
	"ai-supportdesk-be/pkg/dialogue/ticket"
	"ai-supportdesk-be/pkg/llm"
	"ai-supportdesk-be/pkg/retrieval"
)

// scriptedLLM pops replies in order for Generate/Chat; GenerateStream streams
// its fixed response word by word.
type scriptedLLM struct {
	replies []string
	stream  string
	calls   int
	fail    error
}

func (s *scriptedLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return s.Generate(ctx, "", options...)
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	if s.fail != nil {
		return "", s.fail
	}
	if s.calls >= len(s.replies) {
		return "", errors.New("scriptedLLM: no more scripted replies")
	}
	reply := s.replies[s.calls]
	s.calls++
	return reply, nil
}

func (s *scriptedLLM) GenerateStream(ctx context.Context, prompt string, onToken llm.TokenFunc, options ...llm.Option) (string, error) {
	if s.fail != nil {
		return "", s.fail
	}
	for _, word := range strings.SplitAfter(s.stream, " ") {
		if err := onToken(word); err != nil {
			return "", err
		}
	}
	return s.stream, nil
}

type stubSearcher struct {
	results []retrieval.Result
	calls   int
}

func (s *stubSearcher) Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error) {
	s.calls++
	return s.results, nil
}

type stubHydrator struct {
	texts map[string]string
}

func (h *stubHydrator) GetPassages(ctx context.Context, ids []string) ([]retrieval.Passage, error) {
	passages := make([]retrieval.Passage, 0, len(ids))
	for _, id := range ids {
		if text, ok := h.texts[id]; ok {
			passages = append(passages, retrieval.Passage{ID: id, Text: text})
		}
	}
	return passages, nil
}

type eventCollector struct {
	events []dialogue.StreamEvent
}

func (c *eventCollector) emit(ev dialogue.StreamEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *eventCollector) ofType(t dialogue.EventType) []dialogue.StreamEvent {
	var out []dialogue.StreamEvent
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *eventCollector) text() string {
	var b strings.Builder
	for _, ev := range c.ofType(dialogue.EventText) {
		b.WriteString(ev.Token)
	}
	return b.String()
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "", 0)
}

type graphFixture struct {
	orch     *Orchestrator
	llm      *scriptedLLM
	lexical  *stubSearcher
	semantic *stubSearcher
}

func newFixture(model *scriptedLLM, budgets planner.Budgets, cfg Config) *graphFixture {
	logger := testLogger()
	lex := &stubSearcher{results: []retrieval.Result{{PassageID: "p-1", Score: 2.0}}}
	sem := &stubSearcher{results: []retrieval.Result{{PassageID: "p-1", Score: 0.9}}}
	hydrator := &stubHydrator{texts: map[string]string{
		"p-1": "To reset your password, use the forgot password link on the login page.",
	}}

	orch := NewOrchestrator(
		planner.NewPlanner(model, budgets, logger),
		retrievalexec.NewExecutor(lex, sem, hydrator, 5, time.Second, logger),
		clarify.NewNode(),
		ticket.NewNode(model, logger),
		prompt.NewAssembler(15),
		model,
		cfg,
		logger,
	)
	return &graphFixture{orch: orch, llm: model, lexical: lex, semantic: sem}
}

const (
	planRetrieve = `{"action": "RETRIEVE", "query": "reset password", "kind": "lexical"}`
	planAnswer   = `{"action": "ANSWER"}`
)

func TestTurnRetrieveThenAnswer(t *testing.T) {
	model := &scriptedLLM{
		replies: []string{planRetrieve, planAnswer, "YES"},
		stream:  "Use the forgot password link on the login page.",
	}
	f := newFixture(model, planner.DefaultBudgets(), DefaultConfig())
	sess := dialogue.NewSession("s-1", "u-1")
	col := &eventCollector{}

	result, err := f.orch.Turn(context.Background(), sess, "how do I reset my password?", col.emit)
	require.NoError(t, err)

	assert.False(t, result.Replayed)
	assert.Equal(t, dialogue.StateAwaitingQuestion, result.State)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, dialogue.RoleUser, result.Messages[0].Role)
	assert.Equal(t, dialogue.RoleAssistant, result.Messages[1].Role)
	assert.Equal(t, model.stream, result.Messages[1].Content)

	assert.Len(t, sess.History, 2)
	assert.NotEmpty(t, sess.Evidence)
	assert.NotEmpty(t, sess.LastTurnFingerprint)

	assert.Equal(t, model.stream, col.text())
	require.NotEmpty(t, col.ofType(dialogue.EventDone))
	assert.Equal(t, 1, f.lexical.calls)
	assert.Equal(t, 0, f.semantic.calls, "kind=lexical must not touch the semantic back-end")
}

func TestTurnBudgetExhaustedEscalatesToTicket(t *testing.T) {
	model := &scriptedLLM{
		replies: []string{
			planRetrieve,
			`{"category": "Account Access", "title": "Cannot reset password", "description": "Automated retrieval found nothing."}`,
		},
	}
	f := newFixture(model, planner.Budgets{MaxRetrievals: 1, MaxClarifications: 1}, DefaultConfig())
	f.lexical.results = nil
	f.semantic.results = nil
	sess := dialogue.NewSession("s-1", "u-1")
	col := &eventCollector{}

	result, err := f.orch.Turn(context.Background(), sess, "my account is stuck", col.emit)
	require.NoError(t, err)

	assert.Equal(t, dialogue.StateAwaitingTicketEdit, result.State)
	require.NotNil(t, sess.Ticket)
	assert.Equal(t, "Account Access", sess.Ticket.Category)
	assert.False(t, sess.Ticket.Submitted)

	tickets := col.ofType(dialogue.EventTicket)
	require.Len(t, tickets, 1)
	assert.Equal(t, "Cannot reset password", tickets[0].Title)
}

func TestTurnClarifyThenAnswer(t *testing.T) {
	model := &scriptedLLM{
		replies: []string{
			`{"action": "CLARIFY", "question": "Which app are you using?", "options": ["Web app", "Mobile app"]}`,
		},
	}
	f := newFixture(model, planner.DefaultBudgets(), DefaultConfig())
	sess := dialogue.NewSession("s-1", "u-1")
	col := &eventCollector{}

	result, err := f.orch.Turn(context.Background(), sess, "I can't log in", col.emit)
	require.NoError(t, err)

	assert.Equal(t, dialogue.StateAwaitingClarificationReply, result.State)
	require.NotNil(t, sess.PendingClarification)
	assert.Equal(t, "I can't log in", sess.ClarifiedQuestion)
	assert.Equal(t, 1, sess.ClarificationsAsked)
	mcqs := col.ofType(dialogue.EventMCQ)
	require.Len(t, mcqs, 1)
	assert.Equal(t, []string{"Web app", "Mobile app"}, mcqs[0].Answers)

	// Reply "2" selects "Mobile app" and resumes the original question.
	model.replies = append(model.replies, planRetrieve, planAnswer, "YES")
	model.stream = "Clear the mobile app cache and sign in again."
	col2 := &eventCollector{}

	result2, err := f.orch.Turn(context.Background(), sess, "2", col2.emit)
	require.NoError(t, err)

	assert.Equal(t, dialogue.StateAwaitingQuestion, result2.State)
	assert.Nil(t, sess.PendingClarification)
	assert.Empty(t, sess.ClarifiedQuestion)
	assert.Equal(t, model.stream, col2.text())
}

func TestTurnReplaysDuplicateDelivery(t *testing.T) {
	model := &scriptedLLM{
		replies: []string{planRetrieve, planAnswer, "YES"},
		stream:  "Use the forgot password link.",
	}
	f := newFixture(model, planner.DefaultBudgets(), DefaultConfig())
	sess := dialogue.NewSession("s-1", "u-1")

	_, err := f.orch.Turn(context.Background(), sess, "how do I reset my password?", dialogue.DiscardEvents)
	require.NoError(t, err)
	historyLen := len(sess.History)

	// No scripted replies left: a non-replay second turn would fail loudly.
	col := &eventCollector{}
	result, err := f.orch.Turn(context.Background(), sess, "how do I reset my password?", col.emit)
	require.NoError(t, err)

	assert.True(t, result.Replayed)
	assert.Empty(t, result.Messages)
	assert.Len(t, sess.History, historyLen, "replay must not grow history")
	assert.Equal(t, "Use the forgot password link.", col.text(), "committed reply is re-emitted")
	assert.NotEmpty(t, col.ofType(dialogue.EventDone))
}

func submittedTicketSession() *dialogue.Session {
	sess := dialogue.NewSession("s-1", "u-1")
	sess.History = append(sess.History,
		dialogue.NewUserMessage("my data is corrupted"),
		dialogue.NewAssistantTicket(dialogue.TicketPayload{Category: "Data", Title: "Corrupted data", Description: "d"}),
	)
	sess.Ticket = &dialogue.TicketDraft{Category: "Data", Title: "Corrupted data", Description: "d", Submitted: true}
	sess.TicketSubmitted = true
	sess.State = dialogue.StateAwaitingTicketEdit
	return sess
}

func TestTurnLockoutAfterSubmission(t *testing.T) {
	f := newFixture(&scriptedLLM{}, planner.DefaultBudgets(), DefaultConfig())
	sess := submittedTicketSession()
	col := &eventCollector{}

	result, err := f.orch.Turn(context.Background(), sess, "how do I export my data?", col.emit)
	require.NoError(t, err)

	assert.Equal(t, dialogue.StateAwaitingTicketEdit, result.State)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, TicketLockedMessage, result.Messages[1].Content)
	assert.Equal(t, 0, f.llm.calls, "lockout reply must not call the model")
}

func TestTurnLockoutDisabledReopensSession(t *testing.T) {
	model := &scriptedLLM{
		replies: []string{planRetrieve, planAnswer, "YES"},
		stream:  "Export is available under settings.",
	}
	cfg := DefaultConfig()
	cfg.LockoutPermanent = false
	f := newFixture(model, planner.DefaultBudgets(), cfg)
	sess := submittedTicketSession()

	result, err := f.orch.Turn(context.Background(), sess, "how do I export my data?", dialogue.DiscardEvents)
	require.NoError(t, err)

	assert.Equal(t, dialogue.StateAwaitingQuestion, result.State)
	assert.Equal(t, model.stream, result.Messages[len(result.Messages)-1].Content)
}

func TestTurnEditInstructionAfterSubmission(t *testing.T) {
	model := &scriptedLLM{replies: []string{`{"title": "Corrupted customer data"}`}}
	f := newFixture(model, planner.DefaultBudgets(), DefaultConfig())
	sess := submittedTicketSession()
	col := &eventCollector{}

	result, err := f.orch.Turn(context.Background(), sess, "change the title to Corrupted customer data", col.emit)
	require.NoError(t, err)

	assert.Equal(t, dialogue.StateAwaitingTicketEdit, result.State)
	require.NotNil(t, sess.Ticket)
	assert.Equal(t, "Corrupted customer data", sess.Ticket.Title)
	assert.Equal(t, "Data", sess.Ticket.Category, "untouched field must survive the edit")
	assert.True(t, sess.Ticket.Submitted, "edit must not clear the submitted flag")
	assert.Len(t, col.ofType(dialogue.EventTicket), 1)
}

func TestTurnDuplicateSubQueryForcedToAnswer(t *testing.T) {
	model := &scriptedLLM{
		// The model repeats itself; enforcement overrides the second plan.
		replies: []string{planRetrieve, planRetrieve, "YES"},
		stream:  "Use the forgot password link.",
	}
	f := newFixture(model, planner.DefaultBudgets(), DefaultConfig())
	sess := dialogue.NewSession("s-1", "u-1")

	result, err := f.orch.Turn(context.Background(), sess, "how do I reset my password?", dialogue.DiscardEvents)
	require.NoError(t, err)

	assert.Equal(t, dialogue.StateAwaitingQuestion, result.State)
	assert.Equal(t, 1, f.lexical.calls, "duplicate sub-query must not be re-issued")
}

func TestTurnModelFailureCommitsNothing(t *testing.T) {
	model := &scriptedLLM{fail: errors.New("model down")}
	f := newFixture(model, planner.DefaultBudgets(), DefaultConfig())
	sess := dialogue.NewSession("s-1", "u-1")

	_, err := f.orch.Turn(context.Background(), sess, "how do I reset my password?", dialogue.DiscardEvents)
	require.Error(t, err)
	assert.True(t, dialogue.IsLanguageModelError(err))

	assert.Empty(t, sess.History, "aborted turn must not commit the user message")
	assert.Equal(t, dialogue.StateAwaitingQuestion, sess.State)
	assert.Empty(t, sess.LastTurnFingerprint)
}

func TestTurnCancelledContextCommitsNothing(t *testing.T) {
	f := newFixture(&scriptedLLM{}, planner.DefaultBudgets(), DefaultConfig())
	sess := dialogue.NewSession("s-1", "u-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Turn(ctx, sess, "how do I reset my password?", dialogue.DiscardEvents)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sess.History)
	assert.Equal(t, dialogue.StateAwaitingQuestion, sess.State)
}

func TestSubmitTicket(t *testing.T) {
	f := newFixture(&scriptedLLM{}, planner.DefaultBudgets(), DefaultConfig())

	sess := dialogue.NewSession("s-1", "u-1")
	_, err := f.orch.SubmitTicket(sess)
	assert.ErrorIs(t, err, dialogue.ErrNoTicketDraft)

	sess.Ticket = &dialogue.TicketDraft{Category: "Data", Title: "t", Description: "d"}
	draft, err := f.orch.SubmitTicket(sess)
	require.NoError(t, err)
	assert.True(t, draft.Submitted)
	assert.True(t, sess.TicketSubmitted)
	assert.Equal(t, dialogue.StateAwaitingTicketEdit, sess.State)

	_, err = f.orch.SubmitTicket(sess)
	assert.ErrorIs(t, err, dialogue.ErrTicketAlreadySubmitted)
}
