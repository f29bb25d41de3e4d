package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"ai-supportdesk-be/internal/constant"
	"ai-supportdesk-be/internal/dto"
	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/repository/contract"
	"ai-supportdesk-be/internal/repository/memory"
	"ai-supportdesk-be/internal/repository/specification"
	"ai-supportdesk-be/internal/repository/unitofwork"
	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/dialogue/clarify"
	"ai-supportdesk-be/pkg/dialogue/graph"
	"ai-supportdesk-be/pkg/dialogue/planner"
	"ai-supportdesk-be/pkg/dialogue/prompt"
	"ai-supportdesk-be/pkg/dialogue/retrievalexec"
	"ai-supportdesk-be/pkg/dialogue/ticket"
	"ai-supportdesk-be/pkg/llm"
	"ai-supportdesk-be/pkg/retrieval"

	"github.com/google/uuid"
)

func textMsg(role, content string) *entity.ChatMessage {
	return &entity.ChatMessage{
		Id:        uuid.New(),
		Role:      role,
		Kind:      constant.ChatMessageKindText,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func ticketMsg(payload dto.TicketPayloadDTO) *entity.ChatMessage {
	raw, _ := json.Marshal(payload)
	return &entity.ChatMessage{
		Id:        uuid.New(),
		Role:      constant.ChatMessageRoleAssistant,
		Kind:      constant.ChatMessageKindTicket,
		Content:   payload.Title,
		Payload:   raw,
		CreatedAt: time.Now(),
	}
}

func mcqMsg(payload dto.MCQPayloadDTO) *entity.ChatMessage {
	raw, _ := json.Marshal(payload)
	return &entity.ChatMessage{
		Id:        uuid.New(),
		Role:      constant.ChatMessageRoleAssistant,
		Kind:      constant.ChatMessageKindMCQ,
		Content:   payload.Question,
		Payload:   raw,
		CreatedAt: time.Now(),
	}
}

func TestRehydrateKeepsLockoutAfterSubmission(t *testing.T) {
	draft := dto.TicketPayloadDTO{
		Category:    "Billing",
		Title:       "Refund not received",
		Description: "Customer paid twice and the refund never arrived.",
	}
	// After submission the transcript ends in plain assistant text (the
	// lockout redirect), not in the ticket payload itself.
	messages := []*entity.ChatMessage{
		textMsg(constant.ChatMessageRoleUser, "My refund never arrived"),
		ticketMsg(draft),
		textMsg(constant.ChatMessageRoleUser, "submit it"),
		textMsg(constant.ChatMessageRoleAssistant, graph.TicketLockedMessage),
	}
	session := &entity.ChatSession{Id: uuid.New(), UserId: uuid.New(), TicketSubmitted: true}

	live := rehydrateSession(session, messages)

	if live.State != dialogue.StateAwaitingTicketEdit {
		t.Fatalf("State = %s, want %s", live.State, dialogue.StateAwaitingTicketEdit)
	}
	if live.Ticket == nil {
		t.Fatal("Ticket = nil, want the submitted draft")
	}
	if !live.Ticket.Submitted {
		t.Error("Ticket.Submitted = false, want true")
	}
	if live.Ticket.Title != draft.Title || live.Ticket.Category != draft.Category {
		t.Errorf("Ticket = %+v, want title %q category %q", live.Ticket, draft.Title, draft.Category)
	}
	if !live.TicketSubmitted {
		t.Error("TicketSubmitted = false, want true")
	}
}

func TestRehydrateUnsubmittedDraft(t *testing.T) {
	draft := dto.TicketPayloadDTO{Category: "General", Title: "Login loop", Description: "Stuck on the sign-in page."}
	messages := []*entity.ChatMessage{
		textMsg(constant.ChatMessageRoleUser, "I cannot sign in at all"),
		ticketMsg(draft),
	}
	session := &entity.ChatSession{Id: uuid.New(), UserId: uuid.New()}

	live := rehydrateSession(session, messages)

	if live.State != dialogue.StateAwaitingTicketEdit {
		t.Fatalf("State = %s, want %s", live.State, dialogue.StateAwaitingTicketEdit)
	}
	if live.Ticket == nil || live.Ticket.Submitted {
		t.Fatalf("Ticket = %+v, want an unsubmitted draft", live.Ticket)
	}
}

func TestRehydratePendingClarification(t *testing.T) {
	mcq := dto.MCQPayloadDTO{
		Question: "Which app are you using?",
		Options:  []string{"Web app", "Mobile app"},
	}
	messages := []*entity.ChatMessage{
		textMsg(constant.ChatMessageRoleUser, "The app keeps crashing"),
		mcqMsg(mcq),
	}
	session := &entity.ChatSession{Id: uuid.New(), UserId: uuid.New()}

	live := rehydrateSession(session, messages)

	if live.State != dialogue.StateAwaitingClarificationReply {
		t.Fatalf("State = %s, want %s", live.State, dialogue.StateAwaitingClarificationReply)
	}
	if live.PendingClarification == nil || len(live.PendingClarification.Options) != 2 {
		t.Fatalf("PendingClarification = %+v, want the open MCQ", live.PendingClarification)
	}
	if live.ClarifiedQuestion != "The app keeps crashing" {
		t.Errorf("ClarifiedQuestion = %q, want the original question", live.ClarifiedQuestion)
	}
}

func TestRehydratePlainAnswerAwaitsQuestion(t *testing.T) {
	messages := []*entity.ChatMessage{
		textMsg(constant.ChatMessageRoleUser, "How do I reset my password?"),
		textMsg(constant.ChatMessageRoleAssistant, "Open Settings and choose Reset password."),
	}
	session := &entity.ChatSession{Id: uuid.New(), UserId: uuid.New()}

	live := rehydrateSession(session, messages)

	if live.State != dialogue.StateAwaitingQuestion {
		t.Fatalf("State = %s, want %s", live.State, dialogue.StateAwaitingQuestion)
	}
	if live.Ticket != nil {
		t.Errorf("Ticket = %+v, want nil", live.Ticket)
	}
	if len(live.History) != 2 {
		t.Errorf("len(History) = %d, want 2", len(live.History))
	}
}

// gatedLLM blocks its first Generate call until release is closed; every
// call answers with a capability plan so a turn completes without retrieval.
type gatedLLM struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return `{"action": "CAPABILITY"}`, nil
}

func (g *gatedLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return g.Generate(ctx, "", options...)
}

func (g *gatedLLM) GenerateStream(ctx context.Context, prompt string, onToken llm.TokenFunc, options ...llm.Option) (string, error) {
	return g.Generate(ctx, prompt, options...)
}

type nullSearcher struct{}

func (nullSearcher) Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error) {
	return nil, nil
}

type nullHydrator struct{}

func (nullHydrator) GetPassages(ctx context.Context, ids []string) ([]retrieval.Passage, error) {
	return nil, nil
}

type stubMessageRepo struct {
	mu      sync.Mutex
	created []*entity.ChatMessage
}

func (r *stubMessageRepo) Create(ctx context.Context, message *entity.ChatMessage) error {
	return r.CreateBatch(ctx, []*entity.ChatMessage{message})
}

func (r *stubMessageRepo) CreateBatch(ctx context.Context, messages []*entity.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, messages...)
	return nil
}

func (r *stubMessageRepo) DeleteByChatSessionId(ctx context.Context, sessionId uuid.UUID) error {
	return nil
}

func (r *stubMessageRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatMessage, error) {
	return nil, nil
}

func (r *stubMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	return nil, nil
}

func (r *stubMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}

type stubUnitOfWork struct {
	messages *stubMessageRepo
}

func (u *stubUnitOfWork) Begin(ctx context.Context) error { return nil }
func (u *stubUnitOfWork) Commit() error                   { return nil }
func (u *stubUnitOfWork) Rollback() error                 { return nil }

func (u *stubUnitOfWork) UserRepository() contract.UserRepository               { return nil }
func (u *stubUnitOfWork) ChatSessionRepository() contract.ChatSessionRepository { return nil }
func (u *stubUnitOfWork) ChatMessageRepository() contract.ChatMessageRepository { return u.messages }
func (u *stubUnitOfWork) TicketRepository() contract.TicketRepository           { return nil }
func (u *stubUnitOfWork) KnowledgePassageRepository() contract.KnowledgePassageRepository {
	return nil
}
func (u *stubUnitOfWork) PassageEmbeddingRepository() contract.PassageEmbeddingRepository {
	return nil
}

type stubUowFactory struct {
	uow *stubUnitOfWork
}

func (f *stubUowFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return f.uow
}

func newTestChatService(provider llm.LLMProvider) (IChatService, *memory.SessionRepository, *stubMessageRepo) {
	logger := log.New(io.Discard, "", 0)
	budgets := planner.Budgets{MaxRetrievals: 2, MaxClarifications: 1}
	pl := planner.NewPlanner(provider, budgets, logger)
	exec := retrievalexec.NewExecutor(nullSearcher{}, nullSearcher{}, nullHydrator{}, 5, time.Second, logger)
	orch := graph.NewOrchestrator(
		pl,
		exec,
		clarify.NewNode(),
		ticket.NewNode(provider, logger),
		prompt.NewAssembler(10),
		provider,
		graph.Config{
			MaxSnippetTurns:      10,
			LockoutPermanent:     true,
			LLMTimeout:           time.Second,
			StopAfterStaleRounds: 2,
		},
		logger,
	)

	messages := &stubMessageRepo{}
	factory := &stubUowFactory{uow: &stubUnitOfWork{messages: messages}}
	sessions := memory.NewSessionRepository()
	return NewChatService(factory, sessions, orch), sessions, messages
}

func TestStreamMessageRefusesConcurrentTurn(t *testing.T) {
	provider := &gatedLLM{entered: make(chan struct{}), release: make(chan struct{})}
	svc, sessions, repo := newTestChatService(provider)

	userA, userB := uuid.New(), uuid.New()
	sessA, sessB := uuid.New(), uuid.New()
	sessions.Save(dialogue.NewSession(sessA.String(), userA.String()))
	sessions.Save(dialogue.NewSession(sessB.String(), userB.String()))

	done := make(chan error, 1)
	go func() {
		done <- svc.StreamMessage(context.Background(), userA, sessA, "How do I reset my password?", dialogue.DiscardEvents)
	}()
	<-provider.entered

	// The first turn is parked inside its model call and still holds the
	// session; a second message on the same session is refused, not queued.
	err := svc.StreamMessage(context.Background(), userA, sessA, "Any update?", dialogue.DiscardEvents)
	if !errors.Is(err, dialogue.ErrTurnInProgress) {
		t.Fatalf("concurrent turn error = %v, want ErrTurnInProgress", err)
	}

	// A different session is independent of the in-flight turn.
	if err := svc.StreamMessage(context.Background(), userB, sessB, "What can you help with?", dialogue.DiscardEvents); err != nil {
		t.Fatalf("independent session turn failed: %v", err)
	}

	close(provider.release)
	if err := <-done; err != nil {
		t.Fatalf("first turn failed after release: %v", err)
	}

	repo.mu.Lock()
	persisted := len(repo.created)
	repo.mu.Unlock()
	// Two completed turns, two messages each; the refused message was never
	// persisted.
	if persisted != 4 {
		t.Errorf("persisted %d messages, want 4", persisted)
	}
}
