package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"ai-supportdesk-be/internal/constant"
	"ai-supportdesk-be/internal/dto"
	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/repository/memory"
	"ai-supportdesk-be/internal/repository/specification"
	"ai-supportdesk-be/internal/repository/unitofwork"
	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/dialogue/graph"

	"github.com/google/uuid"
)

type IChatService interface {
	CreateSession(ctx context.Context, userId uuid.UUID, req *dto.CreateChatSessionRequest) (*dto.ChatSessionResponse, error)
	GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.ChatSessionResponse, error)
	GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.ChatMessageResponse, error)
	DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error

	// StreamMessage runs one dialogue turn, pushing typed events through emit
	// as they are produced. It returns once the turn is committed (or failed
	// with nothing committed).
	StreamMessage(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, message string, emit dialogue.EmitFunc) error

	// ResolveSession returns the live orchestration session, rebuilding it
	// from the persisted transcript on a cache miss.
	ResolveSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dialogue.Session, error)
}

type chatService struct {
	uowFactory   unitofwork.RepositoryFactory
	sessionRepo  *memory.SessionRepository
	orchestrator *graph.Orchestrator
	llmLogger    *log.Logger
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	sessionRepo *memory.SessionRepository,
	orchestrator *graph.Orchestrator,
) IChatService {
	return &chatService{
		uowFactory:   uowFactory,
		sessionRepo:  sessionRepo,
		orchestrator: orchestrator,
		llmLogger:    initLLMLogger(),
	}
}

func initLLMLogger() *log.Logger {
	logPath := filepath.Join(".", "logs", "llm_dialogue.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stdout, "[LLM-DIALOGUE] ", log.LstdFlags)
	}
	return log.New(file, "", log.LstdFlags)
}

func (cs *chatService) CreateSession(ctx context.Context, userId uuid.UUID, req *dto.CreateChatSessionRequest) (*dto.ChatSessionResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	title := req.Title
	if title == "" {
		title = "New conversation"
	}

	session := &entity.ChatSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		Theme:     req.Theme,
		CreatedAt: time.Now(),
	}
	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, err
	}

	live := dialogue.NewSession(session.Id.String(), userId.String())
	live.Theme = session.Theme
	cs.sessionRepo.Save(live)

	return chatSessionToResponse(session), nil
}

func (cs *chatService) GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.ChatSessionResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ChatSessionResponse, len(sessions))
	for i, s := range sessions {
		res[i] = chatSessionToResponse(s)
	}
	return res, nil
}

func (cs *chatService) GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.ChatMessageResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	session, err := cs.findOwnedSession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: session.Id},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ChatMessageResponse, len(messages))
	for i, m := range messages {
		res[i] = chatMessageToResponse(m)
	}
	return res, nil
}

func (cs *chatService) DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	session, err := cs.findOwnedSession(ctx, uow, userId, sessionId)
	if err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, session.Id); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, session.Id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	cs.sessionRepo.Delete(sessionId.String())
	return nil
}

func (cs *chatService) StreamMessage(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, message string, emit dialogue.EmitFunc) error {
	sess, err := cs.ResolveSession(ctx, userId, sessionId)
	if err != nil {
		return err
	}

	// Sessions are strictly sequential: a second concurrent turn is refused,
	// not queued.
	if !sess.TryLock() {
		return dialogue.ErrTurnInProgress
	}
	defer sess.Unlock()

	result, err := cs.orchestrator.Turn(ctx, sess, message, emit)
	if err != nil {
		return err
	}
	if result.Replayed {
		// Nothing new was committed; the stored transcript already holds
		// this turn.
		return nil
	}

	if err := cs.persistTurn(ctx, sessionId, result.Messages); err != nil {
		// The in-memory session is ahead of the transcript now; keep it
		// cached so the conversation can continue, but report the failure.
		cs.llmLogger.Printf("[PERSIST] session %s: %v", sessionId, err)
		cs.sessionRepo.Save(sess)
		return err
	}

	cs.sessionRepo.Save(sess)
	return nil
}

// persistTurn writes the whole turn (user message plus staged assistant
// messages) in one transaction: either the full turn lands or none of it.
func (cs *chatService) persistTurn(ctx context.Context, sessionId uuid.UUID, messages []dialogue.Message) error {
	if len(messages) == 0 {
		return nil
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	entities := make([]*entity.ChatMessage, len(messages))
	for i, m := range messages {
		e, err := dialogueMessageToEntity(sessionId, m)
		if err != nil {
			return err
		}
		entities[i] = e
	}

	if err := uow.ChatMessageRepository().CreateBatch(ctx, entities); err != nil {
		return err
	}
	return uow.Commit()
}

func (cs *chatService) ResolveSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dialogue.Session, error) {
	if live, found := cs.sessionRepo.Get(sessionId.String()); found {
		if live.UserID != userId.String() {
			return nil, errors.New("chat session not found")
		}
		return live, nil
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	session, err := cs.findOwnedSession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: session.Id},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	live := rehydrateSession(session, messages)
	cs.sessionRepo.Save(live)
	return live, nil
}

func (cs *chatService) findOwnedSession(ctx context.Context, uow unitofwork.UnitOfWork, userId, sessionId uuid.UUID) (*entity.ChatSession, error) {
	session, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("chat session not found")
	}
	return session, nil
}

// rehydrateSession rebuilds live orchestration state from the persisted
// transcript after a cache eviction or restart. The waiting-for state is
// inferred from the last assistant message.
func rehydrateSession(session *entity.ChatSession, messages []*entity.ChatMessage) *dialogue.Session {
	live := dialogue.NewSession(session.Id.String(), session.UserId.String())
	live.Theme = session.Theme
	live.TicketSubmitted = session.TicketSubmitted

	for _, m := range messages {
		live.Append(entityToDialogueMessage(m))
	}

	// A submitted ticket pins the session in edit-only mode no matter what
	// was said afterwards: the lockout reply and edit-failure replies are
	// plain assistant messages, so the last-message inference below would
	// read them as a completed answer cycle.
	if session.TicketSubmitted {
		live.State = dialogue.StateAwaitingTicketEdit
		if draft := lastTicketDraft(messages); draft != nil {
			draft.Submitted = true
			live.Ticket = draft
		}
		return live
	}

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != constant.ChatMessageRoleAssistant {
			continue
		}
		switch m.Kind {
		case constant.ChatMessageKindMCQ:
			var payload dto.MCQPayloadDTO
			if err := json.Unmarshal(m.Payload, &payload); err == nil {
				live.State = dialogue.StateAwaitingClarificationReply
				live.PendingClarification = &dialogue.Clarification{
					Question: payload.Question,
					Options:  payload.Options,
					AskedAt:  m.CreatedAt,
				}
				live.ClarifiedQuestion = lastUserContent(messages[:i])
			}
		case constant.ChatMessageKindTicket:
			var payload dto.TicketPayloadDTO
			if err := json.Unmarshal(m.Payload, &payload); err == nil {
				live.State = dialogue.StateAwaitingTicketEdit
				live.Ticket = &dialogue.TicketDraft{
					Category:    payload.Category,
					Title:       payload.Title,
					Description: payload.Description,
				}
			}
		}
		break
	}

	return live
}

// lastTicketDraft recovers the most recent ticket payload in the transcript.
func lastTicketDraft(messages []*entity.ChatMessage) *dialogue.TicketDraft {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != constant.ChatMessageRoleAssistant || m.Kind != constant.ChatMessageKindTicket {
			continue
		}
		var payload dto.TicketPayloadDTO
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return nil
		}
		return &dialogue.TicketDraft{
			Category:    payload.Category,
			Title:       payload.Title,
			Description: payload.Description,
		}
	}
	return nil
}

func lastUserContent(messages []*entity.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == constant.ChatMessageRoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func dialogueMessageToEntity(sessionId uuid.UUID, m dialogue.Message) (*entity.ChatMessage, error) {
	e := &entity.ChatMessage{
		Id:            uuid.New(),
		Content:       m.Content,
		Role:          string(m.Role),
		Kind:          string(m.Kind),
		ChatSessionId: sessionId,
		CreatedAt:     m.Timestamp,
	}

	switch m.Kind {
	case dialogue.PayloadMCQ:
		if m.MCQ != nil {
			payload, err := json.Marshal(dto.MCQPayloadDTO{Question: m.MCQ.Question, Options: m.MCQ.Options})
			if err != nil {
				return nil, err
			}
			e.Payload = payload
			e.Content = m.MCQ.Question
		}
	case dialogue.PayloadTicket:
		if m.Ticket != nil {
			payload, err := json.Marshal(dto.TicketPayloadDTO{
				Category:    m.Ticket.Category,
				Title:       m.Ticket.Title,
				Description: m.Ticket.Description,
			})
			if err != nil {
				return nil, err
			}
			e.Payload = payload
			e.Content = m.Ticket.Title
		}
	}

	return e, nil
}

func entityToDialogueMessage(m *entity.ChatMessage) dialogue.Message {
	msg := dialogue.Message{
		Role:      dialogue.Role(m.Role),
		Content:   m.Content,
		Kind:      dialogue.PayloadKind(m.Kind),
		Timestamp: m.CreatedAt,
	}

	switch m.Kind {
	case constant.ChatMessageKindMCQ:
		var payload dto.MCQPayloadDTO
		if err := json.Unmarshal(m.Payload, &payload); err == nil {
			msg.MCQ = &dialogue.MCQPayload{Question: payload.Question, Options: payload.Options}
		}
	case constant.ChatMessageKindTicket:
		var payload dto.TicketPayloadDTO
		if err := json.Unmarshal(m.Payload, &payload); err == nil {
			msg.Ticket = &dialogue.TicketPayload{
				Category:    payload.Category,
				Title:       payload.Title,
				Description: payload.Description,
			}
		}
	}

	return msg
}

func chatSessionToResponse(s *entity.ChatSession) *dto.ChatSessionResponse {
	return &dto.ChatSessionResponse{
		Id:              s.Id,
		Title:           s.Title,
		Theme:           s.Theme,
		TicketSubmitted: s.TicketSubmitted,
		CreatedAt:       s.CreatedAt,
	}
}

func chatMessageToResponse(m *entity.ChatMessage) *dto.ChatMessageResponse {
	res := &dto.ChatMessageResponse{
		Id:        m.Id,
		Role:      m.Role,
		Kind:      m.Kind,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}

	switch m.Kind {
	case constant.ChatMessageKindMCQ:
		var payload dto.MCQPayloadDTO
		if err := json.Unmarshal(m.Payload, &payload); err == nil {
			res.MCQ = &payload
		}
	case constant.ChatMessageKindTicket:
		var payload dto.TicketPayloadDTO
		if err := json.Unmarshal(m.Payload, &payload); err == nil {
			res.Ticket = &payload
		}
	}

	return res
}
