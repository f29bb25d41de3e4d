package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-supportdesk-be/internal/constant"
	"ai-supportdesk-be/internal/dto"
	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/pkg/mailer"
	"ai-supportdesk-be/internal/repository/specification"
	"ai-supportdesk-be/internal/repository/unitofwork"
	"ai-supportdesk-be/internal/websocket"
	"ai-supportdesk-be/pkg/dialogue/graph"
	"ai-supportdesk-be/pkg/events"
	pktNats "ai-supportdesk-be/pkg/nats"

	"github.com/google/uuid"
)

type ITicketService interface {
	// Submit finalizes the session's current draft and hands it to human
	// support. After this the session accepts edit instructions only.
	Submit(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.TicketResponse, error)
	GetAll(ctx context.Context, userId uuid.UUID) ([]*dto.TicketResponse, error)
}

type ticketService struct {
	uowFactory     unitofwork.RepositoryFactory
	chatService    IChatService
	orchestrator   *graph.Orchestrator
	emailService   mailer.IEmailService
	eventPublisher *pktNats.Publisher
	hub            *websocket.Hub
}

func NewTicketService(
	uowFactory unitofwork.RepositoryFactory,
	chatService IChatService,
	orchestrator *graph.Orchestrator,
	emailService mailer.IEmailService,
	eventPublisher *pktNats.Publisher,
	hub *websocket.Hub,
) ITicketService {
	return &ticketService{
		uowFactory:     uowFactory,
		chatService:    chatService,
		orchestrator:   orchestrator,
		emailService:   emailService,
		eventPublisher: eventPublisher,
		hub:            hub,
	}
}

func (s *ticketService) Submit(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.TicketResponse, error) {
	sess, err := s.chatService.ResolveSession(ctx, userId, sessionId)
	if err != nil {
		return nil, err
	}

	sess.Lock()
	defer sess.Unlock()

	draft, err := s.orchestrator.SubmitTicket(sess)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ticket := &entity.Ticket{
		Id:            uuid.New(),
		ChatSessionId: sessionId,
		UserId:        userId,
		Category:      draft.Category,
		Title:         draft.Title,
		Description:   draft.Description,
		Status:        constant.TicketStatusSubmitted,
		SubmittedAt:   &now,
		CreatedAt:     now,
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.TicketRepository().Create(ctx, ticket); err != nil {
		return nil, err
	}

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
	session.TicketSubmitted = true
	if err := uow.ChatSessionRepository().Update(ctx, session); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.notifySubmission(ctx, uow, ticket, userId)
	return ticketToResponse(ticket), nil
}

// notifySubmission fans the submitted ticket out to the downstream channels.
// All of them are auxiliary: failures are logged, never surfaced.
func (s *ticketService) notifySubmission(ctx context.Context, uow unitofwork.UnitOfWork, ticket *entity.Ticket, userId uuid.UUID) {
	if s.eventPublisher != nil {
		evt := events.NewTicketSubmittedEvent(
			ticket.Id.String(),
			ticket.ChatSessionId.String(),
			userId.String(),
			ticket.Category,
			ticket.Title,
		)
		if err := s.eventPublisher.Publish(ctx, evt); err != nil {
			fmt.Printf("[WARN] Failed to publish TICKET_SUBMITTED event: %v\n", err)
		}
	}

	if s.emailService != nil {
		requesterEmail := ""
		if user, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: userId}); err == nil && user != nil {
			requesterEmail = user.Email
		}
		if err := s.emailService.SendTicketNotification(ticket, requesterEmail); err != nil {
			fmt.Printf("[WARN] Failed to email ticket %s: %v\n", ticket.Id, err)
		}
	}

	if s.hub != nil {
		s.hub.Send(userId, websocket.Event{
			Type: "ticket_submitted",
			Data: ticketToResponse(ticket),
		})
	}
}

func (s *ticketService) GetAll(ctx context.Context, userId uuid.UUID) ([]*dto.TicketResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	tickets, err := uow.TicketRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.TicketResponse, len(tickets))
	for i, t := range tickets {
		res[i] = ticketToResponse(t)
	}
	return res, nil
}

func ticketToResponse(t *entity.Ticket) *dto.TicketResponse {
	return &dto.TicketResponse{
		Id:            t.Id,
		ChatSessionId: t.ChatSessionId,
		Category:      t.Category,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		SubmittedAt:   t.SubmittedAt,
		CreatedAt:     t.CreatedAt,
	}
}
