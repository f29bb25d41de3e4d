package unitofwork

import (
	"context"

	"ai-supportdesk-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() contract.UserRepository
	ChatSessionRepository() contract.ChatSessionRepository
	ChatMessageRepository() contract.ChatMessageRepository
	TicketRepository() contract.TicketRepository
	KnowledgePassageRepository() contract.KnowledgePassageRepository
	PassageEmbeddingRepository() contract.PassageEmbeddingRepository
}
