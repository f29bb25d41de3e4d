package contract

import (
	"context"

	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/repository/specification"
)

type TicketRepository interface {
	Create(ctx context.Context, ticket *entity.Ticket) error
	Update(ctx context.Context, ticket *entity.Ticket) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Ticket, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Ticket, error)
}
