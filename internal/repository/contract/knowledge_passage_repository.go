package contract

import (
	"context"

	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/repository/specification"

	"github.com/google/uuid"
)

type KnowledgePassageRepository interface {
	Create(ctx context.Context, passage *entity.KnowledgePassage) error
	Update(ctx context.Context, passage *entity.KnowledgePassage) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.KnowledgePassage, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.KnowledgePassage, error)
	FindByIds(ctx context.Context, ids []uuid.UUID) ([]*entity.KnowledgePassage, error)
}
