package contract

import (
	"context"

	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/repository/specification"

	"github.com/google/uuid"
)

type PassageEmbeddingRepository interface {
	Create(ctx context.Context, embedding *entity.PassageEmbedding) error
	Upsert(ctx context.Context, embedding *entity.PassageEmbedding) error
	DeleteByPassageId(ctx context.Context, passageId uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PassageEmbedding, error)
}
