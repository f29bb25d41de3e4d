package implementation

import (
	"context"

	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/mapper"
	"ai-supportdesk-be/internal/model"
	"ai-supportdesk-be/internal/repository/contract"
	"ai-supportdesk-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PassageEmbeddingRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.KnowledgeMapper
}

func NewPassageEmbeddingRepository(db *gorm.DB) contract.PassageEmbeddingRepository {
	return &PassageEmbeddingRepositoryImpl{
		db:     db,
		mapper: mapper.NewKnowledgeMapper(),
	}
}

func (r *PassageEmbeddingRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *PassageEmbeddingRepositoryImpl) Create(ctx context.Context, embedding *entity.PassageEmbedding) error {
	m := r.mapper.EmbeddingToModel(embedding)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*embedding = *r.mapper.EmbeddingToEntity(m)
	return nil
}

func (r *PassageEmbeddingRepositoryImpl) Upsert(ctx context.Context, embedding *entity.PassageEmbedding) error {
	m := r.mapper.EmbeddingToModel(embedding)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "passage_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding_value"}),
	}).Create(m).Error
	if err != nil {
		return err
	}
	*embedding = *r.mapper.EmbeddingToEntity(m)
	return nil
}

func (r *PassageEmbeddingRepositoryImpl) DeleteByPassageId(ctx context.Context, passageId uuid.UUID) error {
	query := specification.ByPassageID{PassageID: passageId}.Apply(r.db.WithContext(ctx))
	return query.Delete(&model.PassageEmbedding{}).Error
}

func (r *PassageEmbeddingRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PassageEmbedding, error) {
	var models []*model.PassageEmbedding
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.PassageEmbedding, len(models))
	for i, m := range models {
		entities[i] = r.mapper.EmbeddingToEntity(m)
	}
	return entities, nil
}
