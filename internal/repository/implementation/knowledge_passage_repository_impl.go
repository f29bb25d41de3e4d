package implementation

import (
	"context"
	"errors"

	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/mapper"
	"ai-supportdesk-be/internal/model"
	"ai-supportdesk-be/internal/repository/contract"
	"ai-supportdesk-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type KnowledgePassageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.KnowledgeMapper
}

func NewKnowledgePassageRepository(db *gorm.DB) contract.KnowledgePassageRepository {
	return &KnowledgePassageRepositoryImpl{
		db:     db,
		mapper: mapper.NewKnowledgeMapper(),
	}
}

func (r *KnowledgePassageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *KnowledgePassageRepositoryImpl) Create(ctx context.Context, passage *entity.KnowledgePassage) error {
	m := r.mapper.PassageToModel(passage)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*passage = *r.mapper.PassageToEntity(m)
	return nil
}

func (r *KnowledgePassageRepositoryImpl) Update(ctx context.Context, passage *entity.KnowledgePassage) error {
	m := r.mapper.PassageToModel(passage)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*passage = *r.mapper.PassageToEntity(m)
	return nil
}

func (r *KnowledgePassageRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.KnowledgePassage{}, id).Error
}

func (r *KnowledgePassageRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.KnowledgePassage, error) {
	var m model.KnowledgePassage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.PassageToEntity(&m), nil
}

func (r *KnowledgePassageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.KnowledgePassage, error) {
	var models []*model.KnowledgePassage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.KnowledgePassage, len(models))
	for i, m := range models {
		entities[i] = r.mapper.PassageToEntity(m)
	}
	return entities, nil
}

func (r *KnowledgePassageRepositoryImpl) FindByIds(ctx context.Context, ids []uuid.UUID) ([]*entity.KnowledgePassage, error) {
	if len(ids) == 0 {
		return []*entity.KnowledgePassage{}, nil
	}
	var models []*model.KnowledgePassage
	query := specification.ByIDs{IDs: ids}.Apply(r.db.WithContext(ctx))
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.KnowledgePassage, len(models))
	for i, m := range models {
		entities[i] = r.mapper.PassageToEntity(m)
	}
	return entities, nil
}
