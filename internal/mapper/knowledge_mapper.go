package mapper

import (
	"encoding/json"
	"time"

	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type KnowledgeMapper struct{}

func NewKnowledgeMapper() *KnowledgeMapper {
	return &KnowledgeMapper{}
}

func (m *KnowledgeMapper) PassageToEntity(p *model.KnowledgePassage) *entity.KnowledgePassage {
	if p == nil {
		return nil
	}

	var deletedAt *time.Time
	if p.DeletedAt.Valid {
		t := p.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !p.UpdatedAt.IsZero() {
		t := p.UpdatedAt
		updatedAt = &t
	}

	var tags []string
	if len(p.Tags) > 0 {
		// Malformed tag JSON degrades to no tags rather than failing reads.
		_ = json.Unmarshal(p.Tags, &tags)
	}

	return &entity.KnowledgePassage{
		Id:        p.Id,
		Content:   p.Content,
		SourceURL: p.SourceURL,
		Tags:      tags,
		CreatedAt: p.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		IsDeleted: p.DeletedAt.Valid,
	}
}

func (m *KnowledgeMapper) PassageToModel(p *entity.KnowledgePassage) *model.KnowledgePassage {
	if p == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if p.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *p.DeletedAt, Valid: true}
	} else if p.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if p.UpdatedAt != nil {
		updatedAt = *p.UpdatedAt
	}

	var tags datatypes.JSON
	if len(p.Tags) > 0 {
		raw, _ := json.Marshal(p.Tags)
		tags = datatypes.JSON(raw)
	}

	return &model.KnowledgePassage{
		Id:        p.Id,
		Content:   p.Content,
		SourceURL: p.SourceURL,
		Tags:      tags,
		CreatedAt: p.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
	}
}

func (m *KnowledgeMapper) EmbeddingToEntity(e *model.PassageEmbedding) *entity.PassageEmbedding {
	if e == nil {
		return nil
	}
	return &entity.PassageEmbedding{
		Id:             e.Id,
		PassageId:      e.PassageId,
		EmbeddingValue: e.EmbeddingValue.Slice(),
		CreatedAt:      e.CreatedAt,
	}
}

func (m *KnowledgeMapper) EmbeddingToModel(e *entity.PassageEmbedding) *model.PassageEmbedding {
	if e == nil {
		return nil
	}
	return &model.PassageEmbedding{
		Id:             e.Id,
		PassageId:      e.PassageId,
		EmbeddingValue: pgvector.NewVector(e.EmbeddingValue),
		CreatedAt:      e.CreatedAt,
	}
}
