package entity

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgePassage is one indexed unit of knowledge-base text.
type KnowledgePassage struct {
	Id        uuid.UUID
	Content   string
	SourceURL string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}

// PassageEmbedding is the stored vector for one passage.
type PassageEmbedding struct {
	Id             uuid.UUID
	PassageId      uuid.UUID
	EmbeddingValue []float32
	CreatedAt      time.Time
}
