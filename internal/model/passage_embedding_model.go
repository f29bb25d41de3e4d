package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type PassageEmbedding struct {
	Id             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PassageId      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	EmbeddingValue pgvector.Vector `gorm:"type:vector(768)"` // nomic-embed-text uses 768 dimensions
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
}

func (PassageEmbedding) TableName() string {
	return "passage_embeddings"
}
