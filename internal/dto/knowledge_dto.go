package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateKnowledgeItemRequest struct {
	Content   string   `json:"content" validate:"required,min=10"`
	SourceURL string   `json:"source_url" validate:"omitempty,url"`
	Tags      []string `json:"tags" validate:"omitempty,dive,max=40"`
}

type UpdateKnowledgeItemRequest struct {
	Content   string   `json:"content" validate:"required,min=10"`
	SourceURL string   `json:"source_url" validate:"omitempty,url"`
	Tags      []string `json:"tags" validate:"omitempty,dive,max=40"`
}

type KnowledgeItemResponse struct {
	Id        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	SourceURL string    `json:"source_url,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PublishKnowledgeUpdatedMessage is the watermill payload that triggers a
// retriever index rebuild.
type PublishKnowledgeUpdatedMessage struct {
	PassageId uuid.UUID `json:"passage_id"`
	Action    string    `json:"action"` // created | updated | deleted
}
