package mapper

import (
	"time"

	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/model"
)

type TicketMapper struct{}

func NewTicketMapper() *TicketMapper {
	return &TicketMapper{}
}

func (m *TicketMapper) ToEntity(t *model.Ticket) *entity.Ticket {
	if t == nil {
		return nil
	}

	var updatedAt *time.Time
	if !t.UpdatedAt.IsZero() {
		u := t.UpdatedAt
		updatedAt = &u
	}

	return &entity.Ticket{
		Id:            t.Id,
		ChatSessionId: t.ChatSessionId,
		UserId:        t.UserId,
		Category:      t.Category,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		SubmittedAt:   t.SubmittedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     updatedAt,
	}
}

func (m *TicketMapper) ToModel(t *entity.Ticket) *model.Ticket {
	if t == nil {
		return nil
	}

	var updatedAt time.Time
	if t.UpdatedAt != nil {
		updatedAt = *t.UpdatedAt
	}

	return &model.Ticket{
		Id:            t.Id,
		ChatSessionId: t.ChatSessionId,
		UserId:        t.UserId,
		Category:      t.Category,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		SubmittedAt:   t.SubmittedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     updatedAt,
	}
}
