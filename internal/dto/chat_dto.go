package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateChatSessionRequest struct {
	Title string `json:"title" validate:"omitempty,max=120"`
	Theme string `json:"theme" validate:"omitempty,max=60"`
}

type SendChatMessageRequest struct {
	Message string `json:"message" validate:"required,min=1,max=4000"`
}

type ChatSessionResponse struct {
	Id              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Theme           string    `json:"theme,omitempty"`
	TicketSubmitted bool      `json:"ticket_submitted"`
	CreatedAt       time.Time `json:"created_at"`
}

// MCQPayloadDTO is the persisted body of an mcq-kind message.
type MCQPayloadDTO struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// TicketPayloadDTO is the persisted body of a ticket-kind message.
type TicketPayloadDTO struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ChatMessageResponse struct {
	Id        uuid.UUID         `json:"id"`
	Role      string            `json:"role"`
	Kind      string            `json:"kind"`
	Content   string            `json:"content"`
	MCQ       *MCQPayloadDTO    `json:"mcq,omitempty"`
	Ticket    *TicketPayloadDTO `json:"ticket,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
