package dto

import (
	"time"

	"github.com/google/uuid"
)

type TicketResponse struct {
	Id            uuid.UUID  `json:"id"`
	ChatSessionId uuid.UUID  `json:"chat_session_id"`
	Category      string     `json:"category"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
