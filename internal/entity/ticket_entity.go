package entity

import (
	"time"

	"github.com/google/uuid"
)

type Ticket struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	UserId        uuid.UUID
	Category      string
	Title         string
	Description   string
	Status        string
	SubmittedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}
