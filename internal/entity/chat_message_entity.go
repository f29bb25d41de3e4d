package entity

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one persisted dialogue turn. Payload carries the typed
// variant body (MCQ options or ticket fields) as JSON for non-text kinds.
type ChatMessage struct {
	Id            uuid.UUID
	Content       string
	Role          string
	Kind          string
	Payload       []byte
	ChatSessionId uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	DeletedAt     *time.Time
	IsDeleted     bool
}
