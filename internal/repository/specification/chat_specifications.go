package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByChatSessionID struct {
	ChatSessionID uuid.UUID
}

func (s ByChatSessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("chat_session_id = ?", s.ChatSessionID)
}

type ByTicketStatus struct {
	Status string
}

func (s ByTicketStatus) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", s.Status)
}

type ByPassageID struct {
	PassageID uuid.UUID
}

func (s ByPassageID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("passage_id = ?", s.PassageID)
}
