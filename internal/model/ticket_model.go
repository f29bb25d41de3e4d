package model

import (
	"time"

	"github.com/google/uuid"
)

type Ticket struct {
	Id            uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChatSessionId uuid.UUID  `gorm:"type:uuid;not null;index"`
	UserId        uuid.UUID  `gorm:"type:uuid;not null;index"`
	Category      string     `gorm:"type:text;not null"`
	Title         string     `gorm:"type:text;not null"`
	Description   string     `gorm:"type:text"`
	Status        string     `gorm:"type:text;not null;default:'draft'"`
	SubmittedAt   *time.Time `gorm:""`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

func (Ticket) TableName() string {
	return "tickets"
}
