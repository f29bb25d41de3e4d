package entity

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAgent UserRole = "agent"
	UserRoleAdmin UserRole = "admin"
)

type User struct {
	Id           uuid.UUID
	Email        string
	PasswordHash *string
	FullName     string
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
