package models

import (
	"time"

	"github.com/google/uuid"
)

// Role - роль пользователя.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User - модель пользователя в системе.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	Nickname     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserConflicts - какие уникальные поля уже заняты другими пользователями.
type UserConflicts struct {
	Username bool
	Email    bool
	Nickname bool
}

// Any сообщает, что занято хотя бы одно поле.
func (c UserConflicts) Any() bool {
	return c.Username || c.Email || c.Nickname
}
