package models

import (
	"time"
)

// User represents an account holder. The active session lives on the row:
// one token per user, replaced on every login.
type User struct {
	ID           uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string     `json:"username" gorm:"size:50;uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"column:password_hash;size:100;not null"`
	SessionToken *string    `json:"-" gorm:"column:session_token;size:100;uniqueIndex"`
	TokenExpiry  *time.Time `json:"-" gorm:"column:token_expiry"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName specifies the table name for User Model
func (User) TableName() string {
	return "users"
}
