package models

import "time"

// Turn captures one persisted utterance in a user's conversation history.

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Role      Role      `json:"role" validate:"required,oneof=user assistant"`
	Content   string    `json:"content" validate:"required"`
	CreatedAt time.Time `json:"timestamp"`
}
