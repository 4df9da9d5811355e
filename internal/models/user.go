package models

import "time"

// User holds the requester profile and the assistant persona it configured.
// The user owns an append-only sequence of Turns (its conversation history).
type User struct {
	ID             int64     `json:"id"`
	UserName       string    `json:"user_name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	AssistantName  string    `json:"assistant_name"`
	AssistantImage string    `json:"assistant_image"`
	CreatedAt      time.Time `json:"created_at"`
}
