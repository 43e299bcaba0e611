// Package types defines the conversation data model.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a turn.
type Role string

const (
	// RoleUser is a turn spoken by the person.
	RoleUser Role = "user"
	// RoleAssistant is a turn produced by the language service.
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in the conversation. Turns are immutable once created:
// the conversation log only ever appends them.
type Turn struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTurn creates a turn with a fresh unique ID and the current timestamp.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
}
