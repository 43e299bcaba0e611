package chat

import (
	"sync"

	"github.com/parley-ai/parley/pkg/core/types"
)

// Conversation is the ordered, append-only turn log. The orchestrator is the
// single writer; readers get snapshots.
type Conversation struct {
	mu    sync.RWMutex
	turns []types.Turn
}

// NewConversation creates a log seeded with the assistant greeting. An empty
// greeting starts the log empty.
func NewConversation(greeting string) *Conversation {
	c := &Conversation{}
	if greeting != "" {
		c.turns = append(c.turns, types.NewTurn(types.RoleAssistant, greeting))
	}
	return c
}

// Append adds a turn to the log.
func (c *Conversation) Append(turn types.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turn)
}

// Turns returns a snapshot of the log in order.
func (c *Conversation) Turns() []types.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}
