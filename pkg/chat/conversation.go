package chat

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrTurnFrozen is returned when updating a turn that is no longer live
	ErrTurnFrozen = errors.New("turn is frozen")

	// ErrUnknownTurn is returned for a turn id the conversation does not hold
	ErrUnknownTurn = errors.New("unknown turn")
)

// Turn is one user message followed by the assistant message answering it
type Turn struct {
	ID        string    `json:"id"`
	User      Message   `json:"user"`
	Assistant Message   `json:"assistant"`
	Status    Status    `json:"status"`
	Thinking  bool      `json:"thinking,omitempty"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Finalized bool      `json:"finalized"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// State returns the assistant side of the turn as a TurnState
func (t Turn) State() TurnState {
	return TurnState{Message: t.Assistant.Clone(), Status: t.Status, Thinking: t.Thinking}
}

func (t Turn) clone() Turn {
	out := t
	out.User = t.User.Clone()
	out.Assistant = t.Assistant.Clone()
	return out
}

// Conversation is the ordered, append-only list of turns of one conversation.
// Only the newest turn may change, and only until it is finalized.
type Conversation struct {
	mu             sync.RWMutex
	turns          []*Turn
	conversationID string
}

// NewConversation creates an empty conversation with no server-side id yet
func NewConversation() *Conversation {
	return &Conversation{}
}

// Begin appends a new live turn for the given user text
func (c *Conversation) Begin(turnID, text string) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := NewTurnState()
	turn := &Turn{
		ID:        turnID,
		User:      NewUserMessage(text),
		Assistant: state.Message,
		Status:    state.Status,
		StartedAt: time.Now(),
	}
	c.turns = append(c.turns, turn)
	return turn.clone()
}

// Update replaces the assistant state of the live turn
func (c *Conversation) Update(turnID string, state TurnState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	turn, err := c.liveTurnLocked(turnID)
	if err != nil {
		return err
	}

	turn.Assistant = state.Message.Clone()
	turn.Status = state.Status
	turn.Thinking = state.Thinking
	return nil
}

// Finalize freezes the live turn with its terminal status
func (c *Conversation) Finalize(turnID string, status Status, cancelled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	turn, err := c.liveTurnLocked(turnID)
	if err != nil {
		return err
	}

	turn.Status = status
	turn.Thinking = false
	turn.Cancelled = cancelled
	turn.Finalized = true
	turn.EndedAt = time.Now()
	return nil
}

func (c *Conversation) liveTurnLocked(turnID string) (*Turn, error) {
	if len(c.turns) == 0 {
		return nil, ErrUnknownTurn
	}
	newest := c.turns[len(c.turns)-1]
	if newest.ID != turnID {
		for _, t := range c.turns {
			if t.ID == turnID {
				return nil, ErrTurnFrozen
			}
		}
		return nil, ErrUnknownTurn
	}
	if newest.Finalized {
		return nil, ErrTurnFrozen
	}
	return newest, nil
}

// Active returns the newest turn while it is still live
func (c *Conversation) Active() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.turns) == 0 {
		return Turn{}, false
	}
	newest := c.turns[len(c.turns)-1]
	if newest.Finalized {
		return Turn{}, false
	}
	return newest.clone(), true
}

// Get returns a snapshot of the turn with the given id
func (c *Conversation) Get(turnID string) (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, t := range c.turns {
		if t.ID == turnID {
			return t.clone(), true
		}
	}
	return Turn{}, false
}

// Last returns a snapshot of the newest turn
func (c *Conversation) Last() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1].clone(), true
}

// Turns returns snapshots of all turns in order
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		result[i] = t.clone()
	}
	return result
}

// Messages returns the flattened user/assistant message list in display order
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Message, 0, len(c.turns)*2)
	for _, t := range c.turns {
		result = append(result, t.User.Clone(), t.Assistant.Clone())
	}
	return result
}

// Len returns the number of turns
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// ConversationID returns the server-assigned id, or "" for a new conversation
func (c *Conversation) ConversationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conversationID
}

// SetConversationID records the server-assigned id. An id already held is kept.
func (c *Conversation) SetConversationID(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conversationID != "" || id == "" {
		return false
	}
	c.conversationID = id
	return true
}

// Clear drops every turn and forgets the conversation id
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = nil
	c.conversationID = ""
}
