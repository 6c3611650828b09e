package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/killallgit/turnstream/pkg/config"
)

// historyFile is the on-disk layout of a persisted conversation
type historyFile struct {
	ConversationID string  `json:"conversation_id,omitempty"`
	Turns          []*Turn `json:"turns"`
}

// SaveHistory writes every finalized turn and the conversation id to path.
// A turn that is still streaming is left out.
func (c *Conversation) SaveHistory(path string) error {
	c.mu.RLock()
	file := historyFile{
		ConversationID: c.conversationID,
		Turns:          make([]*Turn, 0, len(c.turns)),
	}
	for _, t := range c.turns {
		if !t.Finalized {
			continue
		}
		snapshot := t.clone()
		file.Turns = append(file.Turns, &snapshot)
	}
	c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := config.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

// LoadHistory replaces the conversation with the one stored at path.
// A missing file leaves the conversation empty and is not an error.
func (c *Conversation) LoadHistory(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.Clear()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}

	turns := make([]*Turn, 0, len(file.Turns))
	for _, t := range file.Turns {
		if t == nil {
			continue
		}
		// Anything persisted is history and can no longer change
		t.Finalized = true
		if t.Status.IsActive() {
			t.Status = StatusReady
		}
		turns = append(turns, t)
	}

	c.mu.Lock()
	c.turns = turns
	c.conversationID = file.ConversationID
	c.mu.Unlock()

	return nil
}
