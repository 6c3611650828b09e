package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolStatus is the lifecycle state of one tool invocation
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// Status is the turn-level stream status
type Status string

const (
	StatusReady     Status = "ready"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// IsActive reports whether a turn in this status may still change
func (s Status) IsActive() bool {
	return s == StatusSubmitted || s == StatusStreaming
}

// ToolCallState tracks one tool invocation within a turn
type ToolCallState struct {
	Name   string         `json:"name"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Status ToolStatus     `json:"status"`
}

// SourceRef is a citation derived from retrieval tool output
type SourceRef struct {
	DocumentName string   `json:"document_name"`
	Content      string   `json:"content"`
	Score        *float64 `json:"score,omitempty"`
}

// Message is one user or assistant message of a conversation.
// A nil Sources slice means no citations were derived for the turn.
type Message struct {
	ID             string          `json:"id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	ReasoningTrace *string         `json:"reasoning_trace,omitempty"`
	ToolCalls      []ToolCallState `json:"tool_calls"`
	Sources        []SourceRef     `json:"sources,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func newMessageID() string {
	return uuid.NewString()
}

// NewUserMessage creates a user message with trimmed content
func NewUserMessage(content string) Message {
	return Message{
		ID:        newMessageID(),
		Role:      RoleUser,
		Content:   strings.TrimSpace(content),
		ToolCalls: []ToolCallState{},
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates the empty assistant message a turn streams into
func NewAssistantMessage() Message {
	return Message{
		ID:        newMessageID(),
		Role:      RoleAssistant,
		Content:   "",
		ToolCalls: []ToolCallState{},
		CreatedAt: time.Now(),
	}
}

func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

func (m Message) HasSources() bool {
	return len(m.Sources) > 0
}

// Reasoning returns the reasoning trace, or "" when none was streamed
func (m Message) Reasoning() string {
	if m.ReasoningTrace == nil {
		return ""
	}
	return *m.ReasoningTrace
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == "" && m.ReasoningTrace == nil && len(m.ToolCalls) == 0
}

// Clone returns a deep copy so that snapshots never alias live state
func (m Message) Clone() Message {
	out := m
	if m.ReasoningTrace != nil {
		trace := *m.ReasoningTrace
		out.ReasoningTrace = &trace
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCallState, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			out.ToolCalls[i] = call.Clone()
		}
	}
	if m.Sources != nil {
		out.Sources = make([]SourceRef, len(m.Sources))
		for i, src := range m.Sources {
			out.Sources[i] = src.Clone()
		}
	}
	return out
}

// Clone copies the call including its decoded input
func (c ToolCallState) Clone() ToolCallState {
	if c.Input != nil {
		c.Input = cloneValue(c.Input).(map[string]any)
	}
	return c
}

// Clone copies the reference including its score
func (r SourceRef) Clone() SourceRef {
	if r.Score != nil {
		score := *r.Score
		r.Score = &score
	}
	return r
}

// cloneValue deep-copies the maps and slices produced by JSON decoding
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
