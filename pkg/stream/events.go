package stream

// Kind identifies the type of an event carried on the agent stream
type Kind string

const (
	KindThinking  Kind = "thinking"
	KindToolStart Kind = "tool_start"
	KindToolEnd   Kind = "tool_end"
	KindContent   Kind = "content"
	KindError     Kind = "error"
	KindDone      Kind = "done"

	// KindToolCall is accepted on the wire but carries no state change yet
	KindToolCall Kind = "tool_call"
)

// IsKnown reports whether k belongs to the closed set of event kinds
func (k Kind) IsKnown() bool {
	switch k {
	case KindThinking, KindToolStart, KindToolEnd, KindContent, KindError, KindDone, KindToolCall:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether an event of this kind ends the turn
func (k Kind) IsTerminal() bool {
	return k == KindError || k == KindDone
}

// Event is one validated event from the stream. Only the fields relevant
// to Kind are populated.
type Event struct {
	Kind    Kind           `json:"type"`
	Content string         `json:"content,omitempty"`
	Name    string         `json:"name,omitempty"`
	Input   map[string]any `json:"input,omitempty"`
	Output  string         `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Thinking creates a thinking event
func Thinking(content string) Event {
	return Event{Kind: KindThinking, Content: content}
}

// Content creates a content event
func Content(content string) Event {
	return Event{Kind: KindContent, Content: content}
}

// ToolStart creates a tool_start event
func ToolStart(name string, input map[string]any) Event {
	return Event{Kind: KindToolStart, Name: name, Input: input}
}

// ToolEnd creates a tool_end event
func ToolEnd(name, output string) Event {
	return Event{Kind: KindToolEnd, Name: name, Output: output}
}

// ToolFailed creates a tool_end event reporting a failed tool run
func ToolFailed(name, errMsg string) Event {
	return Event{Kind: KindToolEnd, Name: name, Error: errMsg}
}

// Failure creates a backend error event
func Failure(message string) Event {
	return Event{Kind: KindError, Message: message}
}

// Done creates a done event
func Done() Event {
	return Event{Kind: KindDone}
}
