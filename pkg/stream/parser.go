package stream

import (
	"encoding/json"
	"strings"

	"github.com/killallgit/turnstream/pkg/logger"
)

const (
	// DataPrefix marks a line carrying a JSON event payload
	DataPrefix = "data:"

	// EventPrefix names the kind of the next payload line (SSE style framing)
	EventPrefix = "event:"
)

// wirePayload is the JSON shape shared by every event kind
type wirePayload struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Output  json.RawMessage `json:"output"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Parser turns raw stream lines into typed events.
// It remembers a pending `event:` name between lines, so one Parser must be
// used per stream and never shared.
type Parser struct {
	pendingKind Kind
	dropped     int
}

// NewParser creates a parser for a single stream
func NewParser() *Parser {
	return &Parser{}
}

// Dropped returns how many candidate payload lines were rejected so far
func (p *Parser) Dropped() int {
	return p.dropped
}

// Parse classifies one line. The boolean is false when the line is not an
// event: blank lines, comments, event-name lines and rejected payloads.
func (p *Parser) Parse(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "":
		// A blank line ends an SSE event block
		p.pendingKind = ""
		return Event{}, false

	case strings.HasPrefix(trimmed, ":"):
		return Event{}, false

	case strings.HasPrefix(trimmed, EventPrefix):
		p.pendingKind = Kind(strings.TrimSpace(strings.TrimPrefix(trimmed, EventPrefix)))
		return Event{}, false

	case strings.HasPrefix(trimmed, DataPrefix):
		return p.decode(strings.TrimSpace(strings.TrimPrefix(trimmed, DataPrefix)))

	case p.pendingKind != "" && strings.HasPrefix(trimmed, "{"):
		return p.decode(trimmed)

	default:
		return Event{}, false
	}
}

func (p *Parser) decode(payload string) (Event, bool) {
	kind := p.pendingKind
	p.pendingKind = ""

	var wire wirePayload
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		p.reject("malformed payload: %v", err)
		return Event{}, false
	}

	if wire.Type != "" {
		kind = Kind(wire.Type)
	}
	if !kind.IsKnown() {
		p.reject("unknown event kind %q", kind)
		return Event{}, false
	}

	ev := Event{Kind: kind}
	switch kind {
	case KindThinking, KindContent:
		ev.Content = wire.Content
	case KindToolStart, KindToolCall:
		if wire.Name == "" {
			p.reject("%s without tool name", kind)
			return Event{}, false
		}
		ev.Name = wire.Name
		ev.Input = decodeInput(wire.Input)
	case KindToolEnd:
		if wire.Name == "" {
			p.reject("%s without tool name", kind)
			return Event{}, false
		}
		ev.Name = wire.Name
		ev.Output = decodeOutput(wire.Output)
		ev.Error = wire.Error
	case KindError:
		ev.Message = wire.Message
		if ev.Message == "" {
			ev.Message = wire.Error
		}
	}

	return ev, true
}

func (p *Parser) reject(format string, args ...any) {
	p.dropped++
	logger.Debug("dropping stream frame: "+format, args...)
}

// decodeInput accepts an object; any other JSON value is kept under "raw"
func decodeInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err == nil {
		return input
	}
	return map[string]any{"raw": string(raw)}
}

// decodeOutput accepts a JSON string; any other value is kept as its JSON text
func decodeOutput(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var out string
	if err := json.Unmarshal(raw, &out); err == nil {
		return out
	}
	return string(raw)
}
