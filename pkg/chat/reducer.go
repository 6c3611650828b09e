package chat

import (
	"github.com/killallgit/turnstream/pkg/stream"
)

// TurnState is the assistant side of a turn as seen after some prefix of
// the event stream. Values are treated as immutable snapshots.
type TurnState struct {
	Message  Message `json:"message"`
	Status   Status  `json:"status"`
	Thinking bool    `json:"thinking"`
}

// NewTurnState creates the state a turn starts in once its request is sent
func NewTurnState() TurnState {
	return TurnState{
		Message: NewAssistantMessage(),
		Status:  StatusSubmitted,
	}
}

// Reducer folds stream events into turn state
type Reducer struct {
	retrievalTools map[string]struct{}
}

// NewReducer creates a reducer that extracts citations from the named tools
func NewReducer(retrievalTools []string) *Reducer {
	set := make(map[string]struct{}, len(retrievalTools))
	for _, name := range retrievalTools {
		set[name] = struct{}{}
	}
	return &Reducer{retrievalTools: set}
}

// IsRetrievalTool reports whether output from the named tool carries citations
func (r *Reducer) IsRetrievalTool(name string) bool {
	_, ok := r.retrievalTools[name]
	return ok
}

// Reduce returns the state after applying ev to prior. prior is never modified.
// Every event kind has a defined effect; unknown and inert kinds return prior as is.
func (r *Reducer) Reduce(prior TurnState, ev stream.Event) TurnState {
	switch ev.Kind {
	case stream.KindThinking:
		next := prior
		trace := prior.Message.Reasoning() + ev.Content
		next.Message.ReasoningTrace = &trace
		next.Status = startStreaming(prior.Status)
		next.Thinking = true
		return next

	case stream.KindToolStart:
		next := prior
		next.Message.ToolCalls = appendToolCall(prior.Message.ToolCalls, ToolCallState{
			Name:   ev.Name,
			Input:  ev.Input,
			Status: ToolRunning,
		})
		next.Status = startStreaming(prior.Status)
		next.Thinking = false
		return next

	case stream.KindToolEnd:
		return r.finishTool(prior, ev)

	case stream.KindContent:
		next := prior
		next.Message.Content = prior.Message.Content + ev.Content
		next.Status = startStreaming(prior.Status)
		next.Thinking = false
		return next

	case stream.KindError:
		next := prior
		next.Message.Content = ev.Message
		next.Message.Error = ev.Message
		next.Status = StatusError
		next.Thinking = false
		return next

	case stream.KindDone:
		next := prior
		next.Status = StatusReady
		next.Thinking = false
		return next

	default:
		return prior
	}
}

// finishTool completes the most recently started running call with the same name.
// The protocol carries no call id, so correlation is by name and recency.
func (r *Reducer) finishTool(prior TurnState, ev stream.Event) TurnState {
	idx := lastRunning(prior.Message.ToolCalls, ev.Name)
	if idx < 0 {
		return prior
	}

	calls := make([]ToolCallState, len(prior.Message.ToolCalls))
	copy(calls, prior.Message.ToolCalls)

	call := calls[idx]
	if ev.Error != "" {
		call.Status = ToolError
		call.Output = ev.Error
	} else {
		call.Status = ToolCompleted
		call.Output = ev.Output
	}
	calls[idx] = call

	next := prior
	next.Message.ToolCalls = calls
	next.Status = startStreaming(prior.Status)
	next.Thinking = false

	if call.Status == ToolCompleted && r.IsRetrievalTool(call.Name) {
		if sources := ExtractSources(call.Output); len(sources) > 0 {
			next.Message.Sources = sources
		}
	}

	return next
}

func lastRunning(calls []ToolCallState, name string) int {
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Name == name && calls[i].Status == ToolRunning {
			return i
		}
	}
	return -1
}

// appendToolCall never writes into the backing array of calls
func appendToolCall(calls []ToolCallState, call ToolCallState) []ToolCallState {
	out := make([]ToolCallState, len(calls), len(calls)+1)
	copy(out, calls)
	return append(out, call)
}

func startStreaming(s Status) Status {
	if s == StatusSubmitted {
		return StatusStreaming
	}
	return s
}
