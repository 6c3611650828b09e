package process

import "github.com/killallgit/turnstream/pkg/chat"

// Activity is what the agent is visibly doing during a turn
type Activity string

const (
	// ActivityIdle indicates no turn is streaming
	ActivityIdle Activity = ""

	// ActivitySending indicates the request is sent and nothing has arrived yet
	ActivitySending Activity = "sending"

	// ActivityThinking indicates reasoning text is arriving
	ActivityThinking Activity = "thinking"

	// ActivityToolUse indicates at least one tool call is still running
	ActivityToolUse Activity = "tool"

	// ActivityReceiving indicates answer content is arriving
	ActivityReceiving Activity = "receiving"
)

// Of derives the activity shown for a turn state
func Of(state chat.TurnState) Activity {
	switch {
	case !state.Status.IsActive():
		return ActivityIdle
	case state.Status == chat.StatusSubmitted:
		return ActivitySending
	case state.Thinking:
		return ActivityThinking
	case runningTool(state.Message.ToolCalls):
		return ActivityToolUse
	default:
		return ActivityReceiving
	}
}

func runningTool(calls []chat.ToolCallState) bool {
	for _, call := range calls {
		if call.Status == chat.ToolRunning {
			return true
		}
	}
	return false
}

func (a Activity) String() string {
	return string(a)
}

// Icon returns the glyph shown next to the activity
func (a Activity) Icon() string {
	switch a {
	case ActivitySending:
		return "↑"
	case ActivityReceiving:
		return "↓"
	case ActivityToolUse:
		return "🔨"
	case ActivityThinking:
		return "🤔"
	default:
		return ""
	}
}

// Label returns a human-readable name for the activity
func (a Activity) Label() string {
	switch a {
	case ActivitySending:
		return "Sending"
	case ActivityReceiving:
		return "Receiving"
	case ActivityThinking:
		return "Thinking"
	case ActivityToolUse:
		return "Using tools"
	case ActivityIdle:
		return "Idle"
	default:
		return ""
	}
}
