package headless

import (
	"strings"
	"sync"

	"github.com/killallgit/turnstream/pkg/chat"
	"github.com/killallgit/turnstream/pkg/controllers"
)

// snapshotPrinter turns successive turn snapshots into incremental console output.
// It remembers how much of each field it already printed and writes only the new part.
type snapshotPrinter struct {
	out          *Output
	showThinking bool

	mu          sync.Mutex
	turnID      string
	printed     string
	traceLen    int
	toolsSeen   int
	toolsClosed map[int]bool
	inThinking  bool
	final       bool
}

// newSnapshotPrinter creates a printer for one session
func newSnapshotPrinter(out *Output, showThinking bool) *snapshotPrinter {
	return &snapshotPrinter{
		out:          out,
		showThinking: showThinking,
		toolsClosed:  make(map[int]bool),
	}
}

// OnUpdate renders the difference between snap and what was already printed
func (p *snapshotPrinter) OnUpdate(snap controllers.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.TurnID != p.turnID {
		p.reset(snap.TurnID)
	}
	if p.final {
		return
	}

	msg := snap.State.Message

	if p.showThinking {
		trace := msg.Reasoning()
		if len(trace) > p.traceLen {
			p.out.Thinking(trace[p.traceLen:])
			p.traceLen = len(trace)
			p.inThinking = true
		}
	}

	for i, call := range msg.ToolCalls {
		if i >= p.toolsSeen {
			p.breakThinking()
			p.out.ToolStarted(call)
			p.toolsSeen = i + 1
		}
		if call.Status != chat.ToolRunning && !p.toolsClosed[i] {
			p.breakThinking()
			p.out.ToolFinished(call)
			p.toolsClosed[i] = true
		}
	}

	// A failed turn's content is reported by finish, not streamed
	failed := snap.Final && snap.State.Status == chat.StatusError
	if !failed && strings.HasPrefix(msg.Content, p.printed) {
		if delta := msg.Content[len(p.printed):]; delta != "" {
			p.breakThinking()
			p.out.Text(delta)
			p.printed = msg.Content
		}
	}

	if snap.Final {
		p.finish(snap)
	}
}

func (p *snapshotPrinter) finish(snap controllers.Snapshot) {
	p.final = true
	msg := snap.State.Message

	p.breakThinking()
	if p.printed != "" {
		p.out.Text("\n")
	}

	switch {
	case snap.Cancelled:
		p.out.Notice("[cancelled]")
	case snap.State.Status == chat.StatusError && msg.Content != p.printed:
		p.out.Error(msg.Content)
	case snap.State.Status == chat.StatusError:
		p.out.Error("stream interrupted: " + msg.Error)
	}

	p.out.Sources(msg.Sources)
}

func (p *snapshotPrinter) breakThinking() {
	if p.inThinking {
		p.out.Text("\n")
		p.inThinking = false
	}
}

func (p *snapshotPrinter) reset(turnID string) {
	p.turnID = turnID
	p.printed = ""
	p.traceLen = 0
	p.toolsSeen = 0
	p.toolsClosed = make(map[int]bool)
	p.inThinking = false
	p.final = false
}
