package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/killallgit/turnstream/pkg/chat"
	"github.com/killallgit/turnstream/pkg/stream"
)

// ErrSimulatedDrop is the transport error a FakeAgent injects by default
var ErrSimulatedDrop = errors.New("simulated connection drop")

// Frame renders an event as one `data:` line
func Frame(ev stream.Event) string {
	payload, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	return stream.DataPrefix + " " + string(payload)
}

// Frames renders events as `data:` lines
func Frames(events ...stream.Event) []string {
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = Frame(ev)
	}
	return lines
}

// FakeAgent implements chat.TurnStreamer by streaming scripted lines
type FakeAgent struct {
	mu             sync.Mutex
	script         []string
	queued         [][]string
	requests       []chat.TurnRequest
	conversationID string
	openErr        error

	chunkDelay time.Duration // Delay between chunks
	chunkSize  int           // Bytes per chunk
	failAfter  int           // Fail after N chunks (0 = no failure)
	failErr    error
	holdOpen   bool // Keep the body open after the script until cancelled
}

// NewFakeAgent creates a fake agent answering every turn with lines
func NewFakeAgent(lines ...string) *FakeAgent {
	return &FakeAgent{
		script:    lines,
		chunkSize: 7,
	}
}

// QueueTurn scripts the answer of the next turn; queued turns are used before the default script
func (a *FakeAgent) QueueTurn(lines ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queued = append(a.queued, lines)
}

// SetChunkDelay sets the delay between chunks
func (a *FakeAgent) SetChunkDelay(delay time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunkDelay = delay
}

// SetChunkSize sets the number of bytes per chunk
func (a *FakeAgent) SetChunkSize(size int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunkSize = size
}

// SetFailAfter breaks the body with err after N chunks; a nil err selects ErrSimulatedDrop
func (a *FakeAgent) SetFailAfter(chunks int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		err = ErrSimulatedDrop
	}
	a.failAfter = chunks
	a.failErr = err
}

// SetOpenError makes StreamTurn fail before any body is returned
func (a *FakeAgent) SetOpenError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openErr = err
}

// SetConversationID sets the id returned with every response
func (a *FakeAgent) SetConversationID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversationID = id
}

// HoldOpen keeps each body open after its script until the turn is cancelled
func (a *FakeAgent) HoldOpen(hold bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.holdOpen = hold
}

// Requests returns every request received so far
func (a *FakeAgent) Requests() []chat.TurnRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]chat.TurnRequest(nil), a.requests...)
}

// StreamTurn implements chat.TurnStreamer
func (a *FakeAgent) StreamTurn(ctx context.Context, req chat.TurnRequest) (*chat.TurnResponse, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	if a.openErr != nil {
		err := a.openErr
		a.mu.Unlock()
		return nil, err
	}

	script := a.script
	if len(a.queued) > 0 {
		script = a.queued[0]
		a.queued = a.queued[1:]
	}

	var payload []byte
	if len(script) > 0 {
		payload = []byte(strings.Join(script, "\n") + "\n")
	}

	w := writer{
		payload:    payload,
		chunkSize:  a.chunkSize,
		chunkDelay: a.chunkDelay,
		failAfter:  a.failAfter,
		failErr:    a.failErr,
		holdOpen:   a.holdOpen,
	}
	conversationID := a.conversationID
	a.mu.Unlock()

	pr, pw := io.Pipe()
	go w.run(ctx, pw)

	return &chat.TurnResponse{Body: pr, ConversationID: conversationID}, nil
}

// writer feeds one scripted body into a pipe
type writer struct {
	payload    []byte
	chunkSize  int
	chunkDelay time.Duration
	failAfter  int
	failErr    error
	holdOpen   bool
}

func (w writer) run(ctx context.Context, pw *io.PipeWriter) {
	size := w.chunkSize
	if size <= 0 {
		size = len(w.payload)
	}

	chunkCount := 0
	for i := 0; i < len(w.payload); i += size {
		chunkCount++
		if w.failAfter > 0 && chunkCount > w.failAfter {
			pw.CloseWithError(w.failErr)
			return
		}

		if w.chunkDelay > 0 {
			select {
			case <-time.After(w.chunkDelay):
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
		}

		end := i + size
		if end > len(w.payload) {
			end = len(w.payload)
		}
		if _, err := pw.Write(w.payload[i:end]); err != nil {
			// Reader closed the body
			return
		}
	}

	if w.holdOpen {
		<-ctx.Done()
		pw.CloseWithError(ctx.Err())
		return
	}
	pw.Close()
}

var _ chat.TurnStreamer = (*FakeAgent)(nil)
