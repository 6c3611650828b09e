package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/turnstream/pkg/chat"
	"github.com/killallgit/turnstream/pkg/logger"
	"github.com/killallgit/turnstream/pkg/process"
	"github.com/killallgit/turnstream/pkg/stream"
	"github.com/killallgit/turnstream/pkg/stream/core"
)

const (
	// ConnectivityMessage replaces the content of a turn that never received a byte
	ConnectivityMessage = "Unable to reach the assistant. Please check your connection and try again."

	// ServiceFailureMessage replaces the content of a turn rejected by the service
	ServiceFailureMessage = "The assistant service could not handle this request. Please try again later."
)

// statsRetention is how long counters of finished turns stay queryable
const statsRetention = 30 * time.Minute

// ErrEmptyTurn is returned when starting a turn without text
var ErrEmptyTurn = errors.New("message content cannot be empty")

// Snapshot is the observable state of a turn after a fold or a terminal transition
type Snapshot struct {
	TurnID         string
	ConversationID string
	State          chat.TurnState
	Activity       process.Activity
	Cancelled      bool
	Final          bool
}

// SessionOptions configures a Session
type SessionOptions struct {
	Collection     string
	RetrievalTools []string
	ReadBufferSize int

	// IdleTimeout cancels a turn that receives no bytes for this long; zero disables it
	IdleTimeout time.Duration

	// Callbacks run on the goroutine that caused the change while the session
	// lock is held. They must not call back into the Session.
	OnUpdate func(Snapshot)
	OnError  func(turnID string, err error)
	OnFinish func(turnID string, msg chat.Message)
}

// Turn is the handle of one in-flight or finished turn
type Turn struct {
	ID string

	request chat.TurnRequest
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	bytes   atomic.Int64

	// guarded by Session.mu
	state       chat.TurnState
	finished    bool
	cancelled   bool
	errReported bool
	idle        *time.Timer
}

// Done is closed once the turn's stream goroutine has exited
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn's stream goroutine has exited
func (t *Turn) Wait() {
	<-t.done
}

// Session drives one conversation: at most one turn streams at a time, and
// every event is folded through a single entry point.
type Session struct {
	client       chat.TurnStreamer
	conversation *chat.Conversation
	reducer      *chat.Reducer
	tracker      *core.Tracker
	opts         SessionOptions

	mu     sync.Mutex
	active *Turn
	wg     sync.WaitGroup
}

// NewSession creates a session streaming turns of conversation through client
func NewSession(client chat.TurnStreamer, conversation *chat.Conversation, opts SessionOptions) *Session {
	if conversation == nil {
		conversation = chat.NewConversation()
	}
	retrieval := opts.RetrievalTools
	if retrieval == nil {
		retrieval = []string{"rag"}
	}
	return &Session{
		client:       client,
		conversation: conversation,
		reducer:      chat.NewReducer(retrieval),
		tracker:      core.NewTracker(),
		opts:         opts,
	}
}

// Conversation returns the store the session appends turns to
func (s *Session) Conversation() *chat.Conversation {
	return s.conversation
}

// Stats returns the stream counters recorded for a turn
func (s *Session) Stats(turnID string) (core.StreamInfo, bool) {
	return s.tracker.GetStreamInfo(turnID)
}

// State reports the controller state: the active turn's status, or idle
func (s *Session) State() core.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return core.StateIdle
	}
	return stateOf(s.active.state.Status)
}

// Start begins a new turn. Any active turn is cancelled first, so only the
// most recent turn can ever fold events.
func (s *Session) Start(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTurn
	}

	s.mu.Lock()
	if s.active != nil {
		logger.Info("Superseding turn %s", s.active.ID)
		s.cancelLocked(s.active)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	turnID := uuid.NewString()
	record := s.conversation.Begin(turnID, text)
	turn := &Turn{
		ID:      turnID,
		request: chat.NewTurnRequest(text, s.conversation.ConversationID(), s.opts.Collection),
		ctx:     turnCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   record.State(),
	}
	s.active = turn
	s.tracker.Cleanup(statsRetention)
	s.tracker.StartStream(turnID)
	s.armIdleLocked(turn)
	s.publishLocked(turn)
	s.mu.Unlock()

	logger.Debug("Starting turn %s (conversation %q)", turnID, s.conversation.ConversationID())

	s.wg.Add(1)
	go s.run(turn)

	return turn, nil
}

// Cancel stops the active turn, keeping whatever was folded so far.
// It is a no-op when no turn is active.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.cancelLocked(s.active)
	}
}

// Wait blocks until every turn goroutine started by this session has exited
func (s *Session) Wait() {
	s.wg.Wait()
}

// Clear cancels any active turn and starts a brand-new conversation
func (s *Session) Clear() {
	s.Cancel()
	s.conversation.Clear()
}

// Snapshot returns the current observable state of turn
func (s *Session) Snapshot(turn *Turn) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(turn)
}

// Fold applies one event to turn. It returns false, leaving the turn untouched,
// once the turn has finished for any reason, including cancellation.
func (s *Session) Fold(turn *Turn, ev stream.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.finished {
		return false
	}

	before := process.Of(turn.state)
	turn.state = s.reducer.Reduce(turn.state, ev)
	s.tracker.CountEvent(turn.ID)
	if after := process.Of(turn.state); after != before {
		logger.Debug("Turn %s: %s -> %s", turn.ID, before.Label(), after.Label())
	}
	if err := s.conversation.Update(turn.ID, turn.state); err != nil {
		logger.Warn("Failed to update turn %s: %v", turn.ID, err)
	}

	switch ev.Kind {
	case stream.KindError:
		s.finishLocked(turn, chat.StatusError, false)
		s.tracker.SetError(turn.ID, errors.New(ev.Message))
		s.reportLocked(turn, &BackendError{Message: ev.Message})
	case stream.KindDone:
		s.finishLocked(turn, chat.StatusReady, false)
		s.tracker.UpdateState(turn.ID, core.StateReady)
	default:
		s.tracker.UpdateState(turn.ID, stateOf(turn.state.Status))
	}

	s.publishLocked(turn)

	if ev.Kind == stream.KindDone && s.opts.OnFinish != nil {
		s.opts.OnFinish(turn.ID, turn.state.Message.Clone())
	}

	return true
}

// BackendError is an error event reported by the agent service
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("agent reported an error: %s", e.Message)
}

func (s *Session) run(turn *Turn) {
	defer s.wg.Done()
	defer close(turn.done)
	defer turn.cancel()

	resp, err := s.client.StreamTurn(turn.ctx, turn.request)
	if err != nil {
		s.abort(turn, err)
		return
	}
	defer resp.Body.Close()

	if !s.adoptConversationID(turn, resp.ConversationID) {
		return
	}

	reader := stream.NewFrameReader(resp.Body, s.opts.ReadBufferSize)
	reader.OnChunk(func(n int) {
		turn.bytes.Add(int64(n))
		s.tracker.AddBytes(turn.ID, n)
		s.touchIdle(turn)
	})

	parser := stream.NewParser()
	defer func() {
		s.tracker.SetDropped(turn.ID, parser.Dropped())
	}()

	for {
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			s.complete(turn)
			return
		}
		if err != nil {
			s.abort(turn, err)
			return
		}

		ev, ok := parser.Parse(line)
		if !ok {
			continue
		}
		if !s.Fold(turn, ev) || ev.Kind.IsTerminal() {
			return
		}
	}
}

// adoptConversationID records the server-assigned id unless turn already
// finished, so a response arriving after Clear or supersession cannot
// resurrect a forgotten conversation. It reports whether turn is still live.
func (s *Session) adoptConversationID(turn *Turn, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.finished {
		return false
	}
	if id != "" && s.conversation.SetConversationID(id) {
		logger.Debug("Conversation id assigned: %s", id)
	}
	return true
}

// abort ends a turn whose transport returned err. An error caused by the
// turn's context ending is a cancellation, not a failure.
func (s *Session) abort(turn *Turn, err error) {
	if turn.ctx.Err() != nil {
		s.mu.Lock()
		s.cancelLocked(turn)
		s.mu.Unlock()
		return
	}
	s.fail(turn, err)
}

// complete finalizes a turn whose body ended without a done event
func (s *Session) complete(turn *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.finished {
		return
	}

	s.finishLocked(turn, chat.StatusReady, false)
	s.tracker.UpdateState(turn.ID, core.StateReady)
	s.publishLocked(turn)

	if s.opts.OnFinish != nil {
		s.opts.OnFinish(turn.ID, turn.state.Message.Clone())
	}
}

// fail finalizes a turn after a transport failure. Content already streamed
// is kept; the failure is recorded only in the message's Error field.
func (s *Session) fail(turn *Turn, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.finished {
		return
	}

	msg := turn.state.Message
	var statusErr *chat.HTTPStatusError
	switch {
	case errors.As(err, &statusErr):
		msg.Content = ServiceFailureMessage
	case turn.bytes.Load() == 0:
		msg.Content = ConnectivityMessage
	}
	msg.Error = err.Error()
	turn.state.Message = msg

	logger.Error("Turn %s failed: %v", turn.ID, err)

	s.finishLocked(turn, chat.StatusError, false)
	s.tracker.SetError(turn.ID, err)
	s.reportLocked(turn, err)
	s.publishLocked(turn)
}

func (s *Session) cancelLocked(turn *Turn) {
	if turn.finished {
		return
	}
	logger.Info("Cancelling turn %s", turn.ID)
	s.finishLocked(turn, chat.StatusReady, true)
	s.tracker.UpdateState(turn.ID, core.StateCancelled)
	s.publishLocked(turn)
}

// finishLocked freezes turn; after it no fold is accepted
func (s *Session) finishLocked(turn *Turn, status chat.Status, cancelled bool) {
	turn.finished = true
	turn.cancelled = cancelled
	turn.state.Status = status
	turn.state.Thinking = false

	if turn.idle != nil {
		turn.idle.Stop()
	}

	if err := s.conversation.Update(turn.ID, turn.state); err != nil {
		logger.Warn("Failed to update turn %s: %v", turn.ID, err)
	}
	if err := s.conversation.Finalize(turn.ID, status, cancelled); err != nil {
		logger.Warn("Failed to finalize turn %s: %v", turn.ID, err)
	}

	if s.active == turn {
		s.active = nil
	}

	// Abort the transport; a read in flight returns and its bytes are ignored
	turn.cancel()
}

func (s *Session) reportLocked(turn *Turn, err error) {
	if turn.errReported {
		return
	}
	turn.errReported = true
	if s.opts.OnError != nil {
		s.opts.OnError(turn.ID, err)
	}
}

func (s *Session) publishLocked(turn *Turn) {
	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(s.snapshotLocked(turn))
	}
}

func (s *Session) snapshotLocked(turn *Turn) Snapshot {
	return Snapshot{
		TurnID:         turn.ID,
		ConversationID: s.conversation.ConversationID(),
		State: chat.TurnState{
			Message:  turn.state.Message.Clone(),
			Status:   turn.state.Status,
			Thinking: turn.state.Thinking,
		},
		Activity:  process.Of(turn.state),
		Cancelled: turn.cancelled,
		Final:     turn.finished,
	}
}

func (s *Session) armIdleLocked(turn *Turn) {
	if s.opts.IdleTimeout <= 0 {
		return
	}
	turn.idle = time.AfterFunc(s.opts.IdleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !turn.finished {
			logger.Warn("Turn %s idle for %s, cancelling", turn.ID, s.opts.IdleTimeout)
			s.cancelLocked(turn)
		}
	})
}

func (s *Session) touchIdle(turn *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.idle != nil && !turn.finished {
		turn.idle.Reset(s.opts.IdleTimeout)
	}
}

func stateOf(status chat.Status) core.State {
	switch status {
	case chat.StatusSubmitted:
		return core.StateSubmitted
	case chat.StatusStreaming:
		return core.StateStreaming
	case chat.StatusError:
		return core.StateError
	default:
		return core.StateReady
	}
}
