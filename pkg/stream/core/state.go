package core

import (
	"sync"
	"time"
)

// State represents the controller-level state of a stream
type State int

const (
	StateIdle State = iota
	StateSubmitted
	StateStreaming
	StateReady
	StateError
	StateCancelled
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitted:
		return "submitted"
	case StateStreaming:
		return "streaming"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen
func (s State) IsTerminal() bool {
	return s == StateReady || s == StateError || s == StateCancelled
}

// Tracker tracks the state and counters of multiple streams
type Tracker struct {
	states map[string]*StreamInfo
	mu     sync.RWMutex
}

// StreamInfo holds information about a stream
type StreamInfo struct {
	ID            string
	State         State
	StartTime     time.Time
	EndTime       time.Time
	Error         error
	BytesReceived int64
	Events        int
	Dropped       int
}

// Duration returns how long the stream ran, or has been running
func (i StreamInfo) Duration() time.Duration {
	if i.EndTime.IsZero() {
		return time.Since(i.StartTime)
	}
	return i.EndTime.Sub(i.StartTime)
}

// NewTracker creates a new state tracker
func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[string]*StreamInfo),
	}
}

// StartStream marks a stream as submitted
func (t *Tracker) StartStream(streamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states[streamID] = &StreamInfo{
		ID:        streamID,
		State:     StateSubmitted,
		StartTime: time.Now(),
	}
}

// UpdateState moves a stream to state; terminal states are final
func (t *Tracker) UpdateState(streamID string, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.states[streamID]
	if !exists || info.State.IsTerminal() {
		return
	}
	info.State = state
	if state.IsTerminal() {
		info.EndTime = time.Now()
	}
}

// SetError records err and moves a live stream to the error state
func (t *Tracker) SetError(streamID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.states[streamID]
	if !exists || info.State.IsTerminal() {
		return
	}
	info.Error = err
	info.State = StateError
	info.EndTime = time.Now()
}

// AddBytes counts bytes received on a stream
func (t *Tracker) AddBytes(streamID string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if info, exists := t.states[streamID]; exists {
		info.BytesReceived += int64(n)
	}
}

// CountEvent counts one folded event
func (t *Tracker) CountEvent(streamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if info, exists := t.states[streamID]; exists {
		info.Events++
	}
}

// SetDropped records how many frames the parser rejected
func (t *Tracker) SetDropped(streamID string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if info, exists := t.states[streamID]; exists {
		info.Dropped = n
	}
}

// GetState returns the current state of a stream
func (t *Tracker) GetState(streamID string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if info, exists := t.states[streamID]; exists {
		return info.State, true
	}
	return StateIdle, false
}

// GetStreamInfo returns a copy of the information about a stream
func (t *Tracker) GetStreamInfo(streamID string) (StreamInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.states[streamID]
	if !exists {
		return StreamInfo{}, false
	}
	return *info, true
}

// Cleanup removes finished streams that ended more than olderThan ago
func (t *Tracker) Cleanup(olderThan time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for id, info := range t.states {
		if info.State.IsTerminal() && now.Sub(info.EndTime) > olderThan {
			delete(t.states, id)
		}
	}
}
