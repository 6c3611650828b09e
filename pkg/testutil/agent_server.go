package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/killallgit/turnstream/pkg/chat"
)

// AgentServer is an HTTP agent endpoint serving scripted event streams
type AgentServer struct {
	*httptest.Server

	mu             sync.Mutex
	script         []string
	status         int
	conversationID string
	requests       []chat.TurnRequest
}

// NewAgentServer starts a server answering every turn with lines, one flush per line
func NewAgentServer(lines ...string) *AgentServer {
	s := &AgentServer{script: lines, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetScript replaces the lines served for later turns
func (s *AgentServer) SetScript(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = lines
}

// SetStatus makes the server answer with status; non-2xx answers carry a short body
func (s *AgentServer) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetConversationID sets the id header sent with every stream
func (s *AgentServer) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

// Requests returns every decoded request received so far
func (s *AgentServer) Requests() []chat.TurnRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.TurnRequest(nil), s.requests...)
}

func (s *AgentServer) handle(w http.ResponseWriter, r *http.Request) {
	var req chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	script := s.script
	status := s.status
	conversationID := s.conversationID
	s.mu.Unlock()

	if status < 200 || status > 299 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	if conversationID != "" {
		w.Header().Set(chat.ConversationIDHeader, conversationID)
	}
	w.WriteHeader(status)

	flusher, _ := w.(http.Flusher)
	for _, line := range script {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
