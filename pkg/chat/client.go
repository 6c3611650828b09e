package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ConversationIDHeader carries a newly assigned conversation id on the response
const ConversationIDHeader = "X-Conversation-Id"

// maxErrorBody bounds how much of a failed response body is kept
const maxErrorBody = 512

// TurnRequest is the body of one streaming turn request. Nil pointers are
// sent as JSON null.
type TurnRequest struct {
	Content        string  `json:"content"`
	ConversationID *string `json:"conversation_id"`
	Collection     *string `json:"collection"`
}

// NewTurnRequest builds a request, mapping empty ids and collections to null
func NewTurnRequest(content, conversationID, collection string) TurnRequest {
	req := TurnRequest{Content: content}
	if conversationID != "" {
		req.ConversationID = &conversationID
	}
	if collection != "" {
		req.Collection = &collection
	}
	return req
}

// TurnResponse is an open streaming response
type TurnResponse struct {
	Body           io.ReadCloser
	ConversationID string
}

// HTTPStatusError reports a non-2xx answer to a turn request
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// TurnStreamer opens the event stream for one turn
type TurnStreamer interface {
	StreamTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error)
}

// Client talks to the agent streaming endpoint
type Client struct {
	url        string
	headers    map[string]string
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint URL. A zero timeout
// leaves the stream unbounded; cancellation then comes only from the context.
func NewClient(url string, timeout time.Duration, headers map[string]string) *Client {
	return &Client{
		url:     url,
		headers: headers,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithHTTPClient creates a client using a caller-supplied http.Client
func NewClientWithHTTPClient(url string, httpClient *http.Client) *Client {
	return &Client{url: url, httpClient: httpClient}
}

// StreamTurn posts the turn and returns the open response body on success.
// The caller owns the body and must close it.
func (c *Client) StreamTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	return &TurnResponse{
		Body:           resp.Body,
		ConversationID: resp.Header.Get(ConversationIDHeader),
	}, nil
}

var _ TurnStreamer = (*Client)(nil)
