package chat_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/killallgit/turnstream/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		received map[string]any
		headers  http.Header
		handler  http.HandlerFunc
	)

	BeforeEach(func() {
		received = nil
		headers = nil
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(chat.ConversationIDHeader, "conv-1")
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, "data: {\"type\":\"done\"}\n\n")
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers = r.Header.Clone()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("should send nulls for a new conversation without collection", func() {
		client := chat.NewClient(server.URL, time.Second, map[string]string{"Authorization": "Bearer t"})

		resp, err := client.StreamTurn(context.Background(), chat.NewTurnRequest("Hi", "", ""))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(received).To(HaveKeyWithValue("content", "Hi"))
		Expect(received).To(HaveKeyWithValue("conversation_id", BeNil()))
		Expect(received).To(HaveKeyWithValue("collection", BeNil()))
		Expect(headers.Get("Accept")).To(Equal("text/event-stream"))
		Expect(headers.Get("Content-Type")).To(Equal("application/json"))
		Expect(headers.Get("Authorization")).To(Equal("Bearer t"))

		Expect(resp.ConversationID).To(Equal("conv-1"))
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`"type":"done"`))
	})

	It("should send the conversation id and collection when set", func() {
		client := chat.NewClient(server.URL, 0, nil)

		resp, err := client.StreamTurn(context.Background(), chat.NewTurnRequest("Again", "conv-1", "handbook"))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(received).To(HaveKeyWithValue("conversation_id", "conv-1"))
		Expect(received).To(HaveKeyWithValue("collection", "handbook"))
	})

	It("should return an HTTPStatusError for non-2xx answers", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, "  upstream down\n"+strings.Repeat("x", 2048))
		}
		client := chat.NewClient(server.URL, time.Second, nil)

		resp, err := client.StreamTurn(context.Background(), chat.NewTurnRequest("Hi", "", ""))
		Expect(resp).To(BeNil())

		var statusErr *chat.HTTPStatusError
		Expect(err).To(BeAssignableToTypeOf(statusErr))
		statusErr = err.(*chat.HTTPStatusError)
		Expect(statusErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
		Expect(statusErr.Body).To(HavePrefix("upstream down"))
		Expect(len(statusErr.Body)).To(BeNumerically("<=", 512))
		Expect(statusErr.Error()).To(ContainSubstring("503"))
	})

	It("should fail when the agent is unreachable", func() {
		url := server.URL
		server.Close()

		client := chat.NewClient(url, time.Second, nil)
		_, err := client.StreamTurn(context.Background(), chat.NewTurnRequest("Hi", "", ""))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("request failed"))
	})

	It("should honor a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := chat.NewClientWithHTTPClient(server.URL, http.DefaultClient)
		_, err := client.StreamTurn(ctx, chat.NewTurnRequest("Hi", "", ""))
		Expect(err).To(MatchError(context.Canceled))
	})
})
