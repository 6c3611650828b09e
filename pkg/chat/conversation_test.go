package chat_test

import (
	"os"
	"path/filepath"

	"github.com/killallgit/turnstream/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func answered(content string) chat.TurnState {
	state := chat.NewTurnState()
	state.Message.Content = content
	state.Status = chat.StatusStreaming
	return state
}

var _ = Describe("Conversation", func() {
	var conv *chat.Conversation

	BeforeEach(func() {
		conv = chat.NewConversation()
	})

	It("should start empty", func() {
		Expect(conv.Len()).To(Equal(0))
		Expect(conv.ConversationID()).To(BeEmpty())
		_, ok := conv.Active()
		Expect(ok).To(BeFalse())
		_, ok = conv.Last()
		Expect(ok).To(BeFalse())
	})

	It("should begin a live turn with a pending assistant message", func() {
		turn := conv.Begin("t1", "  Hello  ")

		Expect(turn.ID).To(Equal("t1"))
		Expect(turn.User.Content).To(Equal("Hello"))
		Expect(turn.Assistant.IsAssistant()).To(BeTrue())
		Expect(turn.Status).To(Equal(chat.StatusSubmitted))
		Expect(turn.Finalized).To(BeFalse())

		active, ok := conv.Active()
		Expect(ok).To(BeTrue())
		Expect(active.ID).To(Equal("t1"))
	})

	It("should update and finalize the live turn", func() {
		conv.Begin("t1", "Hi")
		Expect(conv.Update("t1", answered("Hello"))).To(Succeed())
		Expect(conv.Finalize("t1", chat.StatusReady, false)).To(Succeed())

		turn, ok := conv.Get("t1")
		Expect(ok).To(BeTrue())
		Expect(turn.Assistant.Content).To(Equal("Hello"))
		Expect(turn.Status).To(Equal(chat.StatusReady))
		Expect(turn.Finalized).To(BeTrue())
		Expect(turn.EndedAt).NotTo(BeZero())

		_, ok = conv.Active()
		Expect(ok).To(BeFalse())
	})

	It("should freeze finalized turns", func() {
		conv.Begin("t1", "Hi")
		Expect(conv.Update("t1", answered("partial"))).To(Succeed())
		Expect(conv.Finalize("t1", chat.StatusReady, true)).To(Succeed())

		Expect(conv.Update("t1", answered("late"))).To(MatchError(chat.ErrTurnFrozen))
		Expect(conv.Finalize("t1", chat.StatusError, false)).To(MatchError(chat.ErrTurnFrozen))

		turn, _ := conv.Get("t1")
		Expect(turn.Assistant.Content).To(Equal("partial"))
		Expect(turn.Cancelled).To(BeTrue())
		Expect(turn.Thinking).To(BeFalse())
	})

	It("should only let the newest turn change", func() {
		conv.Begin("t1", "first")
		conv.Begin("t2", "second")

		Expect(conv.Update("t1", answered("stale"))).To(MatchError(chat.ErrTurnFrozen))
		Expect(conv.Update("t2", answered("fresh"))).To(Succeed())
		Expect(conv.Update("nope", answered("x"))).To(MatchError(chat.ErrUnknownTurn))
	})

	It("should hand out snapshots that do not alias the store", func() {
		conv.Begin("t1", "Hi")
		state := answered("Hello")
		state.Message.ToolCalls = []chat.ToolCallState{{Name: "rag", Status: chat.ToolRunning}}
		Expect(conv.Update("t1", state)).To(Succeed())

		state.Message.ToolCalls[0].Status = chat.ToolError
		snap, _ := conv.Last()
		snap.Assistant.ToolCalls[0].Name = "changed"

		again, _ := conv.Last()
		Expect(again.Assistant.ToolCalls[0].Name).To(Equal("rag"))
		Expect(again.Assistant.ToolCalls[0].Status).To(Equal(chat.ToolRunning))
	})

	It("should flatten messages in display order", func() {
		conv.Begin("t1", "Q1")
		Expect(conv.Update("t1", answered("A1"))).To(Succeed())
		Expect(conv.Finalize("t1", chat.StatusReady, false)).To(Succeed())
		conv.Begin("t2", "Q2")

		msgs := conv.Messages()
		Expect(msgs).To(HaveLen(4))
		Expect(msgs[0].Content).To(Equal("Q1"))
		Expect(msgs[1].Content).To(Equal("A1"))
		Expect(msgs[2].Content).To(Equal("Q2"))
		Expect(msgs[3].IsAssistant()).To(BeTrue())
		Expect(conv.Turns()).To(HaveLen(2))
	})

	Describe("SetConversationID", func() {
		It("should keep the first id", func() {
			Expect(conv.SetConversationID("")).To(BeFalse())
			Expect(conv.SetConversationID("c1")).To(BeTrue())
			Expect(conv.SetConversationID("c2")).To(BeFalse())
			Expect(conv.ConversationID()).To(Equal("c1"))
		})
	})

	Describe("Clear", func() {
		It("should drop turns and the conversation id", func() {
			conv.SetConversationID("c1")
			conv.Begin("t1", "Hi")
			conv.Clear()

			Expect(conv.Len()).To(Equal(0))
			Expect(conv.ConversationID()).To(BeEmpty())
			Expect(conv.SetConversationID("c2")).To(BeTrue())
		})
	})

	Describe("history", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "nested", "conversation.json")
		})

		It("should save finalized turns and load them back", func() {
			conv.SetConversationID("c1")
			conv.Begin("t1", "Q1")
			state := answered("A1")
			state.Message.Sources = []chat.SourceRef{{DocumentName: "a.md", Content: "alpha", Score: score(0.5)}}
			Expect(conv.Update("t1", state)).To(Succeed())
			Expect(conv.Finalize("t1", chat.StatusReady, false)).To(Succeed())
			conv.Begin("t2", "still streaming")

			Expect(conv.SaveHistory(path)).To(Succeed())

			loaded := chat.NewConversation()
			Expect(loaded.LoadHistory(path)).To(Succeed())
			Expect(loaded.ConversationID()).To(Equal("c1"))
			Expect(loaded.Len()).To(Equal(1))

			turn, _ := loaded.Last()
			Expect(turn.User.Content).To(Equal("Q1"))
			Expect(turn.Assistant.Content).To(Equal("A1"))
			Expect(turn.Assistant.Sources).To(HaveLen(1))
			Expect(*turn.Assistant.Sources[0].Score).To(Equal(0.5))
			Expect(turn.Finalized).To(BeTrue())

			Expect(loaded.Update("t1", answered("x"))).To(MatchError(chat.ErrTurnFrozen))
		})

		It("should treat a missing file as an empty conversation", func() {
			conv.Begin("t1", "Hi")
			Expect(conv.LoadHistory(path)).To(Succeed())
			Expect(conv.Len()).To(Equal(0))
		})

		It("should reject a corrupt file", func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
			Expect(os.WriteFile(path, []byte("{not json"), 0644)).To(Succeed())
			Expect(conv.LoadHistory(path)).To(HaveOccurred())
		})

		It("should settle active statuses on load", func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
			data := `{"turns":[{"id":"t1","user":{"role":"user","content":"Q"},"assistant":{"role":"assistant","content":"A","tool_calls":[]},"status":"streaming","finalized":false}]}`
			Expect(os.WriteFile(path, []byte(data), 0644)).To(Succeed())

			Expect(conv.LoadHistory(path)).To(Succeed())
			turn, _ := conv.Last()
			Expect(turn.Status).To(Equal(chat.StatusReady))
			Expect(turn.Finalized).To(BeTrue())
		})
	})
})
