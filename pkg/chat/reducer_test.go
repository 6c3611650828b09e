package chat_test

import (
	"github.com/killallgit/turnstream/pkg/chat"
	"github.com/killallgit/turnstream/pkg/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const ragOutput = `Found 2 documents.

### Document: paris.md
Score: 0.91
Paris is the capital of France.

### Document: europe.md
Capitals of Europe.`

// fold applies events in order starting from a fresh turn
func fold(r *chat.Reducer, events ...stream.Event) chat.TurnState {
	state := chat.NewTurnState()
	for _, ev := range events {
		state = r.Reduce(state, ev)
	}
	return state
}

var _ = Describe("Reducer", func() {
	var reducer *chat.Reducer

	BeforeEach(func() {
		reducer = chat.NewReducer([]string{"rag"})
	})

	It("should start submitted with an empty assistant message", func() {
		state := chat.NewTurnState()
		Expect(state.Status).To(Equal(chat.StatusSubmitted))
		Expect(state.Thinking).To(BeFalse())
		Expect(state.Message.IsEmpty()).To(BeTrue())
	})

	It("should assemble a plain answer", func() {
		state := fold(reducer,
			stream.Thinking("Let me "),
			stream.Thinking("think."),
			stream.Content("Hel"),
			stream.Content("lo"),
			stream.Done(),
		)

		Expect(state.Message.Content).To(Equal("Hello"))
		Expect(state.Message.Reasoning()).To(Equal("Let me think."))
		Expect(state.Status).To(Equal(chat.StatusReady))
		Expect(state.Thinking).To(BeFalse())
	})

	It("should move to streaming and track the thinking flag", func() {
		state := reducer.Reduce(chat.NewTurnState(), stream.Thinking("a"))
		Expect(state.Status).To(Equal(chat.StatusStreaming))
		Expect(state.Thinking).To(BeTrue())

		state = reducer.Reduce(state, stream.Content("b"))
		Expect(state.Thinking).To(BeFalse())
		Expect(state.Status).To(Equal(chat.StatusStreaming))
	})

	It("should keep an empty reasoning trace distinct from none", func() {
		state := reducer.Reduce(chat.NewTurnState(), stream.Thinking(""))
		Expect(state.Message.ReasoningTrace).NotTo(BeNil())
		Expect(state.Message.Reasoning()).To(Equal(""))
	})

	Describe("tool calls", func() {
		It("should record a running call and complete it", func() {
			state := fold(reducer, stream.ToolStart("calc", map[string]any{"expr": "2+2"}))
			Expect(state.Message.ToolCalls).To(HaveLen(1))
			Expect(state.Message.ToolCalls[0].Status).To(Equal(chat.ToolRunning))
			Expect(state.Message.ToolCalls[0].Input).To(HaveKeyWithValue("expr", "2+2"))

			state = reducer.Reduce(state, stream.ToolEnd("calc", "4"))
			Expect(state.Message.ToolCalls[0].Status).To(Equal(chat.ToolCompleted))
			Expect(state.Message.ToolCalls[0].Output).To(Equal("4"))
		})

		It("should complete the most recent running call of the same name", func() {
			state := fold(reducer,
				stream.ToolStart("search", map[string]any{"q": "first"}),
				stream.ToolStart("search", map[string]any{"q": "second"}),
				stream.ToolEnd("search", "B"),
			)

			Expect(state.Message.ToolCalls[0].Status).To(Equal(chat.ToolRunning))
			Expect(state.Message.ToolCalls[1].Status).To(Equal(chat.ToolCompleted))
			Expect(state.Message.ToolCalls[1].Output).To(Equal("B"))

			state = reducer.Reduce(state, stream.ToolEnd("search", "A"))
			Expect(state.Message.ToolCalls[0].Status).To(Equal(chat.ToolCompleted))
			Expect(state.Message.ToolCalls[0].Output).To(Equal("A"))
		})

		It("should ignore a tool end with no running call", func() {
			prior := fold(reducer, stream.ToolStart("calc", nil), stream.ToolEnd("calc", "1"))
			next := reducer.Reduce(prior, stream.ToolEnd("calc", "again"))
			Expect(next).To(Equal(prior))

			next = reducer.Reduce(prior, stream.ToolEnd("unknown", "x"))
			Expect(next).To(Equal(prior))
		})

		It("should mark a failed tool as error with the failure as output", func() {
			state := fold(reducer, stream.ToolStart("rag", nil), stream.ToolFailed("rag", "index offline"))

			Expect(state.Message.ToolCalls[0].Status).To(Equal(chat.ToolError))
			Expect(state.Message.ToolCalls[0].Output).To(Equal("index offline"))
			Expect(state.Message.Sources).To(BeNil())
		})

		It("should leave a tool_call event inert", func() {
			prior := fold(reducer, stream.Content("x"))
			next := reducer.Reduce(prior, stream.Event{Kind: stream.KindToolCall, Name: "rag"})
			Expect(next).To(Equal(prior))
		})
	})

	Describe("sources", func() {
		It("should extract sources from retrieval tool output", func() {
			state := fold(reducer,
				stream.ToolStart("rag", map[string]any{"query": "capital of France"}),
				stream.ToolEnd("rag", ragOutput),
				stream.Content("Paris."),
				stream.Done(),
			)

			Expect(state.Message.Sources).To(HaveLen(2))
			Expect(state.Message.Sources[0].DocumentName).To(Equal("paris.md"))
			Expect(*state.Message.Sources[0].Score).To(BeNumerically("~", 0.91))
			Expect(state.Message.Sources[0].Content).To(Equal("Paris is the capital of France."))
			Expect(state.Message.Sources[1].DocumentName).To(Equal("europe.md"))
			Expect(state.Message.Sources[1].Score).To(BeNil())
		})

		It("should ignore output of tools that are not retrieval tools", func() {
			state := fold(reducer, stream.ToolStart("calc", nil), stream.ToolEnd("calc", ragOutput))
			Expect(state.Message.Sources).To(BeNil())
		})

		It("should let a later retrieval replace earlier sources", func() {
			state := fold(reducer,
				stream.ToolStart("rag", nil),
				stream.ToolEnd("rag", ragOutput),
				stream.ToolStart("rag", nil),
				stream.ToolEnd("rag", "### Document: later.md\nnew"),
			)
			Expect(state.Message.Sources).To(HaveLen(1))
			Expect(state.Message.Sources[0].DocumentName).To(Equal("later.md"))
		})

		It("should keep earlier sources when a later retrieval finds none", func() {
			state := fold(reducer,
				stream.ToolStart("rag", nil),
				stream.ToolEnd("rag", ragOutput),
				stream.ToolStart("rag", nil),
				stream.ToolEnd("rag", "No documents found."),
			)
			Expect(state.Message.Sources).To(HaveLen(2))
		})

		It("should report retrieval tools by name", func() {
			Expect(reducer.IsRetrievalTool("rag")).To(BeTrue())
			Expect(reducer.IsRetrievalTool("calc")).To(BeFalse())
			Expect(chat.NewReducer(nil).IsRetrievalTool("rag")).To(BeFalse())
		})
	})

	Describe("errors", func() {
		It("should replace partial content with the backend message", func() {
			state := fold(reducer,
				stream.Thinking("hm"),
				stream.Content("partial"),
				stream.Failure("model overloaded"),
			)

			Expect(state.Status).To(Equal(chat.StatusError))
			Expect(state.Message.Content).To(Equal("model overloaded"))
			Expect(state.Message.Error).To(Equal("model overloaded"))
			Expect(state.Message.Reasoning()).To(Equal("hm"))
			Expect(state.Thinking).To(BeFalse())
		})
	})

	It("should never modify the prior state", func() {
		prior := fold(reducer,
			stream.Thinking("a"),
			stream.ToolStart("rag", nil),
			stream.Content("x"),
		)
		snapshot := prior
		snapshot.Message = prior.Message.Clone()

		for _, ev := range []stream.Event{
			stream.Thinking("b"),
			stream.ToolStart("rag", nil),
			stream.ToolEnd("rag", ragOutput),
			stream.Content("y"),
			stream.Failure("boom"),
			stream.Done(),
		} {
			_ = reducer.Reduce(prior, ev)
		}

		Expect(prior).To(Equal(snapshot))
	})

	It("should return the prior state for unknown kinds", func() {
		prior := fold(reducer, stream.Content("x"))
		Expect(reducer.Reduce(prior, stream.Event{Kind: "heartbeat"})).To(Equal(prior))
	})
})
