package chat_test

import (
	"reflect"
	"strings"

	"github.com/killallgit/turnstream/pkg/chat"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func score(v float64) *float64 {
	return &v
}

var _ = Describe("Citations", func() {
	Describe("ExtractSources", func() {
		It("should return nil without a document header", func() {
			Expect(chat.ExtractSources("")).To(BeNil())
			Expect(chat.ExtractSources("No documents matched your query.")).To(BeNil())
			Expect(chat.ExtractSources("Document: not a header\nScore: 0.5")).To(BeNil())
		})

		It("should split segments and skip the preamble", func() {
			output := "Searching the handbook...\n\n" +
				"### Document: handbook.pdf\n" +
				"Score: 0.87\n" +
				"  Vacation is 25 days.  \n" +
				"\n" +
				"Carry over is allowed.\n" +
				"## Source: faq.md\n" +
				"Relevance score: .5\n" +
				"Ask HR."

			sources := chat.ExtractSources(output)
			Expect(sources).To(Equal([]chat.SourceRef{
				{DocumentName: "handbook.pdf", Content: "Vacation is 25 days.\nCarry over is allowed.", Score: score(0.87)},
				{DocumentName: "faq.md", Content: "Ask HR.", Score: score(0.5)},
			}))
		})

		It("should only read a score before the segment body", func() {
			sources := chat.ExtractSources("### Document: a.md\nbody first\nScore: 0.3")
			Expect(sources).To(HaveLen(1))
			Expect(sources[0].Score).To(BeNil())
			Expect(sources[0].Content).To(Equal("body first\nScore: 0.3"))
		})

		It("should keep an unparsable score line as content", func() {
			sources := chat.ExtractSources("### Document: a.md\nScore: high\nbody")
			Expect(sources[0].Score).To(BeNil())
			Expect(sources[0].Content).To(Equal("Score: high\nbody"))
		})

		It("should allow a header with no body", func() {
			sources := chat.ExtractSources("### Document: empty.md\n### Document: full.md\ntext")
			Expect(sources).To(HaveLen(2))
			Expect(sources[0].Content).To(Equal(""))
			Expect(sources[1].Content).To(Equal("text"))
		})

		It("should read the rag tool's bracketed segments", func() {
			output := "[Source 1: handbook.pdf]\n" +
				"Vacation is 25 days.\n" +
				"\n---\n\n" +
				"[Source 2: faq [v2].md]\n" +
				"Ask HR.\n" +
				"Or your manager."

			sources := chat.ExtractSources(output)
			Expect(sources).To(Equal([]chat.SourceRef{
				{DocumentName: "handbook.pdf", Content: "Vacation is 25 days."},
				{DocumentName: "faq [v2].md", Content: "Ask HR.\nOr your manager."},
			}))
		})

		It("should not treat separator lines as content", func() {
			sources := chat.ExtractSources("### Document: a.pdf\nfoo\n\n---\n\n### Document: b.pdf\nbar")
			Expect(sources).To(HaveLen(2))
			Expect(sources[0].Content).To(Equal("foo"))
			Expect(sources[1].Content).To(Equal("bar"))
		})

		It("should find nothing in the rag tool's empty answer", func() {
			Expect(chat.ExtractSources("No relevant information found in the knowledge base.")).To(BeNil())
		})

		It("should tolerate CRLF line endings", func() {
			sources := chat.ExtractSources("### Document: win.txt\r\nScore: 1\r\nline\r\n")
			Expect(sources).To(Equal([]chat.SourceRef{
				{DocumentName: "win.txt", Content: "line", Score: score(1)},
			}))
		})
	})

	Describe("FormatSources", func() {
		It("should render the layout ExtractSources reads", func() {
			text := chat.FormatSources([]chat.SourceRef{
				{DocumentName: "a.md", Content: "alpha", Score: score(0.25)},
				{DocumentName: "b.md", Content: "beta"},
			})
			Expect(text).To(Equal("### Document: a.md\nScore: 0.25\nalpha\n\n### Document: b.md\nbeta"))
		})

		It("should render nothing for no sources", func() {
			Expect(chat.FormatSources(nil)).To(Equal(""))
		})
	})

	It("should round-trip formatted sources", func() {
		sourceGen := gopter.CombineGens(
			gen.Identifier(),
			gen.SliceOf(gen.Identifier()),
			gen.Bool(),
			gen.Float64Range(-1, 1),
		).Map(func(vals []interface{}) chat.SourceRef {
			ref := chat.SourceRef{
				DocumentName: vals[0].(string),
				Content:      strings.Join(vals[1].([]string), "\n"),
			}
			if vals[2].(bool) {
				ref.Score = score(vals[3].(float64))
			}
			return ref
		})

		parameters := gopter.DefaultTestParameters()
		parameters.MinSuccessfulTests = 200
		properties := gopter.NewProperties(parameters)

		properties.Property("ExtractSources(FormatSources(s)) == s", prop.ForAll(
			func(sources []chat.SourceRef) bool {
				got := chat.ExtractSources(chat.FormatSources(sources))
				if len(sources) == 0 {
					return got == nil
				}
				return reflect.DeepEqual(sources, got)
			},
			gen.SliceOf(sourceGen),
		))

		Expect(properties.Run(gopter.NewFormatedReporter(true, 160, GinkgoWriter))).To(BeTrue())
	})
})
