package chat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/killallgit/turnstream/pkg/logger"
)

var (
	// "### Document: handbook.pdf" or "## Source: faq.md"
	documentHeaderRegex = regexp.MustCompile(`^\s*#{1,6}\s*(?:Document|Source)\s*:\s*(.+?)\s*$`)

	// "[Source 1: handbook.pdf]", the layout of the agent's rag tool
	bracketHeaderRegex = regexp.MustCompile(`^\s*\[\s*(?:Document|Source)(?:\s+\d+)?\s*:\s*(.+?)\s*\]\s*$`)

	// "---" between the rag tool's segments
	separatorRegex = regexp.MustCompile(`^\s*-{3,}\s*$`)

	// "Score: 0.92" or "Relevance score: 0.92"
	scoreRegex = regexp.MustCompile(`(?i)^\s*(?:relevance\s+)?score\s*:\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*$`)
)

// segment is a source being assembled while scanning tool output
type segment struct {
	name    string
	score   *float64
	content []string
}

func (s *segment) ref() SourceRef {
	return SourceRef{
		DocumentName: s.name,
		Content:      strings.Join(s.content, "\n"),
		Score:        s.score,
	}
}

// ExtractSources scans retrieval tool output for document segments.
// Output without any document header yields nil; it never panics.
func ExtractSources(output string) (sources []SourceRef) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("citation extraction failed: %v", r)
			sources = nil
		}
	}()

	var open *segment
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")

		if name, ok := documentHeader(line); ok {
			if open != nil {
				sources = append(sources, open.ref())
			}
			open = &segment{name: name}
			continue
		}

		// Text before the first header is preamble
		if open == nil || strings.TrimSpace(line) == "" || separatorRegex.MatchString(line) {
			continue
		}

		// A score line is only meaningful before the segment body starts
		if open.score == nil && len(open.content) == 0 {
			if m := scoreRegex.FindStringSubmatch(line); m != nil {
				if score, err := strconv.ParseFloat(m[1], 64); err == nil {
					open.score = &score
					continue
				}
			}
		}

		open.content = append(open.content, strings.TrimSpace(line))
	}

	if open != nil {
		sources = append(sources, open.ref())
	}

	return sources
}

func documentHeader(line string) (string, bool) {
	if m := documentHeaderRegex.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := bracketHeaderRegex.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

// FormatSources renders sources in the layout ExtractSources reads
func FormatSources(sources []SourceRef) string {
	var b strings.Builder
	for i, src := range sources {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### Document: %s\n", src.DocumentName)
		if src.Score != nil {
			fmt.Fprintf(&b, "Score: %s\n", strconv.FormatFloat(*src.Score, 'g', -1, 64))
		}
		b.WriteString(src.Content)
	}
	return b.String()
}
