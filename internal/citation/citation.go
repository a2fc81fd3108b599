// Package citation is the only place that scans LLM output for inline
// markup. The model may emit malformed markers; everything here degrades to
// plain text rather than failing.
package citation

import (
	"regexp"
	"strconv"

	"doc-rag-platform/internal/logger"
)

// Span kinds produced by Parse.
const (
	SpanText            = "text"
	SpanBold            = "bold"
	SpanCitation        = "citation"
	SpanInvalidCitation = "invalid_citation"
)

// Span is one typed segment of answer text. For citation spans Index is the
// 1-based citation number; for bold spans Text is the emphasized content
// without its markers; for text spans Text is the verbatim source slice.
type Span struct {
	Kind  string `json:"kind"`
	Text  string `json:"text"`
	Index int    `json:"index,omitempty"`
}

var (
	markerPattern   = regexp.MustCompile(`\[(\d+)\]|\*\*(.+?)\*\*`)
	citationPattern = regexp.MustCompile(`\[(\d+)\]`)
)

// Parse splits answer text into plain, bold and citation spans, preserving
// all non-marker text verbatim and in order. A citation number beyond
// refCount becomes an invalid_citation span carrying the literal marker text:
// visibly flagged for the reader, never dropped. "[0]" is not a valid marker
// and stays plain text.
func Parse(text string, refCount int) []Span {
	var spans []Span
	last := 0

	for _, m := range markerPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if start > last {
			spans = append(spans, Span{Kind: SpanText, Text: text[last:start]})
		}

		if m[2] >= 0 {
			index, err := strconv.Atoi(text[m[2]:m[3]])
			switch {
			case err != nil || index < 1:
				spans = append(spans, Span{Kind: SpanText, Text: text[start:end]})
			case index > refCount:
				logger.Warn("Citation index out of range",
					"index", index, "references", refCount)
				spans = append(spans, Span{Kind: SpanInvalidCitation, Text: text[start:end], Index: index})
			default:
				spans = append(spans, Span{Kind: SpanCitation, Text: text[start:end], Index: index})
			}
		} else {
			spans = append(spans, Span{Kind: SpanBold, Text: text[m[4]:m[5]]})
		}

		last = end
	}

	if last < len(text) {
		spans = append(spans, Span{Kind: SpanText, Text: text[last:]})
	}

	return spans
}

// CitedIndices returns the distinct citation numbers appearing in text.
// Repeated markers count once.
func CitedIndices(text string) map[int]bool {
	cited := make(map[int]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		if index, err := strconv.Atoi(m[1]); err == nil && index >= 1 {
			cited[index] = true
		}
	}
	return cited
}

// HasCitations reports whether text contains at least one citation marker.
func HasCitations(text string) bool {
	return len(CitedIndices(text)) > 0
}
