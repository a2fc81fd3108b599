package citation

import (
	"reflect"
	"testing"
)

func TestParsePlainTextOnly(t *testing.T) {
	spans := Parse("no markup at all", 3)
	want := []Span{{Kind: SpanText, Text: "no markup at all"}}
	if !reflect.DeepEqual(spans, want) {
		t.Errorf("got %+v, want %+v", spans, want)
	}
}

func TestParseMixedMarkers(t *testing.T) {
	spans := Parse("The limit is **5 A** [2].", 3)
	want := []Span{
		{Kind: SpanText, Text: "The limit is "},
		{Kind: SpanBold, Text: "5 A"},
		{Kind: SpanText, Text: " "},
		{Kind: SpanCitation, Text: "[2]", Index: 2},
		{Kind: SpanText, Text: "."},
	}
	if !reflect.DeepEqual(spans, want) {
		t.Errorf("got %+v, want %+v", spans, want)
	}
}

func TestParseOutOfRangeCitationIsFlaggedNotDropped(t *testing.T) {
	spans := Parse("see [7] for details", 2)
	want := []Span{
		{Kind: SpanText, Text: "see "},
		{Kind: SpanInvalidCitation, Text: "[7]", Index: 7},
		{Kind: SpanText, Text: " for details"},
	}
	if !reflect.DeepEqual(spans, want) {
		t.Errorf("got %+v, want %+v", spans, want)
	}
}

func TestParseZeroIsNotACitation(t *testing.T) {
	spans := Parse("array[0] access", 5)
	for _, span := range spans {
		if span.Kind == SpanCitation || span.Kind == SpanInvalidCitation {
			t.Errorf("[0] must not parse as a citation marker, got %+v", span)
		}
	}
}

func TestParseUnclosedBoldStaysPlain(t *testing.T) {
	spans := Parse("**unterminated emphasis", 1)
	want := []Span{{Kind: SpanText, Text: "**unterminated emphasis"}}
	if !reflect.DeepEqual(spans, want) {
		t.Errorf("got %+v, want %+v", spans, want)
	}
}

func TestParseRepeatedCitationsEmitEachOccurrence(t *testing.T) {
	spans := Parse("[1] and again [1]", 2)
	count := 0
	for _, span := range spans {
		if span.Kind == SpanCitation && span.Index == 1 {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected both occurrences as spans, got %d", count)
	}
}

func TestParsePreservesNonMarkerTextVerbatim(t *testing.T) {
	text := "a [1] b **c** d [9] e"
	spans := Parse(text, 1)

	var rebuilt string
	for _, span := range spans {
		switch span.Kind {
		case SpanBold:
			rebuilt += "**" + span.Text + "**"
		default:
			rebuilt += span.Text
		}
	}
	if rebuilt != text {
		t.Errorf("span sequence does not reconstruct input: %q != %q", rebuilt, text)
	}
}

func TestCitedIndicesCountsEachNumberOnce(t *testing.T) {
	cited := CitedIndices("first [1], then [3], then [1] again")
	if len(cited) != 2 || !cited[1] || !cited[3] {
		t.Errorf("got %v, want {1, 3}", cited)
	}
}

func TestHasCitations(t *testing.T) {
	if HasCitations("nothing here") {
		t.Error("expected no citations")
	}
	if HasCitations("brackets [abc] without digits") {
		t.Error("non-numeric brackets are not citations")
	}
	if !HasCitations("claim [12]") {
		t.Error("expected citation to be detected")
	}
}
