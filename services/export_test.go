package services

import (
	"reflect"
	"testing"
)

func TestBuildExportSummaryAggregatesTurns(t *testing.T) {
	turns := []TurnExport{
		{
			TokenCost: 100,
			References: []ReferenceExport{
				{CitationIndex: 1, PageNumber: 4, Cited: true},
				{CitationIndex: 2, PageNumber: 7, Cited: false},
			},
		},
		{
			TokenCost: 50,
			References: []ReferenceExport{
				{CitationIndex: 1, PageNumber: 2, Cited: true},
				{CitationIndex: 2, PageNumber: 4, Cited: true},
			},
		},
	}

	summary := buildExportSummary(turns)

	if summary.TotalTurns != 2 {
		t.Errorf("TotalTurns = %d, want 2", summary.TotalTurns)
	}
	if summary.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", summary.TotalTokens)
	}
	if summary.TotalReferences != 4 {
		t.Errorf("TotalReferences = %d, want 4", summary.TotalReferences)
	}
	if summary.CitedReferences != 3 {
		t.Errorf("CitedReferences = %d, want 3", summary.CitedReferences)
	}
	if summary.CitationCoverage != 0.75 {
		t.Errorf("CitationCoverage = %f, want 0.75", summary.CitationCoverage)
	}
	// Pages are deduplicated and sorted; page 7 was never cited.
	if !reflect.DeepEqual(summary.PagesCited, []int{2, 4}) {
		t.Errorf("PagesCited = %v, want [2 4]", summary.PagesCited)
	}
}

func TestBuildExportSummaryEmptyConversation(t *testing.T) {
	summary := buildExportSummary(nil)

	if summary.TotalTurns != 0 || summary.TotalReferences != 0 {
		t.Errorf("unexpected totals: %+v", summary)
	}
	if summary.CitationCoverage != 0 {
		t.Errorf("CitationCoverage = %f, want 0", summary.CitationCoverage)
	}
	if summary.PagesCited != nil {
		t.Errorf("PagesCited = %v, want nil", summary.PagesCited)
	}
}

func TestCitedMarkersSkipsUncitedReferences(t *testing.T) {
	refs := []ReferenceExport{
		{CitationIndex: 1, Cited: true},
		{CitationIndex: 2, Cited: false},
		{CitationIndex: 3, Cited: true},
	}
	if got := citedMarkers(refs); got != "[1] [3]" {
		t.Errorf("citedMarkers = %q, want %q", got, "[1] [3]")
	}
	if got := citedMarkers(nil); got != "" {
		t.Errorf("citedMarkers(nil) = %q, want empty", got)
	}
}
