package retrieval

import (
	"context"
	"errors"
	"testing"

	"doc-rag-platform/internal/vectorindex"
	"doc-rag-platform/models"
)

type fakeIndex struct {
	queryErrs  []error
	queryCalls int
	matches    []vectorindex.Match

	points  map[string]vectorindex.Match
	fetches []string
}

func (f *fakeIndex) Query(_ context.Context, _ string, _ []float32, _ int) ([]vectorindex.Match, error) {
	i := f.queryCalls
	f.queryCalls++
	if i < len(f.queryErrs) && f.queryErrs[i] != nil {
		return nil, f.queryErrs[i]
	}
	out := make([]vectorindex.Match, len(f.matches))
	copy(out, f.matches)
	return out, nil
}

func (f *fakeIndex) FetchByRef(_ context.Context, _ string, ref string) (*vectorindex.Match, error) {
	f.fetches = append(f.fetches, ref)
	m, ok := f.points[ref]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &m, nil
}

func storedMatch(docID string, position, page int, score float64) vectorindex.Match {
	ref := models.ChunkVectorRef(docID, position)
	return vectorindex.Match{
		Ref:   ref,
		Score: score,
		Meta: vectorindex.ChunkMeta{
			DocumentID:   docID,
			ChunkID:      ref,
			VectorRef:    ref,
			Text:         ref,
			PageNumber:   page,
			ChunkType:    models.ChunkTypeParagraph,
			ReadingOrder: position,
		},
	}
}

func pointSet(matches ...vectorindex.Match) map[string]vectorindex.Match {
	points := make(map[string]vectorindex.Match, len(matches))
	for _, m := range matches {
		points[m.Ref] = m
	}
	return points
}

func TestExpandAddsWindowNeighbors(t *testing.T) {
	idx := &fakeIndex{
		matches: []vectorindex.Match{storedMatch("doc1", 5, 1, 0.9)},
		points: pointSet(
			storedMatch("doc1", 4, 1, 0),
			storedMatch("doc1", 6, 1, 0),
		),
	}
	exp := New(idx, Options{TopK: 1, Window: 1, NeighborDiscount: 0.8})

	result, err := exp.Expand(context.Background(), "doc1", []float32{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Expanded {
		t.Error("expected the expanded path")
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected match plus 2 neighbors, got %d", len(result.Items))
	}

	wantOrder := []int{4, 5, 6}
	for i, item := range result.Items {
		if item.ReadingOrder != wantOrder[i] {
			t.Errorf("item %d: reading order %d, want %d", i, item.ReadingOrder, wantOrder[i])
		}
	}
	if result.Items[0].Score != 0.9*0.8 {
		t.Errorf("neighbor score %v, want discounted %v", result.Items[0].Score, 0.9*0.8)
	}
	if result.Items[1].Score != 0.9 {
		t.Errorf("direct hit score %v, want 0.9", result.Items[1].Score)
	}
}

func TestExpandNeverFetchesTheSamePointTwice(t *testing.T) {
	idx := &fakeIndex{
		matches: []vectorindex.Match{
			storedMatch("doc1", 4, 1, 0.9),
			storedMatch("doc1", 5, 1, 0.8),
		},
		points: pointSet(
			storedMatch("doc1", 3, 1, 0),
			storedMatch("doc1", 6, 1, 0),
		),
	}
	exp := New(idx, Options{TopK: 2, Window: 1, NeighborDiscount: 0.8})

	result, err := exp.Expand(context.Background(), "doc1", []float32{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]int)
	for _, ref := range idx.fetches {
		seen[ref]++
		if seen[ref] > 1 {
			t.Errorf("ref %s fetched %d times", ref, seen[ref])
		}
	}
	// Matches 4 and 5 are each other's neighbors; neither may be re-fetched.
	for _, ref := range idx.fetches {
		if ref == models.ChunkVectorRef("doc1", 4) || ref == models.ChunkVectorRef("doc1", 5) {
			t.Errorf("direct hit %s must not be fetched as a neighbor", ref)
		}
	}

	if len(result.Items) != 4 {
		t.Fatalf("expected items 3,4,5,6, got %d items", len(result.Items))
	}
	seenOrder := make(map[string]bool)
	for _, item := range result.Items {
		if seenOrder[item.ChunkID] {
			t.Errorf("duplicate context item %s", item.ChunkID)
		}
		seenOrder[item.ChunkID] = true
	}
}

func TestExpandSkipsMissingNeighborsSilently(t *testing.T) {
	idx := &fakeIndex{
		matches: []vectorindex.Match{storedMatch("doc1", 0, 1, 0.7)},
		points:  pointSet(), // no neighbors exist
	}
	exp := New(idx, Options{TopK: 1, Window: 2, NeighborDiscount: 0.8})

	result, err := exp.Expand(context.Background(), "doc1", []float32{1})
	if err != nil {
		t.Fatalf("missing neighbors must not fail the query: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected just the direct hit, got %d items", len(result.Items))
	}

	// Positions -2 and -1 are invalid and must never reach the index.
	for _, ref := range idx.fetches {
		if ref != models.ChunkVectorRef("doc1", 1) && ref != models.ChunkVectorRef("doc1", 2) {
			t.Errorf("unexpected fetch %s", ref)
		}
	}
}

func TestExpandFallsBackToPlainTopK(t *testing.T) {
	idx := &fakeIndex{
		queryErrs: []error{errors.New("index hiccup")},
		matches: []vectorindex.Match{
			storedMatch("doc1", 7, 2, 0.9),
			storedMatch("doc1", 2, 1, 0.6),
		},
		points: pointSet(storedMatch("doc1", 6, 2, 0)),
	}
	exp := New(idx, Options{TopK: 2, Window: 1, NeighborDiscount: 0.8})

	result, err := exp.Expand(context.Background(), "doc1", []float32{1})
	if err != nil {
		t.Fatalf("fallback should have served the request: %v", err)
	}
	if result.Expanded {
		t.Error("fallback result must not be marked expanded")
	}
	if len(idx.fetches) != 0 {
		t.Errorf("fallback must not expand, fetched %v", idx.fetches)
	}
	if idx.queryCalls != 2 {
		t.Errorf("expected exactly one retry, got %d query calls", idx.queryCalls)
	}
	// Still document-ordered.
	if result.Items[0].ReadingOrder != 2 || result.Items[1].ReadingOrder != 7 {
		t.Errorf("fallback items out of order: %+v", result.Items)
	}
}

func TestExpandSurfacesTotalQueryFailure(t *testing.T) {
	boom := errors.New("connection refused")
	idx := &fakeIndex{queryErrs: []error{boom, boom}}
	exp := New(idx, DefaultOptions())

	_, err := exp.Expand(context.Background(), "doc1", []float32{1})
	if err == nil {
		t.Fatal("expected error after both attempts failed")
	}
	if idx.queryCalls != 2 {
		t.Errorf("retry must be bounded to one, got %d calls", idx.queryCalls)
	}
}

func TestExpandSortsByPageThenReadingOrder(t *testing.T) {
	idx := &fakeIndex{
		matches: []vectorindex.Match{
			storedMatch("doc1", 10, 3, 0.99), // best score, latest in document
			storedMatch("doc1", 1, 1, 0.50),
			storedMatch("doc1", 4, 2, 0.75),
		},
		points: pointSet(),
	}
	exp := New(idx, Options{TopK: 3, Window: 0, NeighborDiscount: 0.8})

	result, err := exp.Expand(context.Background(), "doc1", []float32{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPages := []int{1, 2, 3}
	for i, item := range result.Items {
		if item.PageNumber != wantPages[i] {
			t.Errorf("item %d on page %d, want %d; score must not drive order", i, item.PageNumber, wantPages[i])
		}
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.TopK != 8 || opts.Window != 2 || opts.NeighborDiscount != 0.8 {
		t.Errorf("unexpected defaults: %+v", opts)
	}
}
