package segment

import (
	"fmt"
	"strings"
	"testing"

	"doc-rag-platform/internal/extraction"
	"doc-rag-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestSegmentAssignsGlobalReadingOrderAcrossPages(t *testing.T) {
	docID := primitive.NewObjectID()
	blocks := []extraction.Block{
		{PageNumber: 1, Text: "first"},
		{PageNumber: 1, Text: "second"},
		{PageNumber: 2, Text: "third"},
		{PageNumber: 3, Text: "fourth"},
	}

	chunks := Segment(docID, blocks)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.ReadingOrder != i {
			t.Errorf("chunk %d: reading order %d, want %d", i, chunk.ReadingOrder, i)
		}
		wantRef := fmt.Sprintf("%s-chunk-%d", docID.Hex(), i)
		if chunk.VectorRef != wantRef {
			t.Errorf("chunk %d: vector ref %q, want %q", i, chunk.VectorRef, wantRef)
		}
		if chunk.DocumentID != docID {
			t.Errorf("chunk %d: document id mismatch", i)
		}
	}

	if chunks[2].PageNumber != 2 || chunks[3].PageNumber != 3 {
		t.Error("page numbers should carry through while reading order stays global")
	}
}

func TestSegmentDropsFootnotesWithoutConsumingOrder(t *testing.T) {
	docID := primitive.NewObjectID()
	blocks := []extraction.Block{
		{PageNumber: 1, Text: "kept one"},
		{PageNumber: 1, Role: extraction.RoleFootnote, Text: "a footnote"},
		{PageNumber: 1, Text: "kept two"},
		{PageNumber: 1, Role: extraction.RolePageNumber, Text: "1"},
		{PageNumber: 2, Text: "kept three"},
	}

	chunks := Segment(docID, blocks)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks after drops, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.ReadingOrder != i {
			t.Errorf("reading order must stay contiguous across drops: chunk %d has order %d", i, chunk.ReadingOrder)
		}
	}
}

func TestSegmentClassifiesHeadings(t *testing.T) {
	docID := primitive.NewObjectID()
	tests := []struct {
		role      string
		wantLevel int
	}{
		{extraction.RoleTitle, 1},
		{extraction.RoleSectionHeading, 3},
		{"heading2", 2},
	}

	for _, tt := range tests {
		chunks := Segment(docID, []extraction.Block{{PageNumber: 1, Role: tt.role, Text: "Heading text"}})
		if len(chunks) != 1 {
			t.Fatalf("role %q: expected 1 chunk, got %d", tt.role, len(chunks))
		}
		if chunks[0].ChunkType != models.ChunkTypeHeading {
			t.Errorf("role %q: chunk type %q, want heading", tt.role, chunks[0].ChunkType)
		}
		if chunks[0].HeadingLevel != tt.wantLevel {
			t.Errorf("role %q: heading level %d, want %d", tt.role, chunks[0].HeadingLevel, tt.wantLevel)
		}
	}
}

func TestSegmentClassifiesListItems(t *testing.T) {
	docID := primitive.NewObjectID()
	chunks := Segment(docID, []extraction.Block{{PageNumber: 1, Role: extraction.RoleListItem, Text: "- item"}})
	if len(chunks) != 1 || chunks[0].ChunkType != models.ChunkTypeList {
		t.Fatal("list item role should produce a list chunk")
	}
}

func TestSegmentRendersTables(t *testing.T) {
	docID := primitive.NewObjectID()
	table := &extraction.Table{
		PageNumber: 1,
		RowCount:   2,
		ColCount:   2,
		Cells: []extraction.Cell{
			{Row: 0, Col: 0, Text: "Name"},
			{Row: 0, Col: 1, Text: "Limit"},
			{Row: 1, Col: 0, Text: "Current"},
			{Row: 1, Col: 1, Text: "5 A"},
		},
	}
	blocks := []extraction.Block{{PageNumber: 1, Table: table}}

	chunks := Segment(docID, blocks)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 table chunk, got %d", len(chunks))
	}

	chunk := chunks[0]
	if chunk.ChunkType != models.ChunkTypeTable {
		t.Errorf("chunk type %q, want table", chunk.ChunkType)
	}
	if !strings.HasPrefix(chunk.Text, TableStartMarker) || !strings.HasSuffix(chunk.Text, TableEndMarker) {
		t.Errorf("table text missing fence markers: %q", chunk.Text)
	}
	if !strings.Contains(chunk.Text, "| Name | Limit |") {
		t.Errorf("table text missing header row: %q", chunk.Text)
	}
	if !strings.Contains(chunk.Text, "| --- | --- |") {
		t.Errorf("table text missing header separator: %q", chunk.Text)
	}
	if !strings.Contains(chunk.Text, "| Current | 5 A |") {
		t.Errorf("table text missing data row: %q", chunk.Text)
	}

	if chunk.Table == nil {
		t.Fatal("table structure should be preserved alongside the rendered text")
	}
	if chunk.Table.Rows != 2 || chunk.Table.Cols != 2 || len(chunk.Table.Cells) != 4 {
		t.Errorf("table structure mismatch: %+v", chunk.Table)
	}
}

func TestSegmentSkipsEmptyBlocksAndTables(t *testing.T) {
	docID := primitive.NewObjectID()
	blocks := []extraction.Block{
		{PageNumber: 1, Text: "   \n\t "},
		{PageNumber: 1, Table: &extraction.Table{PageNumber: 1}},
		{PageNumber: 1, Text: "real content"},
	}

	chunks := Segment(docID, blocks)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ReadingOrder != 0 {
		t.Errorf("skipped blocks must not consume reading-order slots, got order %d", chunks[0].ReadingOrder)
	}
}

func TestSegmentEmptyInput(t *testing.T) {
	chunks := Segment(primitive.NewObjectID(), nil)
	if len(chunks) != 0 {
		t.Errorf("expected empty chunk sequence for empty input, got %d", len(chunks))
	}
}
