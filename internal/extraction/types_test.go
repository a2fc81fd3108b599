package extraction

import "testing"

func rect(top float64) []float64 {
	return []float64{0, top, 100, top, 100, top + 10, 0, top + 10}
}

func TestOrderedBlocksInterleavesTablesByPosition(t *testing.T) {
	res := &Result{
		Blocks: []Block{
			{PageNumber: 1, Text: "intro", Polygon: rect(10)},
			{PageNumber: 1, Text: "after table", Polygon: rect(50)},
			{PageNumber: 2, Text: "next page", Polygon: rect(5)},
		},
		Tables: []Table{
			{
				PageNumber: 1,
				RowCount:   1,
				ColCount:   1,
				Cells:      []Cell{{Row: 0, Col: 0, Text: "cell"}},
				Polygon:    rect(30),
			},
		},
	}

	ordered := res.OrderedBlocks()
	if len(ordered) != 4 {
		t.Fatalf("expected 4 merged blocks, got %d", len(ordered))
	}

	if ordered[0].Text != "intro" {
		t.Errorf("block 0: expected intro, got %q", ordered[0].Text)
	}
	if ordered[1].Table == nil {
		t.Error("block 1: expected the table spliced between the page-1 blocks")
	}
	if ordered[2].Text != "after table" {
		t.Errorf("block 2: expected after table, got %q", ordered[2].Text)
	}
	if ordered[3].PageNumber != 2 {
		t.Errorf("block 3: expected page 2 block, got page %d", ordered[3].PageNumber)
	}
}

func TestOrderedBlocksWithoutPolygonsKeepsSuppliedOrder(t *testing.T) {
	res := &Result{
		Blocks: []Block{
			{PageNumber: 1, Text: "first"},
			{PageNumber: 1, Text: "second"},
		},
		Tables: []Table{
			{PageNumber: 1, RowCount: 1, ColCount: 1, Cells: []Cell{{Text: "cell"}}},
		},
	}

	ordered := res.OrderedBlocks()
	if len(ordered) != 3 {
		t.Fatalf("expected 3 merged blocks, got %d", len(ordered))
	}
	if ordered[0].Text != "first" || ordered[1].Text != "second" {
		t.Error("text blocks without polygons should keep their supplied order")
	}
	if ordered[2].Table == nil {
		t.Error("table without polygon should sort after the supplied text blocks")
	}
}

func TestOrderedBlocksEmptyResult(t *testing.T) {
	res := &Result{}
	if got := res.OrderedBlocks(); len(got) != 0 {
		t.Errorf("expected no blocks for empty result, got %d", len(got))
	}
}
