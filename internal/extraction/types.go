package extraction

import (
	"math"
	"sort"
)

// Structural roles reported by the layout service.
const (
	RoleTitle          = "title"
	RoleSectionHeading = "sectionHeading"
	RoleFootnote       = "footnote"
	RolePageNumber     = "pageNumber"
	RoleListItem       = "listItem"
	RoleTable          = "table"
)

// Page is one analyzed page.
type Page struct {
	Number int `json:"number"`
}

// Cell is one cell of an extracted table grid.
type Cell struct {
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Text    string `json:"text"`
	RowSpan int    `json:"row_span,omitempty"`
	ColSpan int    `json:"col_span,omitempty"`
}

// Table is an extracted table with its grid and page location.
type Table struct {
	PageNumber int       `json:"page_number"`
	RowCount   int       `json:"row_count"`
	ColCount   int       `json:"col_count"`
	Cells      []Cell    `json:"cells"`
	Polygon    []float64 `json:"polygon,omitempty"`
}

// Block is one unit of raw page content. Table is set when the block was
// spliced from the analysis result's table list.
type Block struct {
	PageNumber int       `json:"page_number"`
	Role       string    `json:"role,omitempty"`
	Text       string    `json:"text"`
	Polygon    []float64 `json:"polygon,omitempty"`
	Table      *Table    `json:"-"`
}

// Result is the normalized output of document analysis.
type Result struct {
	Pages  []Page  `json:"pages"`
	Blocks []Block `json:"blocks"`
	Tables []Table `json:"tables"`
	Method string  `json:"method,omitempty"`
}

// OrderedBlocks merges text blocks and tables into a single reading-order
// stream. Items interleave by the top edge of their polygons within a page;
// items without a polygon sort to the end of their page. The sort is stable,
// so supplied order breaks ties.
func (r *Result) OrderedBlocks() []Block {
	merged := make([]Block, 0, len(r.Blocks)+len(r.Tables))
	merged = append(merged, r.Blocks...)
	for i := range r.Tables {
		table := r.Tables[i]
		merged = append(merged, Block{
			PageNumber: table.PageNumber,
			Role:       RoleTable,
			Polygon:    table.Polygon,
			Table:      &table,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].PageNumber != merged[j].PageNumber {
			return merged[i].PageNumber < merged[j].PageNumber
		}
		return polygonTop(merged[i].Polygon) < polygonTop(merged[j].Polygon)
	})

	return merged
}

func polygonTop(polygon []float64) float64 {
	if len(polygon) < 8 {
		return math.MaxFloat64
	}
	top := polygon[1]
	for i := 3; i < 8; i += 2 {
		if polygon[i] < top {
			top = polygon[i]
		}
	}
	return top
}
