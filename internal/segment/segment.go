package segment

import (
	"strings"
	"unicode"

	"doc-rag-platform/internal/extraction"
	"doc-rag-platform/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Table text markers. The answer generator's instructions explain these so
// the model keeps tabular answers structured.
const (
	TableStartMarker = "[TABLE]"
	TableEndMarker   = "[/TABLE]"
)

// Segment converts ordered extraction blocks into typed chunks.
//
// ReadingOrder is a document-global counter that advances only when a chunk
// is emitted: dropped blocks (footnotes, page numbers, empty text) do not
// consume a slot, so emitted values are always the contiguous range [0, n).
// Because of that, a chunk's position index equals its reading order and its
// vector ref can be recomputed from (documentID, readingOrder) alone.
//
// Zero blocks in means zero chunks out; that is a valid result, not an error.
func Segment(documentID primitive.ObjectID, blocks []extraction.Block) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(blocks))
	order := 0

	for _, block := range blocks {
		if isDroppedRole(block.Role) {
			continue
		}

		var chunk models.Chunk
		if block.Table != nil {
			if len(block.Table.Cells) == 0 {
				continue
			}
			chunk = models.Chunk{
				Text:      renderTable(block.Table),
				ChunkType: models.ChunkTypeTable,
				Table:     convertTable(block.Table),
			}
		} else {
			text := strings.TrimSpace(block.Text)
			if text == "" {
				continue
			}
			chunk = models.Chunk{Text: text}
			switch {
			case isHeadingRole(block.Role):
				chunk.ChunkType = models.ChunkTypeHeading
				chunk.HeadingLevel = headingLevel(block.Role)
			case isListRole(block.Role):
				chunk.ChunkType = models.ChunkTypeList
			default:
				chunk.ChunkType = models.ChunkTypeParagraph
			}
		}

		chunk.ID = uuid.NewString()
		chunk.DocumentID = documentID
		chunk.PageNumber = block.PageNumber
		chunk.ReadingOrder = order
		chunk.BoundingPolygon = block.Polygon
		chunk.VectorRef = models.ChunkVectorRef(documentID.Hex(), order)

		chunks = append(chunks, chunk)
		order++
	}

	return chunks
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.ReplaceAll(role, "_", ""))
}

func isDroppedRole(role string) bool {
	switch normalizeRole(role) {
	case "footnote", "pagenumber":
		return true
	}
	return false
}

func isHeadingRole(role string) bool {
	normalized := normalizeRole(role)
	return normalized == "title" || strings.Contains(normalized, "heading")
}

func isListRole(role string) bool {
	normalized := normalizeRole(role)
	return normalized == "listitem" || normalized == "list"
}

// headingLevel is 1 for the title role, the first digit found in any other
// heading role, and 3 when the role carries no digit.
func headingLevel(role string) int {
	if normalizeRole(role) == "title" {
		return 1
	}
	for _, r := range role {
		if unicode.IsDigit(r) {
			return int(r - '0')
		}
	}
	return 3
}

func convertTable(table *extraction.Table) *models.TableStructure {
	cells := make([]models.TableCell, len(table.Cells))
	for i, cell := range table.Cells {
		cells[i] = models.TableCell{
			Row:     cell.Row,
			Col:     cell.Col,
			Text:    cell.Text,
			RowSpan: cell.RowSpan,
			ColSpan: cell.ColSpan,
		}
	}
	return &models.TableStructure{
		Rows:  table.RowCount,
		Cols:  table.ColCount,
		Cells: cells,
	}
}

// renderTable produces the fenced textual form of a table: start/end markers
// around a markdown-style grid whose first row is treated as the header.
func renderTable(table *extraction.Table) string {
	rows := table.RowCount
	cols := table.ColCount
	for _, cell := range table.Cells {
		if cell.Row+1 > rows {
			rows = cell.Row + 1
		}
		if cell.Col+1 > cols {
			cols = cell.Col + 1
		}
	}

	grid := make([][]string, rows)
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	for _, cell := range table.Cells {
		if cell.Row >= 0 && cell.Row < rows && cell.Col >= 0 && cell.Col < cols {
			grid[cell.Row][cell.Col] = sanitizeCell(cell.Text)
		}
	}

	var b strings.Builder
	b.WriteString(TableStartMarker)
	b.WriteString("\n")
	for i, row := range grid {
		b.WriteString("| ")
		b.WriteString(strings.Join(row, " | "))
		b.WriteString(" |\n")
		if i == 0 {
			b.WriteString("|")
			for range row {
				b.WriteString(" --- |")
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(TableEndMarker)
	return b.String()
}

func sanitizeCell(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "|", "\\|")
	return strings.TrimSpace(text)
}
