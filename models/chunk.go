package models

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chunk type constants
const (
	ChunkTypeParagraph = "paragraph"
	ChunkTypeTable     = "table"
	ChunkTypeHeading   = "heading"
	ChunkTypeList      = "list"
)

// TableCell is one cell of an extracted table grid
type TableCell struct {
	Row     int    `bson:"row" json:"row"`
	Col     int    `bson:"col" json:"col"`
	Text    string `bson:"text" json:"text"`
	RowSpan int    `bson:"row_span,omitempty" json:"row_span,omitempty"`
	ColSpan int    `bson:"col_span,omitempty" json:"col_span,omitempty"`
}

// TableStructure preserves the extracted grid in parallel with the
// fenced textual rendering stored in the chunk's Text.
type TableStructure struct {
	Rows  int         `bson:"rows" json:"rows"`
	Cols  int         `bson:"cols" json:"cols"`
	Cells []TableCell `bson:"cells" json:"cells"`
}

// Chunk is one segmented unit of document text. Chunks are written once at
// ingestion, never mutated, and deleted only with their parent document.
// ReadingOrder is document-global and strictly increasing in emission order;
// it is the sole ordering key across pages.
type Chunk struct {
	ID              string             `bson:"_id" json:"id"`
	DocumentID      primitive.ObjectID `bson:"document_id" json:"document_id"`
	Text            string             `bson:"text" json:"text"`
	PageNumber      int                `bson:"page_number" json:"page_number"`
	ChunkType       string             `bson:"chunk_type" json:"chunk_type"`
	ReadingOrder    int                `bson:"reading_order" json:"reading_order"`
	HeadingLevel    int                `bson:"heading_level,omitempty" json:"heading_level,omitempty"`
	BoundingPolygon []float64          `bson:"bounding_polygon,omitempty" json:"bounding_polygon,omitempty"`
	Table           *TableStructure    `bson:"table,omitempty" json:"table,omitempty"`
	VectorRef       string             `bson:"vector_ref" json:"vector_ref"`
}

// ChunkVectorRef derives the vector id for a chunk position. The id is
// deterministic so reading-order neighbors can be addressed without a lookup:
// position p's neighbor at offset d is ChunkVectorRef(docID, p+d).
func ChunkVectorRef(documentID string, position int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, position)
}
