package vectorindex

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"doc-rag-platform/models"
)

func TestToPayloadOmitsAbsentOptionalFields(t *testing.T) {
	meta := ChunkMeta{
		DocumentID:   "doc1",
		ChunkID:      "c1",
		VectorRef:    "doc1-chunk-0",
		Text:         "hello",
		PageNumber:   1,
		ChunkType:    models.ChunkTypeParagraph,
		ReadingOrder: 0,
	}

	payload := meta.ToPayload()
	for _, key := range []string{"heading_level", "polygon_json", "table_json"} {
		if _, ok := payload[key]; ok {
			t.Errorf("absent optional field %q must not appear in payload", key)
		}
	}
	if payload["document_id"].GetStringValue() != "doc1" {
		t.Error("document_id missing from payload")
	}
	if payload["reading_order"].GetIntegerValue() != 0 {
		t.Error("reading_order must be present even when zero")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	meta := ChunkMeta{
		DocumentID:   "doc1",
		ChunkID:      "c7",
		VectorRef:    "doc1-chunk-7",
		Text:         "a heading",
		PageNumber:   3,
		ChunkType:    models.ChunkTypeHeading,
		ReadingOrder: 7,
		HeadingLevel: 2,
		PolygonJSON:  "[0,0,10,0,10,5,0,5]",
		TableJSON:    `{"rows":1,"cols":1,"cells":[{"row":0,"col":0,"text":"x"}]}`,
	}

	got := metaFromPayload(meta.ToPayload())
	if !reflect.DeepEqual(got, meta) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, meta)
	}
}

func TestMetaFromChunkCarriesStructuredFields(t *testing.T) {
	docID := primitive.NewObjectID()
	chunk := models.Chunk{
		ID:              "chunk-uuid",
		DocumentID:      docID,
		Text:            "[TABLE]\n| a |\n[/TABLE]",
		PageNumber:      2,
		ChunkType:       models.ChunkTypeTable,
		ReadingOrder:    5,
		BoundingPolygon: []float64{0, 0, 10, 0, 10, 5, 0, 5},
		Table: &models.TableStructure{
			Rows: 1,
			Cols: 1,
			Cells: []models.TableCell{
				{Row: 0, Col: 0, Text: "a"},
			},
		},
		VectorRef: models.ChunkVectorRef(docID.Hex(), 5),
	}

	meta, err := MetaFromChunk(chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.DocumentID != docID.Hex() || meta.VectorRef != chunk.VectorRef {
		t.Errorf("identity fields lost: %+v", meta)
	}
	if meta.PolygonJSON == "" || meta.TableJSON == "" {
		t.Fatal("structured fields must be encoded")
	}

	item, err := meta.ContextItem(0.85)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Score != 0.85 {
		t.Errorf("score %v, want 0.85", item.Score)
	}
	if !reflect.DeepEqual(item.BoundingPolygon, chunk.BoundingPolygon) {
		t.Errorf("polygon round trip mismatch: %v", item.BoundingPolygon)
	}
	if item.Table == nil || item.Table.Cells[0].Text != "a" {
		t.Errorf("table round trip mismatch: %+v", item.Table)
	}
	if item.ReadingOrder != 5 || item.PageNumber != 2 {
		t.Errorf("ordering fields mismatch: %+v", item)
	}
}

func TestContextItemWithoutOptionalFields(t *testing.T) {
	meta := ChunkMeta{
		ChunkID:      "c1",
		Text:         "plain",
		PageNumber:   1,
		ChunkType:    models.ChunkTypeParagraph,
		ReadingOrder: 0,
	}

	item, err := meta.ContextItem(0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.BoundingPolygon != nil {
		t.Errorf("no polygon expected, got %v", item.BoundingPolygon)
	}
	if item.Table != nil {
		t.Errorf("no table expected, got %+v", item.Table)
	}
}
