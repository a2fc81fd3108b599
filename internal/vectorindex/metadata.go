package vectorindex

import (
	"encoding/json"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"

	"doc-rag-platform/models"
)

// ChunkMeta is the typed payload stored next to each vector. It is the only
// shape metadata takes inside the process; conversion to and from the store's
// wire form happens exactly once, in ToPayload and metaFromPayload. Optional
// fields are omitted from the payload entirely when absent, never written as
// null or zero placeholders.
type ChunkMeta struct {
	DocumentID   string
	ChunkID      string
	VectorRef    string
	Text         string
	PageNumber   int
	ChunkType    string
	ReadingOrder int

	HeadingLevel int    // optional, 0 means absent
	PolygonJSON  string // optional, JSON array of floats
	TableJSON    string // optional, JSON models.TableStructure
}

// MetaFromChunk flattens a chunk into its index payload form.
func MetaFromChunk(chunk models.Chunk) (ChunkMeta, error) {
	meta := ChunkMeta{
		DocumentID:   chunk.DocumentID.Hex(),
		ChunkID:      chunk.ID,
		VectorRef:    chunk.VectorRef,
		Text:         chunk.Text,
		PageNumber:   chunk.PageNumber,
		ChunkType:    chunk.ChunkType,
		ReadingOrder: chunk.ReadingOrder,
		HeadingLevel: chunk.HeadingLevel,
	}

	if len(chunk.BoundingPolygon) > 0 {
		encoded, err := json.Marshal(chunk.BoundingPolygon)
		if err != nil {
			return ChunkMeta{}, fmt.Errorf("vectorindex: encode polygon for %s: %w", chunk.VectorRef, err)
		}
		meta.PolygonJSON = string(encoded)
	}
	if chunk.Table != nil {
		encoded, err := json.Marshal(chunk.Table)
		if err != nil {
			return ChunkMeta{}, fmt.Errorf("vectorindex: encode table for %s: %w", chunk.VectorRef, err)
		}
		meta.TableJSON = string(encoded)
	}
	return meta, nil
}

// ContextItem rehydrates the retrieval-facing view of this metadata.
func (m ChunkMeta) ContextItem(score float64) (models.ContextItem, error) {
	item := models.ContextItem{
		ChunkID:      m.ChunkID,
		Text:         m.Text,
		PageNumber:   m.PageNumber,
		ChunkType:    m.ChunkType,
		ReadingOrder: m.ReadingOrder,
		Score:        score,
	}

	if m.PolygonJSON != "" {
		if err := json.Unmarshal([]byte(m.PolygonJSON), &item.BoundingPolygon); err != nil {
			return models.ContextItem{}, fmt.Errorf("vectorindex: decode polygon for %s: %w", m.VectorRef, err)
		}
	}
	if m.TableJSON != "" {
		item.Table = &models.TableStructure{}
		if err := json.Unmarshal([]byte(m.TableJSON), item.Table); err != nil {
			return models.ContextItem{}, fmt.Errorf("vectorindex: decode table for %s: %w", m.VectorRef, err)
		}
	}
	return item, nil
}

// ToPayload converts the struct into Qdrant payload values.
func (m ChunkMeta) ToPayload() map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"document_id":   stringValue(m.DocumentID),
		"chunk_id":      stringValue(m.ChunkID),
		"vector_ref":    stringValue(m.VectorRef),
		"text":          stringValue(m.Text),
		"page_number":   intValue(m.PageNumber),
		"chunk_type":    stringValue(m.ChunkType),
		"reading_order": intValue(m.ReadingOrder),
	}

	if m.HeadingLevel > 0 {
		payload["heading_level"] = intValue(m.HeadingLevel)
	}
	if m.PolygonJSON != "" {
		payload["polygon_json"] = stringValue(m.PolygonJSON)
	}
	if m.TableJSON != "" {
		payload["table_json"] = stringValue(m.TableJSON)
	}
	return payload
}

func metaFromPayload(payload map[string]*pb.Value) ChunkMeta {
	return ChunkMeta{
		DocumentID:   payload["document_id"].GetStringValue(),
		ChunkID:      payload["chunk_id"].GetStringValue(),
		VectorRef:    payload["vector_ref"].GetStringValue(),
		Text:         payload["text"].GetStringValue(),
		PageNumber:   int(payload["page_number"].GetIntegerValue()),
		ChunkType:    payload["chunk_type"].GetStringValue(),
		ReadingOrder: int(payload["reading_order"].GetIntegerValue()),
		HeadingLevel: int(payload["heading_level"].GetIntegerValue()),
		PolygonJSON:  payload["polygon_json"].GetStringValue(),
		TableJSON:    payload["table_json"].GetStringValue(),
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(i int) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(i)}}
}
