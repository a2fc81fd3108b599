package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation groups the question/answer turns for one document.
type Conversation struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DocumentID primitive.ObjectID `bson:"document_id" json:"document_id"`
	Title      string             `bson:"title,omitempty" json:"title,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}

// Reference maps one citation index in an answer back to its source chunk.
// References are aligned 1:1 with the context supplied to generation: entry i
// always carries CitationIndex i+1, whether or not the marker was used.
// RelevanceScore is the binary citation-presence flag (1.0 if [i+1] appears in
// the answer, else 0.0); SimilarityScore keeps the retrieval-time vector score.
type Reference struct {
	CitationIndex   int       `bson:"citation_index" json:"citation_index"`
	ChunkID         string    `bson:"chunk_id" json:"chunk_id"`
	PageNumber      int       `bson:"page_number" json:"page_number"`
	Text            string    `bson:"text" json:"text"` // Truncated preview
	RelevanceScore  float64   `bson:"relevance_score" json:"relevance_score"`
	SimilarityScore float64   `bson:"similarity_score" json:"similarity_score"`
	BoundingPolygon []float64 `bson:"bounding_polygon,omitempty" json:"bounding_polygon,omitempty"`
	ChunkType       string    `bson:"chunk_type" json:"chunk_type"`
}

// Message is one immutable question/answer turn with its references.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	Question       string             `bson:"question" json:"question"`
	Answer         string             `bson:"answer" json:"answer"`
	References     []Reference        `bson:"references" json:"references"`
	TokenCost      int                `bson:"token_cost,omitempty" json:"token_cost,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// ContextItem is one retrieved chunk handed to generation. Ephemeral: it is
// constructed per query and never persisted apart from the Reference it yields.
type ContextItem struct {
	ChunkID         string          `json:"chunk_id"`
	Text            string          `json:"text"`
	PageNumber      int             `json:"page_number"`
	ChunkType       string          `json:"chunk_type"`
	ReadingOrder    int             `json:"reading_order"`
	Score           float64         `json:"score"`
	BoundingPolygon []float64       `json:"bounding_polygon,omitempty"`
	Table           *TableStructure `json:"table,omitempty"`
}

// AskRequest is the body for posting a question to a conversation.
type AskRequest struct {
	Question string `json:"question" binding:"required,min=1,max=4000"`
}

// AskResponse is returned after a question is answered and persisted.
type AskResponse struct {
	MessageID  string      `json:"message_id"`
	Answer     string      `json:"answer"`
	References []Reference `json:"references"`
	Timestamp  time.Time   `json:"timestamp"`
}
