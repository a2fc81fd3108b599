package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document represents an uploaded PDF and the state of its ingestion pipeline
type Document struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Filename     string             `bson:"filename" json:"filename"`
	OriginalName string             `bson:"original_name" json:"original_name"`
	FilePath     string             `bson:"file_path" json:"-"` // Storage path
	FileHash     string             `bson:"file_hash" json:"-"` // For deduplication
	SizeBytes    int64              `bson:"size_bytes" json:"size_bytes"`
	Status       string             `bson:"status" json:"status"` // pending, processing, completed, failed, deleting
	Stage        string             `bson:"stage,omitempty" json:"stage,omitempty"`
	Progress     int                `bson:"progress" json:"progress"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	PageCount    int                `bson:"page_count" json:"page_count"`
	ChunkCount   int                `bson:"chunk_count" json:"chunk_count"`
	RawArchive   []byte             `bson:"raw_archive,omitempty" json:"-"` // Brotli-compressed extraction payload
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// UploadResponse represents the response after a successful upload
type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	TaskID   string `json:"task_id,omitempty"` // For async processing
}

// IngestionProgress is the lightweight status snapshot mirrored to Redis
// while a document moves through the pipeline, so status polling does not
// hit MongoDB on every request.
type IngestionProgress struct {
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// Document processing status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusDeleting   = "deleting"
)

// Ingestion stage constants, reported alongside Progress while Status is processing
const (
	StageExtracting = "extracting"
	StageSegmenting = "segmenting"
	StageEmbedding  = "embedding"
	StageIndexing   = "indexing"
	StagePersisting = "persisting"
)

// ExtractionMethod identifies which extraction path produced a document's blocks
const (
	ExtractionMethodLayout = "layout" // external layout-analysis service
	ExtractionMethodNative = "native" // in-process PDF text extraction
)
