package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"doc-rag-platform/internal/ai"
	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/extraction"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/internal/segment"
	"doc-rag-platform/internal/telemetry"
	"doc-rag-platform/internal/vectorindex"
	"doc-rag-platform/models"
	"doc-rag-platform/utils"
)

const progressTTL = time.Hour

// chunkIndex is the slice of the vector store the pipeline needs.
type chunkIndex interface {
	Upsert(ctx context.Context, records []vectorindex.Record) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

// IngestionService runs the per-document pipeline: extract, segment, embed,
// index, persist. Each document is fully independent of every other; the
// only shared state is the collections and the index, both keyed by
// document id.
type IngestionService struct {
	cfg           *config.Config
	documents     *mongo.Collection
	chunks        *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
	extractor     *extraction.Service
	embedder      ai.Embedder
	index         chunkIndex
	storage       *FileStorageManager
	rdb           *redis.Client
	metrics       *telemetry.Metrics
}

func NewIngestionService(
	cfg *config.Config,
	db *mongo.Database,
	extractor *extraction.Service,
	embedder ai.Embedder,
	index chunkIndex,
	storage *FileStorageManager,
	rdb *redis.Client,
	metrics *telemetry.Metrics,
) *IngestionService {
	return &IngestionService{
		cfg:           cfg,
		documents:     db.Collection(config.CollectionDocuments),
		chunks:        db.Collection(config.CollectionChunks),
		conversations: db.Collection(config.CollectionConversations),
		messages:      db.Collection(config.CollectionMessages),
		extractor:     extractor,
		embedder:      embedder,
		index:         index,
		storage:       storage,
		rdb:           rdb,
		metrics:       metrics,
	}
}

// IngestDocument processes one uploaded document end to end. Stages run
// strictly in order; a failure after vectors or chunk rows exist rolls both
// back so no half-ingested document survives. The returned error drives the
// queue's retry decision.
func (s *IngestionService) IngestDocument(ctx context.Context, documentID string) error {
	tracer := otel.Tracer("ingestion")
	ctx, span := tracer.Start(ctx, "ingestion.document")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", documentID))

	start := time.Now()

	docID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", documentID, models.ErrMalformedInput)
	}

	var doc models.Document
	if err := s.documents.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
		}
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	logger.Info("Ingestion started", "document_id", documentID, "filename", doc.OriginalName)

	s.setStage(ctx, docID, models.StageExtracting, 10)

	data, err := s.storage.ReadFile(doc.FilePath)
	if err != nil {
		return s.abort(docID, start, fmt.Errorf("read upload: %w", err))
	}

	result, err := s.extractor.Analyze(ctx, data, doc.OriginalName)
	if err != nil {
		return s.abort(docID, start, fmt.Errorf("extraction: %w", err))
	}
	span.SetAttributes(
		attribute.Int("document.pages", len(result.Pages)),
		attribute.String("document.extraction_method", result.Method),
	)

	s.archiveExtraction(ctx, docID, result)

	s.setStage(ctx, docID, models.StageSegmenting, 30)
	chunks := segment.Segment(docID, result.OrderedBlocks())
	pageCount := len(result.Pages)
	span.SetAttributes(attribute.Int("document.chunks", len(chunks)))

	// A scanned-image PDF or an empty file legitimately yields zero chunks.
	// That is a completed document with nothing to query, not a failure.
	if len(chunks) == 0 {
		logger.Warn("Document produced no chunks", "document_id", documentID, "pages", pageCount)
		s.complete(ctx, docID, pageCount, 0)
		s.metrics.RecordIngestion(time.Since(start).Seconds(), "empty")
		return nil
	}

	s.setStage(ctx, docID, models.StageEmbedding, 50)
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return s.abort(docID, start, fmt.Errorf("embedding: %w", err))
	}
	if len(vectors) != len(chunks) {
		return s.abort(docID, start, fmt.Errorf("embedding returned %d vectors for %d chunks: %w",
			len(vectors), len(chunks), models.ErrUpstreamUnavailable))
	}

	s.setStage(ctx, docID, models.StageIndexing, 70)
	records := make([]vectorindex.Record, len(chunks))
	for i, chunk := range chunks {
		meta, err := vectorindex.MetaFromChunk(chunk)
		if err != nil {
			return s.abort(docID, start, err)
		}
		records[i] = vectorindex.Record{
			Ref:    chunk.VectorRef,
			Vector: vectors[i],
			Meta:   meta,
		}
	}
	if err := s.index.Upsert(ctx, records); err != nil {
		return s.abort(docID, start, err)
	}

	s.setStage(ctx, docID, models.StagePersisting, 90)
	// Clear any rows from a previous attempt so re-ingestion stays idempotent.
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": docID}); err != nil {
		return s.abort(docID, start, fmt.Errorf("clear stale chunks: %w", err))
	}
	rows := make([]interface{}, len(chunks))
	for i := range chunks {
		rows[i] = chunks[i]
	}
	if _, err := s.chunks.InsertMany(ctx, rows); err != nil {
		return s.abort(docID, start, fmt.Errorf("persist chunks: %w", err))
	}

	s.complete(ctx, docID, pageCount, len(chunks))
	s.metrics.RecordIngestion(time.Since(start).Seconds(), "completed")
	s.metrics.RecordChunksIngested(int64(len(chunks)))

	logger.Info("Ingestion completed",
		"document_id", documentID,
		"pages", pageCount,
		"chunks", len(chunks),
		"duration", time.Since(start).String(),
	)
	return nil
}

// PurgeDocument removes every trace of a document: vectors, chunk rows,
// conversations and their messages, the stored file, and finally the
// document row itself. Safe to call twice.
func (s *IngestionService) PurgeDocument(ctx context.Context, documentID string) error {
	docID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", documentID, models.ErrMalformedInput)
	}

	var doc models.Document
	err = s.documents.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		logger.Info("Purge skipped, document already gone", "document_id", documentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	// Vectors first: the external call most likely to fail, and retrying the
	// whole purge after a partial one is harmless.
	if err := s.index.DeleteNamespace(ctx, documentID); err != nil {
		return err
	}

	if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": docID}); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", documentID, err)
	}

	cursor, err := s.conversations.Find(ctx, bson.M{"document_id": docID})
	if err != nil {
		return fmt.Errorf("list conversations for %s: %w", documentID, err)
	}
	var convs []models.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return fmt.Errorf("decode conversations for %s: %w", documentID, err)
	}
	if len(convs) > 0 {
		ids := make([]primitive.ObjectID, len(convs))
		for i, c := range convs {
			ids[i] = c.ID
		}
		if _, err := s.messages.DeleteMany(ctx, bson.M{"conversation_id": bson.M{"$in": ids}}); err != nil {
			return fmt.Errorf("delete messages for %s: %w", documentID, err)
		}
		if _, err := s.conversations.DeleteMany(ctx, bson.M{"document_id": docID}); err != nil {
			return fmt.Errorf("delete conversations for %s: %w", documentID, err)
		}
	}

	s.storage.Cleanup(doc.FilePath)

	if _, err := s.documents.DeleteOne(ctx, bson.M{"_id": docID}); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	s.rdb.Del(ctx, progressKey(documentID))

	logger.Info("Document purged", "document_id", documentID, "conversations", len(convs))
	return nil
}

// archiveExtraction keeps the raw extraction payload on the document row,
// brotli-compressed, so a document can be re-segmented later without another
// round trip to the extraction service. Best effort.
func (s *IngestionService) archiveExtraction(ctx context.Context, docID primitive.ObjectID, result *extraction.Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		logger.Warn("Could not encode extraction archive", "document_id", docID.Hex(), "error", err)
		return
	}
	archived, err := utils.CompressArchive(raw)
	if err != nil {
		logger.Warn("Could not compress extraction archive", "document_id", docID.Hex(), "error", err)
		return
	}
	_, err = s.documents.UpdateOne(ctx, bson.M{"_id": docID}, bson.M{
		"$set": bson.M{"raw_archive": archived},
	})
	if err != nil {
		logger.Warn("Could not store extraction archive", "document_id", docID.Hex(), "error", err)
	}
}

// abort rolls back everything this run may have written and marks the
// document failed. Rollback uses a fresh context so cancellation of the
// task cannot strand half-written state.
func (s *IngestionService) abort(docID primitive.ObjectID, start time.Time, cause error) error {
	logger.Error("Ingestion failed, rolling back", "document_id", docID.Hex(), "error", cause)

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.chunks.DeleteMany(cleanupCtx, bson.M{"document_id": docID}); err != nil {
		logger.Warn("Rollback: chunk cleanup failed", "document_id", docID.Hex(), "error", err)
	}
	if err := s.index.DeleteNamespace(cleanupCtx, docID.Hex()); err != nil {
		logger.Warn("Rollback: vector cleanup failed", "document_id", docID.Hex(), "error", err)
	}

	now := time.Now()
	_, err := s.documents.UpdateOne(cleanupCtx, bson.M{"_id": docID}, bson.M{
		"$set": bson.M{
			"status":        models.StatusFailed,
			"stage":         "",
			"progress":      0,
			"error_message": cause.Error(),
			"updated_at":    now,
			"processed_at":  now,
		},
	})
	if err != nil {
		logger.Warn("Rollback: status update failed", "document_id", docID.Hex(), "error", err)
	}

	s.mirrorProgress(cleanupCtx, docID, models.IngestionProgress{
		Status:   models.StatusFailed,
		Progress: 0,
		Error:    cause.Error(),
	})
	s.metrics.RecordIngestion(time.Since(start).Seconds(), "failed")
	s.metrics.RecordUpstreamError("ingestion")

	return cause
}

func (s *IngestionService) setStage(ctx context.Context, docID primitive.ObjectID, stage string, progress int) {
	_, err := s.documents.UpdateOne(ctx, bson.M{"_id": docID}, bson.M{
		"$set": bson.M{
			"status":        models.StatusProcessing,
			"stage":         stage,
			"progress":      progress,
			"error_message": "",
			"updated_at":    time.Now(),
		},
	})
	if err != nil {
		logger.Warn("Stage update failed", "document_id", docID.Hex(), "stage", stage, "error", err)
	}

	s.mirrorProgress(ctx, docID, models.IngestionProgress{
		Status:   models.StatusProcessing,
		Stage:    stage,
		Progress: progress,
	})
}

func (s *IngestionService) complete(ctx context.Context, docID primitive.ObjectID, pageCount, chunkCount int) {
	now := time.Now()
	_, err := s.documents.UpdateOne(ctx, bson.M{"_id": docID}, bson.M{
		"$set": bson.M{
			"status":       models.StatusCompleted,
			"stage":        "",
			"progress":     100,
			"page_count":   pageCount,
			"chunk_count":  chunkCount,
			"updated_at":   now,
			"processed_at": now,
		},
	})
	if err != nil {
		logger.Warn("Completion update failed", "document_id", docID.Hex(), "error", err)
	}

	s.mirrorProgress(ctx, docID, models.IngestionProgress{
		Status:   models.StatusCompleted,
		Progress: 100,
	})
}

// mirrorProgress writes the status snapshot to Redis. Polling endpoints read
// it before falling back to MongoDB. Redis being down never blocks the
// pipeline.
func (s *IngestionService) mirrorProgress(ctx context.Context, docID primitive.ObjectID, progress models.IngestionProgress) {
	if s.rdb == nil {
		return
	}
	encoded, err := json.Marshal(progress)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, progressKey(docID.Hex()), encoded, progressTTL).Err(); err != nil {
		logger.Debug("Progress mirror write failed", "document_id", docID.Hex(), "error", err)
	}
}

func progressKey(documentID string) string {
	return "ingest:progress:" + documentID
}

// ReadProgress returns the Redis status snapshot for a document, if one
// exists.
func ReadProgress(ctx context.Context, rdb *redis.Client, documentID string) (*models.IngestionProgress, bool) {
	if rdb == nil {
		return nil, false
	}
	raw, err := rdb.Get(ctx, progressKey(documentID)).Result()
	if err != nil {
		return nil, false
	}
	var progress models.IngestionProgress
	if err := json.Unmarshal([]byte(raw), &progress); err != nil {
		return nil, false
	}
	return &progress, true
}
