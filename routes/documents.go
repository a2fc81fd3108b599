package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/internal/queue"
	"doc-rag-platform/models"
	"doc-rag-platform/services"
	"doc-rag-platform/utils"
)

// SetupDocumentRoutes registers the document lifecycle endpoints.
func SetupDocumentRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *mongo.Database,
	storage *services.FileStorageManager,
	rdb *redis.Client,
	queueClient *asynq.Client,
) {
	api := router.Group("/api/documents")
	{
		api.POST("", HandleDocumentUpload(cfg, db, storage, queueClient))
		api.GET("", HandleListDocuments(db))
		api.GET("/:id", HandleGetDocument(db))
		api.GET("/:id/status", HandleDocumentStatus(db, rdb))
		api.DELETE("/:id", HandleDeleteDocument(db, queueClient))
	}
}

// HandleDocumentUpload accepts a PDF, stores it, and queues ingestion.
// The response returns immediately; clients poll the status endpoint.
func HandleDocumentUpload(cfg *config.Config, db *mongo.Database, storage *services.FileStorageManager, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "file_too_large",
				"File size exceeds maximum limit", nil)
			return
		}

		file, header, err := c.Request.FormFile("document")
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "no_file",
				"No document file provided", nil)
			return
		}
		defer file.Close()

		if err := storage.ValidateUpload(header); err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}

		stored, err := storage.Store(file, header)
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}

		documents := db.Collection(config.CollectionDocuments)
		ctx := c.Request.Context()

		// Same bytes, same document: dedupe on content hash. A failed or
		// half-deleted row does not block a fresh attempt.
		var existing models.Document
		err = documents.FindOne(ctx, bson.M{
			"file_hash": stored.Hash,
			"status": bson.M{"$in": []string{
				models.StatusPending, models.StatusProcessing, models.StatusCompleted,
			}},
		}).Decode(&existing)
		if err == nil {
			storage.Cleanup(stored.Path)
			c.JSON(http.StatusOK, models.UploadResponse{
				ID:       existing.ID.Hex(),
				Filename: existing.OriginalName,
				Status:   existing.Status,
				Message:  "Document already uploaded",
			})
			return
		}
		if err != mongo.ErrNoDocuments {
			storage.Cleanup(stored.Path)
			utils.RespondWithInternalError(c, "Failed to check for duplicates", nil)
			return
		}

		now := time.Now()
		doc := models.Document{
			Filename:     stored.SecureName,
			OriginalName: header.Filename,
			FilePath:     stored.Path,
			FileHash:     stored.Hash,
			SizeBytes:    stored.Size,
			Status:       models.StatusPending,
			UploadedAt:   now,
			UpdatedAt:    now,
		}
		inserted, err := documents.InsertOne(ctx, doc)
		if err != nil {
			storage.Cleanup(stored.Path)
			utils.RespondWithInternalError(c, "Failed to create document record", nil)
			return
		}
		docID := inserted.InsertedID.(primitive.ObjectID)

		task, err := queue.NewDocumentIngestTask(docID.Hex())
		if err != nil {
			storage.Cleanup(stored.Path)
			documents.DeleteOne(ctx, bson.M{"_id": docID})
			utils.RespondWithError(c, http.StatusInternalServerError, "queue_error",
				"Failed to create processing task", nil)
			return
		}
		info, err := queueClient.Enqueue(task)
		if err != nil {
			storage.Cleanup(stored.Path)
			documents.DeleteOne(ctx, bson.M{"_id": docID})
			utils.RespondWithError(c, http.StatusInternalServerError, "queue_error",
				"Failed to enqueue processing task", nil)
			return
		}

		logger.Info("Document upload accepted",
			"document_id", docID.Hex(),
			"filename", header.Filename,
			"size", stored.Size,
		)

		c.JSON(http.StatusAccepted, models.UploadResponse{
			ID:       docID.Hex(),
			Filename: header.Filename,
			Status:   models.StatusPending,
			Message:  "Document accepted for processing",
			TaskID:   info.ID,
		})
	}
}

// HandleListDocuments lists documents with pagination, newest first.
func HandleListDocuments(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := parsePagination(c)
		skip := (page - 1) * limit

		documents := db.Collection(config.CollectionDocuments)
		ctx := c.Request.Context()

		cursor, err := documents.Find(
			ctx,
			bson.M{},
			options.Find().
				SetSort(bson.M{"uploaded_at": -1}).
				SetSkip(int64(skip)).
				SetLimit(int64(limit)),
		)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to retrieve documents", nil)
			return
		}
		defer cursor.Close(ctx)

		var docs []models.Document
		if err := cursor.All(ctx, &docs); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode documents", nil)
			return
		}

		total, err := documents.CountDocuments(ctx, bson.M{})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to count documents", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"documents": docs,
			"pagination": gin.H{
				"page":        page,
				"limit":       limit,
				"total":       total,
				"total_pages": (total + int64(limit) - 1) / int64(limit),
			},
		})
	}
}

// HandleGetDocument returns one document row.
func HandleGetDocument(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		var doc models.Document
		err = db.Collection(config.CollectionDocuments).
			FindOne(c.Request.Context(), bson.M{"_id": docID}).
			Decode(&doc)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to retrieve document", nil)
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// HandleDocumentStatus reports ingestion progress. While a document is
// processing the Redis mirror answers without touching MongoDB; terminal
// states come from the document row, which also carries the counts.
func HandleDocumentStatus(db *mongo.Database, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := primitive.ObjectIDFromHex(id); err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		ctx := c.Request.Context()
		if progress, ok := services.ReadProgress(ctx, rdb, id); ok && progress.Status == models.StatusProcessing {
			c.JSON(http.StatusOK, gin.H{
				"id":       id,
				"status":   progress.Status,
				"stage":    progress.Stage,
				"progress": progress.Progress,
			})
			return
		}

		docID, _ := primitive.ObjectIDFromHex(id)
		var doc models.Document
		err := db.Collection(config.CollectionDocuments).
			FindOne(ctx, bson.M{"_id": docID}).
			Decode(&doc)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to retrieve document status", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":            id,
			"status":        doc.Status,
			"stage":         doc.Stage,
			"progress":      doc.Progress,
			"error_message": doc.ErrorMessage,
			"page_count":    doc.PageCount,
			"chunk_count":   doc.ChunkCount,
			"uploaded_at":   doc.UploadedAt,
			"processed_at":  doc.ProcessedAt,
		})
	}
}

// HandleDeleteDocument marks a document deleting and queues the purge. The
// janitor re-enqueues any purge that never ran, so a queue hiccup here still
// converges on deletion.
func HandleDeleteDocument(db *mongo.Database, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		documents := db.Collection(config.CollectionDocuments)
		ctx := c.Request.Context()

		var doc models.Document
		if err := documents.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc); err != nil {
			if err == mongo.ErrNoDocuments {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to retrieve document", nil)
			return
		}

		if doc.Status == models.StatusDeleting {
			c.JSON(http.StatusAccepted, gin.H{
				"id":      docID.Hex(),
				"status":  models.StatusDeleting,
				"message": "Deletion already in progress",
			})
			return
		}

		_, err = documents.UpdateOne(ctx, bson.M{"_id": docID}, bson.M{
			"$set": bson.M{
				"status":     models.StatusDeleting,
				"updated_at": time.Now(),
			},
		})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to mark document for deletion", nil)
			return
		}

		task, err := queue.NewDocumentPurgeTask(docID.Hex())
		if err == nil {
			_, err = queueClient.Enqueue(task)
		}
		if err != nil {
			logger.Warn("Purge enqueue failed, janitor will retry",
				"document_id", docID.Hex(), "error", err)
		}

		c.JSON(http.StatusAccepted, gin.H{
			"id":      docID.Hex(),
			"status":  models.StatusDeleting,
			"message": "Deletion scheduled",
		})
	}
}

func parsePagination(c *gin.Context) (page, limit int) {
	page, limit = 1, 10
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	return page, limit
}
