package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/models"
	"doc-rag-platform/services"
	"doc-rag-platform/utils"
)

// SetupConversationRoutes registers conversation and question answering
// endpoints.
func SetupConversationRoutes(
	router *gin.Engine,
	db *mongo.Database,
	answers *services.AnswerService,
	exports *services.ExportService,
) {
	api := router.Group("/api")
	{
		api.POST("/documents/:id/conversations", HandleCreateConversation(db))
		api.GET("/documents/:id/conversations", HandleListConversations(db))
		api.POST("/conversations/:id/messages", HandleAskQuestion(answers))
		api.GET("/conversations/:id/messages", HandleListMessages(db))
		api.GET("/conversations/:id/export", HandleExportConversation(exports))
	}
}

type createConversationRequest struct {
	Title string `json:"title" binding:"omitempty,max=200"`
}

// HandleCreateConversation starts a new conversation against a document.
func HandleCreateConversation(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		ctx := c.Request.Context()
		var doc models.Document
		if err := db.Collection(config.CollectionDocuments).
			FindOne(ctx, bson.M{"_id": docID}).Decode(&doc); err != nil {
			if err == mongo.ErrNoDocuments {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to retrieve document", nil)
			return
		}

		now := time.Now()
		conv := models.Conversation{
			DocumentID: docID,
			Title:      req.Title,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		inserted, err := db.Collection(config.CollectionConversations).InsertOne(ctx, conv)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create conversation", nil)
			return
		}
		conv.ID = inserted.InsertedID.(primitive.ObjectID)

		logger.Info("Conversation created",
			"conversation_id", conv.ID.Hex(),
			"document_id", docID.Hex(),
		)
		c.JSON(http.StatusCreated, conv)
	}
}

// HandleListConversations lists a document's conversations, most recently
// active first.
func HandleListConversations(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		page, limit := parsePagination(c)
		skip := (page - 1) * limit

		conversations := db.Collection(config.CollectionConversations)
		ctx := c.Request.Context()

		cursor, err := conversations.Find(
			ctx,
			bson.M{"document_id": docID},
			options.Find().
				SetSort(bson.M{"updated_at": -1}).
				SetSkip(int64(skip)).
				SetLimit(int64(limit)),
		)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to retrieve conversations", nil)
			return
		}
		defer cursor.Close(ctx)

		var convs []models.Conversation
		if err := cursor.All(ctx, &convs); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode conversations", nil)
			return
		}

		total, err := conversations.CountDocuments(ctx, bson.M{"document_id": docID})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to count conversations", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"conversations": convs,
			"pagination": gin.H{
				"page":        page,
				"limit":       limit,
				"total":       total,
				"total_pages": (total + int64(limit) - 1) / int64(limit),
			},
		})
	}
}

// HandleAskQuestion runs the full query pipeline and returns the cited
// answer.
func HandleAskQuestion(answers *services.AnswerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "A question between 1 and 4000 characters is required", err.Error())
			return
		}

		resp, err := answers.Ask(c.Request.Context(), c.Param("id"), req.Question)
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// HandleListMessages returns a conversation's turns in chronological order.
func HandleListMessages(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		convID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid conversation id", nil)
			return
		}

		page, limit := parsePagination(c)
		skip := (page - 1) * limit

		messages := db.Collection(config.CollectionMessages)
		ctx := c.Request.Context()

		cursor, err := messages.Find(
			ctx,
			bson.M{"conversation_id": convID},
			options.Find().
				SetSort(bson.M{"created_at": 1}).
				SetSkip(int64(skip)).
				SetLimit(int64(limit)),
		)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to retrieve messages", nil)
			return
		}
		defer cursor.Close(ctx)

		var msgs []models.Message
		if err := cursor.All(ctx, &msgs); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode messages", nil)
			return
		}

		total, err := messages.CountDocuments(ctx, bson.M{"conversation_id": convID})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to count messages", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"messages": msgs,
			"pagination": gin.H{
				"page":        page,
				"limit":       limit,
				"total":       total,
				"total_pages": (total + int64(limit) - 1) / int64(limit),
			},
		})
	}
}

// HandleExportConversation streams the transcript as JSON, Excel, or both.
func HandleExportConversation(exports *services.ExportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := c.DefaultQuery("format", "json")
		switch format {
		case "json", "excel", "both":
		default:
			utils.RespondWithBadRequest(c, "format must be json, excel, or both", nil)
			return
		}

		transcript, err := exports.BuildTranscript(c.Request.Context(), c.Param("id"), format)
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}

		if err := exports.StreamTranscript(c, transcript, format); err != nil {
			logger.Error("Export stream failed", "conversation_id", c.Param("id"), "error", err)
			utils.RespondWithInternalError(c, "Failed to generate export", nil)
		}
	}
}
