package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"doc-rag-platform/internal/ai"
	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/internal/retrieval"
	"doc-rag-platform/internal/telemetry"
	"doc-rag-platform/models"
)

const (
	answerHistoryLimit = 5
	maxTitleRunes      = 80
)

// AnswerService runs the query pipeline: embed the question, retrieve and
// expand context from the document's vectors, generate a cited answer, and
// persist the turn.
type AnswerService struct {
	cfg           *config.Config
	documents     *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
	embedder      ai.Embedder
	expander      *retrieval.Expander
	generator     *ai.Generator
	metrics       *telemetry.Metrics
}

func NewAnswerService(
	cfg *config.Config,
	db *mongo.Database,
	embedder ai.Embedder,
	expander *retrieval.Expander,
	generator *ai.Generator,
	metrics *telemetry.Metrics,
) *AnswerService {
	return &AnswerService{
		cfg:           cfg,
		documents:     db.Collection(config.CollectionDocuments),
		conversations: db.Collection(config.CollectionConversations),
		messages:      db.Collection(config.CollectionMessages),
		embedder:      embedder,
		expander:      expander,
		generator:     generator,
		metrics:       metrics,
	}
}

// Ask answers one question inside a conversation. The answer and its
// references are persisted as a new message before anything is returned;
// a response the caller sees is always a response the history contains.
func (s *AnswerService) Ask(ctx context.Context, conversationID, question string) (*models.AskResponse, error) {
	tracer := otel.Tracer("answer")
	ctx, span := tracer.Start(ctx, "answer.ask")
	defer span.End()

	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question: %w", models.ErrMalformedInput)
	}

	convID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", conversationID, models.ErrMalformedInput)
	}

	var conv models.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"_id": convID}).Decode(&conv); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}

	var doc models.Document
	if err := s.documents.FindOne(ctx, bson.M{"_id": conv.DocumentID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("document %s: %w", conv.DocumentID.Hex(), models.ErrNotFound)
		}
		return nil, fmt.Errorf("load document %s: %w", conv.DocumentID.Hex(), err)
	}
	if doc.Status != models.StatusCompleted {
		return nil, fmt.Errorf("document %s is %s, not ready for questions: %w",
			conv.DocumentID.Hex(), doc.Status, models.ErrMalformedInput)
	}
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("document.id", conv.DocumentID.Hex()),
	)

	history := s.recentHistory(ctx, convID)

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	retrieved, err := s.expander.Expand(ctx, conv.DocumentID.Hex(), vector)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("retrieval.context_size", len(retrieved.Items)),
		attribute.Bool("retrieval.expanded", retrieved.Expanded),
	)

	result, err := s.generator.Generate(ctx, question, retrieved.Items, history)
	if err != nil {
		return nil, err
	}

	msg := models.Message{
		ConversationID: convID,
		Question:       question,
		Answer:         result.Answer,
		References:     result.References,
		TokenCost:      result.TokenCost,
		CreatedAt:      time.Now(),
	}
	inserted, err := s.messages.InsertOne(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("store answer for conversation %s: %v: %w",
			conversationID, err, models.ErrAnswerNotPersisted)
	}
	if oid, ok := inserted.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid
	}

	s.touchConversation(ctx, conv, question)

	s.metrics.RecordQuery(time.Since(start).Seconds(), retrieved.Expanded)
	s.metrics.RecordTokensUsed(int64(result.TokenCost), s.cfg.GeminiModel)
	if len(result.References) > 0 {
		cited := 0
		for _, ref := range result.References {
			if ref.RelevanceScore > 0 {
				cited++
			}
		}
		s.metrics.RecordCitationCoverage(float64(cited) / float64(len(result.References)))
	}

	logger.Info("Question answered",
		"conversation_id", conversationID,
		"context_size", len(retrieved.Items),
		"expanded", retrieved.Expanded,
		"tokens", result.TokenCost,
		"duration", time.Since(start).String(),
	)

	return &models.AskResponse{
		MessageID:  msg.ID.Hex(),
		Answer:     result.Answer,
		References: result.References,
		Timestamp:  msg.CreatedAt,
	}, nil
}

// recentHistory loads the last few turns in chronological order. A history
// read failure degrades the answer, it does not block it.
func (s *AnswerService) recentHistory(ctx context.Context, convID primitive.ObjectID) []models.Message {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(answerHistoryLimit)

	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": convID}, opts)
	if err != nil {
		logger.Warn("History lookup failed", "conversation_id", convID.Hex(), "error", err)
		return nil
	}
	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		logger.Warn("History decode failed", "conversation_id", convID.Hex(), "error", err)
		return nil
	}

	// Query sorted newest-first for the limit; flip back to oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}

// touchConversation bumps updated_at and fills in a default title from the
// first question. Best effort.
func (s *AnswerService) touchConversation(ctx context.Context, conv models.Conversation, question string) {
	update := bson.M{"updated_at": time.Now()}
	if conv.Title == "" {
		update["title"] = defaultTitle(question)
	}
	_, err := s.conversations.UpdateOne(ctx, bson.M{"_id": conv.ID}, bson.M{"$set": update})
	if err != nil {
		logger.Warn("Conversation update failed", "conversation_id", conv.ID.Hex(), "error", err)
	}
}

func defaultTitle(question string) string {
	runes := []rune(question)
	if len(runes) <= maxTitleRunes {
		return question
	}
	return string(runes[:maxTitleRunes]) + "…"
}
