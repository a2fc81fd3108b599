package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/internal/queue"
	"doc-rag-platform/models"
)

const staleErrorMessage = "ingestion stalled and was marked failed"

// JanitorService periodically repairs documents the pipeline left behind:
// ingestions whose worker died mid-run, and deletions that never finished.
type JanitorService struct {
	cfg       *config.Config
	documents *mongo.Collection
	tasks     *asynq.Client
	scheduler *gocron.Scheduler
}

func NewJanitorService(cfg *config.Config, db *mongo.Database, tasks *asynq.Client) *JanitorService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &JanitorService{
		cfg:       cfg,
		documents: db.Collection(config.CollectionDocuments),
		tasks:     tasks,
		scheduler: s,
	}
}

func (j *JanitorService) Start() error {
	interval := time.Duration(j.cfg.JanitorIntervalMinutes) * time.Minute
	if _, err := j.scheduler.Every(interval).Tag("document-sweep").Do(j.Sweep); err != nil {
		return err
	}
	j.scheduler.StartAsync()
	logger.Info("Janitor started", "interval", interval.String())
	return nil
}

func (j *JanitorService) Stop() {
	j.scheduler.Stop()
}

// Sweep runs one maintenance pass. Each repair is independent; one failing
// never blocks the other.
func (j *JanitorService) Sweep() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.failStaleProcessing(ctx); err != nil {
		logger.Error("Janitor: stale ingestion sweep failed", "error", err)
	}
	if err := j.resumePendingDeletes(ctx); err != nil {
		logger.Error("Janitor: pending delete sweep failed", "error", err)
	}
	return nil
}

// failStaleProcessing marks documents failed when their last stage update is
// older than the configured threshold. asynq's task timeout usually catches
// these first; this covers workers that died without returning.
func (j *JanitorService) failStaleProcessing(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(j.cfg.StaleProcessingMinutes) * time.Minute)

	res, err := j.documents.UpdateMany(ctx,
		bson.M{
			"status":     models.StatusProcessing,
			"updated_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":        models.StatusFailed,
			"stage":         "",
			"progress":      0,
			"error_message": staleErrorMessage,
			"updated_at":    time.Now(),
		}},
	)
	if err != nil {
		return err
	}
	if res.ModifiedCount > 0 {
		logger.Warn("Janitor: marked stalled ingestions failed", "count", res.ModifiedCount)
	}
	return nil
}

// resumePendingDeletes re-enqueues a purge for every document still marked
// deleting. Purge is idempotent, so re-enqueueing one already in flight is
// harmless.
func (j *JanitorService) resumePendingDeletes(ctx context.Context) error {
	cursor, err := j.documents.Find(ctx, bson.M{"status": models.StatusDeleting})
	if err != nil {
		return err
	}
	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return err
	}

	for _, doc := range docs {
		task, err := queue.NewDocumentPurgeTask(doc.ID.Hex())
		if err != nil {
			logger.Warn("Janitor: purge task build failed", "document_id", doc.ID.Hex(), "error", err)
			continue
		}
		if _, err := j.tasks.Enqueue(task); err != nil {
			logger.Warn("Janitor: purge enqueue failed", "document_id", doc.ID.Hex(), "error", err)
		}
	}
	if len(docs) > 0 {
		logger.Info("Janitor: re-enqueued pending deletions", "count", len(docs))
	}
	return nil
}
