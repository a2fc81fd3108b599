package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"doc-rag-platform/internal/logger"
	"doc-rag-platform/models"
)

const (
	TaskDocumentIngest = "document:ingest"
	TaskDocumentPurge  = "document:purge"
)

type DocumentIngestPayload struct {
	DocumentID string `json:"document_id"`
}

type DocumentPurgePayload struct {
	DocumentID string `json:"document_id"`
}

// Task creators
func NewDocumentIngestTask(documentID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentIngestPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskDocumentIngest,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

func NewDocumentPurgeTask(documentID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentPurgePayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskDocumentPurge,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("default"),
	), nil
}

// Ingester runs the full ingestion pipeline for one document.
type Ingester interface {
	IngestDocument(ctx context.Context, documentID string) error
}

// Purger removes a document and everything derived from it.
type Purger interface {
	PurgeDocument(ctx context.Context, documentID string) error
}

// TaskProcessor adapts the services to asynq handlers and decides which
// failures are worth retrying.
type TaskProcessor struct {
	ingester Ingester
	purger   Purger
}

func NewTaskProcessor(ingester Ingester, purger Purger) *TaskProcessor {
	return &TaskProcessor{
		ingester: ingester,
		purger:   purger,
	}
}

func (p *TaskProcessor) HandleDocumentIngest(ctx context.Context, t *asynq.Task) error {
	var payload DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Ingest task started", "document_id", payload.DocumentID)

	err := p.ingester.IngestDocument(ctx, payload.DocumentID)
	if err == nil {
		return nil
	}

	// Bad ids and vanished documents will not get better on retry.
	if errors.Is(err, models.ErrMalformedInput) || errors.Is(err, models.ErrNotFound) {
		logger.Warn("Ingest task dropped", "document_id", payload.DocumentID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (p *TaskProcessor) HandleDocumentPurge(ctx context.Context, t *asynq.Task) error {
	var payload DocumentPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Purge task started", "document_id", payload.DocumentID)

	err := p.purger.PurgeDocument(ctx, payload.DocumentID)
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrMalformedInput) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}
