package ai

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"doc-rag-platform/internal/logger"
	"doc-rag-platform/models"

	genai "github.com/google/generative-ai-go/genai"
)

// Embedder produces fixed-dimension vectors for chunk texts and queries.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedTexts returns one vector per input text, in input order. Texts are
// sent in batches; a batch that still fails after one retry aborts the whole
// call, because a partial result would desynchronize chunk-to-vector
// alignment downstream.
func (gc *GeminiClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_texts")
	defer span.End()

	span.SetAttributes(
		attribute.Int("gemini.texts", len(texts)),
		attribute.String("gemini.model", gc.embeddingModel),
	)

	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += gc.batchSize {
		end := start + gc.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		batchVectors, err := gc.embedBatch(ctx, batch)
		if err != nil {
			logger.Warn("Embedding batch failed, retrying once", "offset", start, "size", len(batch), "error", err)
			batchVectors, err = gc.embedBatch(ctx, batch)
		}
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			return nil, fmt.Errorf("embedding batch at offset %d: %w", start, err)
		}
		vectors = append(vectors, batchVectors...)
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (gc *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_query")
	defer span.End()

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.EmbeddingModel(gc.embeddingModel)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil {
			return nil, fmt.Errorf("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		return nil, gc.mapError(span, err)
	}

	vector := result.([]float32)
	if err := gc.checkDimensions(vector); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return vector, nil
}

func (gc *GeminiClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_batch")
	defer span.End()

	span.SetAttributes(attribute.Int("gemini.batch_size", len(texts)))

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.EmbeddingModel(gc.embeddingModel)
		batch := model.NewBatch()
		for _, text := range texts {
			batch = batch.AddContent(genai.Text(text))
		}

		resp, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, gc.mapError(span, err)
	}

	resp := result.(*genai.BatchEmbedContentsResponse)
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors: %w",
			len(texts), len(resp.Embeddings), models.ErrUpstreamUnavailable)
	}

	vectors := make([][]float32, 0, len(texts))
	for _, embedding := range resp.Embeddings {
		if embedding == nil {
			return nil, fmt.Errorf("nil embedding in batch response: %w", models.ErrUpstreamUnavailable)
		}
		if err := gc.checkDimensions(embedding.Values); err != nil {
			return nil, err
		}
		vectors = append(vectors, embedding.Values)
	}
	return vectors, nil
}

// checkDimensions guards the contract shared with the vector index: every
// vector written or queried must match the configured collection size.
func (gc *GeminiClient) checkDimensions(vector []float32) error {
	if gc.dimensions > 0 && len(vector) != gc.dimensions {
		return fmt.Errorf("embedding dimension mismatch: got %d, index expects %d: %w",
			len(vector), gc.dimensions, models.ErrUpstreamUnavailable)
	}
	return nil
}
