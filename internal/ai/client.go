package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/internal/telemetry"
	"doc-rag-platform/models"

	genai "github.com/google/generative-ai-go/genai"
)

// ChatMessage is one turn in the completion request. Role is "user" or
// "model", matching the Gemini content roles.
type ChatMessage struct {
	Role string
	Text string
}

// Completer is the chat-style LLM surface the answer generator consumes.
// The last message is the pending user turn; everything before it is history.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, int, error)
}

// GeminiClient wraps the Gemini SDK with a circuit breaker and a client-side
// rate limiter so upstream quota problems degrade into typed errors instead
// of cascading failures.
type GeminiClient struct {
	client      *genai.Client
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter

	model           string
	embeddingModel  string
	temperature     float32
	maxOutputTokens int32
	dimensions      int
	batchSize       int
}

func NewGeminiClient(cfg *config.Config, metrics *telemetry.Metrics) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client init: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if metrics != nil {
				metrics.RecordCircuitBreakerState("gemini", to.String())
			}
		},
	})

	// RPM limit with some buffer
	burst := cfg.GeminiRPM / 10
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(float64(cfg.GeminiRPM)*0.9/60.0), burst)

	return &GeminiClient{
		client:          client,
		breaker:         breaker,
		rateLimiter:     rateLimiter,
		model:           cfg.GeminiModel,
		embeddingModel:  cfg.GeminiEmbeddingModel,
		temperature:     float32(cfg.GeminiTemperature),
		maxOutputTokens: int32(cfg.GeminiMaxOutputTokens),
		dimensions:      cfg.VectorDimensions,
		batchSize:       cfg.EmbedBatchSize,
	}, nil
}

// Complete sends the message list as a chat exchange and returns the reply
// text plus the token count reported (or estimated) for the call.
func (gc *GeminiClient) Complete(ctx context.Context, messages []ChatMessage) (string, int, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.complete")
	defer span.End()

	if len(messages) == 0 {
		return "", 0, fmt.Errorf("empty message list: %w", models.ErrMalformedInput)
	}

	estimated := 0
	for _, m := range messages {
		estimated += len(m.Text) / 4
	}
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimated),
		attribute.Int("gemini.messages", len(messages)),
		attribute.String("gemini.model", gc.model),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", 0, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(gc.temperature)
		model.SetMaxOutputTokens(gc.maxOutputTokens)

		session := model.StartChat()
		session.History = toContents(messages[:len(messages)-1])

		resp, err := session.SendMessage(ctx, genai.Text(messages[len(messages)-1].Text))
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}
		return resp, nil
	})

	if err != nil {
		return "", 0, gc.mapError(span, err)
	}

	resp := result.(*genai.GenerateContentResponse)
	tokens := extractTokenUsage(resp)
	span.SetAttributes(
		attribute.Int("gemini.actual_tokens", tokens),
		attribute.Bool("gemini.success", true),
	)

	return responseText(resp), tokens, nil
}

// mapError translates SDK and breaker failures into the pipeline taxonomy.
func (gc *GeminiClient) mapError(span trace.Span, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		return fmt.Errorf("gemini circuit open: %w", models.ErrUpstreamUnavailable)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return fmt.Errorf("gemini rate limited: %v: %w", err, models.ErrRateLimited)
	}

	span.SetAttributes(attribute.Bool("gemini.error", true))
	return fmt.Errorf("gemini request failed: %v: %w", err, models.ErrUpstreamUnavailable)
}

func toContents(messages []ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, &genai.Content{
			Role:  m.Role,
			Parts: []genai.Part{genai.Text(m.Text)},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	text := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text += string(t)
				}
			}
		}
		break // first candidate only
	}
	return text
}

// Extract token usage from Gemini response
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	// Fallback: estimate from response text at ~4 characters per token
	estimated := len(responseText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
