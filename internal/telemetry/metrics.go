package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	IngestionDuration   metric.Float64Histogram
	ChunksIngested      metric.Int64Counter
	QueryDuration       metric.Float64Histogram
	CitationCoverage    metric.Float64Histogram
	UpstreamErrors      metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("doc-rag-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"document.ingestion.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIngested, err := meter.Int64Counter(
		"document.chunks.ingested",
		metric.WithDescription("Total chunks written to the vector index"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"query.pipeline.duration",
		metric.WithDescription("Retrieval plus generation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	citationCoverage, err := meter.Float64Histogram(
		"answer.citation.coverage",
		metric.WithDescription("Fraction of supplied context items cited by the answer"),
	)
	if err != nil {
		return nil, err
	}

	upstreamErrors, err := meter.Int64Counter(
		"upstream.errors.total",
		metric.WithDescription("Failed calls to external services"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		TokensUsed:          tokensUsed,
		IngestionDuration:   ingestionDuration,
		ChunksIngested:      chunksIngested,
		QueryDuration:       queryDuration,
		CitationCoverage:    citationCoverage,
		UpstreamErrors:      upstreamErrors,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordIngestion records document ingestion metrics
func (m *Metrics) RecordIngestion(duration float64, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("ingestion.status", status),
	}

	m.IngestionDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordChunksIngested records how many chunks a document produced
func (m *Metrics) RecordChunksIngested(count int64) {
	m.ChunksIngested.Add(context.Background(), count)
}

// RecordQuery records query pipeline metrics
func (m *Metrics) RecordQuery(duration float64, expanded bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("query.expanded", expanded),
	}

	m.QueryDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordCitationCoverage records the cited fraction of one answer's context
func (m *Metrics) RecordCitationCoverage(fraction float64) {
	m.CitationCoverage.Record(context.Background(), fraction)
}

// RecordUpstreamError records a failed external service call
func (m *Metrics) RecordUpstreamError(service string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
	}

	m.UpstreamErrors.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
