package extraction

import (
	"context"
	"errors"

	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/models"
)

// Service picks the extraction path for a document: the layout service when
// enabled and healthy, otherwise the native extractor.
type Service struct {
	layout  *LayoutClient
	native  *NativeExtractor
	enabled bool
}

// NewService creates the extraction service
func NewService(cfg *config.Config) *Service {
	return &Service{
		layout:  NewLayoutClient(cfg),
		native:  NewNativeExtractor(),
		enabled: cfg.LayoutServiceEnabled,
	}
}

// Analyze extracts pages, blocks and tables from a document. Rate limiting is
// surfaced so the caller can retry; other layout failures degrade to native
// extraction rather than failing the document.
func (s *Service) Analyze(ctx context.Context, documentBytes []byte, filename string) (*Result, error) {
	if s.enabled {
		healthy, err := s.layout.IsHealthy(ctx)
		if !healthy {
			logger.Warn("Layout service unavailable, falling back to native extraction", "error", err)
		} else {
			result, err := s.layout.Analyze(ctx, documentBytes, filename)
			if err == nil {
				return result, nil
			}
			if errors.Is(err, models.ErrRateLimited) {
				return nil, err
			}
			logger.Warn("Layout analysis failed, falling back to native extraction", "error", err)
		}
	}

	return s.native.Analyze(ctx, documentBytes, filename)
}
