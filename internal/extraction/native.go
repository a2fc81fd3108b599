package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"doc-rag-platform/internal/logger"
	"doc-rag-platform/models"

	"github.com/ledongthuc/pdf"
)

// NativeExtractor extracts plain per-page text in-process. It is the
// fallback when the layout service is disabled or unreachable; it yields no
// roles, polygons, or tables, so everything segments as paragraphs.
type NativeExtractor struct{}

// NewNativeExtractor creates the in-process extractor
func NewNativeExtractor() *NativeExtractor {
	return &NativeExtractor{}
}

// Analyze parses the PDF and returns one paragraph block per text run.
func (e *NativeExtractor) Analyze(ctx context.Context, documentBytes []byte, filename string) (*Result, error) {
	if len(documentBytes) == 0 {
		return &Result{Method: models.ExtractionMethodNative}, nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(documentBytes), int64(len(documentBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	result := &Result{Method: models.ExtractionMethodNative}
	pageCount := reader.NumPage()

	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result.Pages = append(result.Pages, Page{Number: i})

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}

		for _, paragraph := range splitParagraphs(text) {
			result.Blocks = append(result.Blocks, Block{
				PageNumber: i,
				Text:       paragraph,
			})
		}
	}

	return result, nil
}

// splitParagraphs breaks page text on blank lines; pages without blank-line
// structure come back as a single paragraph.
func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, part := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}
