package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/models"
)

// LayoutClient handles communication with the layout-analysis service
type LayoutClient struct {
	httpClient *http.Client
	baseURL    string
}

// layoutResponse is the wire shape returned by the layout service
type layoutResponse struct {
	Success bool    `json:"success"`
	Pages   []Page  `json:"pages"`
	Blocks  []Block `json:"blocks"`
	Tables  []Table `json:"tables"`
	Error   string  `json:"error,omitempty"`
}

// layoutHealth is the layout service health check response
type layoutHealth struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

// NewLayoutClient creates a new layout-analysis client
func NewLayoutClient(cfg *config.Config) *LayoutClient {
	baseURL := cfg.LayoutServiceURL
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}

	return &LayoutClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.LayoutTimeout) * time.Second,
		},
		baseURL: baseURL,
	}
}

// IsHealthy checks if the layout service is up and has its model loaded
func (c *LayoutClient) IsHealthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("layout service unhealthy: status %d", resp.StatusCode)
	}

	var health layoutHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, fmt.Errorf("failed to decode health response: %w", err)
	}

	return health.Status == "healthy" && health.ModelLoaded, nil
}

// Analyze submits document bytes for layout analysis and returns the
// normalized result. An empty document yields an empty result without an
// upstream call.
func (c *LayoutClient) Analyze(ctx context.Context, documentBytes []byte, filename string) (*Result, error) {
	if len(documentBytes) == 0 {
		return &Result{Method: models.ExtractionMethodLayout}, nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fileWriter, bytes.NewReader(documentBytes)); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}
	writer.WriteField("extract_tables", "true")
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/layout/analyze", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create layout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("layout request failed: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("layout service throttled the request: %w", models.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("layout request failed with status %d: %s: %w",
			resp.StatusCode, string(body), models.ErrUpstreamUnavailable)
	}

	var layoutResp layoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&layoutResp); err != nil {
		return nil, fmt.Errorf("failed to decode layout response: %w", err)
	}
	if !layoutResp.Success {
		return nil, fmt.Errorf("layout analysis failed: %s: %w", layoutResp.Error, models.ErrUpstreamUnavailable)
	}

	logger.Debug("Layout analysis complete",
		"pages", len(layoutResp.Pages),
		"blocks", len(layoutResp.Blocks),
		"tables", len(layoutResp.Tables))

	return &Result{
		Pages:  layoutResp.Pages,
		Blocks: layoutResp.Blocks,
		Tables: layoutResp.Tables,
		Method: models.ExtractionMethodLayout,
	}, nil
}
