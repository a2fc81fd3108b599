package services

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/models"
)

// FileStorageManager handles secure file storage operations
type FileStorageManager struct {
	config    *config.Config
	uploadDir string
	tempDir   string
}

// NewFileStorageManager creates the storage layout under the configured base
// directory.
func NewFileStorageManager(cfg *config.Config) (*FileStorageManager, error) {
	baseDir := cfg.FileStorageDir
	if baseDir == "" {
		baseDir = "./storage"
	}

	uploadDir := filepath.Join(baseDir, "documents")
	tempDir := filepath.Join(baseDir, "temp")

	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory %s: %w", uploadDir, err)
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp directory %s: %w", tempDir, err)
	}

	return &FileStorageManager{
		config:    cfg,
		uploadDir: uploadDir,
		tempDir:   tempDir,
	}, nil
}

// StoredFile contains information about a securely stored file
type StoredFile struct {
	Path       string
	SecureName string
	Hash       string
	Size       int64
}

// ValidateUpload rejects oversized, misnamed or mistyped uploads before any
// bytes are written. Failures are typed MalformedInput.
func (sm *FileStorageManager) ValidateUpload(header *multipart.FileHeader) error {
	if header.Size > sm.config.MaxFileSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d: %w",
			header.Size, sm.config.MaxFileSize, models.ErrMalformedInput)
	}
	if header.Size == 0 {
		return fmt.Errorf("file is empty: %w", models.ErrMalformedInput)
	}

	if err := validateFilename(header.Filename); err != nil {
		return err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "pdf") {
		return fmt.Errorf("invalid content type %s: %w", contentType, models.ErrMalformedInput)
	}

	return nil
}

func validateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename is required: %w", models.ErrMalformedInput)
	}
	if len(filename) > 255 {
		return fmt.Errorf("filename too long (max 255 characters): %w", models.ErrMalformedInput)
	}

	dangerous := []string{"../", "..\\", "<", ">", ":", "\"", "|", "?", "*", "\x00"}
	for _, char := range dangerous {
		if strings.Contains(filename, char) {
			return fmt.Errorf("filename contains invalid characters: %w", models.ErrMalformedInput)
		}
	}

	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return fmt.Errorf("only PDF files (.pdf extension) are allowed: %w", models.ErrMalformedInput)
	}
	return nil
}

// Store streams an upload to disk with hash calculation, validates it is a
// real PDF, then moves it into place atomically.
func (sm *FileStorageManager) Store(file multipart.File, header *multipart.FileHeader) (*StoredFile, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file position: %w", err)
	}

	secureName := generateSecureFilename(header.Filename)
	filePath := filepath.Join(sm.uploadDir, secureName)

	// Stream through a temp file so a half-written upload never lands in the
	// documents directory.
	tempPath := filepath.Join(sm.tempDir, uuid.NewString()+".tmp")
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	hasher := md5.New()
	multiWriter := io.MultiWriter(tempFile, hasher)

	bytesWritten, err := io.Copy(multiWriter, file)
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	if bytesWritten == 0 {
		os.Remove(tempPath)
		return nil, fmt.Errorf("file is empty: %w", models.ErrMalformedInput)
	}

	if err := validateFileContent(tempPath); err != nil {
		os.Remove(tempPath)
		return nil, err
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	return &StoredFile{
		Path:       filePath,
		SecureName: secureName,
		Hash:       hex.EncodeToString(hasher.Sum(nil)),
		Size:       bytesWritten,
	}, nil
}

// ReadFile loads a stored document back for processing.
func (sm *FileStorageManager) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("stored file %s: %w", path, models.ErrNotFound)
		}
		return nil, fmt.Errorf("read stored file %s: %w", path, err)
	}
	return data, nil
}

// Cleanup removes a file from storage
func (sm *FileStorageManager) Cleanup(filePath string) {
	if filePath != "" {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to cleanup file", "path", filePath, "error", err)
		}
	}
}

// validateFileContent checks PDF magic bytes, the EOF trailer and basic
// structure markers so corrupted uploads fail here instead of mid-pipeline.
func validateFileContent(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for validation: %w", err)
	}
	defer file.Close()

	header := make([]byte, 1024)
	n, err := file.Read(header)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read file header: %w", err)
	}
	if n < 4 {
		return fmt.Errorf("file is too small: %w", models.ErrMalformedInput)
	}

	// %PDF magic bytes
	if string(header[:4]) != "%PDF" {
		return fmt.Errorf("missing PDF magic bytes: %w", models.ErrMalformedInput)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// A well-formed PDF ends with an EOF marker and a startxref pointer.
	if fileInfo.Size() > 2048 {
		trailer := make([]byte, 2048)
		file.Seek(fileInfo.Size()-2048, io.SeekStart)
		if _, err := file.Read(trailer); err != nil {
			return fmt.Errorf("failed to read PDF trailer: %w", err)
		}
		trailerStr := string(trailer)
		if !strings.Contains(trailerStr, "%%EOF") && !strings.Contains(trailerStr, "startxref") {
			return fmt.Errorf("missing PDF EOF markers: %w", models.ErrMalformedInput)
		}
	}

	headerStr := string(header[:n])
	if !strings.Contains(headerStr, "obj") && !strings.Contains(headerStr, "xref") && !strings.Contains(headerStr, "trailer") {
		return fmt.Errorf("no PDF object structure found: %w", models.ErrMalformedInput)
	}

	suspiciousPatterns := []string{"/JavaScript", "/JS", "/Launch", "javascript:"}
	lowerHeader := strings.ToLower(headerStr)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lowerHeader, strings.ToLower(pattern)) {
			logger.Warn("Potentially suspicious PDF content detected", "pattern", pattern, "path", filePath)
		}
	}

	return nil
}

// generateSecureFilename creates a secure filename
func generateSecureFilename(originalName string) string {
	randomBytes := make([]byte, 8)
	rand.Read(randomBytes)
	randomPrefix := hex.EncodeToString(randomBytes)

	timestamp := time.Now().Format("20060102_150405")

	ext := filepath.Ext(originalName)
	baseName := strings.TrimSuffix(originalName, ext)
	safeName := strings.ReplaceAll(baseName, " ", "_")
	safeName = strings.ReplaceAll(safeName, "..", "")
	if len(safeName) > 50 {
		safeName = safeName[:50]
	}

	return fmt.Sprintf("%s_%s_%s%s", timestamp, randomPrefix, safeName, ext)
}
