package services

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"doc-rag-platform/internal/config"
	"doc-rag-platform/models"
)

// Small enough that the trailer scan is skipped; carries the magic bytes and
// object structure the content check looks for.
var pdfFixture = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

type memoryUpload struct {
	*bytes.Reader
}

func (memoryUpload) Close() error { return nil }

func newTestStorage(t *testing.T) *FileStorageManager {
	t.Helper()
	sm, err := NewFileStorageManager(&config.Config{
		FileStorageDir: t.TempDir(),
		MaxFileSize:    1 << 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sm
}

func uploadHeader(filename string, size int64, contentType string) *multipart.FileHeader {
	header := &multipart.FileHeader{Filename: filename, Size: size}
	if contentType != "" {
		header.Header = textproto.MIMEHeader{"Content-Type": []string{contentType}}
	}
	return header
}

func TestValidateUploadAcceptsPDFHeader(t *testing.T) {
	sm := newTestStorage(t)
	if err := sm.ValidateUpload(uploadHeader("report.pdf", 1024, "application/pdf")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUploadRejectsBadHeaders(t *testing.T) {
	sm := newTestStorage(t)

	cases := []struct {
		name   string
		header *multipart.FileHeader
	}{
		{"oversized", uploadHeader("report.pdf", 2<<20, "application/pdf")},
		{"empty", uploadHeader("report.pdf", 0, "application/pdf")},
		{"wrong extension", uploadHeader("notes.txt", 1024, "text/plain")},
		{"wrong content type", uploadHeader("report.pdf", 1024, "image/png")},
		{"path traversal", uploadHeader("../../etc/passwd.pdf", 1024, "application/pdf")},
		{"null byte", uploadHeader("re\x00port.pdf", 1024, "application/pdf")},
		{"no name", uploadHeader("", 1024, "application/pdf")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := sm.ValidateUpload(tc.header)
			if !errors.Is(err, models.ErrMalformedInput) {
				t.Errorf("want ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestStoreWritesFileAndComputesHash(t *testing.T) {
	sm := newTestStorage(t)

	stored, err := sm.Store(
		memoryUpload{bytes.NewReader(pdfFixture)},
		uploadHeader("spec sheet.pdf", int64(len(pdfFixture)), "application/pdf"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := md5.Sum(pdfFixture)
	if stored.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("hash %s does not match content", stored.Hash)
	}
	if stored.Size != int64(len(pdfFixture)) {
		t.Errorf("size %d, want %d", stored.Size, len(pdfFixture))
	}
	if !strings.Contains(stored.SecureName, "spec_sheet") {
		t.Errorf("secure name %q lost the sanitized base name", stored.SecureName)
	}

	data, err := os.ReadFile(stored.Path)
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if !bytes.Equal(data, pdfFixture) {
		t.Error("stored bytes differ from upload")
	}

	// The temp file must not survive a successful store.
	entries, err := os.ReadDir(sm.tempDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir still holds %d entries", len(entries))
	}
}

func TestStoreRejectsNonPDFContent(t *testing.T) {
	sm := newTestStorage(t)

	content := []byte("plain text pretending to be a pdf")
	_, err := sm.Store(
		memoryUpload{bytes.NewReader(content)},
		uploadHeader("fake.pdf", int64(len(content)), "application/pdf"),
	)
	if !errors.Is(err, models.ErrMalformedInput) {
		t.Fatalf("want ErrMalformedInput, got %v", err)
	}

	// Nothing may land in the documents directory on a failed store.
	entries, err := os.ReadDir(sm.uploadDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("upload dir holds %d entries after rejected store", len(entries))
	}
}

func TestGenerateSecureFilenameSanitizes(t *testing.T) {
	name := generateSecureFilename("my annual..report draft.pdf")

	if strings.Contains(name, " ") {
		t.Errorf("spaces survived: %q", name)
	}
	if strings.Contains(name, "..") {
		t.Errorf("dot-dot survived: %q", name)
	}
	if !strings.HasSuffix(name, ".pdf") {
		t.Errorf("extension lost: %q", name)
	}
}
