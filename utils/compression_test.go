package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressArchiveSmallPayloadStoredRaw(t *testing.T) {
	data := []byte("short payload")

	stored, err := CompressArchive(data)
	if err != nil {
		t.Fatalf("CompressArchive failed: %v", err)
	}
	if stored[0] != 0 {
		t.Errorf("expected raw marker 0 for small payload, got %d", stored[0])
	}

	restored, err := DecompressArchive(stored)
	if err != nil {
		t.Fatalf("DecompressArchive failed: %v", err)
	}
	if !bytes.Equal(restored, data) {
		t.Errorf("round trip mismatch: got %q, want %q", restored, data)
	}
}

func TestCompressArchiveLargePayloadShrinks(t *testing.T) {
	data := []byte(strings.Repeat("paragraph text extracted from a page. ", 200))

	stored, err := CompressArchive(data)
	if err != nil {
		t.Fatalf("CompressArchive failed: %v", err)
	}
	if stored[0] != 1 {
		t.Errorf("expected compressed marker 1 for large payload, got %d", stored[0])
	}
	if len(stored) >= len(data) {
		t.Errorf("expected compression to shrink payload: %d >= %d", len(stored), len(data))
	}

	restored, err := DecompressArchive(stored)
	if err != nil {
		t.Fatalf("DecompressArchive failed: %v", err)
	}
	if !bytes.Equal(restored, data) {
		t.Error("round trip mismatch on compressed payload")
	}
}

func TestCompressArchiveEmptyPayload(t *testing.T) {
	stored, err := CompressArchive(nil)
	if err != nil {
		t.Fatalf("CompressArchive failed: %v", err)
	}
	if stored != nil {
		t.Errorf("expected nil for empty payload, got %v", stored)
	}

	restored, err := DecompressArchive(nil)
	if err != nil {
		t.Fatalf("DecompressArchive failed: %v", err)
	}
	if restored != nil {
		t.Errorf("expected nil restore for empty payload, got %v", restored)
	}
}
