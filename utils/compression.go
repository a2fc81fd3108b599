package utils

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// archiveThreshold is the payload size below which compression is skipped;
// the container overhead would exceed the savings.
const archiveThreshold = 500

// CompressArchive compresses a raw extraction payload for storage on the
// document row. Payloads under the threshold are stored as-is with a leading
// marker byte so DecompressArchive can tell the two forms apart.
func CompressArchive(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < archiveThreshold {
		return append([]byte{0}, data...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(1)
	writer := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to brotli writer: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressArchive restores a payload stored by CompressArchive.
func DecompressArchive(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, nil
	}

	marker, body := stored[0], stored[1:]
	switch marker {
	case 0:
		return body, nil
	case 1:
		reader := brotli.NewReader(bytes.NewReader(body))
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read from brotli reader: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown archive marker byte: %d", marker)
	}
}
