package store

import (
	"bytes"
	"testing"
)

func TestPayloadCompressionRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"resourceType":"Patient","id":"p1"}`),
		[]byte(""),
		bytes.Repeat([]byte("ab"), 1<<16),
		{0x00, 0xff, 0x10, 0x80},
	}
	for _, payload := range payloads {
		compressed, err := compressPayload(payload)
		if err != nil {
			t.Fatalf("compress: %v", err)
		}
		restored, err := decompressPayload(compressed)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if !bytes.Equal(restored, payload) {
			t.Errorf("round trip mismatch for %d-byte payload", len(payload))
		}
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	if _, err := decompressPayload([]byte("not gzip")); err == nil {
		t.Error("expected error for non-gzip input")
	}
}
