package util

import (
	"strings"
	"testing"
)

func TestChunkTextWindowsWithOverlap(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := ChunkText(text, 10, 2)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0] != "abcdefghij" {
		t.Fatalf("unexpected first chunk: %s", chunks[0])
	}
	if chunks[1] != "ijklmnopqr" {
		t.Fatalf("expected overlap carried into second chunk: %s", chunks[1])
	}
}

func TestChunkTextEndsAtTokenBoundary(t *testing.T) {
	text := "VALOR TOTAL 1523.47 FORNECEDOR COMERCIAL ALFA LTDA CNPJ 12345678000199"
	tokens := map[string]bool{}
	for _, f := range strings.Fields(text) {
		tokens[f] = true
	}
	chunks := ChunkText(text, 30, 5)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		fields := strings.Fields(c)
		last := fields[len(fields)-1]
		if !tokens[last] {
			t.Fatalf("chunk ends mid-token: %q", c)
		}
	}
}

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	chunks := ChunkText("  nota 8771  ", 1200, 200)
	if len(chunks) != 1 || chunks[0] != "nota 8771" {
		t.Fatalf("unexpected chunks: %#v", chunks)
	}
}
