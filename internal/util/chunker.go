package util

import (
	"strings"
	"unicode"
)

// ChunkText windows text into overlapping rune spans. A window end is pulled
// back to the nearest whitespace when one falls inside its last fifth, so
// extracted invoice lines are not cut mid-token; text without spaces is cut
// at the exact window size.
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(text)
	out := make([]string, 0)
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpaceBetween(runes, end-chunkSize/5, end); cut > start {
			end = cut
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			out = append(out, part)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

func lastSpaceBetween(runes []rune, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	for i := hi - 1; i >= lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
