package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "NF\x008771\x01\x02\n\tACME"
	out := SanitizeText(in)
	if out != "NF8771\n\tACME" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestSanitizeTextDropsInvisibleMarks(t *testing.T) {
	in := "\uFEFFVALOR\u200B TOTAL"
	out := SanitizeText(in)
	if out != "VALOR TOTAL" {
		t.Fatalf("expected invisible marks removed, got %q", out)
	}
}
