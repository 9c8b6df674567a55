package providers

import "testing"

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("mock|GROQ:free|groq:paid")
	if len(refs) != 3 {
		t.Fatalf("expected 3 providers got %d", len(refs))
	}
	if refs[1].Name != "groq" || refs[1].KeyAlias != "free" {
		t.Fatalf("unexpected parse result: %+v", refs[1])
	}
}

func TestParseProviderListDropsDuplicates(t *testing.T) {
	refs := ParseProviderList("groq:free| groq:free |ollama")
	if len(refs) != 2 {
		t.Fatalf("expected duplicates dropped, got %+v", refs)
	}
	if refs[1].Name != "ollama" {
		t.Fatalf("unexpected second provider: %+v", refs[1])
	}
}

func TestParseProviderListEmptyDefaultsToMock(t *testing.T) {
	refs := ParseProviderList("  ")
	if len(refs) != 1 || refs[0].Name != "mock" {
		t.Fatalf("expected mock fallback, got %+v", refs)
	}
}
