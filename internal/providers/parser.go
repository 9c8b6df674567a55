package providers

import "strings"

// ProviderRef is one entry of a pipe-separated provider chain such as
// "groq:free|groq:paid|ollama|mock". The optional alias after the colon
// selects which API key env var the provider reads.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList parses a failover chain. Names are lowercased, blank
// entries and exact duplicates are dropped, and an empty list falls back to
// the built-in mock so the worker can always start.
func ParseProviderList(raw string) []ProviderRef {
	parts := strings.Split(raw, "|")
	out := make([]ProviderRef, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ref := ProviderRef{Raw: p}
		if name, alias, ok := strings.Cut(p, ":"); ok {
			ref.Name = strings.ToLower(strings.TrimSpace(name))
			ref.KeyAlias = strings.TrimSpace(alias)
		} else {
			ref.Name = strings.ToLower(p)
		}
		dedup := ref.Name + ":" + ref.KeyAlias
		if _, dup := seen[dedup]; dup {
			continue
		}
		seen[dedup] = struct{}{}
		out = append(out, ref)
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}
