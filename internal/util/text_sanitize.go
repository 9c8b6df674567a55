package util

import "strings"

// SanitizeText removes bytes that Postgres text columns reject and the
// invisible characters PDF extractors leave behind (NUL, zero-width spaces,
// stray byte order marks). Common whitespace is kept.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	// NUL bytes are not valid in PostgreSQL text.
	s = strings.ReplaceAll(s, "\x00", "")

	r := make([]rune, 0, len(s))
	for _, ch := range s {
		switch ch {
		case '\n', '\r', '\t':
			r = append(r, ch)
			continue
		case '\uFEFF', '\u200B', '\u200C', '\u200D':
			continue
		}
		if ch < 0x20 {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}
