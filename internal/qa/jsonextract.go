package qa

import (
	"encoding/json"
	"strings"
)

// ReportSummary is the parsed shape of the strict-JSON summary the model is
// asked to produce for ReportSummaryPrompt.
type ReportSummary struct {
	Resumo    string   `json:"resumo"`
	Destaques []string `json:"destaques"`
}

// ParseReportSummary tolerantly parses model output into a ReportSummary.
// Models wrap JSON in code fences or prose often enough that we extract the
// first balanced object instead of unmarshalling the raw text.
func ParseReportSummary(raw string) (ReportSummary, bool) {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return ReportSummary{}, false
	}
	var out ReportSummary
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return ReportSummary{}, false
	}
	out.Resumo = strings.TrimSpace(out.Resumo)
	cleaned := make([]string, 0, len(out.Destaques))
	for _, d := range out.Destaques {
		d = strings.TrimSpace(d)
		if d != "" {
			cleaned = append(cleaned, d)
		}
	}
	out.Destaques = cleaned
	return out, true
}

// ExtractJSONObject returns the first balanced JSON object in the text,
// stripping markdown code fences first.
func ExtractJSONObject(raw string) (string, bool) {
	s := stripCodeFence(strings.TrimSpace(raw))
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
