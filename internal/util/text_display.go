package util

import (
	"sort"
	"strings"
	"unicode"
)

func DisplaySnippet(s string, maxRunes int) string {
	return trimClean(s, maxRunes)
}

// DisplayEvidenceSnippet extracts the sentence(s) of a passage most relevant
// to a question, so citations show the invoice line that answers it instead
// of the head of the passage.
func DisplayEvidenceSnippet(passageText, question string, maxRunes int) string {
	passageText = trimClean(passageText, 4000)
	if passageText == "" {
		return ""
	}
	terms := meaningfulTerms(question)
	if len(terms) == 0 {
		return trimClean(passageText, maxRunes)
	}

	sentences := splitSentences(passageText)
	if len(sentences) == 0 {
		return trimClean(passageText, maxRunes)
	}

	type scored struct {
		sentence string
		score    int
	}
	list := make([]scored, 0, len(sentences))
	for _, s := range sentences {
		low := strings.ToLower(s)
		score := 0
		for _, term := range terms {
			if strings.Contains(low, term) {
				score++
			}
		}
		list = append(list, scored{sentence: s, score: score})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score == list[j].score {
			return len(list[i].sentence) < len(list[j].sentence)
		}
		return list[i].score > list[j].score
	})

	best := strings.TrimSpace(list[0].sentence)
	if best == "" {
		return trimClean(passageText, maxRunes)
	}
	if len(list) > 1 && list[1].score > 0 {
		combo := best + " " + strings.TrimSpace(list[1].sentence)
		return trimClean(combo, maxRunes)
	}
	return trimClean(best, maxRunes)
}

// splitSentences breaks on sentence punctuation but keeps monetary values
// whole: a dot between digits (1.234,56 or 1523.47) is a separator inside a
// number, not the end of a sentence.
func splitSentences(s string) []string {
	runes := []rune(s)
	out := make([]string, 0, 8)
	var b strings.Builder
	flush := func() {
		x := strings.TrimSpace(b.String())
		if x != "" {
			out = append(out, x)
		}
		b.Reset()
	}
	for i, r := range runes {
		b.WriteRune(r)
		switch r {
		case '!', '?':
			flush()
		case '.':
			if i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
				continue
			}
			flush()
		}
	}
	flush()
	return out
}

func meaningfulTerms(s string) []string {
	s = strings.ToLower(trimClean(s, 2000))
	fields := strings.Fields(s)
	// Questions arrive mostly in Portuguese; keep both stopword sets small.
	stop := map[string]struct{}{
		"the": {}, "and": {}, "for": {}, "was": {}, "were": {}, "what": {}, "how": {},
		"which": {}, "that": {}, "this": {}, "with": {}, "from": {},
		"qual": {}, "quais": {}, "quanto": {}, "quanta": {}, "quantos": {}, "quantas": {},
		"que": {}, "por": {}, "para": {}, "com": {}, "sem": {}, "uma": {}, "das": {}, "dos": {},
		"nas": {}, "nos": {}, "foi": {}, "sao": {}, "são": {}, "tem": {}, "têm": {}, "mais": {},
		"como": {}, "onde": {}, "quando": {}, "entre": {}, "sobre": {}, "todas": {}, "todos": {},
	}
	uniq := map[string]struct{}{}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ",.;:!?()[]{}\"'`")
		if len(f) < 3 {
			continue
		}
		if _, ok := stop[f]; ok {
			continue
		}
		if _, ok := uniq[f]; ok {
			continue
		}
		uniq[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func trimClean(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 420
	}
	s = SanitizeText(s)
	s = splitJammedWords(s)
	s = normalizeWhitespace(s)

	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsPrint(r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) || unicode.IsPunct(r) {
			out = append(out, r)
			continue
		}
	}
	trimmed := strings.TrimSpace(string(out))
	runes := []rune(trimmed)
	if len(runes) > maxRunes {
		return strings.TrimSpace(string(runes[:maxRunes])) + "..."
	}
	return trimmed
}

// splitJammedWords re-inserts the spaces PDF extraction tends to drop at
// lower-to-upper joins ("DanfeSimplificado"). Letter-digit joins are left
// alone: product codes and units like A4, 75G or C10 are real tokens in
// invoice descriptions.
func splitJammedWords(s string) string {
	if s == "" {
		return s
	}
	in := []rune(s)
	out := make([]rune, 0, len(in)+len(in)/8)
	for i, r := range in {
		if i > 0 && unicode.IsLower(in[i-1]) && unicode.IsUpper(r) {
			last := out[len(out)-1]
			if !unicode.IsSpace(last) {
				out = append(out, ' ')
			}
		}
		out = append(out, r)
	}
	return string(out)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
