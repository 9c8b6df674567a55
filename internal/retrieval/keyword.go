// Package retrieval holds the lexical fallback ranker and the fusion helpers
// used when vector search is unavailable or combined with it.
package retrieval

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	numRe  = regexp.MustCompile(`[0-9]+`)
)

const numericMatchBonus = 10

type ScoredDoc struct {
	Index int
	Score float64
}

// RankKeyword scores candidate texts against a question: substring-occurrence
// counts of each question token longer than two runes, plus a fixed bonus per
// question number appearing literally in the text. Zero-score candidates are
// dropped; ties keep input order. topK <= 0 means 5.
func RankKeyword(question string, texts []string, topK int) []ScoredDoc {
	if topK <= 0 {
		topK = 5
	}
	words := questionTokens(question)
	nums := numRe.FindAllString(question, -1)

	scored := make([]ScoredDoc, 0, len(texts))
	for i, text := range texts {
		low := strings.ToLower(text)
		score := 0
		for _, w := range words {
			score += strings.Count(low, w)
		}
		for _, n := range nums {
			if strings.Contains(text, n) {
				score += numericMatchBonus
			}
		}
		if score > 0 {
			scored = append(scored, ScoredDoc{Index: i, Score: float64(score)})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func questionTokens(question string) []string {
	all := wordRe.FindAllString(strings.ToLower(question), -1)
	out := make([]string, 0, len(all))
	for _, w := range all {
		if utf8.RuneCountInString(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}
