package retrieval

import "sort"

// Retrieval modes.
const (
	ModeAuto    = "auto"
	ModeVector  = "vector"
	ModeKeyword = "keyword"
	ModeHybrid  = "hybrid"
)

const rrfK = 60

type Ranked struct {
	ID    string
	Score float64
}

// ResolveMode picks the effective retrieval mode given whether vector search
// can currently serve the batch. Vector-dependent modes degrade to keyword
// rather than failing the request.
func ResolveMode(requested string, vectorReady bool) string {
	switch requested {
	case ModeVector, ModeHybrid:
		if !vectorReady {
			return ModeKeyword
		}
		return requested
	case ModeKeyword:
		return ModeKeyword
	default:
		if vectorReady {
			return ModeVector
		}
		return ModeKeyword
	}
}

// MergeRRF fuses two rankings by reciprocal rank. IDs present in both lists
// accumulate both contributions; the fused list is ordered by combined score.
func MergeRRF(a, b []Ranked, topK int) []Ranked {
	if topK <= 0 {
		topK = len(a) + len(b)
	}
	fused := make(map[string]float64, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))
	add := func(list []Ranked) {
		for rank, r := range list {
			if _, seen := fused[r.ID]; !seen {
				order = append(order, r.ID)
			}
			fused[r.ID] += 1.0 / float64(rrfK+rank+1)
		}
	}
	add(a)
	add(b)

	out := make([]Ranked, 0, len(order))
	for _, id := range order {
		out = append(out, Ranked{ID: id, Score: fused[id]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
