package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"invoiceflow/internal/models"

	"github.com/jackc/pgx/v5"
)

type SearchFilters struct {
	Kinds            []string
	RefNumber        string
	EmbeddingVersion string
}

type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

// SearchPassages runs cosine nearest-neighbor retrieval over the batch's
// embedded passages. Score is 1 - cosine distance.
func (s *Searcher) SearchPassages(ctx context.Context, batchID string, queryVec []float32, topK int, filters SearchFilters) ([]models.PassageResult, error) {
	if topK <= 0 {
		topK = 4
	}
	vecLiteral := ToLiteral(queryVec)
	args := []any{batchID, vecLiteral, topK}

	filterSQL := ""
	if len(filters.Kinds) > 0 {
		args = append(args, filters.Kinds)
		filterSQL += fmt.Sprintf(" AND p.kind = ANY($%d)", len(args))
	}
	if strings.TrimSpace(filters.RefNumber) != "" {
		args = append(args, strings.TrimSpace(filters.RefNumber))
		filterSQL += fmt.Sprintf(" AND p.ref_number = $%d", len(args))
	}
	if strings.TrimSpace(filters.EmbeddingVersion) != "" {
		args = append(args, filters.EmbeddingVersion)
		filterSQL += fmt.Sprintf(" AND p.embedding_version = $%d", len(args))
	}

	query := `
SELECT p.source_id,
       s.filename,
       p.passage_id,
       p.kind,
       COALESCE(p.ref_number,''),
       LEFT(p.text, 420) AS snippet,
       1 - (p.embedding <=> $2::vector) AS score,
       p.text,
       COALESCE(p.metadata,'{}'::jsonb)
FROM passages p
JOIN sources s ON s.source_id = p.source_id
WHERE p.batch_id = $1::uuid
  AND p.embedding IS NOT NULL` + filterSQL + `
ORDER BY p.embedding <=> $2::vector
LIMIT $3`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.PassageResult, 0, topK)
	for rows.Next() {
		var r models.PassageResult
		var metaRaw []byte
		if err := rows.Scan(&r.SourceID, &r.Filename, &r.PassageID, &r.Kind, &r.RefNumber, &r.Snippet, &r.Score, &r.PassageText, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan passage result: %w", err)
		}
		if len(metaRaw) > 0 {
			meta := map[string]string{}
			if err := json.Unmarshal(metaRaw, &meta); err == nil && len(meta) > 0 {
				r.Metadata = meta
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
