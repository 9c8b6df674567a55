package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"invoiceflow/internal/models"
)

type PassageRecord struct {
	PassageID        string
	SourceID         string
	BatchID          string
	PassageIndex     int
	Kind             string
	RefNumber        string
	Text             string
	Metadata         map[string]string
	EmbeddingVersion string
	EmbeddingVector  *string
}

type PassageRepo struct {
	db *DB
}

func NewPassageRepo(db *DB) *PassageRepo {
	return &PassageRepo{db: db}
}

func (r *PassageRepo) UpsertPassages(ctx context.Context, passages []PassageRecord) error {
	if len(passages) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert passages: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, p := range passages {
		metaJSON := "{}"
		if len(p.Metadata) > 0 {
			b, err := json.Marshal(p.Metadata)
			if err != nil {
				return fmt.Errorf("marshal passage metadata %s: %w", p.PassageID, err)
			}
			metaJSON = string(b)
		}
		_, err := tx.Exec(ctx, `
INSERT INTO passages (passage_id, source_id, batch_id, passage_index, kind, ref_number, text, metadata, embedding_version, embedding)
VALUES ($1, $2, $3::uuid, $4, $5, NULLIF($6,''), $7, $8::jsonb, $9, CASE WHEN $10::text IS NULL THEN NULL ELSE $10::vector END)
ON CONFLICT (passage_id)
DO UPDATE SET
  text = EXCLUDED.text,
  metadata = EXCLUDED.metadata,
  embedding_version = EXCLUDED.embedding_version,
  embedding = COALESCE(EXCLUDED.embedding, passages.embedding)`,
			p.PassageID, p.SourceID, p.BatchID, p.PassageIndex, p.Kind, p.RefNumber, p.Text, metaJSON, p.EmbeddingVersion, p.EmbeddingVector,
		)
		if err != nil {
			return fmt.Errorf("upsert passage %s: %w", p.PassageID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit passages tx: %w", err)
	}
	return nil
}

func (r *PassageRepo) ListPassagesBySource(ctx context.Context, batchID, sourceID string) ([]models.Passage, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT passage_id, source_id, batch_id::text, passage_index, kind, COALESCE(ref_number,''), text, COALESCE(metadata,'{}'::jsonb), embedding_version, created_at
FROM passages
WHERE batch_id=$1::uuid AND source_id=$2
ORDER BY passage_index ASC`, batchID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list passages by source: %w", err)
	}
	return scanPassages(rows)
}

// ListPassagesByBatch feeds the keyword scan: every passage of the batch in a
// stable order, with metadata decoded.
func (r *PassageRepo) ListPassagesByBatch(ctx context.Context, batchID string) ([]models.Passage, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT passage_id, source_id, batch_id::text, passage_index, kind, COALESCE(ref_number,''), text, COALESCE(metadata,'{}'::jsonb), embedding_version, created_at
FROM passages
WHERE batch_id=$1::uuid
ORDER BY source_id, passage_index ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list passages by batch: %w", err)
	}
	return scanPassages(rows)
}

func (r *PassageRepo) DeleteByBatch(ctx context.Context, batchID string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM passages WHERE batch_id=$1::uuid`, batchID)
	if err != nil {
		return 0, fmt.Errorf("delete passages by batch: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PassageRepo) DeleteBySource(ctx context.Context, sourceID string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM passages WHERE source_id=$1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete passages by source: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByVersion reports how many passages each embedding_version holds for a
// batch. The ingest workflow uses it to decide between reuse and a wholesale
// rebuild.
func (r *PassageRepo) CountByVersion(ctx context.Context, batchID string) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT embedding_version, COUNT(*)
FROM passages
WHERE batch_id=$1::uuid
GROUP BY embedding_version`, batchID)
	if err != nil {
		return nil, fmt.Errorf("count passages by version: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var version string
		var n int
		if err := rows.Scan(&version, &n); err != nil {
			return nil, fmt.Errorf("scan version count: %w", err)
		}
		out[version] = n
	}
	return out, rows.Err()
}

// CountEmbedded reports how many passages carry a vector at the given
// version; zero means vector retrieval cannot serve the batch.
func (r *PassageRepo) CountEmbedded(ctx context.Context, batchID, embeddingVersion string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM passages
WHERE batch_id=$1::uuid AND embedding IS NOT NULL AND embedding_version=$2`, batchID, embeddingVersion).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embedded passages: %w", err)
	}
	return n, nil
}

func scanPassages(rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}) ([]models.Passage, error) {
	defer rows.Close()
	out := make([]models.Passage, 0, 64)
	for rows.Next() {
		var p models.Passage
		var metaRaw []byte
		if err := rows.Scan(&p.PassageID, &p.SourceID, &p.BatchID, &p.PassageIndex, &p.Kind, &p.RefNumber, &p.Text, &metaRaw, &p.EmbeddingVersion, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		if len(metaRaw) > 0 {
			meta := map[string]string{}
			if err := json.Unmarshal(metaRaw, &meta); err == nil && len(meta) > 0 {
				p.Metadata = meta
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return out, nil
}
