package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"invoiceflow/internal/models"
	"invoiceflow/internal/util"
)

type SourceRepo struct {
	db *DB
}

func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) UpsertSource(ctx context.Context, s models.Source) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO sources (source_id, batch_id, filename, kind, row_count, status, fail_reason)
VALUES ($1, $2::uuid, $3, $4, NULLIF($5, 0), $6, NULLIF($7,''))
ON CONFLICT (source_id)
DO UPDATE SET
  batch_id = EXCLUDED.batch_id,
  filename = EXCLUDED.filename,
  kind = EXCLUDED.kind,
  row_count = COALESCE(EXCLUDED.row_count, sources.row_count),
  status = EXCLUDED.status,
  fail_reason = EXCLUDED.fail_reason,
  updated_at = NOW()`,
		s.SourceID, s.BatchID, s.Filename, s.Kind, s.RowCount, s.Status, s.FailReason,
	)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

func (r *SourceRepo) UpdateSourceStatus(ctx context.Context, sourceID, status, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE sources SET status=$2, fail_reason=NULLIF($3,''), updated_at=NOW() WHERE source_id=$1`, sourceID, status, failReason)
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	return nil
}

func (r *SourceRepo) UpdateSourceRowCount(ctx context.Context, sourceID string, rowCount int) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE sources SET row_count=$2, updated_at=NOW() WHERE source_id=$1`, sourceID, rowCount)
	if err != nil {
		return fmt.Errorf("update source row count: %w", err)
	}
	return nil
}

func (r *SourceRepo) ListSourcesByBatch(ctx context.Context, batchID string) ([]models.Source, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT source_id, batch_id::text, filename, kind, COALESCE(row_count,0), status, COALESCE(fail_reason,''), created_at, updated_at
FROM sources
WHERE batch_id=$1::uuid
ORDER BY created_at DESC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := make([]models.Source, 0)
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(&s.SourceID, &s.BatchID, &s.Filename, &s.Kind, &s.RowCount, &s.Status, &s.FailReason, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

func (r *SourceRepo) ListFailedSources(ctx context.Context, batchID string) ([]models.Source, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT source_id, batch_id::text, filename, kind, COALESCE(row_count,0), status, COALESCE(fail_reason,''), created_at, updated_at
FROM sources
WHERE batch_id=$1::uuid AND status='failed'
ORDER BY updated_at DESC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list failed sources: %w", err)
	}
	defer rows.Close()
	out := make([]models.Source, 0)
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(&s.SourceID, &s.BatchID, &s.Filename, &s.Kind, &s.RowCount, &s.Status, &s.FailReason, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan failed source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SourceRepo) GetSourceByID(ctx context.Context, batchID, sourceID string) (models.Source, error) {
	var s models.Source
	err := r.db.Pool.QueryRow(ctx, `
SELECT source_id, batch_id::text, filename, kind, COALESCE(row_count,0), status, COALESCE(fail_reason,''), created_at, updated_at
FROM sources
WHERE batch_id=$1::uuid AND source_id=$2`, batchID, sourceID).
		Scan(&s.SourceID, &s.BatchID, &s.Filename, &s.Kind, &s.RowCount, &s.Status, &s.FailReason, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Source{}, fmt.Errorf("source %s: %w", sourceID, util.ErrNotFound)
	}
	if err != nil {
		return models.Source{}, fmt.Errorf("get source by id: %w", err)
	}
	return s, nil
}
