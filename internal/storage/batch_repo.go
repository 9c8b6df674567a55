package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"invoiceflow/internal/models"
	"invoiceflow/internal/util"
)

type BatchRepo struct {
	db *DB
}

func NewBatchRepo(db *DB) *BatchRepo {
	return &BatchRepo{db: db}
}

func (r *BatchRepo) CreateBatch(ctx context.Context, batch models.Batch) error {
	_, err := r.db.Pool.Exec(ctx, `INSERT INTO batches (batch_id, name) VALUES ($1, $2)`, batch.BatchID, batch.Name)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) GetBatch(ctx context.Context, batchID string) (models.Batch, error) {
	var b models.Batch
	err := r.db.Pool.QueryRow(ctx, `SELECT batch_id::text, name, created_at FROM batches WHERE batch_id=$1::uuid`, batchID).
		Scan(&b.BatchID, &b.Name, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Batch{}, fmt.Errorf("batch %s: %w", batchID, util.ErrNotFound)
	}
	if err != nil {
		return models.Batch{}, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (r *BatchRepo) ListBatches(ctx context.Context) ([]models.Batch, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT batch_id::text, name, created_at FROM batches ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	out := make([]models.Batch, 0)
	for rows.Next() {
		var b models.Batch
		if err := rows.Scan(&b.BatchID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return out, nil
}
